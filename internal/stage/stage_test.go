package stage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/minio/minio-go/v7"

	"github.com/chmdznr/pcsync/internal/db"
	"github.com/chmdznr/pcsync/internal/stage"
	"github.com/chmdznr/pcsync/pkg/models"
)

type upload struct {
	Bucket, Key, File, ContentType string
}

type fakeUploader struct {
	bucketMissing bool
	uploads       []upload
}

func (f *fakeUploader) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return !f.bucketMissing, nil
}

func (f *fakeUploader) FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.uploads = append(f.uploads, upload{Bucket: bucket, Key: object, File: filePath, ContentType: opts.ContentType})
	info, err := os.Stat(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: info.Size()}, nil
}

type memLedger map[string]bool

func (m memLedger) IsStaged(track string, spec models.FileTypeSpec, id string) (bool, error) {
	return m[track+"/"+models.FileKey(spec, id)], nil
}

func (m memLedger) MarkStaged(track string, spec models.FileTypeSpec, id, path string, size int64) error {
	m[track+"/"+models.FileKey(spec, id)] = true
	return nil
}

var (
	pdf = models.FileTypeSpec{
		Flag: "pdf", SourceField: "final_pdf", Directory: "PDF", Suffix: ".pdf",
		MIMEType: "application/pdf", UploadToDL: "yes",
	}
	video = models.FileTypeSpec{
		Flag: "video", SourceField: "video_figure", Directory: "VID", Suffix: "-video.mp4",
		MIMEType: "video/mp4", UploadToDL: "video_agreement", ReadyField: "video_ready",
	}
	captions = models.FileTypeSpec{
		Flag: "video", SourceField: "video_captions", Directory: "VID", Suffix: "-video.srt",
		MIMEType: "text/plain", UploadToDL: "video_agreement",
	}
	source = models.FileTypeSpec{
		Flag: "src", SourceField: "source_files", Directory: "SRC", Suffix: "-source.zip", UploadToDL: "no",
	}
)

func TestEligible(t *testing.T) {
	testCases := map[string]struct {
		spec   models.FileTypeSpec
		fields map[string]string
		ok     bool
		reason string
	}{
		"plain yes": {
			spec:   pdf,
			fields: map[string]string{"final_pdf": "https://x"},
			ok:     true,
		},
		"never uploaded": {
			spec:   source,
			fields: map[string]string{"source_files": "https://x"},
			reason: stage.ReasonNotUploadable,
		},
		"not submitted": {
			spec:   pdf,
			fields: map[string]string{"final_pdf": ""},
			reason: stage.ReasonNotSubmitted,
		},
		"agreement missing": {
			spec:   video,
			fields: map[string]string{"video_figure": "https://x", "video_ready": "1"},
			reason: stage.ReasonNoAgreement,
		},
		"not ready": {
			spec:   video,
			fields: map[string]string{"video_figure": "https://x", "video_agreement": "signed", "video_ready": " "},
			reason: stage.ReasonNotReady,
		},
		"agreed and ready": {
			spec:   video,
			fields: map[string]string{"video_figure": "https://x", "video_agreement": "signed", "video_ready": "1"},
			ok:     true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ok, reason := stage.Eligible(models.SubmissionRow{ID: "pn1", Fields: tc.fields}, tc.spec)
			gt.Value(t, ok).Equal(tc.ok)
			gt.Value(t, reason).Equal(tc.reason)
		})
	}
}

func TestObjectKey(t *testing.T) {
	gt.Value(t, stage.ObjectKey("dl/2023/", "chi23b", video, "pn1")).Equal("dl/2023/chi23b/VID/pn1-video.mp4")
	gt.Value(t, stage.ObjectKey("", "chi23b", pdf, "pn1")).Equal("chi23b/PDF/pn1.pdf")
	gt.Value(t, stage.ObjectKey(`\dl\`, "chi23b", pdf, "pn1")).Equal("dl/chi23b/PDF/pn1.pdf")
}

func setup(t *testing.T) (string, *models.Snapshot) {
	t.Helper()
	dir := t.TempDir()
	for _, p := range []string{"chi23b_PDF/pn1.pdf", "chi23b_VID/pn1-video.mp4"} {
		full := filepath.Join(dir, p)
		gt.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		gt.NoError(t, os.WriteFile(full, []byte("content of "+p), 0o644))
	}
	snap := &models.Snapshot{Track: "chi23b", Rows: []models.SubmissionRow{
		{ID: "pn1", Fields: map[string]string{
			"final_pdf": "https://x/1.pdf", "video_figure": "https://x/1.mp4",
			"video_agreement": "signed", "video_ready": "yes",
		}},
		{ID: "pn2", Fields: map[string]string{"final_pdf": "https://x/2.pdf", "video_figure": ""}},
	}}
	return dir, snap
}

func TestStagerRun(t *testing.T) {
	dir, snap := setup(t)
	up := &fakeUploader{}
	ledger := memLedger{}
	s := &stage.Stager{
		Client:    up,
		Target:    stage.Target{Bucket: "archive", Folder: "dl"},
		Track:     "chi23b",
		OutputDir: dir,
		Ledger:    ledger,
	}

	res, err := s.Run(context.Background(), snap, []models.FileTypeSpec{pdf, video})
	gt.NoError(t, err)
	gt.Number(t, len(res.Staged)).Equal(2)
	gt.Value(t, up.uploads).Equal([]upload{
		{Bucket: "archive", Key: "dl/chi23b/PDF/pn1.pdf", File: filepath.Join(dir, "chi23b_PDF/pn1.pdf"), ContentType: "application/pdf"},
		{Bucket: "archive", Key: "dl/chi23b/VID/pn1-video.mp4", File: filepath.Join(dir, "chi23b_VID/pn1-video.mp4"), ContentType: "video/mp4"},
	})

	// pn2 has a pdf URL but nothing on disk, and no video
	gt.Number(t, len(res.Skipped)).Equal(2)
	gt.Value(t, res.Skipped[0].Reason).Equal(stage.ReasonNotDownloaded)
	gt.Value(t, res.Skipped[1].Reason).Equal(stage.ReasonNotSubmitted)

	// second run finds everything staged
	res, err = s.Run(context.Background(), snap, []models.FileTypeSpec{pdf, video})
	gt.NoError(t, err)
	gt.Number(t, len(res.Staged)).Equal(0)
	gt.Number(t, res.AlreadyStaged).Equal(2)

	// force uploads again
	s.Force = true
	res, err = s.Run(context.Background(), snap, []models.FileTypeSpec{pdf})
	gt.NoError(t, err)
	gt.Number(t, len(res.Staged)).Equal(1)
	gt.Number(t, len(up.uploads)).Equal(3)
}

func TestStagerSharedFlagWithSqliteLedger(t *testing.T) {
	dir, snap := setup(t)
	srt := filepath.Join(dir, "chi23b_VID/pn1-video.srt")
	gt.NoError(t, os.WriteFile(srt, []byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n"), 0o644))
	snap.Rows[0].Fields["video_captions"] = "https://x/1.srt"

	ledger, err := db.New(filepath.Join(t.TempDir(), db.Path("chi23b")))
	gt.NoError(t, err)
	defer ledger.Close()

	up := &fakeUploader{}
	s := &stage.Stager{Client: up, Target: stage.Target{Bucket: "archive"}, Track: "chi23b", OutputDir: dir, Ledger: ledger}

	res, err := s.Run(context.Background(), snap, []models.FileTypeSpec{video})
	gt.NoError(t, err)
	gt.Number(t, len(res.Staged)).Equal(1)

	// the captions share the video flag but were never staged
	res, err = s.Run(context.Background(), snap, []models.FileTypeSpec{video, captions})
	gt.NoError(t, err)
	gt.Number(t, res.AlreadyStaged).Equal(1)
	gt.Number(t, len(res.Staged)).Equal(1)
	gt.Value(t, res.Staged[0].Key).Equal("chi23b/VID/pn1-video.srt")
	gt.Value(t, up.uploads[len(up.uploads)-1].ContentType).Equal("text/plain")
}

func TestStagerDryRun(t *testing.T) {
	dir, snap := setup(t)
	up := &fakeUploader{bucketMissing: true}
	s := &stage.Stager{Client: up, Target: stage.Target{Bucket: "archive"}, Track: "chi23b", OutputDir: dir, DryRun: true}

	res, err := s.Run(context.Background(), snap, []models.FileTypeSpec{pdf, video})
	gt.NoError(t, err)
	gt.Number(t, len(res.Staged)).Equal(2)
	gt.Number(t, len(up.uploads)).Equal(0)
	gt.Value(t, res.Staged[0].Key).Equal("chi23b/PDF/pn1.pdf")
}

func TestStagerMissingBucket(t *testing.T) {
	dir, snap := setup(t)
	s := &stage.Stager{Client: &fakeUploader{bucketMissing: true}, Target: stage.Target{Bucket: "archive"}, Track: "chi23b", OutputDir: dir}

	_, err := s.Run(context.Background(), snap, []models.FileTypeSpec{pdf})
	gt.Value(t, errors.Is(err, models.ErrConfig)).Equal(true)
}

func TestNewClientNeedsTarget(t *testing.T) {
	_, err := stage.NewClient(stage.Target{Endpoint: "play.min.io"})
	gt.Value(t, errors.Is(err, models.ErrConfig)).Equal(true)

	client, err := stage.NewClient(stage.Target{Endpoint: "play.min.io", Bucket: "archive", AccessKey: "a", SecretKey: "b"})
	gt.NoError(t, err)
	gt.Value(t, client.EndpointURL().Scheme).Equal("https")
}
