// Package stage copies downloaded files that may be published into an
// S3 compatible bucket for the digital library.
package stage

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/pkg/models"
	"github.com/chmdznr/pcsync/pkg/utils"
)

// Target is the bucket files are staged to.
type Target struct {
	Endpoint  string
	Bucket    string
	Folder    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// Uploader is the part of the MinIO client the stager needs.
type Uploader interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Ledger remembers what was staged already.
type Ledger interface {
	IsStaged(track string, spec models.FileTypeSpec, submissionID string) (bool, error)
	MarkStaged(track string, spec models.FileTypeSpec, submissionID, path string, size int64) error
}

// NewClient creates a MinIO client for target.
func NewClient(target Target) (*minio.Client, error) {
	if target.Endpoint == "" || target.Bucket == "" {
		return nil, goerr.Wrap(models.ErrConfig, "staging needs an endpoint and a bucket")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(target.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(target.AccessKey, target.SecretKey, ""),
		Secure:       !target.Insecure,
		Transport:    tr,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize MinIO client", goerr.V("endpoint", target.Endpoint))
	}
	return client, nil
}

// Reasons a file is not staged.
const (
	ReasonNotUploadable = "not for the digital library"
	ReasonNoAgreement   = "agreement missing"
	ReasonNotReady      = "not marked ready"
	ReasonNotSubmitted  = "not submitted"
	ReasonNotDownloaded = "not downloaded"
)

// Eligible decides from the spreadsheet alone whether the file of spec
// for row may go to the archive. The reason is empty when it may.
func Eligible(row models.SubmissionRow, spec models.FileTypeSpec) (bool, string) {
	if !spec.Uploadable() {
		return false, ReasonNotUploadable
	}
	if v, _ := row.Lookup(spec.SourceField); strings.TrimSpace(v) == "" {
		return false, ReasonNotSubmitted
	}
	if field := spec.AgreementField(); field != "" {
		if v, _ := row.Lookup(field); strings.TrimSpace(v) == "" {
			return false, ReasonNoAgreement
		}
	}
	if field := strings.TrimSpace(spec.ReadyField); field != "" {
		if v, _ := row.Lookup(field); strings.TrimSpace(v) == "" {
			return false, ReasonNotReady
		}
	}
	return true, ""
}

// ObjectKey returns {folder}/{track}/{directory}/{file}.
func ObjectKey(folder, track string, spec models.FileTypeSpec, submissionID string) string {
	folder = strings.Trim(strings.ReplaceAll(folder, "\\", "/"), "/")
	return strings.TrimPrefix(path.Join(folder, track, spec.Directory, spec.FileName(submissionID)), "/")
}

// Item is one file considered for staging.
type Item struct {
	SubmissionID string
	Spec         models.FileTypeSpec
	LocalPath    string
	Key          string
	Size         int64
	Reason       string
}

// Result lists what a staging run did.
type Result struct {
	Staged  []Item
	Skipped []Item
	// AlreadyStaged counts files the ledger knows were staged before.
	AlreadyStaged int
	Bytes         int64
}

// Stager uploads eligible files of one track.
type Stager struct {
	Client    Uploader
	Target    Target
	Track     string
	OutputDir string
	Ledger    Ledger
	DryRun    bool
	Force     bool
	Logger    *logging.Logger
}

func (s *Stager) logger() *logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger
}

// Run stages every eligible file of specs found in snap. An upload error
// stops the run.
func (s *Stager) Run(ctx context.Context, snap *models.Snapshot, specs []models.FileTypeSpec) (*Result, error) {
	log := s.logger()
	res := &Result{}

	if !s.DryRun {
		ok, err := s.Client.BucketExists(ctx, s.Target.Bucket)
		if err != nil {
			return res, goerr.Wrap(err, "failed to check bucket", goerr.V("bucket", s.Target.Bucket))
		}
		if !ok {
			return res, goerr.Wrap(models.ErrConfig, "bucket does not exist", goerr.V("bucket", s.Target.Bucket))
		}
	}

	for _, row := range snap.Rows {
		for _, spec := range specs {
			item := Item{
				SubmissionID: row.ID,
				Spec:         spec,
				LocalPath:    filepath.Join(s.OutputDir, models.DestinationPath(s.Track, spec, row.ID)),
				Key:          ObjectKey(s.Target.Folder, s.Track, spec, row.ID),
			}

			if ok, reason := Eligible(row, spec); !ok {
				item.Reason = reason
				res.Skipped = append(res.Skipped, item)
				continue
			}
			info, err := os.Stat(item.LocalPath)
			if err != nil || !info.Mode().IsRegular() {
				item.Reason = ReasonNotDownloaded
				res.Skipped = append(res.Skipped, item)
				continue
			}
			item.Size = info.Size()

			if !s.Force && s.Ledger != nil {
				staged, err := s.Ledger.IsStaged(s.Track, spec, row.ID)
				if err != nil {
					return res, err
				}
				if staged {
					res.AlreadyStaged++
					continue
				}
			}

			if s.DryRun {
				log.Info().Str("file", item.LocalPath).Str("key", item.Key).Msg("would stage")
				res.Staged = append(res.Staged, item)
				res.Bytes += item.Size
				continue
			}

			if err := s.upload(ctx, item); err != nil {
				return res, err
			}
			res.Staged = append(res.Staged, item)
			res.Bytes += item.Size
		}
	}

	log.Info().
		Int("staged", len(res.Staged)).
		Str("size", utils.FormatSize(res.Bytes)).
		Int("already_staged", res.AlreadyStaged).
		Int("skipped", len(res.Skipped)).
		Bool("dry_run", s.DryRun).
		Msg("staging finished")
	return res, nil
}

func (s *Stager) upload(ctx context.Context, item Item) error {
	opts := minio.PutObjectOptions{
		ContentType: item.Spec.MIMEType,
		UserMetadata: map[string]string{
			"submission-id": item.SubmissionID,
			"track":         s.Track,
		},
	}

	info, err := s.Client.FPutObject(ctx, s.Target.Bucket, item.Key, item.LocalPath, opts)
	if err != nil {
		return goerr.Wrap(err, "failed to stage file",
			goerr.V("file", item.LocalPath),
			goerr.V("bucket", s.Target.Bucket),
			goerr.V("key", item.Key),
			goerr.V("code", minio.ToErrorResponse(err).Code))
	}
	if info.Size != item.Size {
		return goerr.New("staged object size mismatch",
			goerr.V("key", item.Key), goerr.V("expected", item.Size), goerr.V("actual", info.Size))
	}

	s.logger().Info().Str("key", item.Key).Str("size", utils.FormatSize(item.Size)).Msg("staged")
	if s.Ledger != nil {
		if err := s.Ledger.MarkStaged(s.Track, item.Spec, item.SubmissionID, item.LocalPath, item.Size); err != nil {
			s.logger().Warn().Err(err).Str("key", item.Key).Msg("failed to record staging")
		}
	}
	return nil
}
