package models_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/chmdznr/pcsync/pkg/models"
)

func TestDestinationPath(t *testing.T) {
	spec := models.FileTypeSpec{Directory: "VID", Suffix: "-video.mp4"}
	gt.Value(t, models.DestinationPath("chi23b", spec, "P123")).Equal("chi23b_VID/P123-video.mp4")
}

func TestFileKeyDistinguishesSharedFlags(t *testing.T) {
	video := models.FileTypeSpec{Flag: "video", Directory: "VID", Suffix: "-video.mp4"}
	captions := models.FileTypeSpec{Flag: "video", Directory: "VID", Suffix: "-video.srt"}

	gt.Value(t, models.FileKey(video, "pn1")).Equal("VID/pn1-video.mp4")
	gt.Value(t, models.FileKey(captions, "pn1")).Equal("VID/pn1-video.srt")
}

func TestSubmissionRowLookup(t *testing.T) {
	row := models.SubmissionRow{ID: "pn1", Fields: map[string]string{"pdf": ""}}

	v, ok := row.Lookup("pdf")
	gt.Value(t, ok).Equal(true)
	gt.Value(t, v).Equal("")

	_, ok = row.Lookup("video")
	gt.Value(t, ok).Equal(false)
}

func TestAgreementField(t *testing.T) {
	tests := []struct {
		name       string
		upload     string
		agreement  string
		uploadable bool
	}{
		{name: "yes", upload: "yes", agreement: "", uploadable: true},
		{name: "no", upload: "no", agreement: "", uploadable: false},
		{name: "empty", upload: "", agreement: "", uploadable: false},
		{name: "agreement column", upload: "acmdl_agreement", agreement: "acmdl_agreement", uploadable: true},
		{name: "upper case", upload: "YES", agreement: "", uploadable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := models.FileTypeSpec{UploadToDL: tt.upload}
			gt.Value(t, spec.AgreementField()).Equal(tt.agreement)
			gt.Value(t, spec.Uploadable()).Equal(tt.uploadable)
		})
	}
}

func TestParseOverwriteMode(t *testing.T) {
	for _, s := range []string{"all", "none", "modified", " Modified "} {
		_, ok := models.ParseOverwriteMode(s)
		gt.Value(t, ok).Equal(true)
	}
	_, ok := models.ParseOverwriteMode("sometimes")
	gt.Value(t, ok).Equal(false)
}

func TestPassResultCount(t *testing.T) {
	r := models.PassResult{Outcomes: []models.Outcome{
		{Kind: models.OutcomeTransferred, Bytes: 10},
		{Kind: models.OutcomeNotSubmitted},
		{Kind: models.OutcomeTransferred, Bytes: 5},
	}}
	gt.Number(t, r.Count(models.OutcomeTransferred)).Equal(2)
	gt.Number(t, r.TransferredBytes()).Equal(int64(15))
}
