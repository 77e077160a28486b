package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/pkg/models"
)

func guessSnapshot() *models.Snapshot {
	cols := []string{"Paper ID", "Title", "final_pdf", "Video Figure", "captions", "Supplemental Materials", "Source Files", "Other Archive", "DOI"}
	return &models.Snapshot{
		Track:   "chi23b",
		Columns: cols,
		Rows: []models.SubmissionRow{
			{ID: "pn1", Fields: map[string]string{
				"Paper ID": "pn1", "Title": "A", "final_pdf": "https://files.example/pn1.pdf?sig=1",
				"Video Figure": "", "captions": "https://files.example/pn1.srt",
				"Supplemental Materials": "https://files.example/sup.zip", "Source Files": "https://files.example/src.ZIP",
				"Other Archive": "https://files.example/x.zip", "DOI": "https://doi.org/10.1145/3544548.3580001",
			}},
			{ID: "pn2", Fields: map[string]string{
				"Paper ID": "pn2", "Title": "B", "final_pdf": "", "Video Figure": "https://files.example/v.mp4",
				"captions": "", "Supplemental Materials": "", "Source Files": "", "Other Archive": "", "DOI": "",
			}},
		},
	}
}

func TestGuess(t *testing.T) {
	guesses, specs := config.NewGuesser().Guess(guessSnapshot())

	kinds := map[string]string{}
	for _, g := range guesses {
		kinds[g.Field] = g.Kind
	}
	gt.Value(t, kinds).Equal(map[string]string{
		"Paper ID":               "",
		"Title":                  "",
		"final_pdf":              "pdf",
		"Video Figure":           "video",
		"captions":               "subtitles",
		"Supplemental Materials": "supplement",
		"Source Files":           "source",
		"Other Archive":          "zip",
		"DOI":                    "",
	})

	gt.Number(t, len(specs)).Equal(6)
	gt.Value(t, specs[0].SourceField).Equal("final_pdf")
	gt.Value(t, specs[0].Directory).Equal("PDF")
	gt.Value(t, specs[0].Tracks).Equal("chi23b")
	gt.Value(t, specs[1].Suffix).Equal("-video.mp4")
}

func TestGuessCustomRules(t *testing.T) {
	g := config.NewGuesser()
	g.Rules = []config.GuessRule{{Extension: ".pdf", Kind: "slides"}}
	g.Templates["slides"] = config.KindTemplate{Directory: "SLD", Suffix: "-slides.pdf", MIMEType: "application/pdf", UploadToDL: "yes"}

	_, specs := g.Guess(guessSnapshot())
	gt.Number(t, len(specs)).Equal(1)
	gt.Value(t, specs[0].Flag).Equal("slides")
}

func TestClassifyIgnoresPlainValues(t *testing.T) {
	g := config.NewGuesser()
	gt.Value(t, g.Classify("final_pdf", "paper.pdf")).Equal("")
	gt.Value(t, g.Classify("final_pdf", "http://x/paper.pdf")).Equal("pdf")
}

func TestClassifyPrecedence(t *testing.T) {
	testCases := map[string]struct {
		field string
		value string
		want  string
	}{
		"zipped video is a supplement": {
			field: "Supplemental Materials (Optional)",
			value: "https://pcs/files/pn1-video.mp4.zip",
			want:  "supplement",
		},
		"zipped sources": {
			field: "Source Files",
			value: "https://pcs/files/pn1.pdf.zip",
			want:  "source",
		},
		"pdf beats srt": {
			field: "captions",
			value: "https://pcs/files/pn1-captions.srt.pdf",
			want:  "pdf",
		},
		"srt beats mp4": {
			field: "captions",
			value: "https://pcs/files/pn1.mp4.srt",
			want:  "subtitles",
		},
		"plain video": {
			field: "Video Figure",
			value: "https://pcs/files/pn1.mp4",
			want:  "video",
		},
	}

	g := config.NewGuesser()
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Value(t, g.Classify(tc.field, tc.value)).Equal(tc.want)
		})
	}
}

func TestWriteDraft(t *testing.T) {
	dir := t.TempDir()
	production := filepath.Join(dir, config.FieldsPath("chi23b"))
	gt.NoError(t, os.WriteFile(production, []byte("keep me"), 0o644))

	_, specs := config.NewGuesser().Guess(guessSnapshot())

	err := config.WriteDraft(production, production, specs)
	gt.Value(t, errors.Is(err, models.ErrConfig)).Equal(true)

	draft := config.DraftPath(production)
	gt.NoError(t, config.WriteDraft(draft, production, specs))

	loaded, err := config.LoadFieldTable(draft)
	gt.NoError(t, err)
	gt.Value(t, loaded).Equal(specs)

	kept, err := os.ReadFile(production)
	gt.NoError(t, err)
	gt.Value(t, string(kept)).Equal("keep me")
}
