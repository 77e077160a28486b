package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/pkg/models"
)

// GuessRule classifies a URL-valued field. The first matching rule wins.
type GuessRule struct {
	Extension     string `toml:"extension"`
	FieldContains string `toml:"field_contains"`
	Kind          string `toml:"kind"`
}

// KindTemplate holds the field table values written for a guessed kind.
type KindTemplate struct {
	Directory  string `toml:"directory"`
	Suffix     string `toml:"suffix"`
	MIMEType   string `toml:"mimetype"`
	UploadToDL string `toml:"upload_to_dl"`
	ReadyField string `toml:"ready_field"`
}

// DefaultGuessRules mirror the field names PCS uses for camera-ready uploads.
// Archives come first, so pn1-video.mp4.zip is a zip and not a video, and a
// .pdf wins over .srt, which wins over .mp4.
func DefaultGuessRules() []GuessRule {
	return []GuessRule{
		{Extension: ".zip", FieldContains: "upplement", Kind: "supplement"},
		{Extension: ".zip", FieldContains: "ource", Kind: "source"},
		{Extension: ".zip", Kind: "zip"},
		{Extension: ".pdf", Kind: "pdf"},
		{Extension: ".srt", Kind: "subtitles"},
		{Extension: ".mp4", Kind: "video"},
	}
}

// DefaultKindTemplates are the ACM DL naming conventions per kind.
func DefaultKindTemplates() map[string]KindTemplate {
	return map[string]KindTemplate{
		"pdf":        {Directory: "PDF", Suffix: ".pdf", MIMEType: "application/pdf", UploadToDL: "no"},
		"video":      {Directory: "VID", Suffix: "-video.mp4", MIMEType: "video/mp4", UploadToDL: "yes"},
		"subtitles":  {Directory: "VID", Suffix: "-subtitles.vtt", MIMEType: "text/vtt", UploadToDL: "yes"},
		"supplement": {Directory: "SUP", Suffix: "-supplemental-materials.zip", MIMEType: "application/zip", UploadToDL: "yes"},
		"source":     {Directory: "SRC", Suffix: "-source.zip", MIMEType: "application/zip", UploadToDL: "no"},
		"zip":        {Directory: "ZIP", Suffix: ".zip", MIMEType: "application/zip", UploadToDL: "no"},
	}
}

// Guesser drafts a field table from a metadata snapshot.
type Guesser struct {
	Rules     []GuessRule
	Templates map[string]KindTemplate
}

// NewGuesser returns a guesser with the default rules and templates.
func NewGuesser() *Guesser {
	return &Guesser{Rules: DefaultGuessRules(), Templates: DefaultKindTemplates()}
}

// FieldGuess is the classification of one spreadsheet column.
type FieldGuess struct {
	Field string
	Kind  string
}

// Classify returns the kind of a single value in field, or "".
func (g *Guesser) Classify(field, value string) string {
	if !strings.HasPrefix(value, "http") {
		return ""
	}
	lower := strings.ToLower(value)
	for _, r := range g.Rules {
		if r.Extension != "" && !strings.Contains(lower, strings.ToLower(r.Extension)) {
			continue
		}
		if r.FieldContains != "" && !strings.Contains(field, r.FieldContains) {
			continue
		}
		return r.Kind
	}
	return ""
}

// Guess classifies every column of snap. Columns are returned in header
// order; Kind is empty for columns that never held a recognised URL. The
// last classified value of a column decides its kind.
func (g *Guesser) Guess(snap *models.Snapshot) ([]FieldGuess, []models.FileTypeSpec) {
	kinds := make(map[string]string, len(snap.Columns))
	for _, row := range snap.Rows {
		for _, col := range snap.Columns {
			if k := g.Classify(col, row.Fields[col]); k != "" {
				kinds[col] = k
			}
		}
	}

	var guesses []FieldGuess
	var specs []models.FileTypeSpec
	for _, col := range snap.Columns {
		kind := kinds[col]
		guesses = append(guesses, FieldGuess{Field: col, Kind: kind})
		if kind == "" {
			continue
		}
		tpl, ok := g.Templates[kind]
		if !ok {
			continue
		}
		specs = append(specs, models.FileTypeSpec{
			Tracks:      snap.Track,
			Flag:        kind,
			SourceField: col,
			Description: col,
			Directory:   tpl.Directory,
			Suffix:      tpl.Suffix,
			MIMEType:    tpl.MIMEType,
			UploadToDL:  tpl.UploadToDL,
			ReadyField:  tpl.ReadyField,
		})
	}
	return guesses, specs
}

// DraftPath is where a guessed table for the production table at path goes.
func DraftPath(path string) string {
	return path + ".draft"
}

// WriteDraft writes a guessed field table. It refuses to write onto the
// production table.
func WriteDraft(draft, production string, specs []models.FileTypeSpec) error {
	if filepath.Clean(draft) == filepath.Clean(production) {
		return goerr.Wrap(models.ErrConfig, "refusing to overwrite production field table", goerr.V("path", production))
	}
	f, err := os.Create(draft)
	if err != nil {
		return goerr.Wrap(err, "failed to create draft field table", goerr.V("path", draft))
	}
	if err := WriteFieldTable(f, specs); err != nil {
		f.Close()
		return goerr.Wrap(err, "failed to write draft field table", goerr.V("path", draft))
	}
	return f.Close()
}
