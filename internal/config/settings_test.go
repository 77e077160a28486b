package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/pkg/models"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := config.LoadSettings(filepath.Join(t.TempDir(), "pcsync.toml"), false)
	gt.NoError(t, err)
	gt.Value(t, s.Portal.IDColumn).Equal("Paper ID")
	gt.Value(t, s.MetadataMaxAge()).Equal(5 * time.Minute)
	gt.Value(t, s.ConnectTimeout()).Equal(10 * time.Second)
	gt.Value(t, s.Download.Overwrite).Equal("modified")
}

func TestLoadSettingsRequired(t *testing.T) {
	_, err := config.LoadSettings(filepath.Join(t.TempDir(), "pcsync.toml"), true)
	gt.Value(t, errors.Is(err, models.ErrConfig)).Equal(true)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcsync.toml")
	gt.NoError(t, os.WriteFile(path, []byte(`
[portal]
base_url = "https://pcs.example"
metadata_max_age = "1m"

[download]
overwrite = "none"
max_passes = 3

[stage]
endpoint = "minio.example:9000"
bucket = "acmdl"

[[guess.rules]]
extension = ".pdf"
kind = "slides"

[guess.kinds.slides]
directory = "SLD"
suffix = "-slides.pdf"
mimetype = "application/pdf"
upload_to_dl = "yes"
`), 0o644))

	s, err := config.LoadSettings(path, true)
	gt.NoError(t, err)
	gt.Value(t, s.Portal.BaseURL).Equal("https://pcs.example")
	gt.Value(t, s.Portal.IDColumn).Equal("Paper ID")
	gt.Value(t, s.MetadataMaxAge()).Equal(time.Minute)
	gt.Value(t, s.Download.Overwrite).Equal("none")
	gt.Number(t, s.Download.MaxPasses).Equal(3)
	gt.Value(t, s.Stage.Bucket).Equal("acmdl")

	g := s.Guesser()
	gt.Number(t, len(g.Rules)).Equal(1)
	gt.Value(t, g.Templates["slides"].Directory).Equal("SLD")
	gt.Value(t, g.Templates["pdf"].Directory).Equal("PDF")
}

func TestLoadSettingsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad overwrite", content: "[download]\noverwrite = \"sometimes\"\n"},
		{name: "bad duration", content: "[portal]\nmetadata_max_age = \"soon\"\n"},
		{name: "unknown key", content: "[portal]\nbase = \"x\"\n"},
		{name: "negative passes", content: "[download]\nmax_passes = -1\n"},
		{name: "syntax", content: "[portal\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pcsync.toml")
			gt.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := config.LoadSettings(path, true)
			gt.Value(t, errors.Is(err, models.ErrConfig)).Equal(true)
		})
	}
}
