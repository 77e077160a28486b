package config

import (
	"errors"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/chmdznr/pcsync/pkg/models"
)

// DefaultSettingsFile is read from the working directory when present.
const DefaultSettingsFile = "pcsync.toml"

// Settings is the optional pcsync.toml. Command-line flags override it.
type Settings struct {
	Portal   PortalSettings   `toml:"portal"`
	Download DownloadSettings `toml:"download"`
	Stage    StageSettings    `toml:"stage"`
	Guess    GuessSettings    `toml:"guess"`

	metadataMaxAge time.Duration
	connectTimeout time.Duration
}

type PortalSettings struct {
	BaseURL        string `toml:"base_url"`
	IDColumn       string `toml:"id_column"`
	TitleColumn    string `toml:"title_column"`
	MetadataMaxAge string `toml:"metadata_max_age"`
	ConnectTimeout string `toml:"connect_timeout"`
	Retries        int    `toml:"retries"`
}

type DownloadSettings struct {
	Overwrite string `toml:"overwrite"`
	OutputDir string `toml:"output_dir"`
	MaxPasses int    `toml:"max_passes"`
	Ledger    bool   `toml:"ledger"`
}

type StageSettings struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Folder    string `toml:"folder"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Insecure  bool   `toml:"insecure"`
}

type GuessSettings struct {
	Rules []GuessRule             `toml:"rules"`
	Kinds map[string]KindTemplate `toml:"kinds"`
}

// DefaultSettings returns the values used without a settings file.
func DefaultSettings() *Settings {
	s := &Settings{
		Portal: PortalSettings{
			BaseURL:        "https://new.precisionconference.com",
			IDColumn:       "Paper ID",
			TitleColumn:    "Title",
			MetadataMaxAge: "5m",
			ConnectTimeout: "10s",
			Retries:        2,
		},
		Download: DownloadSettings{
			Overwrite: string(models.OverwriteModified),
			OutputDir: ".",
			Ledger:    true,
		},
	}
	_ = s.validate()
	return s
}

// LoadSettings reads path on top of the defaults. A missing file is not an
// error unless required is set.
func LoadSettings(path string, required bool) (*Settings, error) {
	s := DefaultSettings()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return s, nil
		}
		return nil, goerr.Wrap(models.ErrConfig, err.Error(), goerr.V("path", path))
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(s); err != nil {
		return nil, goerr.Wrap(models.ErrConfig, "failed to parse settings: "+err.Error(), goerr.V("path", path))
	}
	if err := s.validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid settings", goerr.V("path", path))
	}
	return s, nil
}

func (s *Settings) validate() error {
	var err error
	if s.metadataMaxAge, err = time.ParseDuration(s.Portal.MetadataMaxAge); err != nil {
		return goerr.Wrap(models.ErrConfig, "bad metadata_max_age", goerr.V("value", s.Portal.MetadataMaxAge))
	}
	if s.connectTimeout, err = time.ParseDuration(s.Portal.ConnectTimeout); err != nil || s.connectTimeout <= 0 {
		return goerr.Wrap(models.ErrConfig, "bad connect_timeout", goerr.V("value", s.Portal.ConnectTimeout))
	}
	if _, ok := models.ParseOverwriteMode(s.Download.Overwrite); !ok {
		return goerr.Wrap(models.ErrConfig, "bad overwrite mode", goerr.V("value", s.Download.Overwrite))
	}
	if s.Download.MaxPasses < 0 {
		return goerr.Wrap(models.ErrConfig, "max_passes must not be negative")
	}
	for _, r := range s.Guess.Rules {
		if r.Kind == "" {
			return goerr.Wrap(models.ErrConfig, "guess rule without kind", goerr.V("extension", r.Extension))
		}
	}
	return nil
}

// MetadataMaxAge is how long a downloaded spreadsheet may be reused.
func (s *Settings) MetadataMaxAge() time.Duration {
	return s.metadataMaxAge
}

// ConnectTimeout bounds connection setup and response headers.
func (s *Settings) ConnectTimeout() time.Duration {
	return s.connectTimeout
}

// Guesser returns the default guesser with any configured overrides.
// Configured rules replace the defaults; configured kinds are merged in.
func (s *Settings) Guesser() *Guesser {
	g := NewGuesser()
	if len(s.Guess.Rules) > 0 {
		g.Rules = s.Guess.Rules
	}
	for k, v := range s.Guess.Kinds {
		g.Templates[k] = v
	}
	return g
}
