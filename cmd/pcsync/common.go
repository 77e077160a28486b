package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/internal/metadata"
	"github.com/chmdznr/pcsync/internal/portal"
	"github.com/chmdznr/pcsync/internal/sync"
	"github.com/chmdznr/pcsync/pkg/models"
)

func trackFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "track",
		Aliases:  []string{"t"},
		Usage:    "PCS track id, e.g. chi23b",
		Required: true,
	}
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "PCS user name",
			EnvVars: []string{"PCS_USER"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "PCS password (prompted when not given)",
			EnvVars: []string{"PCS_PASSWORD"},
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "PCS portal address (overrides settings)",
		},
	}
}

func fieldsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "fields",
		Usage: "field table (default {track}_fields.csv)",
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output directory (overrides settings)",
	}
}

func loadSettings(c *cli.Context) (*config.Settings, error) {
	return config.LoadSettings(c.String("settings"), c.IsSet("settings"))
}

func outputDir(c *cli.Context, settings *config.Settings) string {
	if dir := c.String("output"); dir != "" {
		return dir
	}
	return settings.Download.OutputDir
}

func fieldsPath(c *cli.Context, track string) string {
	if p := c.String("fields"); p != "" {
		return p
	}
	return config.FieldsPath(track)
}

// credentials reads the PCS login from flags or environment and prompts
// for whatever is missing.
func credentials(c *cli.Context) (string, string, error) {
	user, password := c.String("user"), c.String("password")
	fd := int(os.Stdin.Fd())

	if user == "" {
		fmt.Fprint(os.Stderr, "PCS user: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", "", goerr.Wrap(models.ErrAuth, "no user name given")
		}
		user = strings.TrimSpace(line)
	}
	if password == "" {
		if !term.IsTerminal(fd) {
			return "", "", goerr.Wrap(models.ErrAuth, "no password given; set PCS_PASSWORD or use --password")
		}
		fmt.Fprintf(os.Stderr, "Password for %s: ", user)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", "", goerr.Wrap(models.ErrAuth, "failed to read password: "+err.Error())
		}
		password = string(b)
	}
	return user, password, nil
}

func portalOptions(c *cli.Context, settings *config.Settings, logger *logging.Logger) portal.Options {
	base := settings.Portal.BaseURL
	if u := c.String("base-url"); u != "" {
		base = u
	}
	return portal.Options{
		BaseURL:        base,
		ConnectTimeout: settings.ConnectTimeout(),
		Retries:        settings.Portal.Retries,
		Logger:         logger,
	}
}

func newStore(dir string, settings *config.Settings, logger *logging.Logger) *portal.Store {
	store := portal.NewStore(dir)
	store.MaxAge = settings.MetadataMaxAge()
	store.Columns = metadata.Columns{ID: settings.Portal.IDColumn, Title: settings.Portal.TitleColumn}
	store.Logger = logger
	return store
}

// login signs in with the credentials of c.
func login(c *cli.Context, settings *config.Settings, logger *logging.Logger) (*portal.Session, error) {
	user, password, err := credentials(c)
	if err != nil {
		return nil, err
	}
	return portal.Login(c.Context, portalOptions(c, settings, logger), user, password)
}

// snapshot returns the spreadsheet of track, from the local copy when
// offline is set and otherwise through a fresh login.
func snapshot(c *cli.Context, track string, store *portal.Store, settings *config.Settings, logger *logging.Logger, offline bool) (*models.Snapshot, error) {
	if offline {
		snap, err := store.Local(track)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", snap.Source).Time("fetched_at", snap.FetchedAt).Msg("using local spreadsheet")
		return snap, nil
	}
	sess, err := login(c, settings, logger)
	if err != nil {
		return nil, err
	}
	return store.Load(c.Context, sess, track, false)
}

// sessionSource adapts portal.Source to the driver.
type sessionSource struct {
	src *portal.Source
}

func (s *sessionSource) Acquire(ctx context.Context, refresh bool) (*models.Snapshot, sync.Fetcher, error) {
	snap, sess, err := s.src.Acquire(ctx, refresh)
	if err != nil {
		return nil, nil, err
	}
	return snap, sess, nil
}

// progressWriter returns stderr when it is a terminal.
func progressWriter(disabled bool) io.Writer {
	if disabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return io.Discard
	}
	return os.Stderr
}

func logIgnored(logger *logging.Logger, sel *config.Selection) {
	for _, tok := range sel.Ignored {
		logger.Warnf("ignoring unknown download flag %q", tok)
	}
}
