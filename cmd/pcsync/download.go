package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/internal/db"
	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/internal/portal"
	"github.com/chmdznr/pcsync/internal/sync"
	"github.com/chmdznr/pcsync/pkg/models"
)

func downloadCommand(logger *logging.Logger) *cli.Command {
	flags := []cli.Flag{
		trackFlag(),
		fieldsFlag(),
		outputFlag(),
		&cli.StringFlag{
			Name:  "overwrite",
			Usage: "when to replace local files: all, none or modified (default from settings)",
		},
		&cli.IntFlag{
			Name:  "start",
			Usage: "index of the first submission to process",
		},
		&cli.IntFlag{
			Name:  "max-passes",
			Usage: "give up after this many passes (0 retries forever)",
		},
		&cli.BoolFlag{
			Name:  "no-ledger",
			Usage: "do not record outcomes in {track}.db",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "do not draw progress bars",
		},
	}

	return &cli.Command{
		Name:      "download",
		Usage:     "Download the spreadsheet and the files of the given download flags",
		ArgsUsage: "[flag ...|all]",
		Flags:     append(flags, credentialFlags()...),
		Action: func(c *cli.Context) error {
			return download(c, logger)
		},
	}
}

func download(c *cli.Context, logger *logging.Logger) error {
	track := c.String("track")
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	mode := models.OverwriteMode(settings.Download.Overwrite)
	if c.IsSet("overwrite") {
		m, ok := models.ParseOverwriteMode(c.String("overwrite"))
		if !ok {
			return goerr.Wrap(models.ErrConfig, "overwrite must be all, none or modified", goerr.V("value", c.String("overwrite")))
		}
		mode = m
	}
	maxPasses := settings.Download.MaxPasses
	if c.IsSet("max-passes") {
		maxPasses = c.Int("max-passes")
	}
	start := c.Int("start")
	if start < 0 {
		return goerr.Wrap(models.ErrConfig, "start must not be negative", goerr.V("start", start))
	}

	specs, err := config.LoadFieldTable(fieldsPath(c, track))
	if err != nil {
		return err
	}
	sel, err := config.Select(specs, c.Args().Slice())
	if err != nil {
		return err
	}
	logIgnored(logger, sel)

	user, password, err := credentials(c)
	if err != nil {
		return err
	}
	dir := outputDir(c, settings)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create output directory", goerr.V("dir", dir))
	}
	src := &portal.Source{
		Options:  portalOptions(c, settings, logger),
		User:     user,
		Password: password,
		Track:    track,
		Store:    newStore(dir, settings, logger),
	}

	if len(sel.Specs) == 0 {
		snap, _, err := src.Acquire(c.Context, false)
		if err != nil {
			return err
		}
		logger.Info().Int("submissions", len(snap.Rows)).Str("path", snap.Source).
			Msg("no download flags given, only the spreadsheet was fetched")
		return nil
	}

	engine := &sync.Engine{
		Track:     track,
		OutputDir: dir,
		Overwrite: mode,
		Specs:     sel.Specs,
		Logger:    logger,
		Progress:  progressWriter(c.Bool("no-progress")),
	}
	driver := &sync.Driver{
		Engine:    engine,
		Source:    &sessionSource{src: src},
		MaxPasses: maxPasses,
		Logger:    logger,
	}

	var runLog *db.RunLog
	if settings.Download.Ledger && !c.Bool("no-ledger") {
		ledger, err := db.New(filepath.Join(dir, db.Path(track)))
		if err != nil {
			return err
		}
		defer ledger.Close()
		run, err := ledger.StartRun(track, start)
		if err != nil {
			return err
		}
		runLog = ledger.RunLog(run)
		engine.Recorder = runLog
		driver.Recorder = runLog
	}

	logger.Info().Str("track", track).Strs("flags", sel.Accepted).Str("overwrite", string(mode)).
		Int("start", start).Msg("starting download")
	sum, err := driver.Run(c.Context, start)

	if runLog != nil {
		status := db.RunCompleted
		if err != nil {
			status = db.RunFailed
		}
		if ferr := runLog.Finish(status); ferr != nil {
			logger.Warn().Err(ferr).Msg("failed to finish run in ledger")
		}
	}
	if err != nil {
		if errors.Is(err, models.ErrGaveUp) || c.Context.Err() != nil {
			logger.Warn().Msgf("resume later with --start %d", sum.Resume)
		}
		return err
	}
	return nil
}
