package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/internal/db"
	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/internal/stage"
	"github.com/chmdznr/pcsync/pkg/utils"
)

func stageCommand(logger *logging.Logger) *cli.Command {
	flags := []cli.Flag{
		trackFlag(),
		fieldsFlag(),
		outputFlag(),
		offlineFlag(),
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "MinIO / S3 endpoint (overrides settings)",
		},
		&cli.StringFlag{
			Name:  "bucket",
			Usage: "bucket name (overrides settings)",
		},
		&cli.StringFlag{
			Name:  "folder",
			Usage: "folder inside the bucket (overrides settings)",
		},
		&cli.StringFlag{
			Name:    "access-key",
			Usage:   "access key",
			EnvVars: []string{"PCSYNC_STAGE_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "secret key",
			EnvVars: []string{"PCSYNC_STAGE_SECRET_KEY"},
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "use plain HTTP",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "only report what would be staged",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "stage files again even if the ledger says they are staged",
		},
	}
	return &cli.Command{
		Name:      "stage",
		Usage:     "Copy downloaded files that may be published into the archive bucket",
		ArgsUsage: "[flag ...|all]",
		Flags:     append(flags, credentialFlags()...),
		Action: func(c *cli.Context) error {
			return stageFiles(c, logger)
		},
	}
}

func stageTarget(c *cli.Context, settings *config.Settings) stage.Target {
	t := stage.Target{
		Endpoint:  settings.Stage.Endpoint,
		Bucket:    settings.Stage.Bucket,
		Folder:    settings.Stage.Folder,
		AccessKey: settings.Stage.AccessKey,
		SecretKey: settings.Stage.SecretKey,
		Insecure:  settings.Stage.Insecure,
	}
	override := func(name string, dst *string) {
		if v := c.String(name); v != "" {
			*dst = v
		}
	}
	override("endpoint", &t.Endpoint)
	override("bucket", &t.Bucket)
	override("folder", &t.Folder)
	override("access-key", &t.AccessKey)
	override("secret-key", &t.SecretKey)
	if c.IsSet("insecure") {
		t.Insecure = c.Bool("insecure")
	}
	return t
}

func stageFiles(c *cli.Context, logger *logging.Logger) error {
	track := c.String("track")
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	specs, err := config.LoadFieldTable(fieldsPath(c, track))
	if err != nil {
		return err
	}
	if c.Args().Len() > 0 {
		sel, err := config.Select(specs, c.Args().Slice())
		if err != nil {
			return err
		}
		logIgnored(logger, sel)
		specs = sel.Specs
	}

	dir := outputDir(c, settings)
	target := stageTarget(c, settings)
	stager := &stage.Stager{
		Target:    target,
		Track:     track,
		OutputDir: dir,
		DryRun:    c.Bool("dry-run"),
		Force:     c.Bool("force"),
		Logger:    logger,
	}
	if !stager.DryRun {
		client, err := stage.NewClient(target)
		if err != nil {
			return err
		}
		stager.Client = client
	}

	ledgerPath := filepath.Join(dir, db.Path(track))
	if _, err := os.Stat(ledgerPath); err == nil || !stager.DryRun {
		ledger, err := db.New(ledgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()
		stager.Ledger = ledger
	}

	snap, err := snapshot(c, track, newStore(dir, settings, logger), settings, logger, c.Bool("offline"))
	if err != nil {
		return err
	}

	res, err := stager.Run(c.Context, snap, specs)
	if err != nil {
		return err
	}
	for _, item := range res.Skipped {
		if item.Reason == stage.ReasonNotDownloaded {
			logger.Warn().Str("id", item.SubmissionID).Str("file", item.LocalPath).Msg("eligible but not downloaded")
		} else {
			logger.Debug().Str("id", item.SubmissionID).Str("flag", item.Spec.Flag).Str("reason", item.Reason).Msg("not staged")
		}
	}
	if stager.DryRun {
		logger.Info().Int("files", len(res.Staged)).Str("size", utils.FormatSize(res.Bytes)).Msg("dry run, nothing uploaded")
	}
	return nil
}
