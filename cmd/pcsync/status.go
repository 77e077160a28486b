package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/internal/db"
	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/internal/report"
)

func offlineFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "offline",
		Usage: "use the local spreadsheet copy without logging in",
	}
}

func statusCommand(logger *logging.Logger) *cli.Command {
	flags := []cli.Flag{trackFlag(), fieldsFlag(), outputFlag(), offlineFlag()}
	return &cli.Command{
		Name:      "status",
		Usage:     "Show which submissions still miss files",
		ArgsUsage: "[flag ...|all]",
		Flags:     append(flags, credentialFlags()...),
		Action: func(c *cli.Context) error {
			return showStatus(c, logger)
		},
	}
}

// showStatus prints per file type the submissions without a file, and
// the local ledger when one exists.
func showStatus(c *cli.Context, logger *logging.Logger) error {
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
	store := newStore(dir, settings, logger)
	snap, err := snapshot(c, track, store, settings, logger, c.Bool("offline"))
	if err != nil {
		return err
	}

	report.Print(os.Stdout, track, report.Compute(snap, specs))

	ledgerPath := filepath.Join(dir, db.Path(track))
	if _, err := os.Stat(ledgerPath); err != nil {
		return nil
	}
	ledger, err := db.New(ledgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	stats, err := ledger.GetStats(track)
	if err != nil {
		return err
	}
	last, err := ledger.LastRun(track)
	if err != nil {
		return err
	}
	report.PrintLedger(os.Stdout, stats, last)
	return nil
}
