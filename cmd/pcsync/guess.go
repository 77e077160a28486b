package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/internal/logging"
)

func guessCommand(logger *logging.Logger) *cli.Command {
	flags := []cli.Flag{trackFlag(), fieldsFlag(), outputFlag(), offlineFlag()}
	return &cli.Command{
		Name:  "guess-fields",
		Usage: "Guess a field table from the spreadsheet and write it as a draft",
		Flags: append(flags, credentialFlags()...),
		Action: func(c *cli.Context) error {
			return guessFields(c, logger)
		},
	}
}

func guessFields(c *cli.Context, logger *logging.Logger) error {
	track := c.String("track")
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	store := newStore(outputDir(c, settings), settings, logger)
	snap, err := snapshot(c, track, store, settings, logger, c.Bool("offline"))
	if err != nil {
		return err
	}

	guesses, specs := settings.Guesser().Guess(snap)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tKIND")
	for _, g := range guesses {
		if g.Kind != "" {
			fmt.Fprintf(w, "%s\t%s\n", g.Field, g.Kind)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	production := fieldsPath(c, track)
	draft := config.DraftPath(production)
	if err := config.WriteDraft(draft, production, specs); err != nil {
		return err
	}
	logger.Info().Str("draft", draft).Int("file_types", len(specs)).
		Msgf("review the draft and rename it to %s", production)
	return nil
}
