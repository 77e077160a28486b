package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/pkg/models"
)

func tracksCommand(logger *logging.Logger) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "track",
			Aliases: []string{"t"},
			Usage:   "fail unless this track is accessible",
		},
	}
	return &cli.Command{
		Name:  "tracks",
		Usage: "List the tracks you hold a role in",
		Flags: append(flags, credentialFlags()...),
		Action: func(c *cli.Context) error {
			return listTracks(c, logger)
		},
	}
}

func listTracks(c *cli.Context, logger *logging.Logger) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	sess, err := login(c, settings, logger)
	if err != nil {
		return err
	}
	tracks, err := sess.ListTracks(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRACK\tROLE\tACCESS\tCONFERENCE\tNAME")
	for _, t := range tracks {
		access := "no"
		if t.Accessible {
			access = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Role, access, t.Title, t.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	want := c.String("track")
	if want == "" {
		return nil
	}
	for _, t := range tracks {
		if t.ID == want && t.Accessible {
			return nil
		}
	}
	return goerr.Wrap(models.ErrAuth, "track is not accessible with a pubchair or chair role", goerr.V("track", want))
}
