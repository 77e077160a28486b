package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/pcsync/internal/config"
	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	logger := logging.NewDefault()

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "pcsync",
		Usage:                "Download camera-ready files from PCS into the digital library layout",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"PCSYNC_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "log as JSON lines",
				EnvVars: []string{"PCSYNC_LOG_JSON"},
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "settings file",
				Value: config.DefaultSettingsFile,
			},
		},
		Before: func(c *cli.Context) error {
			*logger = *logging.New(os.Stdout, logging.Options{
				Level: c.String("log-level"),
				JSON:  c.Bool("log-json"),
			})
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Print(version.Details())
					return nil
				},
			},
			downloadCommand(logger),
			statusCommand(logger),
			tracksCommand(logger),
			guessCommand(logger),
			stageCommand(logger),
		},
	}

	if err := app.RunContext(ctx, args); err != nil {
		ev := logger.Error().Err(err)
		if ge := goerr.Unwrap(err); ge != nil {
			for k, v := range ge.Values() {
				ev = ev.Interface(k, v)
			}
		}
		ev.Msg("pcsync failed")
		return err
	}
	return nil
}
