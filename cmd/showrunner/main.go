// Showrunner drives show and venue equipment from declarative routines.
//
// A project file describes triggers (schedules, webhooks, MQTT topics,
// TCP/UDP sockets, routine events) and the routines they start. Each
// routine runs tasks that execute jobs against projectors, DMX nodes and
// other network devices, optionally gated by conditions.
//
// Commands:
//
//	showrunner serve              run the engine, HTTP API and event sinks
//	showrunner validate           check a project file without touching hardware
//	showrunner run <routine-id>   run one routine and print its result
//	showrunner token              issue an API bearer token
//	showrunner version            print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	_ "github.com/nerrad567/showrunner/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "showrunner",
		Usage:   "Routine automation for show and venue equipment",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				Value:   defaultConfigPath,
				Sources: cli.EnvVars("SHOWRUNNER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Path to the project file (overrides project.path)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			validateCommand(),
			runCommand(),
			tokenCommand(),
			versionCommand(),
		},
		Action: serve,
	}
}
