package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/showrunner/internal/api"
	"github.com/nerrad567/showrunner/internal/audit"
	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/infrastructure/logging"
	"github.com/nerrad567/showrunner/internal/project"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check the project file and build every trigger and routine",
		ArgsUsage: "[project.yaml]",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if arg := cmd.Args().First(); arg != "" {
				cfg.Project.Path = arg
			}
			log := logging.New(cfg.Logging, version)

			p, err := loadProject(cfg)
			if err != nil {
				return err
			}
			reg, err := project.Build(p, projectDeps(cfg, log, eventbus.New(), offlineSubscriber{}))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Root().Writer, "%s: %d triggers, %d routines OK\n",
				cfg.Project.Path, len(reg.Triggers()), len(reg.Routines()))
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run one routine to completion and print its result",
		ArgsUsage: "<routine-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "payload",
				Usage: "JSON object passed to the routine's jobs",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record the run in the execution history",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Abort the run after this long (0 waits indefinitely)",
			},
		},
		Action: runRoutine,
	}
}

func runRoutine(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("routine id is required")
	}

	var payload map[string]any
	if raw := cmd.String("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return fmt.Errorf("parsing --payload: %w", err)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, version)

	var store *audit.SQLiteRepository
	if !cmd.Bool("no-history") {
		db, dbErr := openDatabase(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer db.Close() //nolint:errcheck // process exits next
		store = audit.NewSQLiteRepository(db.DB)
	}

	engine, err := buildEngine(cfg, log, eventbus.New(eventbus.WithLogger(log)), offlineSubscriber{}, store)
	if err != nil {
		return err
	}

	if d := cmd.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, runErr := engine.RunRoutine(ctx, id, automation.RunRequest{
		Source:  automation.SourceCLI,
		Payload: payload,
	})
	if res == nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Status != automation.StatusCompleted {
		if runErr != nil {
			return fmt.Errorf("routine %s: %s: %w", id, res.Status, runErr)
		}
		return fmt.Errorf("routine %s: %s", id, res.Status)
	}
	return nil
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "subject",
				Usage:    "Token subject, recorded on requests it authorises",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Security.JWT.Secret == "" {
				return errors.New("security.jwt.secret is not set (set SHOWRUNNER_JWT_SECRET)")
			}
			tok, err := api.IssueToken(cfg.Security.JWT.Secret, cmd.String("subject"), cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, tok)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(_ context.Context, cmd *cli.Command) error {
			fmt.Fprintf(cmd.Root().Writer, "showrunner %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
