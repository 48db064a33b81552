package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/showrunner/internal/audit"
	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/conditions"
	"github.com/nerrad567/showrunner/internal/automation/jobs"
	"github.com/nerrad567/showrunner/internal/automation/triggers"
	"github.com/nerrad567/showrunner/internal/bridges/artnet"
	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/infrastructure/config"
	"github.com/nerrad567/showrunner/internal/infrastructure/database"
	"github.com/nerrad567/showrunner/internal/infrastructure/logging"
	"github.com/nerrad567/showrunner/internal/infrastructure/mqtt"
	"github.com/nerrad567/showrunner/internal/project"
)

// loadConfig resolves the configuration for a command. When --config was
// not given and the default file does not exist, built-in defaults are
// used so validate and run work from a bare checkout.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")

	var cfg *config.Config
	if _, statErr := os.Stat(path); statErr != nil && !cmd.IsSet("config") && errors.Is(statErr, os.ErrNotExist) {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if p := cmd.String("project"); p != "" {
		cfg.Project.Path = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// offlineSubscriber accepts mqtt triggers without a broker. Starting such
// a trigger reports ErrNotConnected.
type offlineSubscriber struct{}

func (offlineSubscriber) Subscribe(string, byte, mqtt.MessageHandler) error {
	return mqtt.ErrNotConnected
}

func (offlineSubscriber) Unsubscribe(string) error { return nil }

// loadProject reads and validates the project file named in cfg.
func loadProject(cfg *config.Config) (*project.Project, error) {
	p, err := project.Load(cfg.Project.Path)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// projectDeps assembles the build dependencies from configuration.
func projectDeps(cfg *config.Config, log *logging.Logger, bus *eventbus.Bus, sub triggers.Subscriber) project.Deps {
	loc := cfg.Location()
	auto := cfg.Automation
	return project.Deps{
		Bus:    bus,
		Logger: log,
		Jobs: jobs.Deps{
			ArtNet:          artnet.NewPool(),
			TCPAnswerWindow: time.Duration(auto.TCPAnswerWindow) * time.Millisecond,
			PJLinkPort:      auto.PJLinkPort,
			ArtNetPort:      auto.ArtNetPort,
		},
		Conditions: conditions.Deps{
			Location:   loc,
			PJLinkPort: auto.PJLinkPort,
		},
		Triggers: triggers.Deps{
			Location: loc,
			Events:   bus,
			MQTT:     sub,
			Logger:   log,
		},
		MinAutoCheck: time.Duration(auto.MinAutoCheckInterval) * time.Millisecond,
	}
}

// buildEngine loads the project and returns an engine over it. store may
// be nil, in which case runs are not persisted.
func buildEngine(cfg *config.Config, log *logging.Logger, bus *eventbus.Bus, sub triggers.Subscriber, store *audit.SQLiteRepository) (*automation.Engine, error) {
	p, err := loadProject(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := project.Build(p, projectDeps(cfg, log, bus, sub))
	if err != nil {
		return nil, err
	}

	var runs automation.RunStore
	if store != nil {
		runs = store
	}
	return automation.NewEngine(reg, bus, runs, log.Component("engine")), nil
}

// openDatabase opens the execution history database and applies migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	return db, nil
}
