package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/urfave/cli/v3"

	"github.com/nerrad567/showrunner/internal/api"
	"github.com/nerrad567/showrunner/internal/audit"
	"github.com/nerrad567/showrunner/internal/automation/triggers"
	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/infrastructure/database"
	"github.com/nerrad567/showrunner/internal/infrastructure/influxdb"
	"github.com/nerrad567/showrunner/internal/infrastructure/logging"
	"github.com/nerrad567/showrunner/internal/infrastructure/metrics"
	"github.com/nerrad567/showrunner/internal/infrastructure/mqtt"
)

// shutdownTimeout bounds how long running routines get to settle.
const shutdownTimeout = 15 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the automation engine, HTTP API and event sinks",
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	log := logging.Default()
	log.Info("starting showrunner",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"project", cfg.Project.Path,
		"level", cfg.Logging.Level,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	runs := audit.NewSQLiteRepository(db.DB)

	pubsub := eventbus.NewGoChannel(watermill.NewSlogLogger(log.Component("watermill").Logger))
	defer pubsub.Close() //nolint:errcheck // in-process channel
	bus := eventbus.New(
		eventbus.WithPublisher(pubsub, eventbus.DefaultTopic),
		eventbus.WithLogger(log.Component("eventbus")),
	)

	recorder := metrics.New()
	defer recorder.Attach(bus)()

	var (
		sinks        []eventbus.Sink
		subscriber   triggers.Subscriber
		mqttClient   *mqtt.Client
		influxClient *influxdb.Client
	)

	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttLog := log.Component("mqtt")
		mqttClient.SetLogger(mqttLog)
		mqttClient.SetOnConnect(func() {
			mqttLog.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			mqttLog.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		subscriber = mqttClient
		sink := mqtt.NewEventSink(mqttClient, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
		sink.SetLogger(mqttLog)
		sinks = append(sinks, sink)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, influxdb.NewOutcomeSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	engine, err := buildEngine(cfg, log, bus, subscriber, runs)
	if err != nil {
		return err
	}

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Metrics:    cfg.Metrics,
		Logger:     log.Component("api"),
		Engine:     engine,
		Executions: runs,
		Recorder:   recorder,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	sinks = append([]eventbus.Sink{eventbus.BroadcasterSink(srv.Hub())}, sinks...)

	// The relay outlives the signal so events raised while the engine
	// stops still reach the sinks.
	relayCtx, stopRelay := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRelay()
	relay := eventbus.NewRelay(pubsub, bus.Topic(), log.Component("relay"), sinks...)
	msgs, err := relay.Subscribe(relayCtx)
	if err != nil {
		return err
	}
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(relayCtx, msgs)
	}()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := engine.Start(ctx); err != nil {
		stopEngine(engine, log)
		return fmt.Errorf("starting engine: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		stopEngine(engine, log)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "api", srv.Addr())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	stopEngine(engine, log)
	stopRelay()
	<-relayDone

	log.Info("showrunner stopped")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopEngine(e stopper, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		log.Error("error stopping engine", "error", err)
	}
}

// healthCheck verifies every enabled connection. Disabled clients are nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
