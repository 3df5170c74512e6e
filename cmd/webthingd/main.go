// webthingd - Web of Things gateway daemon
//
// This is the main entry point for the webthing gateway. It exposes a
// single thing over the WoT REST and WebSocket protocols, optionally
// mirrors notifications onto MQTT, archives events to SQLite, and
// records property telemetry in InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/openwot/webthing-core/migrations"

	"github.com/openwot/webthing-core/internal/api"
	"github.com/openwot/webthing-core/internal/eventlog"
	"github.com/openwot/webthing-core/internal/infrastructure/config"
	"github.com/openwot/webthing-core/internal/infrastructure/database"
	"github.com/openwot/webthing-core/internal/infrastructure/influxdb"
	"github.com/openwot/webthing-core/internal/infrastructure/logging"
	"github.com/openwot/webthing-core/internal/infrastructure/mqtt"
	"github.com/openwot/webthing-core/internal/notify"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting webthingd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the thing this gateway exposes
	lamp := newLampThing(cfg.Thing, log)
	log.Info("thing initialised",
		"id", lamp.ID(),
		"title", lamp.Title(),
	)

	// Wire the durable event archive
	archive := eventlog.NewSQLiteRepository(db.DB)
	lamp.SetEventRecorder(archive)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		if err := startMQTTBridge(lamp, mqttClient, cfg, log); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		telemetry := notify.NewTelemetry(lamp.ID(), influxClient)
		telemetry.SetLogger(log)
		lamp.AddSubscriber(telemetry)
		for _, name := range lamp.AvailableEvents() {
			lamp.AddEventSubscriber(name, telemetry)
		}
		log.Info("property telemetry enabled")
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Thing:   lamp.Thing,
		Archive: archive,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("webthingd stopped")
	return nil
}

// startMQTTBridge attaches the MQTT mirror to the thing, publishes the
// retained description, and subscribes to the inbound command topic.
func startMQTTBridge(lamp *lampThing, client *mqtt.Client, cfg *config.Config, log *logging.Logger) error {
	bridge := notify.NewMQTTBridge(lamp.Thing, client, byte(cfg.MQTT.QoS))
	bridge.SetLogger(log)
	bridge.Attach()

	if err := bridge.PublishDescription(); err != nil {
		return fmt.Errorf("publishing thing description: %w", err)
	}

	commandTopic := mqtt.Topics{}.Command(lamp.ID())
	if err := client.Subscribe(commandTopic, byte(cfg.MQTT.QoS), bridge.HandleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", commandTopic, err)
	}

	log.Info("MQTT bridge attached", "command_topic", commandTopic)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WEBTHING_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WEBTHING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB clients may be nil when disabled.
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
