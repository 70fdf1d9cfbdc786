// Tag Registry - device tag configuration service
//
// This is the main entry point for the tag registry. It loads the device
// tag catalogue from SQLite, serves it over REST and WebSocket, overlays live
// signal values from MQTT or Valkey and records value history to InfluxDB.
package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-logic-tagregistry/migrations"

	"github.com/nerrad567/gray-logic-tagregistry/internal/api"
	"github.com/nerrad567/gray-logic-tagregistry/internal/audit"
	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/valkey"
	tagsignal "github.com/nerrad567/gray-logic-tagregistry/internal/signal"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs the service.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tagregistry",
		Short:         "Device tag registry service",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $TAGREGISTRY_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		newTokenCmd(&configPath),
		newMigrateCmd(&configPath),
		newSignalCmd(&configPath),
	)
	return root
}

// run is the service, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting tag registry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	checks := map[string]api.HealthChecker{"database": db}

	// MQTT (optional): change notifications and the mqtt signal source
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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks["mqtt"] = mqttClient

		notifier := newMQTTNotifier(mqttClient, log.Component("notifier"))
		go notifier.Run(ctx)
		registry.SetNotifier(notifier)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional): tag value history
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Valkey (optional): the valkey signal source
	var valkeyClient *valkey.Client
	if cfg.Valkey.Enabled {
		valkeyClient, err = valkey.Connect(ctx, cfg.Valkey)
		if err != nil {
			return fmt.Errorf("connecting to Valkey: %w", err)
		}
		defer func() {
			log.Info("closing Valkey connection")
			if closeErr := valkeyClient.Close(); closeErr != nil {
				log.Error("error closing Valkey", "error", closeErr)
			}
		}()
		log.Info("Valkey connected", "address", valkeyClient.Address(), "signal_key", valkeyClient.SignalKey())
		checks["valkey"] = valkeyClient
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(hubCtx)

	source, stopSource, err := startSignalSource(cfg, mqttClient, valkeyClient, log)
	if err != nil {
		return err
	}
	defer stopSource()

	if source != nil {
		refresher := tagsignal.NewRefresher(source, registry, cfg.Signals.RefreshInterval)
		refresher.SetLogger(log.Component("signals"))
		refresher.SetBroadcaster(hub)
		if influxClient != nil {
			refresher.SetRecorder(influxClient)
		}
		go refresher.Run(ctx)
		log.Info("signal refresher started",
			"source", cfg.Signals.Source,
			"interval", cfg.Signals.RefreshInterval,
		)
	} else {
		log.Info("live signal overlay disabled")
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Registry:    registry,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Checks:      checks,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("tag registry stopped")
	return nil
}

// openDatabase opens the registry database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startSignalSource builds the signal source selected by signals.source.
// It returns a nil source for "none". The stop function is always non-nil.
func startSignalSource(cfg *config.Config, mqttClient *mqtt.Client, valkeyClient *valkey.Client, log *logging.Logger) (tagsignal.Source, func(), error) {
	noop := func() {}

	switch cfg.Signals.Source {
	case config.SignalSourceMQTT:
		if mqttClient == nil {
			return nil, noop, fmt.Errorf("signal source mqtt requires an MQTT connection")
		}
		src := tagsignal.NewMQTTSource(mqttClient, byte(cfg.MQTT.QoS))
		src.SetLogger(log.Component("signals"))
		if err := src.Start(); err != nil {
			return nil, noop, fmt.Errorf("subscribing to signal values: %w", err)
		}
		return src, func() {
			if err := src.Stop(); err != nil {
				log.Warn("unsubscribing from signal values", "error", err)
			}
		}, nil

	case config.SignalSourceValkey:
		if valkeyClient == nil {
			return nil, noop, fmt.Errorf("signal source valkey requires a Valkey connection")
		}
		src := tagsignal.NewValkeySource(valkeyClient)
		src.SetLogger(log.Component("signals"))
		return src, noop, nil

	default:
		return nil, noop, nil
	}
}

// resolveConfigPath returns the configuration file path: the flag value if
// set, then TAGREGISTRY_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("TAGREGISTRY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every registered infrastructure connection.
// Components are checked in name order so failures are reported consistently.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
