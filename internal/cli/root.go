package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calden87/tuyatrace/internal/bridge"
	"github.com/calden87/tuyatrace/internal/infrastructure/config"
	"github.com/calden87/tuyatrace/internal/infrastructure/database"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
	"github.com/calden87/tuyatrace/internal/pulsar"
	"github.com/calden87/tuyatrace/internal/store"
	"github.com/calden87/tuyatrace/internal/tsdb"
	"github.com/calden87/tuyatrace/internal/tuya"
	"github.com/calden87/tuyatrace/internal/watcher"
)

// defaultConfigPath is used when neither the flag nor the environment
// variable names a config file.
const defaultConfigPath = "configs/config.yaml"

// configPathEnv overrides the default config location.
const configPathEnv = "TUYATRACE_CONFIG"

// New builds the root command.
func New(version string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tuyatrace",
		Short:         "Long-term event retention for Tuya cloud devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default "+defaultConfigPath+")")

	root.AddCommand(newRunCmd(&configPath, version))
	root.AddCommand(newCollectCmd(&configPath, version))
	root.AddCommand(newWatchCmd(&configPath, version))
	root.AddCommand(newStatusCmd(&configPath, version))
	root.AddCommand(newVersionCmd(version))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tuyatrace %s\n", version)
		},
	}
}

// loadConfig reads the config file, or falls back to environment-only
// configuration when the file is absent. Credentials are the only
// required settings, so a file is optional.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, envErr := config.LoadFromEnv()
		if envErr != nil {
			return nil, fmt.Errorf("no config file at %s and environment incomplete: %w", path, envErr)
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// resolveConfigPath picks the config file: flag, then environment, then
// the default location.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configPathEnv); env != "" {
		return env
	}
	return defaultConfigPath
}

// app holds the shared wiring every command needs.
type app struct {
	cfg   *config.Config
	log   *logging.Logger
	db    *database.DB
	store *store.Store
	api   *tuya.Client
}

// setup loads config, opens and migrates the database, and builds the
// signed API client. The returned closer shuts the database down.
func setup(ctx context.Context, configPath, version string) (*app, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	log := logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closer := func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("closing database", "error", closeErr)
		}
	}

	if err := db.Migrate(ctx); err != nil {
		closer()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	api, err := tuya.New(cfg.Tuya, log)
	if err != nil {
		closer()
		return nil, nil, err
	}

	return &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		store: store.New(db, log),
		api:   api,
	}, closer, nil
}

// buildWatcher assembles the stream subscriber, optional sinks, and the
// watcher around them. The returned cleanup closes the sinks.
func (a *app) buildWatcher() (*watcher.Watcher, *pulsar.Subscriber, func(), error) {
	var decoder pulsar.Decoder
	if a.cfg.Pulsar.Encrypted {
		d, err := pulsar.NewAESDecoder(a.cfg.Tuya.AccessSecret)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("building payload decoder: %w", err)
		}
		decoder = d
	}

	sub, err := pulsar.New(a.cfg.Tuya, a.cfg.Pulsar, decoder, a.log)
	if err != nil {
		return nil, nil, nil, err
	}

	var sinks []watcher.Sink
	var closers []func()
	closeSinks := func() {
		for _, c := range closers {
			c()
		}
	}

	if a.cfg.Bridge.Enabled {
		br, err := bridge.Connect(a.cfg.Bridge, a.log)
		if err != nil {
			closeSinks()
			return nil, nil, nil, fmt.Errorf("connecting bridge: %w", err)
		}
		sinks = append(sinks, br)
		closers = append(closers, func() {
			if err := br.Close(); err != nil {
				a.log.Error("closing bridge", "error", err)
			}
		})
	}

	if a.cfg.InfluxDB.Enabled {
		mirror, err := tsdb.Connect(a.cfg.InfluxDB, a.log)
		if err != nil {
			closeSinks()
			return nil, nil, nil, fmt.Errorf("connecting time-series mirror: %w", err)
		}
		sinks = append(sinks, mirror)
		closers = append(closers, func() {
			if err := mirror.Close(); err != nil {
				a.log.Error("closing time-series mirror", "error", err)
			}
		})
	}

	return watcher.New(sub, a.store, a.log, sinks...), sub, closeSinks, nil
}
