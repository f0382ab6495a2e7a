// Command gocontacts-server serves the contacts channel on a Unix socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	gocontacts "github.com/jowharshamshiri/GoContacts"
	"github.com/jowharshamshiri/GoContacts/internal/config"
	"github.com/jowharshamshiri/GoContacts/pkg/manifest"
	"github.com/jowharshamshiri/GoContacts/pkg/provider"
	"github.com/jowharshamshiri/GoContacts/pkg/service"
)

var (
	configPath string
	socketPath string
	dbPath     string
	logLevel   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gocontacts-server",
	Short: "Contacts provider served over a Unix socket",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if socketPath != "" {
			cfg.Server.SocketPath = socketPath
		}
		if dbPath != "" {
			cfg.Storage.DatabasePath = dbPath
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if verbose {
			cfg.Logging.Level = "debug"
			cfg.Logging.Development = true
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = cfg.NewLogger()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the contacts channel until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the channel manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := cfg.LoadManifest()
		if err != nil {
			return err
		}
		data, err := manifest.SerializeToYAML(m)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket-path", "", "Unix socket path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "contacts database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging at debug level")

	rootCmd.AddCommand(serveCmd, manifestCmd)
}

func serve(ctx context.Context) error {
	m, err := cfg.LoadManifest()
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	store, err := provider.OpenSQLite(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	serverCfg := cfg.ServerConfig(m, logger)
	serverCfg.Version = gocontacts.Version
	srv, err := gocontacts.NewServer(serverCfg, store, logger,
		service.WithThumbnailConcurrency(cfg.Storage.ThumbnailConcurrency))
	if err != nil {
		return err
	}

	logger.Info("starting contacts server",
		zap.String("socket", cfg.Server.SocketPath),
		zap.String("database", cfg.Storage.DatabasePath),
		zap.Int("workers", cfg.Server.Workers),
		zap.Int("queue", cfg.Server.QueueSize),
		zap.String("version", gocontacts.Version))
	return srv.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
