package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"photo-transform-go/config"
	"photo-transform-go/internal/logger"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/config/config.yaml"

var (
	// cfg ist die von allen Unterbefehlen geteilte Konfiguration
	cfg        *config.Config
	configPath string
	logFile    io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "photo-transform",
	Short:         "Face-preserving photo style transformation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if env := os.Getenv("PHOTO_TRANSFORM_CONFIG"); env != "" && !cmd.Flags().Changed("config") {
			configPath = env
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logFile, err = logger.Init(cfg.Log)
		if err != nil {
			log.Errorf("Failed to initialize logger completely: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
	// Ohne Unterbefehl startet der Server
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the configuration file (env PHOTO_TRANSFORM_CONFIG)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
