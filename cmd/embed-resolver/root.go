package main

import (
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"embed-resolver-go/internal/app"
	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/logging"
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:           "embed-resolver",
	Short:         "Resolve embed player pages into playable stream URLs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// buildApp loads configuration, applies flag overrides and wires the application.
// Logs go to logOut so that command output on stdout stays machine readable.
func buildApp(cmd *cobra.Command, logOut io.Writer, adjust func(*config.Config)) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl := lo.Must(cmd.Flags().GetString("log-level")); lvl != "" {
		cfg.LogLevel = lvl
	}
	if adjust != nil {
		adjust(cfg)
	}

	log := logging.New(cfg.LogLevel, cfg.LogJSON, logOut)
	return app.New(cfg, log, version)
}
