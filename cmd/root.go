package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dosada05/campus-games/config"
)

var (
	// flags
	debug bool

	logger *slog.Logger
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "v", false, "verbose (debug) logging")
}

var RootCmd = cobra.Command{
	Use:           "campus-games",
	Short:         "Registration API for the campus gaming competition",
	Long:          "Registration API for the campus gaming competition: accounts, sessions, game catalog and teams.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger = newLogger(debug || cfg.Debug)
		slog.SetDefault(logger)
		return run(cmd.Context(), cfg, logger)
	},
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
