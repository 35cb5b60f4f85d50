package cmd

import (
	"fetchq/internal/config"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Run() {
	var command = &cobra.Command{
		Use:          "fetchq",
		Short:        "Bounded-concurrency HTTP downloader over a shared task queue",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a broken environment is reported by the command that loads it
			level := config.Defaults().LogLevel
			if cfg, err := config.Parse(); err == nil {
				level = cfg.LogLevel
			}
			setupLogging(level)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.AddCommand(fetchCmd())
	command.AddCommand(enqueueCmd())
	command.AddCommand(workerCmd())
	command.AddCommand(apiCmd())

	if err := command.Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}
