package cmd

import (
	"fetchq/internal/config"
	"fetchq/internal/infra/redisq"
	"fetchq/internal/usecase"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func enqueueCmd() *cobra.Command {
	var file string

	var command = &cobra.Command{
		Use:   "enqueue [url...]",
		Short: "Push URLs onto the shared Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := readURLs(args, file)
			if err != nil {
				return err
			}

			cfg := config.Load()
			cli := redisq.New(cfg.Redis)
			defer func() { _ = cli.Close() }()
			if err := cli.Connect(cmd.Context()); err != nil {
				return err
			}

			tasks, err := usecase.Enqueuer{Q: cli.Queue()}.URLs(cmd.Context(), urls, nil)
			if err != nil {
				return err
			}
			log.Info().Int("count", len(tasks)).Str("key", cfg.Redis.Key).Msg("enqueued")
			return nil
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "", "Read URLs from a file, one per line ('-' for stdin)")
	return command
}
