package cmd

import (
	"fetchq/internal/config"
	"fetchq/internal/sink"
	"fetchq/internal/worker"
	"time"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var (
		ff           fetchFlags
		outDir       string
		kind         string
		pollInterval time.Duration
		once         bool
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Drain the shared Redis queue into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ff.applyConfig(cmd.Flags().Changed, cfg.Fetch)

			k, err := sink.ParseKind(kind)
			if err != nil {
				return err
			}
			opts, err := ff.poolOptions(cfg.Fetch)
			if err != nil {
				return err
			}
			return worker.Run(worker.Config{
				OutDir:       outDir,
				Kind:         k,
				PollInterval: pollInterval,
				Once:         once,
				Pool:         opts,
			})
		},
	}

	bindFetchFlags(command, &ff, config.Defaults().Fetch)
	command.Flags().StringVarP(&outDir, "out", "o", "downloads", "Output directory")
	command.Flags().StringVar(&kind, "kind", "binary", "Write bodies as binary or charset-decoded text")
	command.Flags().DurationVar(&pollInterval, "poll", time.Second, "Wait between empty passes")
	command.Flags().BoolVar(&once, "once", false, "Exit once the queue is empty")

	return command
}
