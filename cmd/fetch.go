package cmd

import (
	"context"
	"errors"
	"fetchq/internal/config"
	"fetchq/internal/domain"
	"fetchq/internal/infra/memq"
	"fetchq/internal/infra/redisq"
	"fetchq/internal/pool"
	"fetchq/internal/ports"
	"fetchq/internal/sink"
	"fetchq/internal/usecase"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func fetchCmd() *cobra.Command {
	var (
		ff       fetchFlags
		file     string
		outDir   string
		kind     string
		queue    string
		noBar    bool
		perTable bool
	)

	var command = &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Download URLs into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ff.applyConfig(cmd.Flags().Changed, cfg.Fetch)

			urls, err := readURLs(args, file)
			if err != nil {
				return err
			}
			k, err := sink.ParseKind(kind)
			if err != nil {
				return err
			}
			opts, err := ff.poolOptions(cfg.Fetch)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var q ports.WorkQueue = memq.New()
			if queue == "redis" {
				cli := redisq.New(cfg.Redis)
				defer func() { _ = cli.Close() }()
				if err := cli.Connect(ctx); err != nil {
					return err
				}
				q = cli.Queue()
			} else if queue != "memory" {
				return fmt.Errorf("unknown queue %q", queue)
			}

			enq := usecase.Enqueuer{Q: q}
			tasks, err := enq.URLs(ctx, urls, func(u string) domain.Callback {
				return k.Callback(sink.PathFor(outDir, u))
			})
			if err != nil {
				return err
			}

			var bar *progressbar.ProgressBar
			if !noBar && len(tasks) > 0 {
				bar = newProgressBar(len(tasks))
				opts = append(opts, pool.WithObserver(func(*domain.Task, usecase.Outcome) { _ = bar.Add(1) }))
			}

			p := pool.New(newTransport(cfg.Fetch), append(opts, pool.WithQueue(q), pool.WithOwnedTransport())...)
			runErr := p.Run(ctx)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}

			renderSummary(p.Summary(), runErr)
			if perTable {
				renderWorkers(p.Stats())
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}

	bindFetchFlags(command, &ff, config.Defaults().Fetch)
	command.Flags().StringVarP(&file, "file", "f", "", "Read URLs from a file, one per line ('-' for stdin)")
	command.Flags().StringVarP(&outDir, "out", "o", "downloads", "Output directory")
	command.Flags().StringVar(&kind, "kind", "binary", "Write bodies as binary or charset-decoded text")
	command.Flags().StringVar(&queue, "queue", "memory", "Work queue: memory or redis")
	command.Flags().BoolVar(&noBar, "no-progress", false, "Disable the progress bar")
	command.Flags().BoolVar(&perTable, "workers-table", false, "Print per-worker task counts")

	return command
}

func newProgressBar(n int) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Fetching"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
	)
}

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

func renderSummary(s pool.Summary, runErr error) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Total", "Completed", "Soft failures", "Retries exhausted", "Transport failures", "Callback failures", "Fatal")
	_ = table.Append(
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Completed),
		strconv.Itoa(s.SoftFailures),
		strconv.Itoa(s.RetriesExhausted),
		strconv.Itoa(s.TransportFailures),
		strconv.Itoa(s.CallbackFailures),
		strconv.Itoa(s.Fatal),
	)
	if err := table.Render(); err != nil {
		log.Warn().Err(err).Msg("render summary")
	}

	switch {
	case runErr != nil:
		_, _ = red.Printf("run aborted: %v\n", runErr)
	case s.Dropped() > 0 || s.CallbackFailures > 0:
		_, _ = bold.Printf("done, %d of %d tasks completed\n", s.Completed, s.Total)
	default:
		_, _ = green.Printf("done, all %d tasks completed\n", s.Total)
	}
}

func renderWorkers(stats []pool.WorkerStats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Worker", "Tasks")
	for _, ws := range stats {
		_ = table.Append(ws.Name, strconv.Itoa(ws.Processed))
	}
	_ = table.Render()
}
