// Package worker drains the shared Redis queue into files, pass after pass,
// until it is told to stop.
package worker

import (
	"context"
	"errors"
	"fetchq/internal/config"
	"fetchq/internal/domain"
	"fetchq/internal/infra/httpx"
	"fetchq/internal/infra/redisq"
	"fetchq/internal/pool"
	"fetchq/internal/ports"
	"fetchq/internal/sink"
	"fetchq/internal/usecase"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	OutDir       string
	Kind         sink.Kind
	PollInterval time.Duration
	Once         bool // stop after the first pass that finds the queue empty
	Pool         []pool.Option
}

// Run connects to Redis and drains the configured queue until SIGINT/SIGTERM.
func Run(cfg Config) error {
	appCfg := config.Load()
	cli := redisq.New(appCfg.Redis)
	defer func() { _ = cli.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Connect(ctx); err != nil {
		return err
	}

	tr := httpx.New(httpx.Options{
		MaxIdleConnsPerHost: appCfg.Fetch.MaxIdleConns,
		IdleConnTimeout:     httpx.DefaultOptions().IdleConnTimeout,
	})
	defer func() { _ = tr.Close() }()

	q := cli.Queue(redisq.WithResolver(Resolver(cfg.OutDir, cfg.Kind)))
	return Drain(ctx, q, tr, cfg, log.Logger)
}

// Resolver turns queue entries pushed by other processes into tasks that
// write their body below dir.
func Resolver(dir string, kind sink.Kind) redisq.Resolver {
	return func(ref domain.Ref) *domain.Task {
		return domain.NewTask(ref.URL, kind.Callback(sink.PathFor(dir, ref.URL)), domain.WithID(ref.ID))
	}
}

// Drain runs one pool per pass over q. A pass that finds nothing waits
// PollInterval before looking again.
func Drain(ctx context.Context, q ports.WorkQueue, tr ports.Transport, cfg Config, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "worker").Logger()
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	for pass := 1; ; pass++ {
		n, err := q.Size(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if n > 0 {
			opts := append([]pool.Option{pool.WithQueue(q), pool.WithLogger(logger)}, cfg.Pool...)
			p := pool.New(tr, opts...)
			err := p.Run(ctx)
			s := p.Summary()
			logger.Info().
				Int("pass", pass).
				Int("completed", s.Completed).
				Int("dropped", s.Dropped()).
				Msg("pass finished")
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			continue
		}

		if cfg.Once {
			return nil
		}
		if err := usecase.SleepContext(ctx, interval); err != nil {
			logger.Info().Msg("worker stopped")
			return nil
		}
	}
}
