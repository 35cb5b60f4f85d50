package cmd

import (
	"bufio"
	"fetchq/internal/config"
	"fetchq/internal/infra/httpx"
	"fetchq/internal/pool"
	"fetchq/internal/sink"
	"fetchq/internal/usecase"
	"fetchq/pkg/backoff"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// fetchFlags are shared by every command that runs a pool.
type fetchFlags struct {
	workers       int
	mode          string
	maxInFlight   int
	timeout       time.Duration
	maxRetry      int
	backoff       string
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	rate          float64
	burst         int
	progressEvery int
	userAgent     string
	referer       string
	cookie        string
	headers       []string
	traceDir      string
}

func bindFetchFlags(command *cobra.Command, f *fetchFlags, fc config.Fetch) {
	fs := command.Flags()
	fs.IntVarP(&f.workers, "workers", "w", fc.Workers, "Number of workers")
	fs.StringVar(&f.mode, "mode", fc.Mode, "Execution mode: blocking or async")
	fs.IntVar(&f.maxInFlight, "max-in-flight", fc.MaxInFlight, "Max concurrent requests in async mode")
	fs.DurationVar(&f.timeout, "timeout", fc.Timeout, "Per-request timeout")
	fs.IntVar(&f.maxRetry, "max-retry", fc.MaxRetry, "Retries for 429 and 500 responses")
	fs.StringVar(&f.backoff, "backoff", fc.Backoff, "Backoff between retries: quadratic or exponential")
	fs.DurationVar(&f.baseBackoff, "base-backoff", fc.BackoffUnit, "Base backoff duration")
	fs.DurationVar(&f.maxBackoff, "max-backoff", fc.MaxBackoff, "Max backoff duration (exponential only)")
	fs.Float64Var(&f.rate, "rate", fc.RateLimit, "Requests per second across all workers, 0 for unlimited")
	fs.IntVar(&f.burst, "burst", fc.RateBurst, "Rate limiter burst")
	fs.IntVar(&f.progressEvery, "progress-every", fc.ProgressEvery, "Log progress every n tasks, 0 for the mode default")
	fs.StringVar(&f.userAgent, "user-agent", fc.UserAgent, "User-Agent header")
	fs.StringVar(&f.referer, "referer", fc.Referer, "Referer header")
	fs.StringVar(&f.cookie, "cookie", fc.Cookie, "Cookie header")
	fs.StringArrayVarP(&f.headers, "header", "H", nil, "Extra header as 'Name: Value', repeatable")
	fs.StringVar(&f.traceDir, "trace-dir", fc.TraceDir, "Write every successful body into this directory")
}

// applyConfig copies fc into every flag the user did not set on the command line.
func (f *fetchFlags) applyConfig(changed func(name string) bool, fc config.Fetch) {
	set := func(name string, apply func()) {
		if !changed(name) {
			apply()
		}
	}
	set("workers", func() { f.workers = fc.Workers })
	set("mode", func() { f.mode = fc.Mode })
	set("max-in-flight", func() { f.maxInFlight = fc.MaxInFlight })
	set("timeout", func() { f.timeout = fc.Timeout })
	set("max-retry", func() { f.maxRetry = fc.MaxRetry })
	set("backoff", func() { f.backoff = fc.Backoff })
	set("base-backoff", func() { f.baseBackoff = fc.BackoffUnit })
	set("max-backoff", func() { f.maxBackoff = fc.MaxBackoff })
	set("rate", func() { f.rate = fc.RateLimit })
	set("burst", func() { f.burst = fc.RateBurst })
	set("progress-every", func() { f.progressEvery = fc.ProgressEvery })
	set("user-agent", func() { f.userAgent = fc.UserAgent })
	set("referer", func() { f.referer = fc.Referer })
	set("cookie", func() { f.cookie = fc.Cookie })
	set("trace-dir", func() { f.traceDir = fc.TraceDir })
}

func (f *fetchFlags) retryPolicy() (usecase.RetryPolicy, error) {
	rp := usecase.RetryPolicy{MaxRetry: f.maxRetry}
	switch strings.ToLower(f.backoff) {
	case "", "quadratic":
		rp.Backoff = backoff.Quadratic(f.baseBackoff)
	case "exponential":
		rp.Backoff = backoff.Exponential(f.baseBackoff, f.maxBackoff)
	default:
		return rp, fmt.Errorf("unknown backoff %q", f.backoff)
	}
	return rp, nil
}

// poolOptions turns the flags into pool options. It does not set the queue.
func (f *fetchFlags) poolOptions(fc config.Fetch) ([]pool.Option, error) {
	mode, err := pool.ParseMode(f.mode)
	if err != nil {
		return nil, err
	}
	rp, err := f.retryPolicy()
	if err != nil {
		return nil, err
	}

	opts := []pool.Option{
		pool.WithWorkers(f.workers),
		pool.WithMode(mode),
		pool.WithMaxInFlight(f.maxInFlight),
		pool.WithTimeout(f.timeout),
		pool.WithRetryPolicy(rp),
		pool.WithProgressEvery(f.progressEvery),
		pool.WithRateLimit(f.rate, f.burst),
		pool.WithLogger(log.Logger),
	}

	fc.UserAgent, fc.Referer, fc.Cookie = f.userAgent, f.referer, f.cookie
	for _, h := range config.DefaultHeaders(fc) {
		opts = append(opts, pool.WithHeader(h.Name, h.Value))
	}
	for _, raw := range f.headers {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: Value'", raw)
		}
		opts = append(opts, pool.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	if f.traceDir != "" {
		opts = append(opts, pool.WithTracer(sink.NewTracer(f.traceDir)))
	}
	return opts, nil
}

func newTransport(fc config.Fetch) *httpx.Transport {
	opts := httpx.DefaultOptions()
	if fc.MaxIdleConns > 0 {
		opts.MaxIdleConnsPerHost = fc.MaxIdleConns
	}
	return httpx.New(opts)
}

// readURLs returns args followed by the lines of file, if given. "-" reads stdin.
func readURLs(args []string, file string) ([]string, error) {
	urls := append([]string(nil), args...)
	if file == "" {
		return urls, nil
	}

	in := os.Stdin
	if file != "-" {
		fh, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		in = fh
	}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		urls = append(urls, sc.Text())
	}
	return urls, sc.Err()
}
