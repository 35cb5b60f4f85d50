package api

import (
	"context"
	"encoding/json"
	"errors"
	"fetchq/internal/config"
	"fetchq/internal/domain"
	"fetchq/internal/infra/httpx"
	"fetchq/internal/infra/redisq"
	"fetchq/internal/pool"
	"fetchq/internal/ports"
	"fetchq/internal/usecase"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fetchReq struct {
	URLs    []string          `json:"urls"`
	Workers int               `json:"workers"`
	Mode    string            `json:"mode"`
	Headers map[string]string `json:"headers"`
}

type fetchItem struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	Outcome     string `json:"outcome"`
	ContentType string `json:"content_type,omitempty"`
	Charset     string `json:"charset,omitempty"`
	Size        int    `json:"size"`
	Preview     string `json:"preview,omitempty"`
}

type fetchResp struct {
	Items   []fetchItem  `json:"items"`
	Workers int          `json:"workers"`
	Summary pool.Summary `json:"summary"`
	Error   string       `json:"error,omitempty"`
}

type enqueueReq struct {
	URLs []string `json:"urls"`
}

// Deps are the collaborators of a Server.
type Deps struct {
	Cfg       config.Config
	Transport ports.Transport
	Queue     ports.WorkQueue // nil disables POST /enqueue
	Retry     usecase.RetryPolicy
	Log       zerolog.Logger
}

type Server struct {
	router *chi.Mux
	deps   Deps
}

// NewServer wires the API against the configured Redis instance and a shared HTTP transport.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	cli := redisq.New(cfg.Redis)
	if err := cli.Connect(ctx); err != nil {
		return nil, err
	}

	rp := usecase.DefaultRetryPolicy()
	rp.MaxRetry = cfg.Fetch.MaxRetry

	return New(Deps{
		Cfg: *cfg,
		Transport: httpx.New(httpx.Options{
			MaxIdleConnsPerHost: cfg.Fetch.MaxIdleConns,
			IdleConnTimeout:     httpx.DefaultOptions().IdleConnTimeout,
		}),
		Queue: cli.Queue(),
		Retry: rp,
		Log:   log.Logger,
	}), nil
}

func New(deps Deps) *Server {
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/fetch", s.handleFetch)
	r.Post("/enqueue", s.handleEnqueue)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.URLs) == 0 {
		http.Error(w, "urls must not be empty", http.StatusBadRequest)
		return
	}
	if limit := s.deps.Cfg.API.MaxURLs; limit > 0 && len(req.URLs) > limit {
		http.Error(w, fmt.Sprintf("at most %d urls per request", limit), http.StatusBadRequest)
		return
	}
	for _, u := range req.URLs {
		if err := usecase.ValidateURL(u); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	mode, err := pool.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if limit := s.deps.Cfg.API.MaxWorkers; limit > 0 && req.Workers > limit {
		http.Error(w, fmt.Sprintf("at most %d workers per request", limit), http.StatusBadRequest)
		return
	}

	fc := s.deps.Cfg.Fetch
	workers := req.Workers
	if workers < 1 {
		workers = fc.Workers
	}
	// idle workers would only pop an empty queue
	workers = min(workers, len(req.URLs))

	opts := []pool.Option{
		pool.WithWorkers(workers),
		pool.WithMode(mode),
		pool.WithMaxInFlight(fc.MaxInFlight),
		pool.WithTimeout(fc.Timeout),
		pool.WithRetryPolicy(s.deps.Retry),
		pool.WithProgressEvery(fc.ProgressEvery),
		pool.WithLogger(s.deps.Log),
	}
	for _, h := range config.DefaultHeaders(fc) {
		opts = append(opts, pool.WithHeader(h.Name, h.Value))
	}
	for name, value := range req.Headers {
		opts = append(opts, pool.WithHeader(name, value))
	}

	items := make([]fetchItem, len(req.URLs))
	byID := make(map[string]int, len(req.URLs))
	var mu sync.Mutex
	preview := s.deps.Cfg.API.PreviewSize

	opts = append(opts, pool.WithObserver(func(t *domain.Task, o usecase.Outcome) {
		mu.Lock()
		items[byID[t.ID]].Outcome = o.String()
		mu.Unlock()
	}))
	p := pool.New(s.deps.Transport, opts...)

	for i, u := range req.URLs {
		items[i] = fetchItem{URL: u, Outcome: usecase.OutcomeSkipped.String()}
		t := domain.NewTask(u, func(res *domain.Result) error {
			mu.Lock()
			defer mu.Unlock()
			it := &items[i]
			it.Status = res.StatusCode
			it.ContentType = res.ContentType
			it.Charset = res.Charset
			it.Size = len(res.Body)
			if text, err := res.Text(); err == nil {
				it.Preview = truncate(text, preview)
			}
			return nil
		})
		byID[t.ID] = i
		if err := p.Submit(r.Context(), t); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	runErr := p.Run(r.Context())

	mu.Lock()
	resp := fetchResp{Items: items, Workers: len(p.Stats()), Summary: p.Summary()}
	mu.Unlock()
	status := http.StatusOK
	if runErr != nil {
		resp.Error = runErr.Error()
		status = http.StatusBadGateway
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		http.Error(w, "queue not configured", http.StatusServiceUnavailable)
		return
	}
	var req enqueueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, u := range req.URLs {
		if err := usecase.ValidateURL(u); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	enq := usecase.Enqueuer{Q: s.deps.Queue}
	tasks, err := enq.URLs(r.Context(), req.URLs, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ids": ids})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Run method of the Server struct runs the HTTP server on the specified port
// and shuts it down gracefully on SIGINT or SIGTERM.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
