// Package api serves simulated rainbows over HTTP: build, list, export
// and chart.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/chromatic/internal/config"
	"github.com/banshee-data/chromatic/internal/db"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/plotting"
	"github.com/banshee-data/chromatic/internal/rainbow"
	"github.com/banshee-data/chromatic/internal/simulate"
	"github.com/banshee-data/chromatic/internal/timeutil"
)

// ANSI escape codes used by LoggingMiddleware
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// ErrNotFound is returned when a rainbow id is neither registered nor stored.
var ErrNotFound = errors.New("rainbow not found")

// Server keeps the rainbows built during its lifetime and, when a store
// is configured, persists them.
type Server struct {
	cfg     *config.SimulationConfig
	factory *simulate.Factory
	store   *db.DB // optional
	clock   timeutil.Clock

	// AssetsHost overrides where chart pages load echarts from.
	AssetsHost string

	mu    sync.RWMutex
	grids map[string]*rainbow.Grid
	order []string
}

// NewServer builds a server whose factory is configured from cfg. store
// may be nil.
func NewServer(cfg *config.SimulationConfig, store *db.DB, clock timeutil.Clock) *Server {
	if cfg == nil {
		cfg = config.EmptySimulationConfig()
	}
	clock = timeutil.Or(clock)
	return &Server{
		cfg:     cfg,
		factory: simulate.NewFactory(simulate.FromConfig(cfg), simulate.WithClock(clock)),
		store:   store,
		clock:   clock,
		grids:   make(map[string]*rainbow.Grid),
	}
}

// Register adds g to the in-memory registry and, if a store is
// configured, saves it.
func (s *Server) Register(ctx context.Context, g *rainbow.Grid) error {
	if s.store != nil {
		if err := s.store.SaveGrid(ctx, g); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grids[g.ID()]; !ok {
		s.order = append(s.order, g.ID())
	}
	s.grids[g.ID()] = g
	return nil
}

// Lookup returns a registered grid, falling back to the store.
func (s *Server) Lookup(ctx context.Context, id string) (*rainbow.Grid, error) {
	s.mu.RLock()
	g, ok := s.grids[id]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}
	if s.store == nil {
		return nil, ErrNotFound
	}
	g, err := s.store.LoadGrid(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grids[id]; !ok {
		s.order = append(s.order, id)
		s.grids[id] = g
	}
	return s.grids[id], nil
}

// Remove drops a grid from the registry and the store.
func (s *Server) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.grids[id]
	if ok {
		delete(s.grids, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if s.store != nil {
		err := s.store.DeleteGrid(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			if ok {
				return nil
			}
			return ErrNotFound
		}
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Grids returns the registered grids in registration order.
func (s *Server) Grids() []*rainbow.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rainbow.Grid, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.grids[id])
	}
	return out
}

func (s *Server) chartOptions() plotting.ChartOptions {
	return plotting.ChartOptions{AssetsHost: s.AssetsHost}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/rainbows", s.rainbowsHandler)
	mux.HandleFunc("/api/rainbows/{id}", s.rainbowHandler)
	mux.HandleFunc("/api/rainbows/{id}/table", s.tableHandler)
	mux.HandleFunc("/api/rainbows/{id}/arrays", s.arraysHandler)
	mux.HandleFunc("/api/rainbows/{id}/chart", s.chartHandler)
	mux.HandleFunc("/api/rainbows/{id}/normalize", s.normalizeHandler)
	mux.HandleFunc("/api/rainbows/{id}/trim", s.trimHandler)
	mux.HandleFunc("/api/rainbows/{id}/transit", s.transitHandler)
	mux.HandleFunc("/api/stored", s.storedHandler)
	return mux
}

// Start serves the API on listen until ctx is cancelled, then shuts the
// server down gracefully. extra routes are mounted on the same mux.
func (s *Server) Start(ctx context.Context, listen string, extra func(*http.ServeMux) error) error {
	mux := s.ServeMux()
	if extra != nil {
		if err := extra(mux); err != nil {
			return err
		}
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("api: listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
