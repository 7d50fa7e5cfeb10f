// Package meter serves the live input level of the active capture over
// WebSocket, next to a Prometheus /metrics endpoint.
package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/hark/internal/audio"
	"github.com/rbright/hark/internal/observe"
)

// DefaultInterval is the level push rate (10 fps).
const DefaultInterval = 100 * time.Millisecond

const writeTimeout = 2 * time.Second

// Snapshot is one level frame pushed to subscribers.
type Snapshot struct {
	Type     string  `json:"type"`
	Active   bool    `json:"active"`
	State    string  `json:"state"`
	Level    float64 `json:"level"`
	Peak     float64 `json:"peak"`
	Speaking bool    `json:"speaking"`
}

// Source reports the current capture level.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() Snapshot

func (f SourceFunc) Snapshot() Snapshot {
	return f()
}

// Options configures a Server.
type Options struct {
	PeakHold       time.Duration
	AllowedOrigins []string
	Interval       time.Duration
	Metrics        *observe.Metrics
	Logger         *slog.Logger
}

// Server fans level snapshots out to WebSocket subscribers. Each subscriber
// holds peaks on its own clock.
type Server struct {
	source   Source
	peakHold time.Duration
	interval time.Duration
	metrics  *observe.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	metricsH http.Handler
}

func New(source Source, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	s := &Server{
		source:   source,
		peakHold: opts.PeakHold,
		interval: interval,
		metrics:  opts.Metrics,
		logger:   logger,
		metricsH: promhttp.Handler(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: newOriginChecker(opts.AllowedOrigins, logger).check}
	return s
}

// Handler returns the /levels and /metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/levels", s.handleLevels)
	mux.Handle("/metrics", s.metricsH)
	return mux
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen meter %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves Handler on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("meter listening", "addr", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve meter: %w", err)
	}
	return nil
}

// snapshot reads the source and applies the subscriber's peak hold.
func (s *Server) snapshot(peaks *audio.PeakHolder, now time.Time) Snapshot {
	snap := s.source.Snapshot()
	snap.Type = "levels"
	if !snap.Active {
		peaks.Reset()
		snap.Level = audio.MinDB
		snap.Peak = audio.MinDB
		return snap
	}
	snap.Peak = peaks.Update(snap.Peak, now)
	return snap
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("level stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.MeterClients.Add(r.Context(), 1)
		defer s.metrics.MeterClients.Add(context.Background(), -1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	peaks := audio.NewPeakHolder(s.peakHold)
	send := func(now time.Time) bool {
		_ = conn.SetWriteDeadline(now.Add(writeTimeout))
		return conn.WriteJSON(s.snapshot(peaks, now)) == nil
	}

	if !send(time.Now()) {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case now := <-ticker.C:
			if !send(now) {
				return
			}
		}
	}
}
