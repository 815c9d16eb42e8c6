// Package api exposes the local REST and websocket surface the front end
// talks to on localhost.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kimhsiao/inventra/internal/auth"
	"github.com/kimhsiao/inventra/internal/connectivity"
	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/inventory"
	"github.com/kimhsiao/inventra/internal/logging"
	syncpkg "github.com/kimhsiao/inventra/internal/sync"
	"github.com/kimhsiao/inventra/internal/sync/scheduler"
	"github.com/kimhsiao/inventra/internal/telemetry"
)

// Server serves the local API.
type Server struct {
	addr        string
	coordinator *syncpkg.Coordinator
	monitor     *connectivity.Monitor
	repo        *inventory.Repository
	session     *auth.Session
	scheduler   *scheduler.Scheduler
	hub         *WSHub
	metrics     *telemetry.Recorder

	unsubscribe []func()
	httpServer  *http.Server
	started     time.Time
}

// Deps are the components a Server routes to. Scheduler is optional.
type Deps struct {
	Coordinator *syncpkg.Coordinator
	Repository  *inventory.Repository
	Session     *auth.Session
	Scheduler   *scheduler.Scheduler
}

// NewServer wires the websocket hub to the coordinator and monitor.
// Call Close to detach it.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		addr:        addr,
		coordinator: deps.Coordinator,
		monitor:     deps.Coordinator.Monitor(),
		repo:        deps.Repository,
		session:     deps.Session,
		scheduler:   deps.Scheduler,
		started:     time.Now(),
		metrics:     telemetry.NewRecorder(),
	}

	s.hub = NewWSHub(func(online bool) { s.monitor.Report(online) })
	s.unsubscribe = append(s.unsubscribe,
		s.monitor.Subscribe(func(state connectivity.State) {
			s.hub.Broadcast(EventConnectivityChanged, map[string]interface{}{
				"online":     state.Online,
				"changed_at": state.ChangedAt.UTC().Format(time.RFC3339Nano),
			})
		}),
		s.coordinator.Subscribe(func(e syncpkg.Event) {
			s.hub.Broadcast(string(e.Type), e.Data)
		}),
		s.monitor.Subscribe(telemetry.ConnectivityObserver(s.metrics)),
		s.coordinator.Subscribe(telemetry.SyncObserver(s.metrics)),
	)
	return s
}

// Metrics returns the server's in-process recorder.
func (s *Server) Metrics() *telemetry.Recorder {
	return s.metrics
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return s.loggingMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start over an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Info("Local API listening", map[string]interface{}{"addr": listener.Addr().String()})

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.Shutdown(context.Background()) //nolint:contextcheck // parent context is already cancelled
}

// Shutdown stops accepting requests, waits up to five seconds for in-flight
// ones and closes the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.Close()
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logging.Info("Shutting down local API", nil)
	return s.httpServer.Shutdown(shutdownCtx)
}

// Close detaches the hub from the coordinator and monitor and disconnects
// websocket clients.
func (s *Server) Close() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil
	s.hub.Close()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordCount(telemetry.MetricHTTPRequests, 1)
		logging.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// =====================================================
// Response helpers
// =====================================================

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("JSON encode error", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", string(code), err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(code)})
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalid, errors.ErrValidation:
		return http.StatusBadRequest
	case errors.ErrAuthRequired, errors.ErrAuthFailed:
		return http.StatusUnauthorized
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.ErrQueueFull:
		return http.StatusInsufficientStorage
	case errors.ErrSyncFailed, errors.ErrSyncAuthFailed:
		return http.StatusBadGateway
	case errors.ErrSyncTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into out, reporting malformed input as ErrInvalid.
func decode(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrInvalid, "invalid request body", err)
	}
	return nil
}
