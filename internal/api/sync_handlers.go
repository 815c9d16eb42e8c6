package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/sync/queue"
	"github.com/kimhsiao/inventra/internal/sync/scheduler"
	"github.com/kimhsiao/inventra/internal/telemetry"
)

// maxResourceBytes bounds PUT /api/resources bodies.
const maxResourceBytes = 8 << 20

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State         string                     `json:"state"`
	Online        bool                       `json:"online"`
	PendingCount  int                        `json:"pending_count"`
	LastSyncAt    *time.Time                 `json:"last_sync_at"`
	LastSyncHuman string                     `json:"last_sync_human"`
	LastError     string                     `json:"last_error,omitempty"`
	QueueStats    map[string]int             `json:"queue_stats"`
	Scheduler     *scheduler.SchedulerStatus `json:"scheduler,omitempty"`
	WSClients     int                        `json:"ws_clients"`
	Metrics       telemetry.Snapshot         `json:"metrics"`
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "inventra",
		"uptime":  humanize.RelTime(s.started, time.Now(), "", ""),
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.coordinator.Status()

	response := StatusResponse{
		State:         string(status.State),
		Online:        status.Online,
		PendingCount:  status.PendingCount,
		LastSyncAt:    status.LastSyncAt,
		LastSyncHuman: "never",
		LastError:     status.LastError,
		QueueStats:    s.coordinator.QueueStats(),
		WSClients:     s.hub.ClientCount(),
		Metrics:       s.metrics.Snapshot(),
	}
	if status.LastSyncAt != nil {
		response.LastSyncHuman = humanize.Time(*status.LastSyncAt)
	}
	if s.scheduler != nil {
		st := s.scheduler.GetStatus()
		response.Scheduler = &st
	}

	writeJSON(w, http.StatusOK, response)
}

// handleTriggerSync handles POST /api/sync
// Runs a pass, or joins the one in flight, and waits for its outcome.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.coordinator.TriggerSync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetConnectivity handles GET /api/connectivity
func (s *Server) handleGetConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CurrentState())
}

// handleReportConnectivity handles POST /api/connectivity
// The front end posts its online/offline transitions here.
func (s *Server) handleReportConnectivity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := decode(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Online == nil {
		writeError(w, errors.New(errors.ErrValidation, "online is required"))
		return
	}

	changed := s.monitor.Report(*request.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":  *request.Online,
		"changed": changed,
	})
}

// handleListQueue handles GET /api/queue
func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": s.coordinator.Pending(),
		"stats":   s.coordinator.QueueStats(),
	})
}

// handleClearQueue handles DELETE /api/queue
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.ClearQueue(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": []queue.Entry{}})
}

// handleListResources handles GET /api/resources
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	keys, err := s.coordinator.ResourceKeys()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

// handleReadResource handles GET /api/resources/{key}
// Absent and unreadable values both answer 404.
func (s *Server) handleReadResource(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	raw := s.coordinator.ReadResource(key, nil)
	if raw == nil {
		writeError(w, errors.Newf(errors.ErrNotFound, "resource %s not found", key))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handleWriteResource handles PUT /api/resources/{key}
// The body is stored verbatim and must be valid JSON.
func (s *Server) handleWriteResource(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResourceBytes+1))
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "read request body", err))
		return
	}
	if len(body) > maxResourceBytes {
		writeError(w, errors.Newf(errors.ErrTooLarge, "resource body exceeds %s", humanize.IBytes(maxResourceBytes)))
		return
	}
	if !json.Valid(body) {
		writeError(w, errors.New(errors.ErrInvalid, "request body must be JSON"))
		return
	}

	if err := s.coordinator.WriteResource(key, json.RawMessage(body)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":           key,
		"pending_count": s.coordinator.PendingCount(),
	})
}

// handleDeleteResource handles DELETE /api/resources/{key}
func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.coordinator.DeleteResource(key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":           key,
		"pending_count": s.coordinator.PendingCount(),
	})
}
