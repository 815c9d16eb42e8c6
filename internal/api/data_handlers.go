package api

import (
	"net/http"
	"strconv"

	"github.com/kimhsiao/inventra/internal/models"
)

// =====================================================
// Clients
// =====================================================

// handleListClients handles GET /api/clients?q=
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.SearchClients(r.URL.Query().Get("q")))
}

// handleCreateClient handles POST /api/clients
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if err := decode(r, &c); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.repo.AddClient(c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteClient handles DELETE /api/clients/{id}
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteClient(models.UUID(r.PathValue("id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =====================================================
// Inventory
// =====================================================

// handleListItems handles GET /api/items?q=&state=
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.repo.FilterItems(q.Get("q"), models.PhysicalState(q.Get("state"))))
}

// handleCreateItem handles POST /api/items
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item models.InventoryItem
	if err := decode(r, &item); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.repo.AddItem(item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleItemStats handles GET /api/items/stats
func (s *Server) handleItemStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Stats())
}

// handleDeleteItem handles DELETE /api/items/{id}
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteItem(models.UUID(r.PathValue("id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =====================================================
// Schedules
// =====================================================

// handleListSchedules handles GET /api/schedules?upcoming=true
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if upcoming, _ := strconv.ParseBool(r.URL.Query().Get("upcoming")); upcoming {
		writeJSON(w, http.StatusOK, s.repo.UpcomingSchedules())
		return
	}
	writeJSON(w, http.StatusOK, s.repo.ListSchedules())
}

// handleScheduleCounts handles GET /api/schedules/counts
func (s *Server) handleScheduleCounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.ScheduleCounts())
}

// handleSaveSchedule handles POST /api/schedules and PUT /api/schedules/{id}
func (s *Server) handleSaveSchedule(w http.ResponseWriter, r *http.Request) {
	var entry models.ScheduleEntry
	if err := decode(r, &entry); err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if id := r.PathValue("id"); id != "" {
		entry.ID = models.UUID(id)
		status = http.StatusOK
	}

	saved, err := s.repo.SaveSchedule(entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, saved)
}

// handleDeleteSchedule handles DELETE /api/schedules/{id}
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteSchedule(models.UUID(r.PathValue("id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateScheduleStatus handles PUT /api/schedules/{id}/status
func (s *Server) handleUpdateScheduleStatus(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Status models.ScheduleStatus `json:"status"`
	}
	if err := decode(r, &request); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.repo.UpdateScheduleStatus(models.UUID(r.PathValue("id")), request.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
