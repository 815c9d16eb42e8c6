package api

import "net/http"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("GET /ws", s.hub)

	// Sync
	mux.HandleFunc("POST /api/sync", s.handleTriggerSync)
	mux.HandleFunc("GET /api/connectivity", s.handleGetConnectivity)
	mux.HandleFunc("POST /api/connectivity", s.handleReportConnectivity)
	mux.HandleFunc("GET /api/queue", s.handleListQueue)
	mux.HandleFunc("DELETE /api/queue", s.handleClearQueue)

	// Resources
	mux.HandleFunc("GET /api/resources", s.handleListResources)
	mux.HandleFunc("GET /api/resources/{key}", s.handleReadResource)
	mux.HandleFunc("PUT /api/resources/{key}", s.handleWriteResource)
	mux.HandleFunc("DELETE /api/resources/{key}", s.handleDeleteResource)

	// Clients
	mux.HandleFunc("GET /api/clients", s.handleListClients)
	mux.HandleFunc("POST /api/clients", s.handleCreateClient)
	mux.HandleFunc("DELETE /api/clients/{id}", s.handleDeleteClient)

	// Inventory
	mux.HandleFunc("GET /api/items", s.handleListItems)
	mux.HandleFunc("POST /api/items", s.handleCreateItem)
	mux.HandleFunc("GET /api/items/stats", s.handleItemStats)
	mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)

	// Schedules
	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("GET /api/schedules/counts", s.handleScheduleCounts)
	mux.HandleFunc("POST /api/schedules", s.handleSaveSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.handleSaveSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}/status", s.handleUpdateScheduleStatus)

	// Session
	mux.HandleFunc("GET /api/auth/me", s.handleCurrentUser)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/reset-password", s.handleResetPassword)
}
