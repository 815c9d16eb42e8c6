package api

import (
	"net/http"

	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleCurrentUser handles GET /api/auth/me
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := s.session.CurrentUser()
	if user == nil {
		writeError(w, errors.New(errors.ErrAuthRequired, "not logged in"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      user,
		"device_id": s.session.DeviceID(),
	})
}

// handleLogin handles POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var request credentials
	if err := decode(r, &request); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.session.Login(request.Email, request.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleRegister handles POST /api/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var request struct {
		models.User
		Password string `json:"password"`
	}
	if err := decode(r, &request); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.session.Register(request.User, request.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleLogout handles POST /api/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetPassword handles POST /api/auth/reset-password
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email string `json:"email"`
	}
	if err := decode(r, &request); err != nil {
		writeError(w, err)
		return
	}
	message, err := s.session.ResetPassword(request.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
