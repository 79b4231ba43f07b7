package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alertbridge/alertbridge/internal/models"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	providerID := r.URL.Query().Get("provider_id")
	severity := r.URL.Query().Get("severity")
	limit := 100
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	alerts, total, err := s.store.ListAlerts(providerID, severity, limit, offset)
	if err != nil {
		s.logger.Error("failed to list alerts", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if alerts == nil {
		alerts = []models.StoredAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")
	alert, err := s.store.GetAlertByFingerprint(fingerprint)
	if err != nil {
		s.logger.Error("failed to get alert", "fingerprint", fingerprint, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetAllSettings()
	if err != nil {
		s.logger.Error("failed to get settings", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	// Don't expose credential hashes
	delete(settings, "admin_password_hash")
	delete(settings, "ingest_key_hash")
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]string
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// Don't allow setting credential hashes directly
	delete(settings, "admin_password_hash")
	delete(settings, "ingest_key_hash")

	for k, v := range settings {
		if err := s.store.SetSetting(k, v); err != nil {
			s.logger.Error("failed to set setting", "key", k, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type changePasswordRequest struct {
	Type     string `json:"type"` // "admin" or "ingest"
	Password string `json:"password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	switch req.Type {
	case "admin":
		s.cfg.AdminPasswordHash = hash
	case "ingest":
		s.cfg.IngestKeyHash = hash
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be 'admin' or 'ingest'"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
