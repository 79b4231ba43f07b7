package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
	"github.com/alertbridge/alertbridge/internal/provider"
)

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.store.ListProviders()
	if err != nil {
		s.logger.Error("failed to list providers", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if providers == nil {
		providers = []models.ProviderInstance{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.store.GetProvider(id)
	if err != nil {
		s.logger.Error("failed to get provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var p models.ProviderInstance
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if p.Type == "" || p.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type and name are required"})
		return
	}
	// Reject broken configuration up front rather than at first poll.
	if _, err := s.resolve(p, s.logger); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.CreateProvider(&p); err != nil {
		s.logger.Error("failed to create provider", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p models.ProviderInstance
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	p.ID = id

	if _, err := s.resolve(p, s.logger); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.UpdateProvider(&p); err != nil {
		s.logger.Error("failed to update provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteProvider(id); err != nil {
		s.logger.Error("failed to delete provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePollProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inst, err := s.store.GetProvider(id)
	if err != nil {
		s.logger.Error("failed to get provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}
	if s.poller != nil {
		s.poller.NotifyPoll(id)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "poll scheduled"})
}

func (s *Server) handleGetScopes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := s.store.GetScopeResults(id)
	if err != nil {
		s.logger.Error("failed to get scope results", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if results == nil {
		results = []models.ScopeResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scopes": results})
}

func (s *Server) handleValidateScopes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	// Each scope is probed independently; a denial is a result, not an
	// error, so this call only fails on plumbing problems.
	results, err := p.ValidateScopes(r.Context())
	if err != nil {
		s.writeProviderError(w, "validate scopes", err)
		return
	}
	if err := s.store.SaveScopeResults(id, results); err != nil {
		s.logger.Error("failed to save scope results", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scopes": results})
}

type setupWebhookRequest struct {
	APIKey        string `json:"api_key"`
	PatchMonitors bool   `json:"patch_monitors"`
}

func (s *Server) handleSetupWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	var req setupWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "api_key is required"})
		return
	}
	if s.cfg.ExternalURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "external_url is not configured"})
		return
	}

	setup := models.WebhookSetupRequest{
		TenantID:      s.cfg.TenantID,
		TargetURL:     strings.TrimRight(s.cfg.ExternalURL, "/") + "/api/v1/ingest/" + inst.ID,
		APIKey:        req.APIKey,
		PatchMonitors: req.PatchMonitors,
	}
	if err := p.SetupWebhook(r.Context(), setup); err != nil {
		s.writeProviderError(w, "setup webhook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "webhook registered",
		"target_url": setup.TargetURL,
	})
}

func (s *Server) handleMuteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	monitorID := chi.URLParam(r, "monitorID")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	// An empty body mutes the whole monitor for the default window.
	var req models.MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var until time.Time
	if req.Until != nil {
		until = *req.Until
	}
	if err := p.MuteMonitor(r.Context(), monitorID, req.Groups, until); err != nil {
		s.writeProviderError(w, "mute monitor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "muted"})
}

func (s *Server) handleUnmuteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	monitorID := chi.URLParam(r, "monitorID")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	var req models.MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := p.UnmuteMonitor(r.Context(), monitorID, req.Groups); err != nil {
		s.writeProviderError(w, "unmute monitor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unmuted"})
}

func (s *Server) handleMonitorEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	monitorID := chi.URLParam(r, "monitorID")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	events, err := p.MonitorEvents(r.Context(), monitorID)
	if err != nil {
		s.writeProviderError(w, "monitor events", err)
		return
	}
	if events == nil {
		events = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleProviderLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := p.Logs(r.Context(), limit)
	if err != nil {
		s.writeProviderError(w, "logs", err)
		return
	}
	if logs == nil {
		logs = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	monitors, err := p.MonitorConfigurations(r.Context())
	if err != nil {
		s.writeProviderError(w, "list monitors", err)
		return
	}
	if monitors == nil {
		monitors = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"monitors": monitors})
}

func (s *Server) handleDeployMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	definition, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil || len(definition) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "monitor definition is required"})
		return
	}

	result, err := p.DeployMonitor(r.Context(), definition)
	if err != nil {
		s.writeProviderError(w, "deploy monitor", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type queryRequest struct {
	Kind      string `json:"kind"` // "logs" or "metrics"
	Query     string `json:"query"`
	Timeframe string `json:"timeframe"` // e.g. "15m", "2h", "7d"
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, inst, err := s.resolveProvider(id)
	if err != nil {
		s.logger.Error("failed to resolve provider", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result, err := p.Query(r.Context(), req.Kind, req.Query, req.Timeframe)
	if err != nil {
		s.writeProviderError(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeProviderError maps a provider operation failure to a response.
// Vendor API rejections pass through with their status context; everything
// else is either a caller mistake or an internal fault.
func (s *Server) writeProviderError(w http.ResponseWriter, op string, err error) {
	var apiErr *datadog.APIError
	switch {
	case errors.As(err, &apiErr):
		s.logger.Warn("vendor API error", "op", op, "status", apiErr.StatusCode, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": apiErr.Error()})
	case errors.Is(err, provider.ErrBadTimeframe), errors.Is(err, provider.ErrBadMonitorID):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("provider operation failed", "op", op, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
