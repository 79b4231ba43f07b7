package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody caps ingest payload size. Vendor webhook bodies are a few
// KB; anything past 1MB is garbage.
const maxWebhookBody = 1 << 20

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")

	p, inst, err := s.resolveProvider(providerID)
	if err != nil {
		s.logger.Error("failed to resolve provider", "provider_id", providerID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider not found"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	// A pushed payload is a single unit: if it doesn't parse, the whole
	// delivery is rejected so the vendor's retry surfaces the problem.
	alert, err := p.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("rejected webhook payload", "provider_id", providerID, "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid webhook payload"})
		return
	}

	created, err := s.store.UpsertAlert(inst.ID, alert)
	if err != nil {
		s.logger.Error("failed to store alert", "provider_id", providerID, "fingerprint", alert.Fingerprint, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	s.logger.Info("ingested webhook alert",
		"provider_id", providerID,
		"fingerprint", alert.Fingerprint,
		"name", alert.Name,
		"created", created)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"fingerprint": alert.Fingerprint,
		"created":     created,
	})
}
