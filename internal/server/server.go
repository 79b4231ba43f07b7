package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alertbridge/alertbridge/internal/models"
	"github.com/alertbridge/alertbridge/internal/provider"
	"github.com/alertbridge/alertbridge/internal/store"
)

// PollNotifier is implemented by the ingest poller to receive on-demand
// poll requests from the admin API.
type PollNotifier interface {
	NotifyPoll(providerID string)
}

type resolveFunc func(models.ProviderInstance, *slog.Logger) (provider.Provider, error)

type Server struct {
	cfg         *Config
	store       store.Store
	router      chi.Router
	poller      PollNotifier
	logger      *slog.Logger
	rateLimiter *rateLimiter
	resolve     resolveFunc
	startedAt   time.Time
}

func New(cfg *Config, st store.Store, poller PollNotifier, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Vendors fan one transition out to at most a handful of group
	// notifications, so 60 deliveries a minute per IP is plenty.
	rl := newRateLimiter(time.Second, 60)

	s := &Server{
		cfg:         cfg,
		store:       st,
		router:      r,
		poller:      poller,
		logger:      logger,
		rateLimiter: rl,
		resolve:     provider.Resolve,
		startedAt:   time.Now(),
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook ingest. Provisioned vendor webhooks POST here.
		r.With(rl.middleware, s.ingestKeyAuth).Post("/ingest/{providerID}", s.handleIngest)

		// Admin API
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminBasicAuth)

			// Alerts
			r.Get("/alerts", s.handleListAlerts)
			r.Get("/alerts/{fingerprint}", s.handleGetAlert)

			// Provider instances
			r.Get("/providers", s.handleListProviders)
			r.Post("/providers", s.handleCreateProvider)
			r.Get("/providers/{id}", s.handleGetProvider)
			r.Put("/providers/{id}", s.handleUpdateProvider)
			r.Delete("/providers/{id}", s.handleDeleteProvider)

			// Provider operations
			r.Post("/providers/{id}/poll", s.handlePollProvider)
			r.Get("/providers/{id}/scopes", s.handleGetScopes)
			r.Post("/providers/{id}/scopes/validate", s.handleValidateScopes)
			r.Post("/providers/{id}/webhook", s.handleSetupWebhook)
			r.Get("/providers/{id}/monitors", s.handleListMonitors)
			r.Post("/providers/{id}/monitors", s.handleDeployMonitor)
			r.Post("/providers/{id}/monitors/{monitorID}/mute", s.handleMuteMonitor)
			r.Post("/providers/{id}/monitors/{monitorID}/unmute", s.handleUnmuteMonitor)
			r.Get("/providers/{id}/monitors/{monitorID}/events", s.handleMonitorEvents)
			r.Get("/providers/{id}/logs", s.handleProviderLogs)
			r.Post("/providers/{id}/query", s.handleQuery)

			// Settings
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleUpdateSettings)
			r.Put("/password", s.handleChangePassword)
		})
	})

	// Health check (no auth)
	r.Get("/healthz", s.handleHealthz)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("starting server", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSMode)
	return http.ListenAndServe(s.cfg.ListenAddr, s.router)
}

// resolveProvider loads a stored provider instance and constructs its
// adapter. The three-way return distinguishes "not found" from real errors.
func (s *Server) resolveProvider(id string) (provider.Provider, *models.ProviderInstance, error) {
	inst, err := s.store.GetProvider(id)
	if err != nil {
		return nil, nil, err
	}
	if inst == nil {
		return nil, nil, nil
	}
	p, err := s.resolve(*inst, s.logger)
	if err != nil {
		return nil, inst, err
	}
	return p, inst, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing useful left to do.
		return
	}
}
