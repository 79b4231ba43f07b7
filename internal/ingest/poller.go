package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/alertbridge/alertbridge/internal/models"
	"github.com/alertbridge/alertbridge/internal/provider"
	"github.com/alertbridge/alertbridge/internal/store"
)

const (
	DefaultInterval       = 5 * time.Minute
	DefaultAlertRetention = 90 * 24 * time.Hour
)

// resolveFunc builds a Provider from a stored instance. Swappable in tests.
type resolveFunc func(models.ProviderInstance, *slog.Logger) (provider.Provider, error)

// Poller periodically pulls alerts from every enabled provider and merges
// them into the store by fingerprint.
type Poller struct {
	store     store.Store
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	resolve   resolveFunc
	pollCh    chan string
}

func NewPoller(st store.Store, logger *slog.Logger, interval, retention time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultAlertRetention
	}
	return &Poller{
		store:     st,
		logger:    logger,
		interval:  interval,
		retention: retention,
		resolve:   provider.Resolve,
		pollCh:    make(chan string, 16),
	}
}

// NotifyPoll asks for an immediate poll of one provider (or all when the
// id is empty). Drops the request when a poll is already queued up.
func (p *Poller) NotifyPoll(providerID string) {
	select {
	case p.pollCh <- providerID:
	default:
		p.logger.Warn("poll request channel full, dropping", "provider_id", providerID)
	}
}

// Run starts the background loop. Blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	pollTicker := time.NewTicker(p.interval)
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer pollTicker.Stop()
	defer cleanupTicker.Stop()

	p.logger.Info("poller started", "interval", p.interval)
	p.pollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case providerID := <-p.pollCh:
			if providerID == "" {
				p.pollAll(ctx)
			} else {
				p.pollOne(ctx, providerID)
			}
		case <-pollTicker.C:
			p.pollAll(ctx)
		case <-cleanupTicker.C:
			p.cleanup()
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	instances, err := p.store.GetEnabledProviders()
	if err != nil {
		p.logger.Error("failed to get enabled providers", "err", err)
		return
	}
	for _, inst := range instances {
		// One failing provider never stops the others.
		p.poll(ctx, inst)
	}
}

func (p *Poller) pollOne(ctx context.Context, providerID string) {
	inst, err := p.store.GetProvider(providerID)
	if err != nil {
		p.logger.Error("failed to get provider", "provider_id", providerID, "err", err)
		return
	}
	if inst == nil {
		p.logger.Warn("poll requested for unknown provider", "provider_id", providerID)
		return
	}
	p.poll(ctx, *inst)
}

func (p *Poller) poll(ctx context.Context, inst models.ProviderInstance) {
	prov, err := p.resolve(inst, p.logger)
	if err != nil {
		p.logger.Error("failed to resolve provider", "provider", inst.Name, "type", inst.Type, "err", err)
		return
	}

	alerts, err := prov.FetchAlerts(ctx)
	if err != nil {
		p.logger.Error("failed to fetch alerts", "provider", inst.Name, "err", err)
		return
	}

	var created, merged int
	for i := range alerts {
		isNew, err := p.store.UpsertAlert(inst.ID, &alerts[i])
		if err != nil {
			p.logger.Error("failed to store alert",
				"provider", inst.Name, "fingerprint", alerts[i].Fingerprint, "err", err)
			continue
		}
		if isNew {
			created++
		} else {
			merged++
		}
	}
	p.logger.Info("poll complete", "provider", inst.Name,
		"fetched", len(alerts), "created", created, "merged", merged)
}

func (p *Poller) cleanup() {
	pruned, err := p.store.PruneOldAlerts(p.retention)
	if err != nil {
		p.logger.Error("failed to prune old alerts", "err", err)
		return
	}
	if pruned > 0 {
		p.logger.Info("pruned old alerts", "count", pruned)
	}
}
