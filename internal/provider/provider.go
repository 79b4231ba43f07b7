package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alertbridge/alertbridge/internal/models"
)

// Provider adapts one vendor observability service to the platform's
// canonical alert shape. All methods are synchronous blocking calls; any
// parallelism is the caller's business.
type Provider interface {
	Name() string
	Validate() error

	// FetchAlerts polls the vendor for recent alert events and normalizes
	// them. A single malformed event is logged and skipped, never fatal.
	FetchAlerts(ctx context.Context) ([]models.Alert, error)

	// ParseWebhook normalizes one pushed payload. A malformed payload fails
	// the whole call -- there is no partial unit to skip.
	ParseWebhook(body []byte) (*models.Alert, error)

	// ValidateScopes probes each declared capability independently and
	// always returns the full result set.
	ValidateScopes(ctx context.Context) ([]models.ScopeResult, error)

	// SetupWebhook idempotently registers the push webhook vendor-side.
	SetupWebhook(ctx context.Context, req models.WebhookSetupRequest) error

	MuteMonitor(ctx context.Context, monitorID string, groups []string, until time.Time) error
	UnmuteMonitor(ctx context.Context, monitorID string, groups []string) error

	// MonitorEvents returns the raw recent events for one monitor.
	MonitorEvents(ctx context.Context, monitorID string) ([]json.RawMessage, error)

	// Logs returns the most recent log records.
	Logs(ctx context.Context, limit int) ([]map[string]any, error)

	// MonitorConfigurations returns every vendor monitor as raw JSON.
	MonitorConfigurations(ctx context.Context) ([]json.RawMessage, error)

	// DeployMonitor creates a vendor monitor from a raw definition.
	DeployMonitor(ctx context.Context, definition json.RawMessage) (*models.DeployMonitorResult, error)

	// Query runs a logs or metrics query over a trailing timeframe and
	// reports back the exact window it covered.
	Query(ctx context.Context, kind, query, timeframe string) (*models.QueryResult, error)
}

// Resolve builds a Provider from a stored instance. Configuration errors
// surface here, before any network call is attempted.
func Resolve(inst models.ProviderInstance, logger *slog.Logger) (Provider, error) {
	switch inst.Type {
	case "datadog":
		p, err := NewDatadogProvider(inst.Config, logger)
		if err != nil {
			return nil, fmt.Errorf("datadog provider %s: %w", inst.Name, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", inst.Type)
	}
}
