package models

import "time"

// Alert severities, from most to least urgent. An empty severity means the
// vendor reported a priority code we don't recognize.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// StatusMuted overrides the vendor-parsed status when the owning monitor has
// a matching downtime window.
const StatusMuted = "Muted"

// Alert is the canonical alert shape every provider normalizes into. It is
// constructed fresh per normalization call and never mutated after the
// fingerprint is assigned.
type Alert struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	Severity     string            `json:"severity,omitempty"`
	LastReceived time.Time         `json:"lastReceived"`
	Message      string            `json:"message,omitempty"`
	MonitorID    string            `json:"monitor_id"`
	Groups       []string          `json:"groups,omitempty"`
	Source       []string          `json:"source"`
	Tags         map[string]string `json:"tags,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	URL          string            `json:"url,omitempty"`
	Fingerprint  string            `json:"fingerprint"`
}

// StoredAlert is an Alert as persisted, with dedup bookkeeping. Repeated
// notifications with the same fingerprint merge into one row.
type StoredAlert struct {
	Alert
	ProviderID    string    `json:"provider_id"`
	FirstReceived time.Time `json:"first_received"`
	TimesReceived int       `json:"times_received"`
}

// ProviderInstance is a configured vendor integration. Config is a JSON blob
// whose shape depends on Type.
type ProviderInstance struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "datadog"
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Config    string    `json:"config"`
	CreatedAt time.Time `json:"created_at"`
}

// ScopeResult records the outcome of probing one credential scope.
// Granted is true when the probe call succeeded; otherwise Reason carries
// the vendor's permission error verbatim.
type ScopeResult struct {
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Mandatory           bool      `json:"mandatory"`
	MandatoryForWebhook bool      `json:"mandatory_for_webhook,omitempty"`
	Alias               string    `json:"alias,omitempty"`
	DocumentationURL    string    `json:"documentation_url,omitempty"`
	Granted             bool      `json:"granted"`
	Reason              string    `json:"reason,omitempty"`
	ValidatedAt         time.Time `json:"validated_at,omitempty"`
}

// QueryWindow is the time range a logs/metrics query actually covered.
// Windows are computed per call and returned with the result -- they are
// never stored on the provider instance.
type QueryWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// QueryResult wraps raw vendor query output together with its window.
type QueryResult struct {
	Window  QueryWindow `json:"window"`
	Results any         `json:"results"`
}

// WebhookSetupRequest asks a provider to register its push webhook.
type WebhookSetupRequest struct {
	TenantID      string `json:"tenant_id"`
	TargetURL     string `json:"target_url"`
	APIKey        string `json:"api_key"`
	PatchMonitors bool   `json:"patch_monitors"`
}

// MuteRequest mutes a monitor, optionally restricted to specific groups,
// until the given time (defaults to 24h from now when zero).
type MuteRequest struct {
	Groups []string   `json:"groups,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// DeployMonitorResult carries the vendor's view of a freshly created monitor.
type DeployMonitorResult struct {
	MonitorID int64  `json:"monitor_id"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
}
