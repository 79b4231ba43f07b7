package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

// DatadogConfig is the credential blob for a Datadog provider instance.
type DatadogConfig struct {
	APIKey string `json:"api_key"`
	AppKey string `json:"app_key"`
	Site   string `json:"site,omitempty"` // defaults to datadoghq.com
}

// DatadogProvider reads and writes monitoring data through the Datadog API.
type DatadogProvider struct {
	cfg    DatadogConfig
	client *datadog.Client
	logger *slog.Logger
}

// NewDatadogProvider parses and validates the config JSON. Missing
// credential fields fail here, before any network call.
func NewDatadogProvider(configJSON string, logger *slog.Logger) (*DatadogProvider, error) {
	var cfg DatadogConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	p := &DatadogProvider{
		cfg:    cfg,
		client: datadog.NewClient(cfg.APIKey, cfg.AppKey, cfg.Site),
		logger: logger,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *DatadogProvider) Name() string {
	return "datadog"
}

func (p *DatadogProvider) Validate() error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if p.cfg.AppKey == "" {
		return fmt.Errorf("app_key is required")
	}
	return nil
}

// Client exposes the underlying vendor client. Used by tests.
func (p *DatadogProvider) Client() *datadog.Client {
	return p.client
}

// ErrBadMonitorID reports a monitor id that is not a vendor numeric id.
var ErrBadMonitorID = errors.New("monitor id must be numeric")

func parseMonitorID(monitorID string) (int64, error) {
	id, err := strconv.ParseInt(monitorID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadMonitorID, monitorID)
	}
	return id, nil
}

// MuteMonitor mutes a monitor until the given time (24h from now when
// zero). Groups are joined into the vendor's comma-delimited scope; a bare
// wildcard mutes everything.
func (p *DatadogProvider) MuteMonitor(ctx context.Context, monitorID string, groups []string, until time.Time) error {
	id, err := parseMonitorID(monitorID)
	if err != nil {
		return err
	}
	if until.IsZero() {
		until = time.Now().Add(24 * time.Hour)
	}
	scope := strings.Join(groups, ",")
	if scope == "*" {
		scope = ""
	}
	p.logger.Info("muting monitor", "monitor_id", monitorID, "until", until)
	if err := p.client.MuteMonitor(ctx, id, scope, until); err != nil {
		return fmt.Errorf("mute monitor %s: %w", monitorID, err)
	}
	p.logger.Info("monitor muted", "monitor_id", monitorID)
	return nil
}

func (p *DatadogProvider) UnmuteMonitor(ctx context.Context, monitorID string, groups []string) error {
	id, err := parseMonitorID(monitorID)
	if err != nil {
		return err
	}
	scope := strings.Join(groups, ",")
	p.logger.Info("unmuting monitor", "monitor_id", monitorID)
	if err := p.client.UnmuteMonitor(ctx, id, scope); err != nil {
		return fmt.Errorf("unmute monitor %s: %w", monitorID, err)
	}
	p.logger.Info("monitor unmuted", "monitor_id", monitorID)
	return nil
}

// MonitorEvents returns the last day of alert-sourced events for one
// monitor, as raw records.
func (p *DatadogProvider) MonitorEvents(ctx context.Context, monitorID string) ([]json.RawMessage, error) {
	id, err := parseMonitorID(monitorID)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC()
	events, err := p.client.ListEvents(ctx, end.Add(-24*time.Hour), end, alertSourceTag)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	raw := make([]json.RawMessage, 0, len(events))
	for _, event := range events {
		if event.MonitorID == nil || *event.MonitorID != id {
			continue
		}
		data, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal event %d: %w", event.ID, err)
		}
		raw = append(raw, data)
	}
	return raw, nil
}

// Logs returns the most recent records from the last 7 days.
func (p *DatadogProvider) Logs(ctx context.Context, limit int) ([]map[string]any, error) {
	to := time.Now().UTC()
	from := to.Add(-7 * 24 * time.Hour)
	logs, err := p.client.ListLogs(ctx, datadog.LogsQuery{
		Limit: limit,
		Time:  datadog.LogsQueryTime{From: from.Unix(), To: to.Unix()},
	})
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return logs, nil
}

func (p *DatadogProvider) MonitorConfigurations(ctx context.Context) ([]json.RawMessage, error) {
	monitors, err := p.client.ListMonitors(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	raw := make([]json.RawMessage, 0, len(monitors))
	for _, m := range monitors {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal monitor %d: %w", m.ID, err)
		}
		raw = append(raw, data)
	}
	return raw, nil
}

// DeployMonitor creates a vendor monitor from a raw definition. The body
// goes to the vendor untouched so option fields outside the narrow Monitor
// struct are preserved.
func (p *DatadogProvider) DeployMonitor(ctx context.Context, definition json.RawMessage) (*models.DeployMonitorResult, error) {
	if !json.Valid(definition) {
		return nil, fmt.Errorf("parse monitor definition: invalid JSON")
	}
	created, err := p.client.CreateMonitorRaw(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("create monitor: %w", err)
	}
	return &models.DeployMonitorResult{MonitorID: created.ID, Name: created.Name}, nil
}

// Query runs a logs or metrics query over a trailing timeframe like "1h"
// or "7d". The window is computed per call and returned with the result.
func (p *DatadogProvider) Query(ctx context.Context, kind, query, timeframe string) (*models.QueryResult, error) {
	span, err := parseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	to := time.Now().UTC()
	from := to.Add(-span)
	window := models.QueryWindow{From: from, To: to}

	switch kind {
	case "logs":
		logs, err := p.client.ListLogs(ctx, datadog.LogsQuery{
			Query: query,
			Time:  datadog.LogsQueryTime{From: from.Unix(), To: to.Unix()},
		})
		if err != nil {
			return nil, fmt.Errorf("query logs: %w", err)
		}
		return &models.QueryResult{Window: window, Results: logs}, nil
	case "metrics":
		series, err := p.client.QueryMetrics(ctx, from, to, query)
		if err != nil {
			return nil, fmt.Errorf("query metrics: %w", err)
		}
		return &models.QueryResult{Window: window, Results: series}, nil
	default:
		return nil, fmt.Errorf("unknown query kind: %s", kind)
	}
}

// ErrBadTimeframe reports a query timeframe the provider cannot parse.
var ErrBadTimeframe = errors.New(`timeframe must be a number followed by one of s, m, h, d, w`)

// parseTimeframe converts "90s", "15m", "2h", "7d" or "1w" to a duration.
func parseTimeframe(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, ErrBadTimeframe
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, ErrBadTimeframe
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, ErrBadTimeframe
	}
	return time.Duration(n) * unit, nil
}
