package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

const (
	datadogSource = "datadog"

	// alertSourceTag filters the events API down to monitor alerts.
	alertSourceTag = "source:alert"

	// pollWindow is the trailing range FetchAlerts covers.
	pollWindow = 30 * 24 * time.Hour
)

// severityByPriority maps the vendor's P1-P4 priority codes. Anything else
// maps to an empty (unrecognized) severity -- that's an edge case, not an
// error.
var severityByPriority = map[string]string{
	"P1": models.SeverityCritical,
	"P2": models.SeverityHigh,
	"P3": models.SeverityMedium,
	"P4": models.SeverityLow,
}

// parseEventTitle splits a title like "[P1] [Alert] CPU high" into its
// priority token, status token and free-text name. The three-way whitespace
// split is the vendor's contract; titles that don't produce three parts are
// rejected so the caller can decide whether to skip or fail.
func parseEventTitle(title string) (priority, status, name string, err error) {
	parts := strings.SplitN(title, " ", 3)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("title %q does not split into severity, status and name", title)
	}
	return trimBrackets(parts[0]), trimBrackets(parts[1]), parts[2], nil
}

func trimBrackets(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
}

// parseTagList keeps only "key:value" entries from the polled event's tag
// list; tags without a colon are dropped. Later duplicates win.
func parseTagList(raw []string) map[string]string {
	tags := make(map[string]string)
	for _, tag := range raw {
		if !strings.Contains(tag, ":") {
			continue
		}
		kv := strings.SplitN(tag, ":", 2)
		tags[kv[0]] = kv[1]
	}
	return tags
}

// parseTagString handles the webhook path, where tags arrive as one
// comma-delimited string. The literal "monitor" token is a structural
// marker, not a tag.
func parseTagString(raw string) map[string]string {
	tags := make(map[string]string)
	for _, tok := range strings.Split(raw, ",") {
		if tok == "monitor" || !strings.Contains(tok, ":") {
			continue
		}
		kv := strings.SplitN(tok, ":", 2)
		tags[kv[0]] = kv[1]
	}
	return tags
}

func isWildcardScope(scope []string) bool {
	return len(scope) == 1 && scope[0] == "*"
}

// groupsEqual compares group lists as sets: order and duplicate entries
// don't affect equality.
func groupsEqual(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, g := range a {
		as[g] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, g := range b {
		bs[g] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for g := range as {
		if _, ok := bs[g]; !ok {
			return false
		}
	}
	return true
}

// FetchAlerts polls the trailing event window and normalizes every
// alert-sourced event. Monitors are fetched once per batch, with downtime
// expansion, so muted state can be derived. One bad event never aborts the
// batch: it is logged with its event and monitor id and skipped.
func (p *DatadogProvider) FetchAlerts(ctx context.Context) ([]models.Alert, error) {
	monitors, err := p.client.ListMonitors(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	byID := make(map[int64]*datadog.Monitor, len(monitors))
	for i := range monitors {
		byID[monitors[i].ID] = &monitors[i]
	}

	end := time.Now().UTC()
	events, err := p.client.ListEvents(ctx, end.Add(-pollWindow), end, alertSourceTag)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	alerts := make([]models.Alert, 0, len(events))
	for _, event := range events {
		alert, err := normalizePolledEvent(event, byID)
		if err != nil {
			monitorID := ""
			if event.MonitorID != nil {
				monitorID = strconv.FormatInt(*event.MonitorID, 10)
			}
			p.logger.Error("could not parse alert event",
				"event_id", event.ID, "monitor_id", monitorID, "err", err)
			continue
		}
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}

func normalizePolledEvent(event datadog.Event, monitors map[int64]*datadog.Monitor) (*models.Alert, error) {
	tags := parseTagList(event.Tags)

	priority, status, name, err := parseEventTitle(event.Title)
	if err != nil {
		return nil, err
	}
	severity := severityByPriority[priority]

	received := time.Unix(event.DateHappened, 0).UTC()

	if event.MonitorID == nil {
		return nil, fmt.Errorf("event has no monitor id")
	}
	monitor := monitors[*event.MonitorID]
	if monitor == nil {
		return nil, fmt.Errorf("monitor %d not found", *event.MonitorID)
	}

	// Muted when any matching downtime covers exactly this event's groups,
	// or covers everything via the wildcard scope.
	muted := false
	for _, downtime := range monitor.MatchingDowntimes {
		if groupsEqual(downtime.Groups, event.MonitorGroups) || isWildcardScope(downtime.Scope) {
			muted = true
			break
		}
	}
	if muted {
		status = models.StatusMuted
	}

	createdBy := ""
	if monitor.Creator != nil {
		createdBy = monitor.Creator.Email
	}

	alert := &models.Alert{
		ID:           strconv.FormatInt(event.ID, 10),
		Name:         name,
		Status:       status,
		Severity:     severity,
		LastReceived: received,
		Message:      event.Text,
		MonitorID:    strconv.FormatInt(*event.MonitorID, 10),
		Groups:       event.MonitorGroups,
		Source:       []string{datadogSource},
		Tags:         tags,
		CreatedBy:    createdBy,
		URL:          event.URL,
	}
	alert.Fingerprint = Fingerprint(alert, FingerprintFields)
	return alert, nil
}

// ParseWebhook normalizes one pushed payload. The webhook path carries no
// downtime data, so status is taken as parsed -- no muted derivation.
func (p *DatadogProvider) ParseWebhook(body []byte) (*models.Alert, error) {
	return FormatDatadogWebhook(body)
}

// FormatDatadogWebhook is the webhook-path normalizer. It needs no
// credentials, so the ingest handler can call it before any vendor client
// exists.
func FormatDatadogWebhook(body []byte) (*models.Alert, error) {
	var event datadog.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	tags := parseTagString(event.Tags)

	ms, err := strconv.ParseInt(strings.TrimSpace(event.LastUpdated), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last_updated %q: %w", event.LastUpdated, err)
	}
	received := time.Unix(ms/1000, 0).UTC()

	priority, status, name, err := parseEventTitle(event.Title)
	if err != nil {
		return nil, err
	}
	// The payload's explicit severity field wins over the title token.
	if event.Severity != "" {
		priority = event.Severity
	}
	severity := severityByPriority[priority]

	groups := []string{"*"}
	if event.Scopes != "" {
		groups = strings.Split(event.Scopes, ",")
	}

	alert := &models.Alert{
		ID:           event.ID,
		Name:         name,
		Status:       status,
		Severity:     severity,
		LastReceived: received,
		Message:      event.Body,
		MonitorID:    event.MonitorID,
		Groups:       groups,
		Source:       []string{datadogSource},
		Tags:         tags,
		URL:          event.URL,
	}
	alert.Fingerprint = Fingerprint(alert, FingerprintFields)
	return alert, nil
}
