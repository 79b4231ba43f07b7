package provider

import (
	"testing"
	"time"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

func TestParseEventTitle(t *testing.T) {
	priority, status, name, err := parseEventTitle("[P1] [Alert] CPU high")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if priority != "P1" || status != "Alert" || name != "CPU high" {
		t.Fatalf("got priority=%q status=%q name=%q", priority, status, name)
	}
}

func TestParseEventTitleTooFewTokens(t *testing.T) {
	if _, _, _, err := parseEventTitle("[P1] broken"); err == nil {
		t.Fatal("expected error for two-token title")
	}
}

func TestSeverityMapping(t *testing.T) {
	cases := map[string]string{
		"P1": models.SeverityCritical,
		"P2": models.SeverityHigh,
		"P3": models.SeverityMedium,
		"P4": models.SeverityLow,
		"P9": "",
		"":   "",
	}
	for code, want := range cases {
		if got := severityByPriority[code]; got != want {
			t.Errorf("priority %q: expected %q, got %q", code, want, got)
		}
	}
}

func eventMonitorID(id int64) *int64 { return &id }

func testMonitors(downtimes []datadog.Downtime) map[int64]*datadog.Monitor {
	return map[int64]*datadog.Monitor{
		123: {
			ID:                123,
			Name:              "cpu monitor",
			Creator:           &datadog.Creator{Email: "ops@example.com"},
			MatchingDowntimes: downtimes,
		},
	}
}

func testEvent() datadog.Event {
	return datadog.Event{
		ID:            987,
		Title:         "[P1] [Alert] CPU high",
		Text:          "cpu is at 99%",
		DateHappened:  1756500000,
		MonitorID:     eventMonitorID(123),
		MonitorGroups: []string{"host:web-1"},
		Tags:          []string{"env:prod", "plaintag", "team:sre"},
	}
}

func TestNormalizePolledEvent(t *testing.T) {
	alert, err := normalizePolledEvent(testEvent(), testMonitors(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.ID != "987" || alert.MonitorID != "123" {
		t.Fatalf("unexpected ids: %+v", alert)
	}
	if alert.Name != "CPU high" || alert.Status != "Alert" {
		t.Fatalf("unexpected name/status: %+v", alert)
	}
	if alert.Severity != models.SeverityCritical {
		t.Fatalf("expected critical severity, got %q", alert.Severity)
	}
	// Tags without a colon are dropped.
	if len(alert.Tags) != 2 || alert.Tags["env"] != "prod" || alert.Tags["team"] != "sre" {
		t.Fatalf("unexpected tags: %+v", alert.Tags)
	}
	want := time.Unix(1756500000, 0).UTC()
	if !alert.LastReceived.Equal(want) {
		t.Fatalf("expected lastReceived %s, got %s", want, alert.LastReceived)
	}
	if alert.CreatedBy != "ops@example.com" {
		t.Fatalf("unexpected created_by: %q", alert.CreatedBy)
	}
	if len(alert.Source) != 1 || alert.Source[0] != "datadog" {
		t.Fatalf("unexpected source: %+v", alert.Source)
	}
	if alert.Fingerprint == "" {
		t.Fatal("expected fingerprint to be set")
	}
}

func TestNormalizePolledEventUnrecognizedSeverity(t *testing.T) {
	event := testEvent()
	event.Title = "[P9] [Alert] CPU high"
	alert, err := normalizePolledEvent(event, testMonitors(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Severity != "" {
		t.Fatalf("expected empty severity for P9, got %q", alert.Severity)
	}
}

func TestNormalizePolledEventMutedByMatchingDowntime(t *testing.T) {
	downtimes := []datadog.Downtime{{Groups: []string{"host:web-1"}}}
	alert, err := normalizePolledEvent(testEvent(), testMonitors(downtimes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Status != models.StatusMuted {
		t.Fatalf("expected Muted status, got %q", alert.Status)
	}
}

func TestNormalizePolledEventMutedByWildcardScope(t *testing.T) {
	downtimes := []datadog.Downtime{{Scope: []string{"*"}, Groups: []string{"host:other"}}}
	alert, err := normalizePolledEvent(testEvent(), testMonitors(downtimes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Status != models.StatusMuted {
		t.Fatalf("expected Muted status, got %q", alert.Status)
	}
}

func TestNormalizePolledEventNonMatchingDowntime(t *testing.T) {
	downtimes := []datadog.Downtime{{Groups: []string{"host:web-2"}}}
	alert, err := normalizePolledEvent(testEvent(), testMonitors(downtimes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Status != "Alert" {
		t.Fatalf("expected parsed status to survive, got %q", alert.Status)
	}
}

func TestNormalizePolledEventUnknownMonitorFails(t *testing.T) {
	event := testEvent()
	event.MonitorID = eventMonitorID(999)
	if _, err := normalizePolledEvent(event, testMonitors(nil)); err == nil {
		t.Fatal("expected error for unknown monitor")
	}
}

func TestGroupsEqualIsSetEquality(t *testing.T) {
	if !groupsEqual([]string{"a", "b"}, []string{"b", "a", "a"}) {
		t.Fatal("expected order and duplicates to be ignored")
	}
	if groupsEqual([]string{"a"}, []string{"a", "b"}) {
		t.Fatal("expected different sets to be unequal")
	}
}

func webhookBody() []byte {
	return []byte(`{
		"body": "cpu is at 99%",
		"last_updated": "1756500000000",
		"event_type": "query_alert_monitor",
		"title": "[P2] [Warn] CPU high",
		"severity": "",
		"alert_type": "error",
		"alert_query": "avg(last_5m):avg:system.cpu.user{*} > 90",
		"alert_transition": "Triggered",
		"date": "1756500000000",
		"scopes": "host:web-1,env:prod",
		"org": {"id": "42", "name": "acme"},
		"url": "https://app.datadoghq.com/event/123",
		"tags": "monitor,env:prod,team:sre",
		"id": "987",
		"monitor_id": "123"
	}`)
}

func TestFormatDatadogWebhook(t *testing.T) {
	alert, err := FormatDatadogWebhook(webhookBody())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.ID != "987" || alert.MonitorID != "123" {
		t.Fatalf("unexpected ids: %+v", alert)
	}
	if alert.Name != "CPU high" || alert.Status != "Warn" {
		t.Fatalf("unexpected name/status: %+v", alert)
	}
	if alert.Severity != models.SeverityHigh {
		t.Fatalf("expected high severity from title token, got %q", alert.Severity)
	}
	// The structural "monitor" marker is dropped, not treated as a tag.
	if len(alert.Tags) != 2 || alert.Tags["env"] != "prod" || alert.Tags["team"] != "sre" {
		t.Fatalf("unexpected tags: %+v", alert.Tags)
	}
	want := time.Unix(1756500000, 0).UTC()
	if !alert.LastReceived.Equal(want) {
		t.Fatalf("expected lastReceived %s, got %s", want, alert.LastReceived)
	}
	if len(alert.Groups) != 2 || alert.Groups[0] != "host:web-1" {
		t.Fatalf("unexpected groups: %+v", alert.Groups)
	}
	if alert.URL != "https://app.datadoghq.com/event/123" {
		t.Fatalf("unexpected url: %q", alert.URL)
	}
}

func TestFormatDatadogWebhookExplicitSeverityWins(t *testing.T) {
	body := []byte(`{
		"title": "[P2] [Warn] CPU high",
		"severity": "P1",
		"last_updated": "1756500000000",
		"tags": "monitor",
		"scopes": "",
		"id": "1",
		"monitor_id": "123"
	}`)
	alert, err := FormatDatadogWebhook(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Severity != models.SeverityCritical {
		t.Fatalf("expected explicit severity field to win, got %q", alert.Severity)
	}
}

func TestFormatDatadogWebhookEmptyScopesDefaultsToWildcard(t *testing.T) {
	body := []byte(`{
		"title": "[P3] [Alert] disk filling",
		"last_updated": "1756500000000",
		"tags": "",
		"scopes": "",
		"id": "1",
		"monitor_id": "123"
	}`)
	alert, err := FormatDatadogWebhook(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alert.Groups) != 1 || alert.Groups[0] != "*" {
		t.Fatalf("expected wildcard groups, got %+v", alert.Groups)
	}
}

func TestFormatDatadogWebhookMalformedTitleFails(t *testing.T) {
	body := []byte(`{
		"title": "broken",
		"last_updated": "1756500000000",
		"id": "1",
		"monitor_id": "123"
	}`)
	if _, err := FormatDatadogWebhook(body); err == nil {
		t.Fatal("expected error for malformed title")
	}
}

// Both ingestion paths must converge on the same fingerprint for the same
// logical alert.
func TestPollAndWebhookPathsShareFingerprint(t *testing.T) {
	event := testEvent()
	event.MonitorGroups = []string{"host:web-1", "env:prod"}
	polled, err := normalizePolledEvent(event, testMonitors(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pushed, err := FormatDatadogWebhook(webhookBody())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polled.Fingerprint != pushed.Fingerprint {
		t.Fatalf("expected matching fingerprints, got %s and %s", polled.Fingerprint, pushed.Fingerprint)
	}
}
