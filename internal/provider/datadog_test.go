package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T, vendorURL string) *DatadogProvider {
	t.Helper()
	p, err := NewDatadogProvider(`{"api_key":"key","app_key":"app"}`, testLogger())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	p.Client().SetBaseURL(vendorURL)
	return p
}

func TestNewDatadogProviderMissingCredentials(t *testing.T) {
	if _, err := NewDatadogProvider(`{"api_key":"key"}`, testLogger()); err == nil {
		t.Fatal("expected error for missing app_key")
	}
	if _, err := NewDatadogProvider(`{"app_key":"app"}`, testLogger()); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]time.Duration{
		"90s": 90 * time.Second,
		"15m": 15 * time.Minute,
		"2h":  2 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := parseTimeframe(in)
		if err != nil {
			t.Errorf("parseTimeframe(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseTimeframe(%q): expected %s, got %s", in, want, got)
		}
	}
	for _, in := range []string{"", "h", "10x", "abc"} {
		if _, err := parseTimeframe(in); err == nil {
			t.Errorf("parseTimeframe(%q): expected error", in)
		}
	}
}

// fakeVendor serves the handful of v1 endpoints the provider touches.
type fakeVendor struct {
	monitors []datadog.Monitor
	events   []datadog.Event

	muteCalls   []string
	unmuteCalls []string
}

func (f *fakeVendor) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/monitor", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.monitors)
	})
	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"events": f.events})
	})
	mux.HandleFunc("POST /api/v1/monitor/{id}/mute", func(w http.ResponseWriter, r *http.Request) {
		f.muteCalls = append(f.muteCalls, r.PathValue("id")+"?"+r.URL.RawQuery)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /api/v1/monitor/{id}/unmute", func(w http.ResponseWriter, r *http.Request) {
		f.unmuteCalls = append(f.unmuteCalls, r.PathValue("id")+"?"+r.URL.RawQuery)
		w.Write([]byte(`{}`))
	})
	return mux
}

func TestFetchAlertsSkipsMalformedEvents(t *testing.T) {
	vendor := &fakeVendor{
		monitors: []datadog.Monitor{{ID: 123, Creator: &datadog.Creator{Email: "ops@example.com"}}},
	}
	for i := 0; i < 99; i++ {
		event := testEvent()
		event.ID = int64(1000 + i)
		vendor.events = append(vendor.events, event)
	}
	bad := testEvent()
	bad.ID = 9999
	bad.Title = "malformed"
	vendor.events = append(vendor.events, bad)

	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	alerts, err := p.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 99 {
		t.Fatalf("expected 99 alerts from a 100-event batch with one bad record, got %d", len(alerts))
	}
}

func TestFetchAlertsPropagatesListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["Forbidden"]}`))
	}))
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	if _, err := p.FetchAlerts(context.Background()); err == nil {
		t.Fatal("expected error when the monitor listing fails")
	}
}

func TestMuteMonitorJoinsGroupsAndDropsWildcard(t *testing.T) {
	vendor := &fakeVendor{}
	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	until := time.Now().Add(time.Hour)
	if err := p.MuteMonitor(context.Background(), "123", []string{"host:a", "host:b"}, until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.MuteMonitor(context.Background(), "123", []string{"*"}, until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(vendor.muteCalls) != 2 {
		t.Fatalf("expected 2 mute calls, got %d", len(vendor.muteCalls))
	}
	if !strings.Contains(vendor.muteCalls[0], "scope=host%3Aa%2Chost%3Ab") {
		t.Fatalf("expected joined scope in first call: %s", vendor.muteCalls[0])
	}
	// A bare wildcard mutes everything: no scope parameter at all.
	if strings.Contains(vendor.muteCalls[1], "scope=") {
		t.Fatalf("expected no scope for wildcard mute: %s", vendor.muteCalls[1])
	}
}

func TestMuteMonitorRejectsBadID(t *testing.T) {
	p := newTestProvider(t, "http://unused.invalid")
	err := p.MuteMonitor(context.Background(), "abc", nil, time.Time{})
	if !errors.Is(err, ErrBadMonitorID) {
		t.Fatalf("expected ErrBadMonitorID for non-numeric monitor id, got %v", err)
	}
}

func TestMonitorEventsFiltersByMonitor(t *testing.T) {
	other := testEvent()
	other.ID = 555
	other.MonitorID = eventMonitorID(999)
	vendor := &fakeVendor{events: []datadog.Event{testEvent(), other}}
	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	raw, err := p.MonitorEvents(context.Background(), "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected 1 event for monitor 123, got %d", len(raw))
	}
	var event datadog.Event
	if err := json.Unmarshal(raw[0], &event); err != nil {
		t.Fatalf("unmarshal raw event: %v", err)
	}
	if event.ID != 987 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDeployMonitorForwardsDefinitionVerbatim(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"id": 42, "name": "cpu"}`))
	}))
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	definition := []byte(`{
		"name": "cpu",
		"type": "metric alert",
		"query": "q",
		"options": {"thresholds": {"critical": 1}, "notify_no_data": true, "renotify_interval": 10}
	}`)
	result, err := p.DeployMonitor(context.Background(), definition)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MonitorID != 42 || result.Name != "cpu" {
		t.Fatalf("unexpected result: %+v", result)
	}

	var sent struct {
		Options map[string]any `json:"options"`
	}
	if err := json.Unmarshal(received, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	// Option fields outside the narrow wire struct must reach the vendor.
	if sent.Options["notify_no_data"] != true {
		t.Fatalf("expected notify_no_data to survive, sent body: %s", received)
	}
	if n, ok := sent.Options["renotify_interval"].(float64); !ok || n != 10 {
		t.Fatalf("expected renotify_interval to survive, sent body: %s", received)
	}
}

func TestDeployMonitorRejectsInvalidJSON(t *testing.T) {
	p := newTestProvider(t, "http://unused.invalid")
	if _, err := p.DeployMonitor(context.Background(), []byte(`{"name":`)); err == nil {
		t.Fatal("expected error for invalid definition")
	}
}

func TestQueryReturnsExplicitWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logs":[{"id":"l1"}]}`))
	}))
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	before := time.Now().UTC()
	result, err := p.Query(context.Background(), "logs", "*", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Window.To.Before(before) {
		t.Fatalf("expected window end at or after call time, got %s", result.Window.To)
	}
	span := result.Window.To.Sub(result.Window.From)
	if span != time.Hour {
		t.Fatalf("expected 1h window, got %s", span)
	}
}

func TestQueryRejectsUnknownKind(t *testing.T) {
	p := newTestProvider(t, "http://unused.invalid")
	if _, err := p.Query(context.Background(), "traces", "*", "1h"); err == nil {
		t.Fatal("expected error for unknown query kind")
	}
}

// scopeVendor lets individual endpoints be forced to 403.
type scopeVendor struct {
	forbidden map[string]bool // method+path prefix
}

func (f *scopeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	for prefix := range f.forbidden {
		if strings.HasPrefix(key, prefix) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":["Forbidden"]}`))
			return
		}
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/events":
		w.Write([]byte(`{"events":[]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/monitor":
		w.Write([]byte(`[]`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/monitor":
		w.Write([]byte(`{"id": 42}`))
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/v1/monitor/"):
		w.Write([]byte(`{}`))
	default:
		w.Write([]byte(`{}`))
	}
}

func TestValidateScopesAllGranted(t *testing.T) {
	srv := httptest.NewServer(&scopeVendor{})
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	results, err := p.ValidateScopes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(datadogScopes) {
		t.Fatalf("expected %d results, got %d", len(datadogScopes), len(results))
	}
	for _, r := range results {
		if !r.Granted {
			t.Errorf("scope %s: expected granted, got reason %q", r.Name, r.Reason)
		}
	}
}

func TestValidateScopesRecordsDenialsAndContinues(t *testing.T) {
	vendor := &scopeVendor{forbidden: map[string]bool{
		"POST /api/v1/monitor":           true,
		"POST /api/v1/logs-queries/list": true,
	}}
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	results, err := p.ValidateScopes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byName := make(map[string]models.ScopeResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	if len(results) != len(datadogScopes) {
		t.Fatalf("expected the full result set, got %d of %d", len(results), len(datadogScopes))
	}
	if byName["monitors_write"].Granted {
		t.Fatal("expected monitors_write to be denied")
	}
	if byName["monitors_write"].Reason != "Forbidden" {
		t.Fatalf("expected verbatim vendor reason, got %q", byName["monitors_write"].Reason)
	}
	if byName["logs_read"].Granted {
		t.Fatal("expected logs_read to be denied")
	}
	if !byName["monitors_read"].Granted || !byName["events_read"].Granted {
		t.Fatal("expected unrelated scopes to still be granted")
	}
}

func TestValidateScopesWebhookConflictCountsAsGranted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/webhooks") {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errors":["Webhook already exists"]}`)
			return
		}
		(&scopeVendor{}).ServeHTTP(w, r)
	}))
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	results, err := p.ValidateScopes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Name == "create_webhooks" && !r.Granted {
			t.Fatalf("expected non-403 conflict to count as granted, got reason %q", r.Reason)
		}
	}
}
