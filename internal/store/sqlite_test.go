package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alertbridge/alertbridge/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProviderInstance(t *testing.T, s *SQLiteStore) *models.ProviderInstance {
	t.Helper()
	p := &models.ProviderInstance{
		Type:    "datadog",
		Name:    "dd-prod",
		Enabled: true,
		Config:  `{"api_key":"k","app_key":"a"}`,
	}
	if err := s.CreateProvider(p); err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return p
}

func testAlert(fingerprint string) *models.Alert {
	return &models.Alert{
		ID:           "987",
		Name:         "CPU high",
		Status:       "Alert",
		Severity:     models.SeverityCritical,
		LastReceived: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Message:      "cpu is at 99%",
		MonitorID:    "123",
		Groups:       []string{"host:web-1"},
		Source:       []string{"datadog"},
		Tags:         map[string]string{"env": "prod"},
		Fingerprint:  fingerprint,
	}
}

func TestUpsertAlertMergesOnFingerprint(t *testing.T) {
	s := newTestStore(t)
	p := testProviderInstance(t, s)

	created, err := s.UpsertAlert(p.ID, testAlert("fp-1"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Fatal("expected first upsert to create")
	}

	repeat := testAlert("fp-1")
	repeat.Status = "Recovered"
	repeat.LastReceived = repeat.LastReceived.Add(time.Hour)
	created, err = s.UpsertAlert(p.ID, repeat)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("expected second upsert to merge, not create")
	}

	got, err := s.GetAlertByFingerprint("fp-1")
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got == nil {
		t.Fatal("expected alert to exist")
	}
	if got.Status != "Recovered" {
		t.Fatalf("expected status refreshed, got %q", got.Status)
	}
	if got.TimesReceived != 2 {
		t.Fatalf("expected times_received 2, got %d", got.TimesReceived)
	}
	if !got.FirstReceived.Equal(testAlert("fp-1").LastReceived) {
		t.Fatalf("expected first_received preserved, got %s", got.FirstReceived)
	}
	if len(got.Groups) != 1 || got.Groups[0] != "host:web-1" {
		t.Fatalf("unexpected groups: %+v", got.Groups)
	}
	if got.Tags["env"] != "prod" {
		t.Fatalf("unexpected tags: %+v", got.Tags)
	}
}

func TestListAlertsFilters(t *testing.T) {
	s := newTestStore(t)
	p := testProviderInstance(t, s)

	critical := testAlert("fp-crit")
	low := testAlert("fp-low")
	low.Severity = models.SeverityLow
	for _, a := range []*models.Alert{critical, low} {
		if _, err := s.UpsertAlert(p.ID, a); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	alerts, total, err := s.ListAlerts(p.ID, models.SeverityCritical, 10, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if total != 1 || len(alerts) != 1 {
		t.Fatalf("expected 1 critical alert, got total=%d len=%d", total, len(alerts))
	}
	if alerts[0].Fingerprint != "fp-crit" {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}

	_, total, err = s.ListAlerts("", "", 10, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 alerts total, got %d", total)
	}
}

func TestProviderCRUD(t *testing.T) {
	s := newTestStore(t)
	p := testProviderInstance(t, s)

	got, err := s.GetProvider(p.ID)
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if got == nil || got.Name != "dd-prod" || !got.Enabled {
		t.Fatalf("unexpected provider: %+v", got)
	}

	got.Enabled = false
	if err := s.UpdateProvider(got); err != nil {
		t.Fatalf("update provider: %v", err)
	}
	enabled, err := s.GetEnabledProviders()
	if err != nil {
		t.Fatalf("get enabled: %v", err)
	}
	if len(enabled) != 0 {
		t.Fatalf("expected no enabled providers, got %d", len(enabled))
	}

	if err := s.DeleteProvider(p.ID); err != nil {
		t.Fatalf("delete provider: %v", err)
	}
	gone, err := s.GetProvider(p.ID)
	if err != nil {
		t.Fatalf("get deleted provider: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected provider to be gone, got %+v", gone)
	}
}

func TestScopeResultsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := testProviderInstance(t, s)

	results := []models.ScopeResult{
		{
			Name:                "monitors_read",
			Description:         "Read monitors",
			Mandatory:           true,
			MandatoryForWebhook: true,
			Alias:               "Monitors Read",
			DocumentationURL:    "https://docs.example.com/monitors",
			Granted:             true,
			ValidatedAt:         time.Now().UTC(),
		},
		{Name: "monitors_write", Granted: false, Reason: "Forbidden", ValidatedAt: time.Now().UTC()},
	}
	if err := s.SaveScopeResults(p.ID, results); err != nil {
		t.Fatalf("save scope results: %v", err)
	}

	// A second save replaces, never appends.
	if err := s.SaveScopeResults(p.ID, results); err != nil {
		t.Fatalf("re-save scope results: %v", err)
	}

	got, err := s.GetScopeResults(p.ID)
	if err != nil {
		t.Fatalf("get scope results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	read := got[0]
	if read.Name != "monitors_read" || !read.Granted {
		t.Fatalf("unexpected result: %+v", read)
	}
	// The scope metadata must survive the round trip, not just the verdict.
	if !read.Mandatory || !read.MandatoryForWebhook {
		t.Fatalf("expected mandatory flags preserved, got %+v", read)
	}
	if read.Description != "Read monitors" || read.Alias != "Monitors Read" {
		t.Fatalf("expected description and alias preserved, got %+v", read)
	}
	if read.DocumentationURL != "https://docs.example.com/monitors" {
		t.Fatalf("expected documentation url preserved, got %q", read.DocumentationURL)
	}
	if got[1].Name != "monitors_write" || got[1].Granted || got[1].Reason != "Forbidden" {
		t.Fatalf("unexpected result: %+v", got[1])
	}
}

func TestPruneOldAlerts(t *testing.T) {
	s := newTestStore(t)
	p := testProviderInstance(t, s)

	stale := testAlert("fp-stale")
	stale.LastReceived = time.Now().UTC().Add(-60 * 24 * time.Hour)
	fresh := testAlert("fp-fresh")
	fresh.LastReceived = time.Now().UTC()
	for _, a := range []*models.Alert{stale, fresh} {
		if _, err := s.UpsertAlert(p.ID, a); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	pruned, err := s.PruneOldAlerts(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned alert, got %d", pruned)
	}
	if got, _ := s.GetAlertByFingerprint("fp-fresh"); got == nil {
		t.Fatal("expected fresh alert to survive")
	}
}
