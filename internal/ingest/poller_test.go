package ingest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alertbridge/alertbridge/internal/models"
	"github.com/alertbridge/alertbridge/internal/provider"
	"github.com/alertbridge/alertbridge/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProvider struct {
	provider.Provider // panics on the methods poll never touches
	alerts            []models.Alert
}

func (s *stubProvider) FetchAlerts(ctx context.Context) ([]models.Alert, error) {
	return s.alerts, nil
}

func TestPollUpsertsAndMerges(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	inst := &models.ProviderInstance{Type: "datadog", Name: "dd", Enabled: true, Config: "{}"}
	if err := st.CreateProvider(inst); err != nil {
		t.Fatalf("create provider: %v", err)
	}

	stub := &stubProvider{alerts: []models.Alert{
		{ID: "1", Name: "a", Status: "Alert", MonitorID: "1", Source: []string{"datadog"}, Fingerprint: "fp-1"},
		{ID: "2", Name: "b", Status: "Alert", MonitorID: "2", Source: []string{"datadog"}, Fingerprint: "fp-2"},
	}}

	p := NewPoller(st, testLogger(), 0, 0)
	p.resolve = func(models.ProviderInstance, *slog.Logger) (provider.Provider, error) {
		return stub, nil
	}

	p.pollAll(context.Background())
	p.pollAll(context.Background())

	stored, err := st.GetAlertByFingerprint("fp-1")
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if stored == nil {
		t.Fatal("expected alert to be stored")
	}
	if stored.TimesReceived != 2 {
		t.Fatalf("expected repeated polls to merge, times_received=%d", stored.TimesReceived)
	}

	_, total, err := st.ListAlerts("", "", 10, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 distinct alerts, got %d", total)
	}
}
