package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

// webhookVendor tracks webhook registrations and monitor patches.
type webhookVendor struct {
	webhooks map[string]*datadog.WebhookIntegration
	monitors []datadog.Monitor

	createCalls  int
	updateCalls  int
	patchedIDs   []int64
	failCreate   string // error body to return on create, "" for none
	forbiddenGet bool
}

func newWebhookVendor() *webhookVendor {
	return &webhookVendor{webhooks: make(map[string]*datadog.WebhookIntegration)}
}

func (f *webhookVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const base = "/api/v1/integration/webhooks/configuration/webhooks"
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, base+"/"):
		if f.forbiddenGet {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":["Forbidden"]}`))
			return
		}
		name := strings.TrimPrefix(r.URL.Path, base+"/")
		webhook, ok := f.webhooks[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":["Webhook not found"]}`))
			return
		}
		json.NewEncoder(w).Encode(webhook)
	case r.Method == http.MethodPost && r.URL.Path == base:
		f.createCalls++
		if f.failCreate != "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(f.failCreate))
			return
		}
		var webhook datadog.WebhookIntegration
		json.NewDecoder(r.Body).Decode(&webhook)
		f.webhooks[webhook.Name] = &webhook
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, base+"/"):
		f.updateCalls++
		name := strings.TrimPrefix(r.URL.Path, base+"/")
		var webhook datadog.WebhookIntegration
		json.NewDecoder(r.Body).Decode(&webhook)
		f.webhooks[name] = &webhook
		w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/monitor":
		json.NewEncoder(w).Encode(f.monitors)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/v1/monitor/"):
		var id int64
		for i := range f.monitors {
			idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/monitor/")
			if idStr == jsonNumber(f.monitors[i].ID) {
				id = f.monitors[i].ID
				var body map[string]any
				json.NewDecoder(r.Body).Decode(&body)
				if msg, ok := body["message"].(string); ok {
					f.monitors[i].Message = msg
				}
			}
		}
		f.patchedIDs = append(f.patchedIDs, id)
		w.Write([]byte(`{}`))
	default:
		w.Write([]byte(`{}`))
	}
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func setupRequest() models.WebhookSetupRequest {
	return models.WebhookSetupRequest{
		TenantID:  "acme",
		TargetURL: "https://bridge.example.com/api/v1/ingest/dd-1",
		APIKey:    "ingest-key",
	}
}

func TestSetupWebhookCreatesWhenMissing(t *testing.T) {
	vendor := newWebhookVendor()
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	if err := p.SetupWebhook(context.Background(), setupRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name := DatadogWebhookName("acme")
	webhook := vendor.webhooks[name]
	if webhook == nil {
		t.Fatalf("expected webhook %s to exist", name)
	}
	if webhook.URL != "https://bridge.example.com/api/v1/ingest/dd-1" {
		t.Fatalf("unexpected url: %q", webhook.URL)
	}
	if webhook.EncodeAs != "json" {
		t.Fatalf("expected encode_as json on create, got %q", webhook.EncodeAs)
	}
	if !strings.Contains(webhook.CustomHeaders, "X-API-KEY") {
		t.Fatalf("expected X-API-KEY header registration, got %q", webhook.CustomHeaders)
	}
	if !strings.Contains(webhook.Payload, `"monitor_id": "$ALERT_ID"`) {
		t.Fatalf("expected the payload template to be registered, got %q", webhook.Payload)
	}
}

func TestSetupWebhookIsIdempotent(t *testing.T) {
	vendor := newWebhookVendor()
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	if err := p.SetupWebhook(context.Background(), setupRequest()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := p.SetupWebhook(context.Background(), setupRequest()); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if vendor.createCalls != 1 {
		t.Fatalf("expected exactly one create, got %d", vendor.createCalls)
	}
	if vendor.updateCalls != 0 {
		t.Fatalf("expected no update when the URL is unchanged, got %d", vendor.updateCalls)
	}
	if len(vendor.webhooks) != 1 {
		t.Fatalf("expected a single registration, got %d", len(vendor.webhooks))
	}
}

func TestSetupWebhookUpdatesChangedURL(t *testing.T) {
	vendor := newWebhookVendor()
	name := DatadogWebhookName("acme")
	vendor.webhooks[name] = &datadog.WebhookIntegration{Name: name, URL: "https://old.example.com"}
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	if err := p.SetupWebhook(context.Background(), setupRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vendor.updateCalls != 1 {
		t.Fatalf("expected one update, got %d", vendor.updateCalls)
	}
	if vendor.webhooks[name].URL != setupRequest().TargetURL {
		t.Fatalf("expected url to be updated, got %q", vendor.webhooks[name].URL)
	}
}

func TestSetupWebhookCreateRaceFallsBackToUpdate(t *testing.T) {
	vendor := newWebhookVendor()
	vendor.forbiddenGet = true
	vendor.failCreate = `{"errors":["Webhook already exists"]}`
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	if err := p.SetupWebhook(context.Background(), setupRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vendor.updateCalls != 1 {
		t.Fatalf("expected fallback update, got %d", vendor.updateCalls)
	}
}

func TestSetupWebhookCreateFailureIsFatal(t *testing.T) {
	vendor := newWebhookVendor()
	vendor.forbiddenGet = true
	vendor.failCreate = `{"errors":["invalid payload"]}`
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	if err := p.SetupWebhook(context.Background(), setupRequest()); err == nil {
		t.Fatal("expected create failure to propagate")
	}
}

func TestSetupWebhookPatchesMonitorsOnce(t *testing.T) {
	vendor := newWebhookVendor()
	name := DatadogWebhookName("acme")
	vendor.monitors = []datadog.Monitor{
		{ID: 1, Name: "cpu", Message: "notify someone"},
		{ID: 2, Name: "disk", Message: "already notified @webhook-" + name},
	}
	srv := httptest.NewServer(vendor)
	defer srv.Close()
	p := newTestProvider(t, srv.URL)

	req := setupRequest()
	req.PatchMonitors = true
	if err := p.SetupWebhook(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(vendor.patchedIDs) != 1 || vendor.patchedIDs[0] != 1 {
		t.Fatalf("expected only monitor 1 to be patched, got %+v", vendor.patchedIDs)
	}
	if !strings.HasSuffix(vendor.monitors[0].Message, "@webhook-"+name) {
		t.Fatalf("expected mention appended, got %q", vendor.monitors[0].Message)
	}
}
