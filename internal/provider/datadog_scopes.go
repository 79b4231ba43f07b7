package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

const scopeProbeWebhookName = "alertbridge-webhook-scope-probe"

type scopeSpec struct {
	name                string
	description         string
	mandatory           bool
	mandatoryForWebhook bool
	alias               string
	documentationURL    string
}

var datadogScopes = []scopeSpec{
	{
		name:        "events_read",
		description: "Read events data.",
		mandatory:   true,
		alias:       "Events Data Read",
	},
	{
		name:                "monitors_read",
		description:         "Read monitors",
		mandatory:           true,
		mandatoryForWebhook: true,
		documentationURL:    "https://docs.datadoghq.com/account_management/rbac/permissions/#monitors",
		alias:               "Monitors Read",
	},
	{
		name:                "monitors_write",
		description:         "Write monitors",
		mandatoryForWebhook: true,
		documentationURL:    "https://docs.datadoghq.com/account_management/rbac/permissions/#monitors",
		alias:               "Monitors Write",
	},
	{
		name:                "create_webhooks",
		description:         "Create webhooks integrations",
		mandatoryForWebhook: true,
		alias:               "Integrations Manage",
	},
	{
		name:        "metrics_read",
		description: "View custom metrics.",
	},
	{
		name:        "logs_read",
		description: "Read log data.",
		alias:       "Logs Read Data",
	},
}

// ValidateScopes probes every declared capability with a minimal call and
// classifies it as granted or denied-with-reason. A failed probe never
// aborts the rest -- the full result set always comes back.
func (p *DatadogProvider) ValidateScopes(ctx context.Context) ([]models.ScopeResult, error) {
	p.logger.Info("validating scopes")
	results := make([]models.ScopeResult, 0, len(datadogScopes))
	for _, spec := range datadogScopes {
		result := models.ScopeResult{
			Name:                spec.name,
			Description:         spec.description,
			Mandatory:           spec.mandatory,
			MandatoryForWebhook: spec.mandatoryForWebhook,
			Alias:               spec.alias,
			DocumentationURL:    spec.documentationURL,
			ValidatedAt:         time.Now().UTC(),
		}
		if err := p.probeScope(ctx, spec.name); err != nil {
			p.logger.Warn("failed to validate scope", "scope", spec.name, "err", err)
			result.Reason = scopeReason(err)
		} else {
			result.Granted = true
		}
		results = append(results, result)
	}
	p.logger.Info("scopes validated")
	return results, nil
}

func (p *DatadogProvider) probeScope(ctx context.Context, name string) error {
	now := time.Now().UTC()
	switch name {
	case "events_read":
		_, err := p.client.ListEvents(ctx, now.Add(-time.Hour), now, "")
		return err
	case "monitors_read":
		_, err := p.client.ListMonitors(ctx, false)
		return err
	case "monitors_write":
		// Create a throwaway monitor and delete it straight away.
		monitor, err := p.client.CreateMonitor(ctx, probeMonitor())
		if err != nil {
			return err
		}
		return p.client.DeleteMonitor(ctx, monitor.ID)
	case "create_webhooks":
		// The webhooks scope exposes no delete capability, so the probe
		// webhook is a known leftover. Any vendor response other than 403
		// (e.g. "already exists" from an earlier probe) still proves the
		// scope is granted.
		err := p.client.CreateWebhook(ctx, &datadog.WebhookIntegration{
			Name: scopeProbeWebhookName,
			URL:  "https://example.com",
		})
		var apiErr *datadog.APIError
		if err != nil && errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusForbidden {
			return nil
		}
		return err
	case "metrics_read":
		_, err := p.client.QueryMetrics(ctx, now, now, "system.cpu.idle{*}")
		return err
	case "logs_read":
		_, err := p.Query(ctx, "logs", "*", "1h")
		return err
	default:
		return fmt.Errorf("unknown scope %s", name)
	}
}

// scopeReason records the vendor's message verbatim when there is one.
func scopeReason(err error) string {
	var apiErr *datadog.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func probeMonitor() *datadog.Monitor {
	return &datadog.Monitor{
		Name:     "alertbridge-scope-probe",
		Type:     "rum alert",
		Query:    `formula("1 * 100").last("15m") >= 200`,
		Message:  "scope probe monitor, safe to delete",
		Tags:     []string{"probe:alertbridge", "env:ci"},
		Priority: 3,
		Options: &datadog.MonitorOptions{
			Thresholds: map[string]float64{"critical": 200},
		},
	}
}
