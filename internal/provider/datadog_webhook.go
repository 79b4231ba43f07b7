package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alertbridge/alertbridge/internal/datadog"
	"github.com/alertbridge/alertbridge/internal/models"
)

const webhookNamePrefix = "alertbridge-datadog-webhook"

// DatadogWebhookName is the deterministic registration name for a tenant.
func DatadogWebhookName(tenantID string) string {
	return webhookNamePrefix + "-" + tenantID
}

// SetupWebhook is an idempotent upsert of the push-webhook registration.
// Provisioning twice with the same tenant and URL performs no update and
// creates no duplicate. When PatchMonitors is set, every monitor's
// notification message gains an @webhook mention unless it already has one.
func (p *DatadogProvider) SetupWebhook(ctx context.Context, req models.WebhookSetupRequest) error {
	name := DatadogWebhookName(req.TenantID)
	p.logger.Info("creating or updating webhook", "name", name)

	headers, err := json.Marshal(map[string]string{
		"Content-Type": "application/json",
		"X-API-KEY":    req.APIKey,
	})
	if err != nil {
		return fmt.Errorf("marshal custom headers: %w", err)
	}
	desired := &datadog.WebhookIntegration{
		Name:          name,
		URL:           req.TargetURL,
		CustomHeaders: string(headers),
		Payload:       datadog.WebhookPayloadTemplate,
	}

	existing, err := p.client.GetWebhook(ctx, name)
	switch {
	case err == nil:
		if existing.URL != req.TargetURL {
			if err := p.client.UpdateWebhook(ctx, name, desired); err != nil {
				return fmt.Errorf("update webhook: %w", err)
			}
			p.logger.Info("webhook updated", "name", name)
		}
	case datadog.IsNotFound(err) || datadog.IsForbidden(err):
		create := *desired
		create.EncodeAs = "json"
		if err := p.client.CreateWebhook(ctx, &create); err != nil {
			var apiErr *datadog.APIError
			if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "already exists") {
				// Lost a race with a concurrent provisioning attempt.
				p.logger.Info("webhook already exists when trying to add, updating", "name", name)
				if err := p.client.UpdateWebhook(ctx, name, desired); err != nil {
					p.logger.Error("failed to update webhook", "name", name, "err", err)
				}
			} else {
				return fmt.Errorf("create webhook: %w", err)
			}
		} else {
			p.logger.Info("webhook created", "name", name)
		}
	default:
		return fmt.Errorf("get webhook: %w", err)
	}
	p.logger.Info("webhook created or updated", "name", name)

	if !req.PatchMonitors {
		return nil
	}
	return p.patchMonitorMessages(ctx, name)
}

// patchMonitorMessages appends the webhook mention to every monitor that
// doesn't carry it yet. Individual failures are logged and skipped, never
// fatal to the provisioning call.
func (p *DatadogProvider) patchMonitorMessages(ctx context.Context, webhookName string) error {
	p.logger.Info("updating monitors", "webhook", webhookName)
	monitors, err := p.client.ListMonitors(ctx, false)
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}

	mention := "@webhook-" + webhookName
	for _, monitor := range monitors {
		if strings.Contains(monitor.Message, mention) {
			continue
		}
		message := monitor.Message + " " + mention
		if err := p.client.UpdateMonitor(ctx, monitor.ID, map[string]any{"message": message}); err != nil {
			p.logger.Error("could not update monitor",
				"monitor_id", monitor.ID, "monitor_name", monitor.Name, "err", err)
			continue
		}
		p.logger.Info("monitor updated", "monitor_id", monitor.ID, "monitor_name", monitor.Name)
	}
	p.logger.Info("monitors updated")
	return nil
}
