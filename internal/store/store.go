package store

import (
	"time"

	"github.com/alertbridge/alertbridge/internal/models"
)

// Store defines the data access interface for AlertBridge.
type Store interface {
	Close() error

	// Alerts. UpsertAlert merges on fingerprint: repeated notifications
	// about the same underlying condition collapse into one row.
	UpsertAlert(providerID string, a *models.Alert) (created bool, err error)
	GetAlertByFingerprint(fingerprint string) (*models.StoredAlert, error)
	ListAlerts(providerID, severity string, limit, offset int) ([]models.StoredAlert, int, error)

	// Provider instances
	ListProviders() ([]models.ProviderInstance, error)
	GetProvider(id string) (*models.ProviderInstance, error)
	CreateProvider(p *models.ProviderInstance) error
	UpdateProvider(p *models.ProviderInstance) error
	DeleteProvider(id string) error
	GetEnabledProviders() ([]models.ProviderInstance, error)

	// Scope validation results, replaced wholesale per validation run
	SaveScopeResults(providerID string, results []models.ScopeResult) error
	GetScopeResults(providerID string) ([]models.ScopeResult, error)

	// Settings
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetAllSettings() (map[string]string, error)

	// Maintenance
	PruneOldAlerts(retention time.Duration) (int64, error)
}
