package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alertbridge/alertbridge/internal/models"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) getUserVersion() int {
	var v int
	s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v
}

func (s *SQLiteStore) migrate() error {
	current := s.getUserVersion()
	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration v%d: %w", i+1, err)
		}
		if err := migrations[i](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", i+1, err)
		}
	}
	return nil
}

// --- Alerts ---

// UpsertAlert merges an incoming canonical alert into the alerts table by
// fingerprint. New fingerprints insert; known ones refresh the mutable
// fields and bump times_received. The created flag comes from the counter
// the statement itself returns, so it stays correct under concurrent
// ingestion of the same fingerprint.
func (s *SQLiteStore) UpsertAlert(providerID string, a *models.Alert) (bool, error) {
	groups, err := json.Marshal(a.Groups)
	if err != nil {
		return false, fmt.Errorf("marshal groups: %w", err)
	}
	source, err := json.Marshal(a.Source)
	if err != nil {
		return false, fmt.Errorf("marshal source: %w", err)
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return false, fmt.Errorf("marshal tags: %w", err)
	}

	var times int
	err = s.db.QueryRow(`INSERT INTO alerts
		(fingerprint, provider_id, alert_id, name, status, severity, message, monitor_id,
		 groups_json, source_json, tags_json, created_by, url, first_received, last_received, times_received)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(fingerprint) DO UPDATE SET
			alert_id = excluded.alert_id,
			name = excluded.name,
			status = excluded.status,
			severity = excluded.severity,
			message = excluded.message,
			groups_json = excluded.groups_json,
			tags_json = excluded.tags_json,
			url = excluded.url,
			last_received = excluded.last_received,
			times_received = times_received + 1
		RETURNING times_received`,
		a.Fingerprint, providerID, a.ID, a.Name, a.Status, a.Severity, a.Message, a.MonitorID,
		string(groups), string(source), string(tags), a.CreatedBy, a.URL,
		a.LastReceived.UTC(), a.LastReceived.UTC()).Scan(&times)
	if err != nil {
		return false, fmt.Errorf("upsert alert: %w", err)
	}
	return times == 1, nil
}

const alertColumns = `fingerprint, provider_id, alert_id, name, status, severity, message, monitor_id,
	groups_json, source_json, tags_json, created_by, url, first_received, last_received, times_received`

func scanAlert(row interface{ Scan(...any) error }) (*models.StoredAlert, error) {
	var a models.StoredAlert
	var groups, source, tags string
	err := row.Scan(&a.Fingerprint, &a.ProviderID, &a.Alert.ID, &a.Name, &a.Status, &a.Severity,
		&a.Message, &a.MonitorID, &groups, &source, &tags, &a.CreatedBy, &a.URL,
		&a.FirstReceived, &a.LastReceived, &a.TimesReceived)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(groups), &a.Groups); err != nil {
		return nil, fmt.Errorf("unmarshal groups: %w", err)
	}
	if err := json.Unmarshal([]byte(source), &a.Source); err != nil {
		return nil, fmt.Errorf("unmarshal source: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) GetAlertByFingerprint(fingerprint string) (*models.StoredAlert, error) {
	row := s.db.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE fingerprint = ?", fingerprint)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAlerts(providerID, severity string, limit, offset int) ([]models.StoredAlert, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	if providerID != "" {
		where += " AND provider_id = ?"
		args = append(args, providerID)
	}
	if severity != "" {
		where += " AND severity = ?"
		args = append(args, severity)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := "SELECT " + alertColumns + " FROM alerts " + where + " ORDER BY last_received DESC LIMIT ? OFFSET ?"
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.StoredAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, total, rows.Err()
}

// --- Provider instances ---

func (s *SQLiteStore) ListProviders() ([]models.ProviderInstance, error) {
	return s.queryProviders("SELECT id, type, name, enabled, config, created_at FROM providers ORDER BY created_at")
}

func (s *SQLiteStore) GetEnabledProviders() ([]models.ProviderInstance, error) {
	return s.queryProviders("SELECT id, type, name, enabled, config, created_at FROM providers WHERE enabled = 1 ORDER BY created_at")
}

func (s *SQLiteStore) queryProviders(query string, args ...any) ([]models.ProviderInstance, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var providers []models.ProviderInstance
	for rows.Next() {
		var p models.ProviderInstance
		if err := rows.Scan(&p.ID, &p.Type, &p.Name, &p.Enabled, &p.Config, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (s *SQLiteStore) GetProvider(id string) (*models.ProviderInstance, error) {
	var p models.ProviderInstance
	err := s.db.QueryRow("SELECT id, type, name, enabled, config, created_at FROM providers WHERE id = ?", id).
		Scan(&p.ID, &p.Type, &p.Name, &p.Enabled, &p.Config, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateProvider(p *models.ProviderInstance) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO providers (id, type, name, enabled, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Type, p.Name, p.Enabled, p.Config, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProvider(p *models.ProviderInstance) error {
	_, err := s.db.Exec(`UPDATE providers SET type = ?, name = ?, enabled = ?, config = ? WHERE id = ?`,
		p.Type, p.Name, p.Enabled, p.Config, p.ID)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteProvider(id string) error {
	_, err := s.db.Exec("DELETE FROM providers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	return nil
}

// --- Scope results ---

func (s *SQLiteStore) SaveScopeResults(providerID string, results []models.ScopeResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM scope_results WHERE provider_id = ?", providerID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear scope results: %w", err)
	}
	for _, r := range results {
		_, err := tx.Exec(`INSERT INTO scope_results
			(provider_id, scope, description, mandatory, mandatory_for_webhook, alias, documentation_url,
			 granted, reason, validated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			providerID, r.Name, r.Description, r.Mandatory, r.MandatoryForWebhook, r.Alias,
			r.DocumentationURL, r.Granted, r.Reason, r.ValidatedAt.UTC())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert scope result: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetScopeResults(providerID string) ([]models.ScopeResult, error) {
	rows, err := s.db.Query(`SELECT scope, description, mandatory, mandatory_for_webhook, alias,
		documentation_url, granted, reason, validated_at FROM scope_results
		WHERE provider_id = ? ORDER BY scope`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query scope results: %w", err)
	}
	defer rows.Close()

	var results []models.ScopeResult
	for rows.Next() {
		var r models.ScopeResult
		if err := rows.Scan(&r.Name, &r.Description, &r.Mandatory, &r.MandatoryForWebhook,
			&r.Alias, &r.DocumentationURL, &r.Granted, &r.Reason, &r.ValidatedAt); err != nil {
			return nil, fmt.Errorf("scan scope result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Settings ---

func (s *SQLiteStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAllSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// --- Maintenance ---

func (s *SQLiteStore) PruneOldAlerts(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.Exec("DELETE FROM alerts WHERE last_received < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
