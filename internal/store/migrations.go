package store

import "database/sql"

var migrations = []func(tx *sql.Tx) error{
	migrateV1,
	migrateV2,
}

func migrateV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id              TEXT PRIMARY KEY,
			type            TEXT NOT NULL,
			name            TEXT NOT NULL UNIQUE,
			enabled         BOOLEAN NOT NULL DEFAULT 1,
			config          TEXT NOT NULL DEFAULT '{}',
			created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			fingerprint     TEXT PRIMARY KEY,
			provider_id     TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
			alert_id        TEXT NOT NULL,
			name            TEXT NOT NULL,
			status          TEXT NOT NULL,
			severity        TEXT NOT NULL DEFAULT '',
			message         TEXT NOT NULL DEFAULT '',
			monitor_id      TEXT NOT NULL DEFAULT '',
			groups_json     TEXT NOT NULL DEFAULT '[]',
			source_json     TEXT NOT NULL DEFAULT '[]',
			tags_json       TEXT NOT NULL DEFAULT '{}',
			created_by      TEXT NOT NULL DEFAULT '',
			url             TEXT NOT NULL DEFAULT '',
			first_received  DATETIME NOT NULL,
			last_received   DATETIME NOT NULL,
			times_received  INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_provider_time ON alerts(provider_id, last_received)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity)`,
		`CREATE TABLE IF NOT EXISTS scope_results (
			provider_id     TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
			scope           TEXT NOT NULL,
			granted         BOOLEAN NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			validated_at    DATETIME NOT NULL,
			PRIMARY KEY (provider_id, scope)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key             TEXT PRIMARY KEY,
			value           TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateV2 adds the scope metadata columns so validation results read back
// with the same mandatory/alias/documentation details they were saved with.
func migrateV2(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE scope_results ADD COLUMN description TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE scope_results ADD COLUMN mandatory BOOLEAN NOT NULL DEFAULT 0`,
		`ALTER TABLE scope_results ADD COLUMN mandatory_for_webhook BOOLEAN NOT NULL DEFAULT 0`,
		`ALTER TABLE scope_results ADD COLUMN alias TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE scope_results ADD COLUMN documentation_url TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
