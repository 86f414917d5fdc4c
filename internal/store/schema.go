package store

import (
	"context"
	"database/sql"
	"fmt"
)

// initSchema applies the schema_migrations ledger, gated by checksum, the
// same way internal/persistence/store.go's does: a single
// migration transaction creates every table if absent, then records (or
// verifies) the checksum row.
func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("read migration max version: %w", err)
	}
	if maxVersion > schemaVersionLatest {
		return fmt.Errorf("db schema version %d is newer than supported %d", maxVersion, schemaVersionLatest)
	}
	if maxVersion == schemaVersionLatest {
		var existingChecksum string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersionLatest).Scan(&existingChecksum); err != nil {
			return fmt.Errorf("read schema migration checksum: %w", err)
		}
		if existingChecksum != schemaChecksumLatest {
			return fmt.Errorf("schema checksum mismatch for version %d: got %q want %q", schemaVersionLatest, existingChecksum, schemaChecksumLatest)
		}
		return tx.Commit()
	}

	if err := s.createTablesTx(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO schema_migrations (version, checksum)
		VALUES (?, ?);
	`, schemaVersionLatest, schemaChecksumLatest); err != nil {
		return fmt.Errorf("insert schema migration ledger: %w", err)
	}
	return tx.Commit()
}

func (s *Store) createTablesTx(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		// tasks: the durable unit of work (spec §3 Task).
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			owner TEXT NOT NULL,
			owner_timezone TEXT NOT NULL DEFAULT 'UTC',
			name TEXT NOT NULL DEFAULT '',
			original_user_input TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '',
			mcp_server_infos TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			expect_execute_time DATETIME NOT NULL,
			lasted_execute_time DATETIME,
			priority INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL CHECK(state IN (
				'INITIAL','QUEUING','ACTIVATING','WAITING','SCHEDULING',
				'FINISHED','FAILED','CANCELLED','UPDATING'
			)),
			curr_round_id TEXT,
			prev_round_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_admission ON tasks(state, expect_execute_time, priority, created_at) WHERE is_deleted = 0;`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_review ON tasks(state, lasted_execute_time) WHERE is_deleted = 0;`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id) WHERE is_deleted = 0;`,

		// tasks_workspace: the mutable scratch artefact, 1:1 with a task.
		`CREATE TABLE IF NOT EXISTS tasks_workspace (
			task_id INTEGER PRIMARY KEY REFERENCES tasks(id),
			prd TEXT NOT NULL DEFAULT '',
			process TEXT,
			result TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME
		);`,

		// tasks_unit: one sub-step of one round.
		`CREATE TABLE IF NOT EXISTS tasks_unit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES tasks(id),
			round_id TEXT NOT NULL,
			sequence INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			objective TEXT NOT NULL DEFAULT '',
			output TEXT,
			state TEXT NOT NULL CHECK(state IN ('CREATED','RUNNING','COMPLETE','CANCELLED')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_units_round ON tasks_unit(round_id, state) WHERE is_deleted = 0;`,
		`CREATE INDEX IF NOT EXISTS idx_units_task ON tasks_unit(task_id) WHERE is_deleted = 0;`,

		// tasks_chat: message between task and user.
		`CREATE TABLE IF NOT EXISTS tasks_chat (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES tasks(id),
			role TEXT NOT NULL CHECK(role IN ('USER','SYSTEM','ASSISTANT')),
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_task_created ON tasks_chat(task_id, created_at) WHERE is_deleted = 0;`,

		// tasks_history: one snapshot per planner-decided state transition.
		`CREATE TABLE IF NOT EXISTS tasks_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES tasks(id),
			state TEXT NOT NULL,
			process TEXT,
			thinking TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_task_created ON tasks_history(task_id, created_at) WHERE is_deleted = 0;`,

		// audits_log: append-only observability record, never soft-deleted.
		`CREATE TABLE IF NOT EXISTS audits_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'state',
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_session_created ON audits_log(session_id, created_at);`,

		// tasks_fts: external-content FTS5 shadow of tasks.keywords, the
		// concrete mechanism for the natural-language MATCH search in
		// SearchByKeywords.
		`CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
			keywords,
			session_id UNINDEXED,
			content='tasks',
			content_rowid='id'
		);`,
		`CREATE TRIGGER IF NOT EXISTS tasks_fts_ai AFTER INSERT ON tasks BEGIN
			INSERT INTO tasks_fts(rowid, keywords, session_id) VALUES (new.id, new.keywords, new.session_id);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS tasks_fts_ad AFTER DELETE ON tasks BEGIN
			INSERT INTO tasks_fts(tasks_fts, rowid, keywords, session_id) VALUES('delete', old.id, old.keywords, old.session_id);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS tasks_fts_au AFTER UPDATE ON tasks BEGIN
			INSERT INTO tasks_fts(tasks_fts, rowid, keywords, session_id) VALUES('delete', old.id, old.keywords, old.session_id);
			INSERT INTO tasks_fts(rowid, keywords, session_id) VALUES (new.id, new.keywords, new.session_id);
		END;`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
