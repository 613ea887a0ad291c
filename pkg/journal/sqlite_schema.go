package journal

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the journal tables. Timestamps are stored as Unix
// nanoseconds so both drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS changes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    version INTEGER NOT NULL,
    policy_id TEXT NOT NULL,
    op TEXT NOT NULL CHECK (op IN ('set', 'remove')),
    mode TEXT NOT NULL DEFAULT '',
    previous_mode TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changes_policy_seq ON changes(policy_id, seq);
CREATE INDEX IF NOT EXISTS idx_changes_recorded_at ON changes(recorded_at);

CREATE TABLE IF NOT EXISTS policy_states (
    policy_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// InsertSchemaVersion records the schema version if absent.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`

// GetSchemaVersion reads the newest applied schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`

const (
	insertChangeSQL = `
		INSERT INTO changes (id, version, policy_id, op, mode, previous_mode, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	upsertStateSQL = `
		INSERT INTO policy_states (policy_id, mode, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(policy_id) DO UPDATE SET mode = excluded.mode, updated_at = excluded.updated_at`

	deleteStateSQL = `DELETE FROM policy_states WHERE policy_id = ?`

	selectStatesSQL = `SELECT policy_id, mode FROM policy_states`

	countChangesSQL = `SELECT COUNT(*) FROM changes`

	deleteBeforeSQL = `DELETE FROM changes WHERE recorded_at < ?`

	trimSQL = `
		DELETE FROM changes WHERE seq <= (
			SELECT seq FROM changes ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`
)
