package ledger

const schemaVersionV1 = 1

const currentSchemaVersion = schemaVersionV1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	command     TEXT NOT NULL,
	chain_mode  TEXT NOT NULL,
	policy      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	verified    INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	errored     INTEGER NOT NULL DEFAULT 0,
	fetched     INTEGER NOT NULL DEFAULT 0,
	sync_failed INTEGER NOT NULL DEFAULT 0,
	exit_code   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contribution_results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       INTEGER NOT NULL REFERENCES runs(id),
	number       INTEGER NOT NULL,
	contributor  TEXT NOT NULL,
	anchor       TEXT,
	status       TEXT NOT NULL,
	failed_kind  TEXT,
	failure      TEXT,
	invocations  INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	log_path     TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_contribution_results_run ON contribution_results(run_id, number);
`
