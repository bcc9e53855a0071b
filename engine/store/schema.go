package store

// schema is applied on every Open. Statements are idempotent (CREATE ...
// IF NOT EXISTS) so repeated startups against an existing file are safe.
const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS queue (
	id               TEXT PRIMARY KEY,
	workflow_name    TEXT NOT NULL,
	trigger_type     TEXT NOT NULL,
	trigger_data     TEXT NOT NULL DEFAULT '',
	workflow_content TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	attempts         INTEGER NOT NULL DEFAULT 0,
	next_attempt_at  DATETIME NOT NULL,
	created_at       DATETIME NOT NULL,
	started_at       DATETIME,
	completed_at     DATETIME,
	scheduled_for    DATETIME,
	error            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_queue_claim ON queue (status, next_attempt_at, created_at);

CREATE TABLE IF NOT EXISTS schedules (
	id              TEXT PRIMARY KEY,
	workflow_name   TEXT NOT NULL,
	trigger_type    TEXT NOT NULL,
	cron_expression TEXT NOT NULL DEFAULT '',
	timezone        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'active',
	last_run_at     DATETIME
);
CREATE INDEX IF NOT EXISTS idx_schedules_workflow ON schedules (workflow_name);

CREATE TABLE IF NOT EXISTS history (
	id            TEXT PRIMARY KEY,
	workflow_name TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	trigger_type  TEXT NOT NULL DEFAULT '',
	trigger_data  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_workflow ON history (workflow_name, created_at);
CREATE INDEX IF NOT EXISTS idx_history_created ON history (created_at);

CREATE TABLE IF NOT EXISTS run_logs (
	run_id    TEXT NOT NULL REFERENCES history(id) ON DELETE CASCADE,
	timestamp DATETIME NOT NULL,
	level     TEXT NOT NULL,
	step_id   TEXT NOT NULL DEFAULT '',
	message   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs (run_id);

CREATE TABLE IF NOT EXISTS run_steps (
	run_id      TEXT NOT NULL REFERENCES history(id) ON DELETE CASCADE,
	step_id     TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	output      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, step_id)
);

CREATE TABLE IF NOT EXISTS token_usage (
	id            TEXT PRIMARY KEY,
	timestamp     DATETIME NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	model         TEXT NOT NULL DEFAULT '',
	workflow_name TEXT NOT NULL DEFAULT '',
	run_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_token_usage_ts ON token_usage (timestamp);
CREATE INDEX IF NOT EXISTS idx_token_usage_workflow ON token_usage (workflow_name, timestamp);
`
