package store

// schema is applied on every open. Statements use IF NOT EXISTS so the
// call is idempotent; additive column changes below swallow "duplicate
// column" errors instead of tracking migration versions, matching the
// spec's "best-effort additive schema evolution" design note.
const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	fs_path TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS skills (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	source_file TEXT,
	system_prompt TEXT NOT NULL,
	allowed_tools_json TEXT NOT NULL DEFAULT '[]',
	default_mode TEXT NOT NULL DEFAULT 'fast',
	enabled INTEGER NOT NULL DEFAULT 1,
	source TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	goal TEXT NOT NULL,
	plan_json TEXT,
	current_step INTEGER NOT NULL DEFAULT 0,
	output_path TEXT,
	error TEXT,
	backend TEXT NOT NULL DEFAULT '',
	backend_run_id TEXT,
	backend_thread_id TEXT,
	backend_interrupt_id TEXT,
	backend_resume_token TEXT,
	backend_last_offset INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE,
	FOREIGN KEY(skill_id) REFERENCES skills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS steps (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	name TEXT NOT NULL,
	tool TEXT NOT NULL,
	args_json TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	requires_approval INTEGER NOT NULL DEFAULT 0,
	result_json TEXT,
	error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_steps_task_idx ON steps(task_id, idx);

CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	step_id TEXT NOT NULL,
	status TEXT NOT NULL,
	requested_at TEXT NOT NULL,
	decided_at TEXT,
	decision TEXT,
	reason TEXT,
	FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE,
	FOREIGN KEY(step_id) REFERENCES steps(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_approvals_step ON approvals(step_id, requested_at);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cron_expr TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT 'fast',
	enabled INTEGER NOT NULL DEFAULT 1,
	payload_json TEXT,
	next_run_at TEXT,
	last_run_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	step_id TEXT,
	type TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	ts TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_task_seq ON event_log(task_id, seq);

CREATE TABLE IF NOT EXISTS workspace_policies (
	workspace_id TEXT NOT NULL,
	scope TEXT NOT NULL,
	policy TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (workspace_id, scope)
);

CREATE TABLE IF NOT EXISTS mcp_servers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	command TEXT NOT NULL,
	args_json TEXT NOT NULL DEFAULT '[]',
	env_json TEXT NOT NULL DEFAULT '{}',
	healthcheck_args_json TEXT NOT NULL DEFAULT '[]',
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// additiveColumns lists ALTER TABLE statements applied after the base
// schema, for columns introduced after the table already existed in an
// older on-disk database. "duplicate column name" errors are swallowed.
var additiveColumns = []string{
	`ALTER TABLE tasks ADD COLUMN backend_last_offset INTEGER NOT NULL DEFAULT 0`,
}
