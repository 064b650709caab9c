package store

// schemaSQL creates every table this service needs. There is no versioned
// migration framework here; a single idempotent script is sufficient.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT UNIQUE NOT NULL,
	hmac_secret TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	source TEXT NOT NULL,
	environment TEXT NOT NULL,
	release TEXT NOT NULL,
	app_version TEXT,
	build_number TEXT,
	route_or_procedure TEXT,
	screen TEXT,
	error_type TEXT NOT NULL,
	message TEXT NOT NULL,
	stack TEXT,
	http_status INTEGER,
	request_id TEXT,
	user_id_hash TEXT,
	device_id_hash TEXT,
	fingerprint TEXT NOT NULL,
	metadata TEXT,
	received_at INTEGER NOT NULL,
	project_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_events_project_fp ON raw_events(project_id, fingerprint);

CREATE TABLE IF NOT EXISTS error_aggregates (
	project_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	release TEXT NOT NULL,
	environment TEXT NOT NULL,
	total_count INTEGER NOT NULL,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	error_type TEXT NOT NULL,
	message TEXT NOT NULL,
	source TEXT NOT NULL,
	route_or_procedure TEXT,
	screen TEXT,
	status TEXT NOT NULL,
	PRIMARY KEY (project_id, fingerprint, release, environment)
);
CREATE INDEX IF NOT EXISTS idx_agg_project_last_seen ON error_aggregates(project_id, last_seen DESC);
CREATE INDEX IF NOT EXISTS idx_agg_project_unresolved ON error_aggregates(project_id, status, last_seen DESC)
	WHERE status = 'unresolved';

CREATE TABLE IF NOT EXISTS sample_occurrences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	project_id TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	source TEXT NOT NULL,
	environment TEXT NOT NULL,
	release TEXT NOT NULL,
	error_type TEXT NOT NULL,
	message TEXT NOT NULL,
	stack TEXT,
	request_id TEXT,
	metadata TEXT,
	user_id_hash TEXT,
	device_id_hash TEXT,
	app_version TEXT,
	build_number TEXT,
	screen TEXT,
	http_status INTEGER,
	route_or_procedure TEXT
);
CREATE INDEX IF NOT EXISTS idx_samples_fp_captured ON sample_occurrences(project_id, fingerprint, captured_at DESC);

CREATE TABLE IF NOT EXISTS event_counts_hourly (
	project_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	hour_bucket INTEGER NOT NULL,
	environment TEXT NOT NULL,
	source TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (project_id, fingerprint, hour_bucket, environment, source)
);

CREATE TABLE IF NOT EXISTS alert_cooldowns (
	project_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	last_fired INTEGER NOT NULL,
	PRIMARY KEY (project_id, rule_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS llm_traces (
	project_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	session_id TEXT,
	user_id TEXT,
	prompt_name TEXT,
	prompt_version TEXT,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_micros INTEGER NOT NULL,
	input TEXT,
	output TEXT,
	metadata TEXT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS llm_spans (
	project_id TEXT NOT NULL,
	id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	parent_span_id TEXT,
	span_type TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_micros INTEGER NOT NULL,
	latency_ms INTEGER,
	time_to_first_token_ms INTEGER,
	status TEXT NOT NULL,
	error_message TEXT,
	input TEXT,
	output TEXT,
	metadata TEXT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	PRIMARY KEY (project_id, id)
);
CREATE INDEX IF NOT EXISTS idx_spans_trace ON llm_spans(project_id, trace_id);

CREATE TABLE IF NOT EXISTS llm_usage_hourly (
	project_id TEXT NOT NULL,
	hour_bucket INTEGER NOT NULL,
	model TEXT NOT NULL,
	provider TEXT NOT NULL,
	span_count INTEGER NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_micros INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	total_latency_ms INTEGER NOT NULL,
	PRIMARY KEY (project_id, hour_bucket, model, provider)
);

CREATE TABLE IF NOT EXISTS llm_project_settings (
	project_id TEXT PRIMARY KEY,
	content_storage TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS llm_alert_cooldowns (
	project_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	last_fired INTEGER NOT NULL,
	PRIMARY KEY (project_id, rule_id, trace_id)
);
`
