package database

const schema = `
CREATE TABLE IF NOT EXISTS analysis_run (
	id              UUID PRIMARY KEY,
	source_url      TEXT NOT NULL,
	resolved_url    TEXT NOT NULL,
	platform        TEXT NOT NULL,
	product_name    TEXT NOT NULL,
	current_price   NUMERIC(12, 2),
	recommendation  TEXT NOT NULL,
	result          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_analysis_run_resolved_url ON analysis_run (resolved_url, created_at DESC);

CREATE TABLE IF NOT EXISTS outbox_event (
	id              UUID PRIMARY KEY,
	aggregate_type  TEXT NOT NULL,
	aggregate_id    TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	payload         JSONB NOT NULL,
	target_stream   TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	retry_count     INT NOT NULL DEFAULT 0,
	error_message   TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at    TIMESTAMPTZ,
	next_retry_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at);
`
