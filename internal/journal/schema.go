package journal

// schemaVersion is the target schema version for this build.
const schemaVersion = 1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS submissions (
	run_id        TEXT PRIMARY KEY,
	claim_id      TEXT,
	notes         TEXT NOT NULL DEFAULT '',
	phase         TEXT NOT NULL,
	failed_during TEXT,
	message       TEXT,
	score         INTEGER,
	started_at    TEXT NOT NULL,
	ended_at      TEXT
);

CREATE TABLE IF NOT EXISTS submission_files (
	run_id   TEXT NOT NULL REFERENCES submissions(run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name     TEXT NOT NULL,
	size     INTEGER NOT NULL,
	failed   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_submissions_claim ON submissions(claim_id);
`
