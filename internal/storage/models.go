package storage

const schema = `
CREATE TABLE IF NOT EXISTS channel_settings (
	index       SMALLINT PRIMARY KEY CHECK (index BETWEEN 0 AND 11),
	name        TEXT NOT NULL,
	zero_offset INTEGER CHECK (zero_offset BETWEEN -32768 AND 32767),
	"limit"     INTEGER CHECK ("limit" >= 0),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS command_log (
	id         UUID PRIMARY KEY,
	channel    SMALLINT NOT NULL,
	command    TEXT NOT NULL,
	value      INTEGER,
	actor      TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS command_log_created_at_idx ON command_log (created_at DESC);
`
