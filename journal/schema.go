package journal

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS heal_events (
	event_id   TEXT PRIMARY KEY,
	session    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	label      TEXT NOT NULL,
	location   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heal_events_created ON heal_events(created_at);
CREATE INDEX IF NOT EXISTS idx_heal_events_session ON heal_events(session, created_at);
`

// Init creates the journal tables. It is idempotent.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("journal: schema: %w", err)
	}
	return nil
}
