package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlJournal = `
CREATE TABLE IF NOT EXISTS voxgate_journal (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    utterance   BIGINT       NOT NULL,
    kind        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    language    TEXT         NOT NULL DEFAULT '',
    duration_ms BIGINT       NOT NULL DEFAULT 0,
    recorded_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_voxgate_journal_recorded
    ON voxgate_journal (recorded_at DESC);

CREATE INDEX IF NOT EXISTS idx_voxgate_journal_session
    ON voxgate_journal (session_id, utterance);
`

// Migrate creates the journal table and its indexes if they do not exist.
// It is idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlJournal); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
