// Package postgres provides a PostgreSQL-backed [journal.Store].
//
// The connection is a [pgxpool.Pool]; the schema is created on construction
// by [Migrate].
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxgate/internal/journal"
)

// DefaultRecentLimit caps [Store.Recent] when limit is not positive.
const DefaultRecentLimit = 50

var _ journal.Store = (*Store)(nil)

// Store is a journal backed by a single PostgreSQL table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres journal: dsn must not be empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append implements [journal.Store].
func (s *Store) Append(ctx context.Context, e journal.Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	const q = `
		INSERT INTO voxgate_journal
		    (session_id, utterance, kind, text, language, duration_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		e.Session,
		int64(e.Utterance),
		string(e.Kind),
		e.Text,
		e.Language,
		e.Duration.Milliseconds(),
		at,
	)
	if err != nil {
		return fmt.Errorf("postgres journal: append: %w", err)
	}
	return nil
}

// Recent implements [journal.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	const q = `
		SELECT session_id, utterance, kind, text, language, duration_ms, recorded_at
		FROM   voxgate_journal
		ORDER  BY recorded_at DESC, id DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e          journal.Entry
			utterance  int64
			kind       string
			durationMs int64
		)
		if err := row.Scan(&e.Session, &utterance, &kind, &e.Text, &e.Language, &durationMs, &e.At); err != nil {
			return journal.Entry{}, err
		}
		e.Utterance = uint64(utterance)
		e.Kind = journal.Kind(kind)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres journal: scan recent: %w", err)
	}
	return entries, nil
}

// Healthy reports whether the database answers a ping within two seconds.
func (s *Store) Healthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx) == nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
