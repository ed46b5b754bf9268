package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists turns in PostgreSQL, one row per turn. Inserts are
// independent rows, so concurrent appends for the same session cannot lose
// each other; the seq column breaks timestamp ties by insertion order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			seq BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session_created ON chat_turns (session_id, created_at, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_turns (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		turn.SessionID,
		turn.Role,
		turn.Content,
		turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, role, content, created_at
		 FROM chat_turns WHERE session_id=$1 ORDER BY created_at, seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

func (s *PostgresStore) LoadTail(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return s.LoadAll(ctx, sessionID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id, role, content, created_at FROM (
			SELECT session_id, role, content, created_at, seq
			FROM chat_turns WHERE session_id=$1 ORDER BY created_at DESC, seq DESC LIMIT $2
		 ) tail ORDER BY created_at, seq`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript tail: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

func (s *PostgresStore) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chat_turns WHERE session_id=$1`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTurns(rows rowScanner) ([]Turn, error) {
	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}
