// Package journal persists one row per operation cycle for offline
// inspection. It is an optional collaborator: the agent runs fine without
// a DSN, and journal failures never fail a cycle.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *sql.DB
}

type CycleRecord struct {
	StartedAt time.Time
	RoundID   uint64
	Result    string
	Reason    string
	Signature string
	Simulated bool
}

const schema = `
CREATE TABLE IF NOT EXISTS agent_cycles (
	id BIGSERIAL PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	round_id BIGINT NOT NULL,
	result TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	signature TEXT NOT NULL DEFAULT '',
	simulated BOOLEAN NOT NULL DEFAULT FALSE,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) InsertCycle(ctx context.Context, record CycleRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_cycles (started_at, round_id, result, reason, signature, simulated)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.StartedAt,
		int64(record.RoundID),
		record.Result,
		record.Reason,
		record.Signature,
		record.Simulated,
	)
	if err != nil {
		return fmt.Errorf("insert cycle record: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
