package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS room_snapshots (
	room       TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	revision   INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps snapshots in the room_snapshots table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, createSnapshotsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context, room string) (Snapshot, error) {
	snap := Snapshot{Room: room}
	err := s.pool.QueryRow(ctx,
		`SELECT text, revision, updated_at FROM room_snapshots WHERE room = $1`, room,
	).Scan(&snap.Text, &snap.Revision, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	return snap, err
}

func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_snapshots (room, text, revision, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room) DO UPDATE
		SET text = EXCLUDED.text, revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at`,
		snap.Room, snap.Text, snap.Revision, snap.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
