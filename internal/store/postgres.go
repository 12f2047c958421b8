package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgBackend stores entries in the dataset_cache table.
type PgBackend struct {
	pool *pgxpool.Pool
}

// NewPgBackend creates a PostgreSQL-backed store.
func NewPgBackend(pool *pgxpool.Pool) *PgBackend {
	return &PgBackend{pool: pool}
}

func (b *PgBackend) Get(ctx context.Context, key string) (*Entry, error) {
	e := Entry{Key: key}
	err := b.pool.QueryRow(ctx,
		`SELECT payload, entry_timestamp, dataset_version, written_at
		 FROM dataset_cache
		 WHERE key = $1`, key).Scan(&e.Payload, &e.Timestamp, &e.DatasetVersion, &e.WrittenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (b *PgBackend) Put(ctx context.Context, entry Entry) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO dataset_cache (key, payload, entry_timestamp, dataset_version, written_at)
		 VALUES ($1, $2::jsonb, $3, $4, $5)
		 ON CONFLICT (key)
		 DO UPDATE SET payload = $2::jsonb, entry_timestamp = $3, dataset_version = $4, written_at = $5`,
		entry.Key, entry.Payload, entry.Timestamp, entry.DatasetVersion, entry.WrittenAt)
	if err != nil {
		return fmt.Errorf("saving cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (b *PgBackend) Delete(ctx context.Context, key string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM dataset_cache WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PgBackend) List(ctx context.Context) ([]Info, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT key, octet_length(payload::text), written_at, payload
		 FROM dataset_cache
		 ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			info    Info
			payload json.RawMessage
			written time.Time
		)
		if err := rows.Scan(&info.Key, &info.Size, &written, &payload); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		info.ModifiedAt = written.UTC()
		info.RecordCount = recordCount(payload)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache entries: %w", err)
	}
	return infos, nil
}
