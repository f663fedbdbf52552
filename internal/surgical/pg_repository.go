package surgical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores each record as one JSONB row of storage_records.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const createRecordsTable = `
	CREATE TABLE IF NOT EXISTS storage_records (
		name       TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// EnsureSchema creates the records table when missing.
func (r *PgRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createRecordsTable); err != nil {
		return fmt.Errorf("create storage_records: %w", err)
	}
	return nil
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PgRepository) LoadCases(ctx context.Context) ([]Case, error) {
	raw, err := r.loadRecord(ctx, RecordCases)
	if err != nil || raw == nil {
		return nil, err
	}

	var cases []Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("decode %s: %w", RecordCases, err)
	}
	return cases, nil
}

func (r *PgRepository) SaveCases(ctx context.Context, cases []Case) error {
	if cases == nil {
		cases = []Case{}
	}
	return r.saveRecord(ctx, RecordCases, cases)
}

func (r *PgRepository) LoadSettings(ctx context.Context) ([]byte, error) {
	return r.loadRecord(ctx, RecordSettings)
}

func (r *PgRepository) SaveSettings(ctx context.Context, s Settings) error {
	return r.saveRecord(ctx, RecordSettings, s)
}

func (r *PgRepository) loadRecord(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT payload
		FROM storage_records
		WHERE name = $1
	`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return payload, nil
}

func (r *PgRepository) saveRecord(ctx context.Context, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO storage_records (name, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET payload = EXCLUDED.payload,
		    updated_at = now()
	`, name, payload)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}

	return nil
}
