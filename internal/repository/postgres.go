package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cropguide/backend/pkg/models"
)

// Schema creates the tables used by PostgresStore. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS farmers (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS history_entries (
	id         UUID PRIMARY KEY,
	farmer_id  UUID NOT NULL REFERENCES farmers(id) ON DELETE CASCADE,
	flow       TEXT NOT NULL,
	request    JSONB NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS history_entries_farmer_created_idx
	ON history_entries (farmer_id, created_at DESC);
`

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetFarmer retrieves a farmer by ID.
func (s *PostgresStore) GetFarmer(ctx context.Context, id string) (*models.Farmer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.scanFarmer(s.db.QueryRow(ctx,
		"SELECT id, email, name, created_at, updated_at FROM farmers WHERE id = $1", id))
}

// GetFarmerByEmail retrieves a farmer by email address.
func (s *PostgresStore) GetFarmerByEmail(ctx context.Context, email string) (*models.Farmer, error) {
	return s.scanFarmer(s.db.QueryRow(ctx,
		"SELECT id, email, name, created_at, updated_at FROM farmers WHERE email = $1", email))
}

// CreateFarmer stores a new farmer. When a farmer with the same email was
// created concurrently, farmer is filled from the existing row instead.
func (s *PostgresStore) CreateFarmer(ctx context.Context, farmer *models.Farmer) error {
	id := uuid.New().String()
	err := s.db.QueryRow(ctx, `
		INSERT INTO farmers (id, email, name) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, name, created_at, updated_at`,
		id, farmer.Email, farmer.Name,
	).Scan(&farmer.ID, &farmer.Name, &farmer.CreatedAt, &farmer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create farmer: %w", err)
	}
	return nil
}

// UpdateFarmerName changes a farmer's display name.
func (s *PostgresStore) UpdateFarmerName(ctx context.Context, id, name string) (*models.Farmer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.scanFarmer(s.db.QueryRow(ctx, `
		UPDATE farmers SET name = $2, updated_at = now() WHERE id = $1
		RETURNING id, email, name, created_at, updated_at`, id, name))
}

func (s *PostgresStore) scanFarmer(row pgx.Row) (*models.Farmer, error) {
	var farmer models.Farmer
	err := row.Scan(&farmer.ID, &farmer.Email, &farmer.Name, &farmer.CreatedAt, &farmer.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &farmer, nil
}

// SaveHistory stores a history entry.
func (s *PostgresStore) SaveHistory(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO history_entries (id, farmer_id, flow, request, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		entry.ID, entry.FarmerID, entry.Flow, entry.Request, entry.Result, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

// ListHistory returns a farmer's entries, newest first.
func (s *PostgresStore) ListHistory(ctx context.Context, farmerID string, filter HistoryFilter) ([]*models.HistoryEntry, error) {
	if _, err := uuid.Parse(farmerID); err != nil {
		return []*models.HistoryEntry{}, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, farmer_id, flow, request, result, created_at
		FROM history_entries
		WHERE farmer_id = $1 AND ($2::text = '' OR flow = $2)
		ORDER BY created_at DESC, id
		LIMIT $3`, farmerID, filter.Flow, filter.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.HistoryEntry{}
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.FarmerID, &entry.Flow, &entry.Request, &entry.Result, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// DeleteHistory removes every entry of a farmer.
func (s *PostgresStore) DeleteHistory(ctx context.Context, farmerID string) (int64, error) {
	if _, err := uuid.Parse(farmerID); err != nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, "DELETE FROM history_entries WHERE farmer_id = $1", farmerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
