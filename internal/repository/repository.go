package repository

import (
	"context"
	"errors"

	"cropguide/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// HistoryFilter narrows a history listing.
type HistoryFilter struct {
	// Flow restricts entries to one flow when set.
	Flow string
	// Limit caps the number of entries; zero means DefaultHistoryLimit.
	Limit int
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

func (f HistoryFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultHistoryLimit
	case f.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return f.Limit
}

// Repository stores farmer profiles and their flow history.
type Repository interface {
	// GetFarmer retrieves a farmer by ID.
	GetFarmer(ctx context.Context, id string) (*models.Farmer, error)
	// GetFarmerByEmail retrieves a farmer by email address.
	GetFarmerByEmail(ctx context.Context, email string) (*models.Farmer, error)
	// CreateFarmer stores a new farmer, assigning its ID and timestamps.
	CreateFarmer(ctx context.Context, farmer *models.Farmer) error
	// UpdateFarmerName changes a farmer's display name.
	UpdateFarmerName(ctx context.Context, id, name string) (*models.Farmer, error)

	// SaveHistory stores a history entry, assigning its ID and timestamp.
	SaveHistory(ctx context.Context, entry *models.HistoryEntry) error
	// ListHistory returns a farmer's entries, newest first.
	ListHistory(ctx context.Context, farmerID string, filter HistoryFilter) ([]*models.HistoryEntry, error)
	// DeleteHistory removes every entry of a farmer and returns how many were removed.
	DeleteHistory(ctx context.Context, farmerID string) (int64, error)

	Ping(ctx context.Context) error
}
