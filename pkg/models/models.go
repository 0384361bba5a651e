// Package models defines the domain models for the crop guidance service
package models

import (
	"time"
)

// Farmer is an authenticated user of the service. Farmers are provisioned on
// their first authenticated request.
type Farmer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry records one successful flow run for a farmer.
type HistoryEntry struct {
	ID       string `json:"id"`
	FarmerID string `json:"farmer_id"`
	// Flow is the flow name, or "farm-analysis" for farm reports.
	Flow      string         `json:"flow"`
	Request   map[string]any `json:"request"`
	Result    map[string]any `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}
