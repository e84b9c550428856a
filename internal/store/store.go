// Package store provides the storage interface and implementations for
// the UL builder gateway. Phase 1 keeps everything in memory with a
// JSON snapshot on disk; a database-backed implementation can slot in
// behind the same interface later.
package store

import (
	"context"

	"github.com/shirisha-ilura/UL/pkg/models"
)

// Store is the primary storage interface for the gateway.
// All handler code depends on this interface, making it easy to swap
// implementations between tests and production.
type Store interface {
	BuildStore

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Build Store ─────────────────────────────────────────────

// BuildStore persists one record per build session. Records are
// updated as the negotiation advances and kept once it reaches a
// terminal state so the UI can list past builds.
type BuildStore interface {
	ListBuilds(ctx context.Context, userEmail string) ([]models.BuildSummary, error)
	GetBuild(ctx context.Context, id string) (*models.BuildRecord, error)
	SaveBuild(ctx context.Context, record *models.BuildRecord) error
	DeleteBuild(ctx context.Context, id string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
