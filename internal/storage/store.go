// Package storage provides the storage primitives used by the registries:
// an in-memory EntityStore and an optional snapshot persistence contract.
package storage

import (
	"context"
)

// Record is one serialized entity inside a snapshot.
type Record struct {
	// ID is the entity identifier.
	ID string

	// Payload is the encoded entity (JSON).
	Payload []byte
}

// Snapshotter defines how registry contents are saved and restored.
// This abstraction allows swapping storage backends (SQLite, files, etc.)
// without changing the registries.
//
// Snapshots are point-in-time copies. They are not a transaction log and
// give no durability guarantee for writes made after the last save.
type Snapshotter interface {
	// SaveSnapshot replaces every record of the given kind.
	// Records keep the order in which they are passed.
	SaveSnapshot(ctx context.Context, kind string, records []Record) error

	// LoadSnapshot returns the records of the given kind in saved order.
	// An unknown kind yields an empty slice.
	LoadSnapshot(ctx context.Context, kind string) ([]Record, error)

	// Close releases any resources held by the store.
	Close() error
}
