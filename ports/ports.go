// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/kamostudio/restack/domain/apptype"
	"github.com/kamostudio/restack/domain/resource"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers (resource version ids).
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Registry and Remapper Ports
// -----------------------------------------------------------------------------

// TypeRegistry is a read-only view of the resource types each app declares.
type TypeRegistry interface {
	// Lookup returns the resource type declared by the app, if any.
	// A type declared by a different app is never visible.
	Lookup(appID, typeName string) (*apptype.ResourceType, bool)
}

// Remapper evaluates declarative output transforms (views and action body
// transforms). The expression language itself is an external collaborator;
// adapters/remap ships the default implementation.
type Remapper interface {
	Remap(def map[string]string, input map[string]any) (map[string]any, error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrNotFound is returned by stores when no row matches (app, type, id).
// A row that exists under a different app or type is indistinguishable from
// one that does not exist.
var ErrNotFound = errors.New("not found")

// ResourceStore is the persistence boundary for resources and their versions.
type ResourceStore interface {
	// FindOne retrieves a resource scoped to (app, type, id).
	FindOne(ctx context.Context, appID, typeName string, id int64) (resource.Resource, error)

	// FindAll retrieves all resources of a type owned by the app that are
	// not expired at time now, ordered by id.
	FindAll(ctx context.Context, appID, typeName string, now time.Time) ([]resource.Resource, error)

	// Insert persists a new resource and returns it with its assigned id.
	Insert(ctx context.Context, r resource.Resource) (resource.Resource, error)

	// Delete removes a resource scoped to (app, type, id). Version rows for
	// the resource are removed with it.
	Delete(ctx context.Context, appID, typeName string, id int64) error

	// ListVersions returns the recorded versions of a resource, newest first.
	ListVersions(ctx context.Context, appID, typeName string, id int64) ([]resource.Version, error)

	// DeleteExpired removes all resources whose expiration lies at or before
	// the given time, returning how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// WithTx runs fn inside one transaction. Mutations that must be atomic
	// (history recording plus the resource write it precedes, or a bulk
	// create) go through this and nothing else.
	WithTx(ctx context.Context, fn func(tx ResourceTx) error) error
}

// ResourceTx groups the mutations that commit or roll back together.
type ResourceTx interface {
	// FindOne retrieves a resource scoped to (app, type, id) within the
	// transaction.
	FindOne(ctx context.Context, appID, typeName string, id int64) (resource.Resource, error)

	// Insert persists a new resource and returns it with its assigned id.
	Insert(ctx context.Context, r resource.Resource) (resource.Resource, error)

	// Replace overwrites a resource's data and write metadata.
	Replace(ctx context.Context, r resource.Resource) error

	// MergePatch overlays r.Data onto the stored data of r's row, writes
	// r's metadata, and returns the merged resource.
	MergePatch(ctx context.Context, r resource.Resource) (resource.Resource, error)

	// InsertVersion appends a history entry.
	InsertVersion(ctx context.Context, v resource.Version) error
}
