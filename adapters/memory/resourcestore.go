// Package memory provides in-memory implementations of storage ports for
// tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kamostudio/restack/domain/resource"
	"github.com/kamostudio/restack/ports"
)

// ResourceStore implements ports.ResourceStore in memory.
type ResourceStore struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]resource.Resource
	versions map[int64][]resource.Version
}

// NewResourceStore creates an empty in-memory resource store.
func NewResourceStore() *ResourceStore {
	return &ResourceStore{
		rows:     make(map[int64]resource.Resource),
		versions: make(map[int64][]resource.Version),
	}
}

// FindOne retrieves a resource scoped to (app, type, id).
func (s *ResourceStore) FindOne(ctx context.Context, appID, typeName string, id int64) (resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOne(appID, typeName, id)
}

func (s *ResourceStore) findOne(appID, typeName string, id int64) (resource.Resource, error) {
	r, ok := s.rows[id]
	if !ok || r.AppID != appID || r.Type != typeName {
		return resource.Resource{}, ports.ErrNotFound
	}
	return r, nil
}

// FindAll retrieves all non-expired resources of a type, ordered by id.
func (s *ResourceStore) FindAll(ctx context.Context, appID, typeName string, now time.Time) ([]resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []resource.Resource
	for _, r := range s.rows {
		if r.AppID == appID && r.Type == typeName && !r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Insert persists a new resource and returns it with its assigned id.
func (s *ResourceStore) Insert(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(r)
}

func (s *ResourceStore) insert(r resource.Resource) (resource.Resource, error) {
	s.nextID++
	r.ID = s.nextID
	s.rows[r.ID] = r
	return r, nil
}

// Delete removes a resource and its version rows.
func (s *ResourceStore) Delete(ctx context.Context, appID, typeName string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findOne(appID, typeName, id); err != nil {
		return err
	}
	delete(s.rows, id)
	delete(s.versions, id)
	return nil
}

// ListVersions returns the recorded versions of a resource, newest first.
func (s *ResourceStore) ListVersions(ctx context.Context, appID, typeName string, id int64) ([]resource.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findOne(appID, typeName, id); err != nil {
		return nil, err
	}

	vs := s.versions[id]
	out := make([]resource.Version, len(vs))
	copy(out, vs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

// DeleteExpired removes all resources expired at or before the given time.
func (s *ResourceStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.rows {
		if r.Expires != nil && !r.Expires.After(before) {
			delete(s.rows, id)
			delete(s.versions, id)
			n++
		}
	}
	return n, nil
}

// WithTx runs fn atomically: on error all mutations made through the
// transaction are discarded.
func (s *ResourceStore) WithTx(ctx context.Context, fn func(tx ports.ResourceTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make(map[int64]resource.Resource, len(s.rows))
	for id, r := range s.rows {
		rows[id] = r
	}
	versions := make(map[int64][]resource.Version, len(s.versions))
	for id, vs := range s.versions {
		versions[id] = vs
	}

	if err := fn(&tx{store: s}); err != nil {
		s.rows = rows
		s.versions = versions
		return err
	}
	return nil
}

type tx struct {
	store *ResourceStore
}

func (t *tx) FindOne(ctx context.Context, appID, typeName string, id int64) (resource.Resource, error) {
	return t.store.findOne(appID, typeName, id)
}

func (t *tx) Insert(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	return t.store.insert(r)
}

func (t *tx) Replace(ctx context.Context, r resource.Resource) error {
	if _, err := t.store.findOne(r.AppID, r.Type, r.ID); err != nil {
		return err
	}
	t.store.rows[r.ID] = r
	return nil
}

func (t *tx) MergePatch(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	prior, err := t.store.findOne(r.AppID, r.Type, r.ID)
	if err != nil {
		return resource.Resource{}, err
	}

	merged := make(map[string]any, len(prior.Data)+len(r.Data))
	for k, v := range prior.Data {
		merged[k] = v
	}
	for k, v := range r.Data {
		merged[k] = v
	}

	r.Data = merged
	r.Created = prior.Created
	r.CreatorID = prior.CreatorID
	t.store.rows[r.ID] = r
	return r, nil
}

func (t *tx) InsertVersion(ctx context.Context, v resource.Version) error {
	t.store.versions[v.ResourceID] = append(t.store.versions[v.ResourceID], v)
	return nil
}

// Ensure interface compliance.
var (
	_ ports.ResourceStore = (*ResourceStore)(nil)
	_ ports.ResourceTx    = (*tx)(nil)
)
