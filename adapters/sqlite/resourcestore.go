package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kamostudio/restack/domain/resource"
	"github.com/kamostudio/restack/ports"
)

// ErrNotFound aliases the ports sentinel so callers of this package can use
// either name.
var ErrNotFound = ports.ErrNotFound

// ResourceStore implements ports.ResourceStore using SQLite.
type ResourceStore struct {
	db *DB
}

// NewResourceStore creates a new SQLite resource store.
func NewResourceStore(db *DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const resourceColumns = `id, app_id, type, data, created, updated, expires, clonable, creator_id, editor_id`

// FindOne retrieves a resource scoped to (app, type, id).
func (s *ResourceStore) FindOne(ctx context.Context, appID, typeName string, id int64) (resource.Resource, error) {
	return findOne(ctx, s.db, appID, typeName, id)
}

func findOne(ctx context.Context, q querier, appID, typeName string, id int64) (resource.Resource, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE id = ? AND app_id = ? AND type = ?
	`, id, appID, typeName)
	return scanResourceRow(row)
}

// FindAll retrieves all non-expired resources of a type, ordered by id.
func (s *ResourceStore) FindAll(ctx context.Context, appID, typeName string, now time.Time) ([]resource.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE app_id = ? AND type = ? AND (expires IS NULL OR expires > ?)
		ORDER BY id
	`, appID, typeName, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert persists a new resource and returns it with its assigned id.
func (s *ResourceStore) Insert(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	return insert(ctx, s.db, r)
}

func insert(ctx context.Context, q querier, r resource.Resource) (resource.Resource, error) {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("marshal resource data: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO resources (app_id, type, data, created, updated, expires, clonable, creator_id, editor_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.AppID, r.Type, string(data), r.Created.UTC(), r.Updated.UTC(),
		nullTime(r.Expires), r.Clonable, nullString(r.CreatorID), nullString(r.EditorID))
	if err != nil {
		return resource.Resource{}, err
	}

	r.ID, err = result.LastInsertId()
	if err != nil {
		return resource.Resource{}, err
	}
	return r, nil
}

// Delete removes a resource; its version rows go with it (FK cascade).
func (s *ResourceStore) Delete(ctx context.Context, appID, typeName string, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM resources WHERE id = ? AND app_id = ? AND type = ?
	`, id, appID, typeName)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVersions returns the recorded versions of a resource, newest first.
func (s *ResourceStore) ListVersions(ctx context.Context, appID, typeName string, id int64) ([]resource.Version, error) {
	if _, err := s.FindOne(ctx, appID, typeName, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, data, editor_id, created
		FROM resource_versions
		WHERE resource_id = ?
		ORDER BY created DESC, rowid DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Version
	for rows.Next() {
		var v resource.Version
		var data, editor sql.NullString
		if err := rows.Scan(&v.ID, &v.ResourceID, &data, &editor, &v.Created); err != nil {
			return nil, err
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &v.Data); err != nil {
				return nil, fmt.Errorf("unmarshal version data: %w", err)
			}
		}
		v.EditorID = editor.String
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteExpired removes all resources expired at or before the given time.
func (s *ResourceStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM resources WHERE expires IS NOT NULL AND expires <= ?
	`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// WithTx runs fn inside one database transaction.
func (s *ResourceStore) WithTx(ctx context.Context, fn func(tx ports.ResourceTx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&resourceTx{q: dbTx}); err != nil {
		dbTx.Rollback()
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type resourceTx struct {
	q *sql.Tx
}

func (t *resourceTx) FindOne(ctx context.Context, appID, typeName string, id int64) (resource.Resource, error) {
	return findOne(ctx, t.q, appID, typeName, id)
}

func (t *resourceTx) Insert(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	return insert(ctx, t.q, r)
}

func (t *resourceTx) Replace(ctx context.Context, r resource.Resource) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("marshal resource data: %w", err)
	}

	result, err := t.q.ExecContext(ctx, `
		UPDATE resources
		SET data = ?, updated = ?, expires = ?, clonable = ?, editor_id = ?
		WHERE id = ? AND app_id = ? AND type = ?
	`, string(data), r.Updated.UTC(), nullTime(r.Expires), r.Clonable, nullString(r.EditorID),
		r.ID, r.AppID, r.Type)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *resourceTx) MergePatch(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	prior, err := findOne(ctx, t.q, r.AppID, r.Type, r.ID)
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
	if err := t.Replace(ctx, r); err != nil {
		return resource.Resource{}, err
	}
	return r, nil
}

func (t *resourceTx) InsertVersion(ctx context.Context, v resource.Version) error {
	var data any
	if v.Data != nil {
		b, err := json.Marshal(v.Data)
		if err != nil {
			return fmt.Errorf("marshal version data: %w", err)
		}
		data = string(b)
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO resource_versions (id, resource_id, data, editor_id, created)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.ResourceID, data, nullString(v.EditorID), v.Created.UTC())
	return err
}

func scanResource(rows *sql.Rows) (resource.Resource, error) {
	var r resource.Resource
	var data string
	var expires sql.NullTime
	var creator, editor sql.NullString

	err := rows.Scan(&r.ID, &r.AppID, &r.Type, &data, &r.Created, &r.Updated, &expires, &r.Clonable, &creator, &editor)
	if err != nil {
		return resource.Resource{}, err
	}
	return hydrate(r, data, expires, creator, editor)
}

func scanResourceRow(row *sql.Row) (resource.Resource, error) {
	var r resource.Resource
	var data string
	var expires sql.NullTime
	var creator, editor sql.NullString

	err := row.Scan(&r.ID, &r.AppID, &r.Type, &data, &r.Created, &r.Updated, &expires, &r.Clonable, &creator, &editor)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.Resource{}, ErrNotFound
	}
	if err != nil {
		return resource.Resource{}, err
	}
	return hydrate(r, data, expires, creator, editor)
}

func hydrate(r resource.Resource, data string, expires sql.NullTime, creator, editor sql.NullString) (resource.Resource, error) {
	if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
		return resource.Resource{}, fmt.Errorf("unmarshal resource data: %w", err)
	}
	if expires.Valid {
		t := expires.Time.UTC()
		r.Expires = &t
	}
	r.CreatorID = creator.String
	r.EditorID = editor.String
	r.Created = r.Created.UTC()
	r.Updated = r.Updated.UTC()
	return r, nil
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// nullString converts "" to NULL so absent principals stay null in the store.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ensure interface compliance.
var (
	_ ports.ResourceStore = (*ResourceStore)(nil)
	_ ports.ResourceTx    = (*resourceTx)(nil)
)
