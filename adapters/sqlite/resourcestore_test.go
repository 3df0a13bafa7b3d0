package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamostudio/restack/domain/resource"
	"github.com/kamostudio/restack/ports"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	n, err := db.Migrate()
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if n != 0 {
		t.Errorf("second migrate applied %d migrations, want 0", n)
	}
}

func insertPerson(t *testing.T, s *ResourceStore, appID string, data map[string]any) resource.Resource {
	t.Helper()
	r, err := s.Insert(context.Background(), resource.Resource{
		AppID:     appID,
		Type:      "person",
		Data:      data,
		Created:   t0,
		Updated:   t0,
		CreatorID: "creator",
		EditorID:  "creator",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return r
}

func TestResourceStore_InsertAndFindOne(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))

	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob", "age": float64(34)})
	if r.ID == 0 {
		t.Fatal("Insert did not assign an id")
	}

	got, err := s.FindOne(context.Background(), "trivia", "person", r.ID)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got.Data["firstName"] != "Spongebob" {
		t.Errorf("firstName = %v", got.Data["firstName"])
	}
	if got.Data["age"] != float64(34) {
		t.Errorf("age = %v (%T), want float64 34", got.Data["age"], got.Data["age"])
	}
	if !got.Created.Equal(t0) || !got.Updated.Equal(t0) {
		t.Errorf("timestamps = %v / %v, want %v", got.Created, got.Updated, t0)
	}
	if got.CreatorID != "creator" || got.EditorID != "creator" {
		t.Errorf("principals = %q / %q", got.CreatorID, got.EditorID)
	}
	if got.Expires != nil {
		t.Errorf("Expires = %v, want nil", got.Expires)
	}
}

func TestResourceStore_FindOne_ScopedToApp(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob"})

	if _, err := s.FindOne(context.Background(), "other", "person", r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-app FindOne err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindOne(context.Background(), "trivia", "widget", r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-type FindOne err = %v, want ErrNotFound", err)
	}
}

func TestResourceStore_FindAll(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))

	insertPerson(t, s, "trivia", map[string]any{"firstName": "Patrick"})
	insertPerson(t, s, "trivia", map[string]any{"firstName": "Sandy"})
	insertPerson(t, s, "other", map[string]any{"firstName": "Imposter"})

	exp := t0.Add(-time.Minute)
	if _, err := s.Insert(context.Background(), resource.Resource{
		AppID: "trivia", Type: "person",
		Data:    map[string]any{"firstName": "Gone"},
		Created: t0, Updated: t0, Expires: &exp,
	}); err != nil {
		t.Fatalf("insert expired: %v", err)
	}

	rs, err := s.FindAll(context.Background(), "trivia", "person", t0)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("len = %d, want 2 (expired and cross-app excluded)", len(rs))
	}
	if rs[0].Data["firstName"] != "Patrick" || rs[1].Data["firstName"] != "Sandy" {
		t.Errorf("order = %v, %v, want insertion order by id", rs[0].Data, rs[1].Data)
	}
}

func TestResourceStore_ExpiresRoundTrip(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))

	exp := t0.Add(time.Hour)
	r, err := s.Insert(context.Background(), resource.Resource{
		AppID: "trivia", Type: "person",
		Data:    map[string]any{},
		Created: t0, Updated: t0, Expires: &exp,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.FindOne(context.Background(), "trivia", "person", r.ID)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got.Expires == nil || !got.Expires.Equal(exp) {
		t.Errorf("Expires = %v, want %v", got.Expires, exp)
	}
}

func TestResourceStore_NullPrincipals(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))

	r, err := s.Insert(context.Background(), resource.Resource{
		AppID: "trivia", Type: "person",
		Data:    map[string]any{},
		Created: t0, Updated: t0,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.FindOne(context.Background(), "trivia", "person", r.ID)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got.CreatorID != "" || got.EditorID != "" {
		t.Errorf("principals = %q / %q, want empty", got.CreatorID, got.EditorID)
	}
}

func TestResourceStore_Delete(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob"})

	if err := s.Delete(context.Background(), "other", "person", r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-app Delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), "trivia", "person", r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.FindOne(context.Background(), "trivia", "person", r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindOne after delete err = %v, want ErrNotFound", err)
	}
}

func TestResourceStore_WithTx_ReplaceAndHistory(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob"})

	next := r
	next.Data = map[string]any{"firstName": "Squidward"}
	next.Updated = t0.Add(time.Minute)
	next.EditorID = "editor"

	err := s.WithTx(context.Background(), func(tx ports.ResourceTx) error {
		prior, err := tx.FindOne(context.Background(), "trivia", "person", r.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertVersion(context.Background(), resource.Version{
			ID: "v1", ResourceID: r.ID, Data: prior.Data, EditorID: "editor", Created: next.Updated,
		}); err != nil {
			return err
		}
		return tx.Replace(context.Background(), next)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, _ := s.FindOne(context.Background(), "trivia", "person", r.ID)
	if got.Data["firstName"] != "Squidward" {
		t.Errorf("data = %v, want replaced", got.Data)
	}
	if got.EditorID != "editor" {
		t.Errorf("EditorID = %q, want editor", got.EditorID)
	}
	if got.CreatorID != "creator" {
		t.Errorf("CreatorID = %q, want untouched", got.CreatorID)
	}

	vs, err := s.ListVersions(context.Background(), "trivia", "person", r.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(vs) != 1 {
		t.Fatalf("versions = %d, want 1", len(vs))
	}
	if vs[0].Data["firstName"] != "Spongebob" {
		t.Errorf("version data = %v, want prior snapshot", vs[0].Data)
	}
	if vs[0].EditorID != "editor" {
		t.Errorf("version editor = %q", vs[0].EditorID)
	}
}

func TestResourceStore_WithTx_RollbackOnError(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob"})

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx ports.ResourceTx) error {
		next := r
		next.Data = map[string]any{"firstName": "Squidward"}
		if err := tx.Replace(context.Background(), next); err != nil {
			return err
		}
		if err := tx.InsertVersion(context.Background(), resource.Version{
			ID: "v1", ResourceID: r.ID, Created: t0,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v, want boom", err)
	}

	got, _ := s.FindOne(context.Background(), "trivia", "person", r.ID)
	if got.Data["firstName"] != "Spongebob" {
		t.Errorf("data = %v, want rolled back", got.Data)
	}
	vs, _ := s.ListVersions(context.Background(), "trivia", "person", r.ID)
	if len(vs) != 0 {
		t.Errorf("versions = %d, want 0 after rollback", len(vs))
	}
}

func TestResourceStore_WithTx_InsertRollback(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx ports.ResourceTx) error {
		for _, name := range []string{"Patrick", "Sandy"} {
			if _, err := tx.Insert(context.Background(), resource.Resource{
				AppID: "trivia", Type: "person",
				Data:    map[string]any{"firstName": name},
				Created: t0, Updated: t0,
			}); err != nil {
				return err
			}
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v, want boom", err)
	}

	rs, err := s.FindAll(context.Background(), "trivia", "person", t0)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(rs) != 0 {
		t.Errorf("rows = %d after rollback, want 0", len(rs))
	}
}

func TestResourceStore_WithTx_MergePatch(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob", "lastName": "Squarepants"})

	err := s.WithTx(context.Background(), func(tx ports.ResourceTx) error {
		next := r
		next.Data = map[string]any{"firstName": "Squidward"}
		next.Updated = t0.Add(time.Minute)
		merged, err := tx.MergePatch(context.Background(), next)
		if err != nil {
			return err
		}
		if merged.Data["lastName"] != "Squarepants" {
			t.Errorf("merged = %v, want lastName preserved", merged.Data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, _ := s.FindOne(context.Background(), "trivia", "person", r.ID)
	if got.Data["firstName"] != "Squidward" || got.Data["lastName"] != "Squarepants" {
		t.Errorf("stored = %v, want merged document", got.Data)
	}
}

func TestResourceStore_DeleteCascadesVersions(t *testing.T) {
	db := setupTestDB(t)
	s := NewResourceStore(db)
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob"})

	err := s.WithTx(context.Background(), func(tx ports.ResourceTx) error {
		return tx.InsertVersion(context.Background(), resource.Version{
			ID: "v1", ResourceID: r.ID, Created: t0,
		})
	})
	if err != nil {
		t.Fatalf("insert version: %v", err)
	}

	if err := s.Delete(context.Background(), "trivia", "person", r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM resource_versions WHERE resource_id = ?", r.ID).Scan(&n); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if n != 0 {
		t.Errorf("version rows = %d after delete, want 0 (FK cascade)", n)
	}
}

func TestResourceStore_ListVersions_NewestFirst(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))
	r := insertPerson(t, s, "trivia", map[string]any{"firstName": "Spongebob"})

	for i, id := range []string{"v1", "v2"} {
		created := t0.Add(time.Duration(i) * time.Minute)
		err := s.WithTx(context.Background(), func(tx ports.ResourceTx) error {
			return tx.InsertVersion(context.Background(), resource.Version{
				ID: id, ResourceID: r.ID, Created: created,
			})
		})
		if err != nil {
			t.Fatalf("insert version %s: %v", id, err)
		}
	}

	vs, err := s.ListVersions(context.Background(), "trivia", "person", r.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(vs) != 2 || vs[0].ID != "v2" || vs[1].ID != "v1" {
		t.Errorf("order = %v, want v2 then v1", vs)
	}
	if vs[0].Data != nil {
		t.Errorf("suppressed version data = %v, want nil", vs[0].Data)
	}
}

func TestResourceStore_DeleteExpired(t *testing.T) {
	s := NewResourceStore(setupTestDB(t))

	past := t0.Add(-time.Minute)
	atCutoff := t0
	future := t0.Add(time.Hour)
	for _, exp := range []*time.Time{&past, &atCutoff, &future, nil} {
		if _, err := s.Insert(context.Background(), resource.Resource{
			AppID: "trivia", Type: "person",
			Data:    map[string]any{},
			Created: t0, Updated: t0, Expires: exp,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := s.DeleteExpired(context.Background(), t0)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("reaped = %d, want 2 (past and at-cutoff)", n)
	}

	rs, _ := s.FindAll(context.Background(), "trivia", "person", t0.Add(-2*time.Hour))
	if len(rs) != 2 {
		t.Errorf("remaining = %d, want 2", len(rs))
	}
}
