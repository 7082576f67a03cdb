package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBoltStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewBoltStore(tmpDir)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	defer store.Close()

	// Verify database file was created
	dbPath := filepath.Join(tmpDir, "livemem.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewBoltStore_CreatesDataDir(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewBoltStore(tmpDir)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(tmpDir); os.IsNotExist(err) {
		t.Error("Data directory was not created")
	}
}

func TestBoltStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := []byte("# Rules\n\nBe concise.")
	if err := store.Put(ctx, "myspace/_rules.md", content, "text/markdown"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, found, err := store.Get(ctx, "myspace/_rules.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() found = false, want true")
	}
	if string(data) != string(content) {
		t.Errorf("Get() data = %q, want %q", data, content)
	}
}

func TestBoltStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	data, found, err := store.Get(context.Background(), "nope/_meta.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true for missing key, want false")
	}
	if data != nil {
		t.Errorf("Get() data = %v for missing key, want nil", data)
	}
}

func TestBoltStore_ZeroByteObject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Zero-byte placeholder objects must still register as existing.
	if err := store.Put(ctx, "myspace/live/.keep", nil, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, found, err := store.Get(ctx, "myspace/live/.keep")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Error("Get() found = false for zero-byte object, want true")
	}
	if len(data) != 0 {
		t.Errorf("Get() data length = %d, want 0", len(data))
	}

	exists, err := store.Exists(ctx, "myspace/live/.keep")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false for zero-byte object, want true")
	}
}

func TestBoltStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "myspace/live/note.md", []byte("x"), ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Delete(ctx, "myspace/live/note.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, found, err := store.Get(ctx, "myspace/live/note.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Object still exists after delete")
	}
}

func TestBoltStore_Delete_NonExistent(t *testing.T) {
	store := newTestStore(t)

	// Delete of a missing key should not error
	if err := store.Delete(context.Background(), "nope/nothing.md"); err != nil {
		t.Errorf("Delete() on missing key error = %v, want nil", err)
	}
}

func TestBoltStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := []string{
		"alpha/live/20240101T000000_bob_decision_aaaa1111.md",
		"alpha/live/20240102T000000_ann_insight_bbbb2222.md",
		"alpha/bank/decisions.md",
		"beta/live/20240103T000000_bob_todo_cccc3333.md",
	}
	for _, key := range keys {
		if err := store.Put(ctx, key, []byte("content"), ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	infos, err := store.List(ctx, "alpha/live/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List() returned %d objects, want 2", len(infos))
	}

	// Lexicographic order doubles as chronological order for note keys
	if infos[0].Key != keys[0] || infos[1].Key != keys[1] {
		t.Errorf("List() keys = [%s, %s], want sorted note keys", infos[0].Key, infos[1].Key)
	}
	if infos[0].Size != int64(len("content")) {
		t.Errorf("List() size = %d, want %d", infos[0].Size, len("content"))
	}
}

func TestBoltStore_List_Empty(t *testing.T) {
	store := newTestStore(t)

	infos, err := store.List(context.Background(), "missing/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List() returned %d objects for empty prefix, want 0", len(infos))
	}
}

func TestBoltStore_ListPrefixes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := []string{
		"alpha/_meta.json",
		"beta/_meta.json",
		"beta/live/note.md",
		"_system/tokens.json",
	}
	for _, key := range keys {
		if err := store.Put(ctx, key, []byte("{}"), ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	names, err := store.ListPrefixes(ctx, "")
	if err != nil {
		t.Fatalf("ListPrefixes() error = %v", err)
	}

	want := []string{"_system", "alpha", "beta"}
	if len(names) != len(want) {
		t.Fatalf("ListPrefixes() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListPrefixes()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestBoltStore_ListPrefixes_Nested(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := []string{
		"_backups/alpha/2024-01-01T00-00-00/_backup.json",
		"_backups/alpha/2024-01-02T00-00-00/_backup.json",
		"_backups/beta/2024-01-03T00-00-00/_backup.json",
	}
	for _, key := range keys {
		if err := store.Put(ctx, key, []byte("{}"), ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	names, err := store.ListPrefixes(ctx, "_backups/alpha/")
	if err != nil {
		t.Fatalf("ListPrefixes() error = %v", err)
	}

	want := []string{"2024-01-01T00-00-00", "2024-01-02T00-00-00"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("ListPrefixes() = %v, want %v", names, want)
	}
}

func TestBoltStore_Copy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := []byte("note body")
	if err := store.Put(ctx, "alpha/live/note.md", content, "text/markdown"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Copy(ctx, "alpha/live/note.md", "_backups/alpha/snap/live/note.md"); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}

	data, found, err := store.Get(ctx, "_backups/alpha/snap/live/note.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Copy destination does not exist")
	}
	if string(data) != string(content) {
		t.Errorf("Copy destination data = %q, want %q", data, content)
	}

	// Source must survive the copy
	_, found, err = store.Get(ctx, "alpha/live/note.md")
	if err != nil || !found {
		t.Errorf("Copy source missing after copy: found = %v, err = %v", found, err)
	}
}

func TestBoltStore_Copy_MissingSource(t *testing.T) {
	store := newTestStore(t)

	err := store.Copy(context.Background(), "nope/src.md", "nope/dst.md")
	if err == nil {
		t.Error("Copy() with missing source should return error")
	}
}

func TestBoltStore_Exists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "alpha/_meta.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	exists, err := store.Exists(ctx, "alpha/_meta.json")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false, want true")
	}

	exists, err = store.Exists(ctx, "beta/_meta.json")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true for missing key, want false")
	}
}

func TestBoltStore_Ping(t *testing.T) {
	store := newTestStore(t)

	latency, err := store.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if latency < 0 {
		t.Errorf("Ping() latency = %v, want >= 0", latency)
	}
}

func TestBoltStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "alpha/x.md", []byte("x"), ""); err == nil {
		t.Error("Put() with cancelled context should return error")
	}
	if _, _, err := store.Get(ctx, "alpha/x.md"); err == nil {
		t.Error("Get() with cancelled context should return error")
	}
}
