package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/chrlesur/live-memory/pkg/config"
)

func TestNew_BoltDriver(t *testing.T) {
	cfg := &config.Settings{
		StorageDriver: config.DriverBolt,
		DataDir:       t.TempDir(),
	}

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*BoltStore); !ok {
		t.Errorf("New() returned %T, want *BoltStore", store)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := &config.Settings{StorageDriver: "etcd"}

	if _, err := New(cfg); err == nil {
		t.Error("New() with unknown driver should return error")
	}
}

func TestGetJSONPutJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := PutJSON(ctx, store, "alpha/_meta.json", record{Name: "alpha", Count: 3}); err != nil {
		t.Fatalf("PutJSON() error = %v", err)
	}

	var got record
	found, err := GetJSON(ctx, store, "alpha/_meta.json", &got)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !found {
		t.Fatal("GetJSON() found = false, want true")
	}
	if got.Name != "alpha" || got.Count != 3 {
		t.Errorf("GetJSON() = %+v, want {alpha 3}", got)
	}

	// Stored form should be indented for operator inspection
	raw, _, err := store.Get(ctx, "alpha/_meta.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(raw) == `{"name":"alpha","count":3}` {
		t.Error("PutJSON() stored compact JSON, want indented")
	}
}

func TestGetJSON_Missing(t *testing.T) {
	store := newTestStore(t)

	var out map[string]any
	found, err := GetJSON(context.Background(), store, "nope.json", &out)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if found {
		t.Error("GetJSON() found = true for missing key, want false")
	}
}

func TestGetJSON_Corrupt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "bad.json", []byte("{not json"), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var out map[string]any
	if _, err := GetJSON(ctx, store, "bad.json", &out); err == nil {
		t.Error("GetJSON() on corrupt object should return error")
	}
}

func TestDeleteMany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("alpha/live/2024010%dT000000_bob_observation_%08x.md", i%10, i)
		if err := store.Put(ctx, key, []byte("note"), ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		keys = append(keys, key)
	}

	deleted, err := DeleteMany(ctx, store, keys)
	if err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if deleted != len(keys) {
		t.Errorf("DeleteMany() = %d, want %d", deleted, len(keys))
	}

	infos, err := store.List(ctx, "alpha/live/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List() returned %d objects after DeleteMany, want 0", len(infos))
	}
}

func TestDeleteMany_Empty(t *testing.T) {
	store := newTestStore(t)

	deleted, err := DeleteMany(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("DeleteMany() = %d, want 0", deleted)
	}
}

func TestFetchAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	objects := map[string]string{
		"alpha/live/20240101T000000_ann_decision_aaaa1111.md": "first",
		"alpha/live/20240102T000000_bob_insight_bbbb2222.md":  "second",
		"alpha/live/.keep": "",
	}
	for key, content := range objects {
		if err := store.Put(ctx, key, []byte(content), ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	got, err := FetchAll(ctx, store, "alpha/live/", false)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FetchAll() returned %d objects, want 2 (keep excluded)", len(got))
	}

	// Key order must match listing order
	if got[0].Content == nil || string(got[0].Content) != "first" {
		t.Errorf("FetchAll()[0] = %q, want %q", got[0].Content, "first")
	}
	if string(got[1].Content) != "second" {
		t.Errorf("FetchAll()[1] = %q, want %q", got[1].Content, "second")
	}
}

func TestFetchAll_IncludeKeep(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "alpha/live/.keep", nil, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := FetchAll(ctx, store, "alpha/live/", true)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("FetchAll() returned %d objects, want 1 (keep included)", len(got))
	}
}

func TestIsKeep(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{".keep", true},
		{"alpha/live/.keep", true},
		{"alpha/bank/.keep", true},
		{"alpha/live/note.keep.md", false},
		{"alpha/_meta.json", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsKeep(tt.key); got != tt.want {
			t.Errorf("IsKeep(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
