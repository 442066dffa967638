package memory

import (
	"context"
	"testing"
	"time"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

func TestRecordStoreSupersession(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()

	r1 := harvest.Record{ID: "org/model", FetchedAt: time.Unix(100, 0)}
	r2 := harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 200}},
		FetchedAt: time.Unix(200, 0),
	}

	if err := store.Write(ctx, r1); err != nil {
		t.Fatalf("Write(r1) error = %v", err)
	}
	if err := store.Write(ctx, r2); err != nil {
		t.Fatalf("Write(r2) error = %v", err)
	}

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one record, got %d", len(all))
	}
	if got := all["org/model"]; len(got.History) != 1 || !got.FetchedAt.Equal(r2.FetchedAt) {
		t.Fatalf("expected r2 to fully supersede r1, got %+v", got)
	}
}

func TestRecordStoreGet(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing/id"); err != harvest.ErrRecordNotFound {
		t.Fatalf("Get(absent) error = %v, want ErrRecordNotFound", err)
	}
	rec := harvest.Record{ID: "a/b"}
	if err := store.Write(ctx, rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := store.Get(ctx, "a/b")
	if err != nil || got.ID != "a/b" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
}

func TestLoadAllReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	if err := store.Write(ctx, harvest.Record{ID: "a/b"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	delete(all, "a/b")
	again, err := store.LoadAll(ctx)
	if err != nil || len(again) != 1 {
		t.Fatalf("mutating the returned map must not affect the store: %v %v", again, err)
	}
}
