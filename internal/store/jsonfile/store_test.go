package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

func newStore(t *testing.T, cfg Config) *RecordStore {
	t.Helper()
	store, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestWriteThenLoadAll(t *testing.T) {
	t.Parallel()

	store := newStore(t, Config{Dir: t.TempDir()})
	ctx := context.Background()

	rec := harvest.Record{
		ID: "org/model",
		Metadata: harvest.RepoMetadata{
			URL:   "https://hub.example.org/org/model",
			Owner: "org",
			Name:  "model",
			Tags:  []string{"text-generation"},
		},
		History: []harvest.RevisionEntry{
			{Position: 0, CommitID: "c0", StatusCode: 200},
			{Position: 1, CommitID: "c1", StatusCode: 200, ReadmeURI: "file:///tmp/readme"},
		},
		FetchedAt: time.Unix(1000, 0).UTC(),
	}
	require.NoError(t, store.Write(ctx, rec))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, rec, all["org/model"])
}

func TestWriteSupersedes(t *testing.T) {
	t.Parallel()

	store := newStore(t, Config{Dir: t.TempDir()})
	ctx := context.Background()

	r1 := harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 403}},
		FetchedAt: time.Unix(100, 0).UTC(),
	}
	r2 := harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 200}},
		FetchedAt: time.Unix(200, 0).UTC(),
	}
	require.NoError(t, store.Write(ctx, r1))
	require.NoError(t, store.Write(ctx, r2))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, r2, all["org/model"])
}

func TestLoadAllMergesShardsLastWriterWins(t *testing.T) {
	t.Parallel()

	primary := t.TempDir()
	shardA := t.TempDir()
	ctx := context.Background()

	// An old sharded run left a failed record behind.
	old := newStore(t, Config{Dir: shardA})
	require.NoError(t, old.Write(ctx, harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 429}},
		FetchedAt: time.Unix(100, 0).UTC(),
	}))
	require.NoError(t, old.Write(ctx, harvest.Record{
		ID:        "org/other",
		History:   []harvest.RevisionEntry{{StatusCode: 200}},
		FetchedAt: time.Unix(100, 0).UTC(),
	}))

	store := newStore(t, Config{Dir: primary, ExtraShards: []string{shardA}})
	require.NoError(t, store.Write(ctx, harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 200}},
		FetchedAt: time.Unix(200, 0).UTC(),
	}))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, harvest.ClassComplete, harvest.ClassifyStored("org/model", all))
	require.Equal(t, harvest.ClassComplete, harvest.ClassifyStored("org/other", all))
}

func TestLoadAllPrimaryWinsTimestampTies(t *testing.T) {
	t.Parallel()

	primary := t.TempDir()
	shard := t.TempDir()
	ctx := context.Background()
	ts := time.Unix(500, 0).UTC()

	old := newStore(t, Config{Dir: shard})
	require.NoError(t, old.Write(ctx, harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 500}},
		FetchedAt: ts,
	}))

	store := newStore(t, Config{Dir: primary, ExtraShards: []string{shard}})
	require.NoError(t, store.Write(ctx, harvest.Record{
		ID:        "org/model",
		History:   []harvest.RevisionEntry{{StatusCode: 200}},
		FetchedAt: ts,
	}))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, harvest.ClassComplete, harvest.ClassifyStored("org/model", all))
}

func TestLoadAllIgnoresMissingShard(t *testing.T) {
	t.Parallel()

	store := newStore(t, Config{
		Dir:         t.TempDir(),
		ExtraShards: []string{filepath.Join(t.TempDir(), "never-written")},
	})
	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestLoadAllSkipsForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := newStore(t, Config{Dir: dir})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := newStore(t, Config{Dir: dir})
	require.NoError(t, store.Write(context.Background(), harvest.Record{ID: "a/b"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a__b.json", entries[0].Name())
}

func TestNewRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, zap.NewNop())
	require.Error(t, err)
}
