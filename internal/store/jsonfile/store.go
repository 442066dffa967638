// Package jsonfile implements a filesystem record store: one JSON document
// per identifier, written atomically, with optional read-only shards left
// behind by earlier parallel runs merged at load time.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// Config captures the parameters for the filesystem record store.
type Config struct {
	// Dir is the primary shard; all writes land here.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ExtraShards are additional directories scanned read-only during
	// LoadAll, typically left behind by earlier sharded runs.
	ExtraShards []string `mapstructure:"extra_shards" yaml:"extra_shards"`
}

// RecordStore persists records as JSON files.
type RecordStore struct {
	dir    string
	shards []string
	logger *zap.Logger
}

var idSanitizer = strings.NewReplacer("/", "__", "\\", "__", ":", "_")

// New creates the store, verifying the primary shard exists and is writable.
func New(cfg Config, logger *zap.Logger) (*RecordStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("record directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create record directory: %w", err)
	}
	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("record directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	// Deterministic merge order: extra shards sorted first, primary shard
	// last so the shard receiving new writes wins timestamp ties.
	shards := append([]string(nil), cfg.ExtraShards...)
	sort.Strings(shards)
	shards = append(shards, cfg.Dir)

	return &RecordStore{
		dir:    cfg.Dir,
		shards: shards,
		logger: logger,
	}, nil
}

// LoadAll reads every record from every shard and merges duplicates
// last-writer-wins on FetchedAt.
func (s *RecordStore) LoadAll(ctx context.Context) (map[harvest.Identifier]harvest.Record, error) {
	out := make(map[harvest.Identifier]harvest.Record)
	for _, shard := range s.shards {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load records canceled: %w", err)
		}
		if err := s.loadShard(shard, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *RecordStore) loadShard(shard string, out map[harvest.Identifier]harvest.Record) error {
	entries, err := os.ReadDir(shard)
	if err != nil {
		if os.IsNotExist(err) {
			// A configured shard that was never written is not an error.
			s.logger.Debug("record shard absent", zap.String("shard", shard))
			return nil
		}
		return fmt.Errorf("read record shard %s: %w", shard, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(shard, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read record %s: %w", path, err)
		}
		var rec harvest.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode record %s: %w", path, err)
		}
		if rec.ID == "" {
			return fmt.Errorf("record %s has no identifier", path)
		}
		if prev, ok := out[rec.ID]; ok && rec.FetchedAt.Before(prev.FetchedAt) {
			continue
		}
		out[rec.ID] = rec
	}
	return nil
}

// Write atomically supersedes the record for record.ID: the document is
// written to a temp file in the primary shard and renamed into place, so a
// crash mid-write can never surface a truncated record.
func (s *RecordStore) Write(ctx context.Context, record harvest.Record) error {
	if record.ID == "" {
		return fmt.Errorf("record identifier is required")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write record canceled: %w", err)
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".record-*")
	if err != nil {
		return fmt.Errorf("create record temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("write record %s: %w", record.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.recordPath(record.ID)); err != nil {
		return fmt.Errorf("replace record %s: %w", record.ID, err)
	}
	return nil
}

func (s *RecordStore) recordPath(id harvest.Identifier) string {
	return filepath.Join(s.dir, idSanitizer.Replace(string(id))+".json")
}
