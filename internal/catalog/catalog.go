// Package catalog manages the persisted identifier catalog: the universe of
// repositories to track, discovered from the hub listing exactly once and
// then treated as frozen.
package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// Catalog loads and, when absent, discovers the identifier universe. The
// persisted file is one tab-separated line per entry: identifier, download
// count, like count.
type Catalog struct {
	path   string
	lister harvest.Lister
	logger *zap.Logger
}

// New builds a Catalog persisted at path. lister may be nil when discovery is
// not available (Load-only use).
func New(path string, lister harvest.Lister, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{path: path, lister: lister, logger: logger}
}

// Load returns the persisted catalog. It fails with harvest.ErrCatalogMissing
// when no catalog file exists.
func (c *Catalog) Load() ([]harvest.CatalogEntry, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog %s: %w", c.path, harvest.ErrCatalogMissing)
		}
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var entries []harvest.CatalogEntry
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		entry, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("catalog %s line %d: %w", c.path, line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return entries, nil
}

// Ensure returns the catalog, discovering and persisting it first if no
// persisted catalog exists. Discovery happens at most once per catalog
// lifetime: subsequent calls load the file unchanged and perform no listing
// call.
func (c *Catalog) Ensure(ctx context.Context) ([]harvest.CatalogEntry, error) {
	entries, err := c.Load()
	if err == nil {
		c.logger.Debug("loaded persisted catalog", zap.Int("entries", len(entries)))
		return entries, nil
	}
	if !errors.Is(err, harvest.ErrCatalogMissing) {
		return nil, err
	}
	if c.lister == nil {
		return nil, fmt.Errorf("no lister configured: %w", harvest.ErrCatalogMissing)
	}

	c.logger.Info("no persisted catalog; discovering from hub listing")
	entries, err = c.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover catalog: %w", err)
	}
	if err := c.persist(entries); err != nil {
		return nil, err
	}
	c.logger.Info("catalog discovered and persisted",
		zap.Int("entries", len(entries)), zap.String("path", c.path))
	return entries, nil
}

// persist writes the catalog atomically: full content to a temp file in the
// same directory, then rename over the final path.
func (c *Catalog) persist(entries []harvest.CatalogEntry) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return fmt.Errorf("create catalog temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup

	w := bufio.NewWriter(tmp)
	for _, entry := range entries {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\n", entry.ID, entry.Downloads, entry.Likes); err != nil {
			tmp.Close() //nolint:errcheck,gosec
			return fmt.Errorf("write catalog entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("flush catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close catalog temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

func parseLine(text string) (harvest.CatalogEntry, error) {
	fields := strings.Split(text, "\t")
	entry := harvest.CatalogEntry{ID: harvest.Identifier(fields[0])}
	if entry.ID == "" {
		return harvest.CatalogEntry{}, fmt.Errorf("empty identifier")
	}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return harvest.CatalogEntry{}, fmt.Errorf("bad download count %q", fields[1])
		}
		entry.Downloads = n
	}
	if len(fields) > 2 {
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return harvest.CatalogEntry{}, fmt.Errorf("bad like count %q", fields[2])
		}
		entry.Likes = n
	}
	return entry, nil
}
