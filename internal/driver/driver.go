// Package driver executes one harvest run: it reconciles the catalog against
// the record store, fans the resulting work set out to workers, and persists
// one superseding record per fetched identifier.
package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
	"github.com/hubharvest/hubharvest/internal/progress"
)

// Config controls Driver behavior.
type Config struct {
	// Workers is the fan-out width; 1 processes the work set sequentially.
	Workers int
	// Delay is the pause between consecutive entries on one worker.
	Delay time.Duration
	// MinLikes skips entries below the like threshold without fetching.
	MinLikes int
	// BlobPrefix is prepended to README blob paths.
	BlobPrefix string
	// Topic enables record-completion publishing when non-empty.
	Topic string
	// ContentType is attached to README blobs.
	ContentType string
}

// Driver wires the fetch pipeline together.
type Driver struct {
	store     harvest.RecordStore
	fetcher   harvest.Fetcher
	creds     harvest.CredentialProvider
	blobs     harvest.BlobStore
	publisher harvest.Publisher
	hasher    harvest.Hasher
	clock     harvest.Clock
	ids       harvest.IDGenerator
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Driver. publisher and emitter may be nil.
func New(
	store harvest.RecordStore,
	fetcher harvest.Fetcher,
	creds harvest.CredentialProvider,
	blobs harvest.BlobStore,
	publisher harvest.Publisher,
	hasher harvest.Hasher,
	clock harvest.Clock,
	ids harvest.IDGenerator,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Driver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/markdown; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		store:     store,
		fetcher:   fetcher,
		creds:     creds,
		blobs:     blobs,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Result summarizes one run.
type Result struct {
	RunID         string
	WorkSet       int
	Skipped       int
	WriteFailures int
	Classified    map[harvest.Classification]int
}

// Run reconciles catalog against the store and processes the work set. Per-
// identifier failures are contained: they are logged, counted, and leave the
// identifier eligible for the next run. Only run-level problems (store load,
// credentials, cancellation) surface as errors.
func (d *Driver) Run(ctx context.Context, catalog []harvest.CatalogEntry) (Result, error) {
	runID, err := d.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}

	records, err := d.store.LoadAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load records: %w", err)
	}
	work := harvest.ComputeWorkSet(catalog, records)

	creds, err := d.creds.Credentials(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load credentials: %w", err)
	}

	d.logger.Info("run starting",
		zap.String("run_id", runID),
		zap.Int("catalog", len(catalog)),
		zap.Int("work_set", len(work)),
	)
	start := d.clock.Now()
	d.emit(progress.Event{RunID: runID, TS: start, Stage: progress.StageRunStart})

	result := Result{
		RunID:      runID,
		WorkSet:    len(work),
		Classified: make(map[harvest.Classification]int),
	}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan harvest.CatalogEntry)
	)
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			for entry := range jobs {
				if !first && d.cfg.Delay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(d.cfg.Delay):
					}
				}
				first = false
				skipped, wrote, class := d.processEntry(ctx, runID, entry, creds)
				mu.Lock()
				switch {
				case skipped:
					result.Skipped++
				case !wrote:
					result.WriteFailures++
				default:
					result.Classified[class]++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, entry := range work {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- entry:
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := d.clock.Now().Sub(start)
	if ctx.Err() != nil {
		d.emit(progress.Event{
			RunID: runID, TS: d.clock.Now(), Stage: progress.StageRunError,
			Dur: elapsed, Note: ctx.Err().Error(),
		})
		return result, fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	d.emit(progress.Event{RunID: runID, TS: d.clock.Now(), Stage: progress.StageRunDone, Dur: elapsed})
	d.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("work_set", result.WorkSet),
		zap.Int("skipped", result.Skipped),
		zap.Int("write_failures", result.WriteFailures),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// processEntry fetches one identifier and persists its superseding record.
// It reports whether the entry was skipped and whether the write succeeded.
func (d *Driver) processEntry(
	ctx context.Context,
	runID string,
	entry harvest.CatalogEntry,
	creds harvest.Credentials,
) (skipped, wrote bool, class harvest.Classification) {
	if entry.Likes < d.cfg.MinLikes {
		d.logger.Debug("entry below like threshold",
			zap.String("id", string(entry.ID)),
			zap.Int("likes", entry.Likes),
		)
		return true, false, ""
	}

	start := d.clock.Now()
	d.emit(progress.Event{RunID: runID, TS: start, Stage: progress.StageRecordStart, ID: entry.ID})

	note := ""
	outcome, err := d.fetcher.Fetch(ctx, entry, creds)
	if err != nil {
		// Transport-level failure: nothing was obtainable. An empty history
		// keeps the identifier retryable.
		d.logger.Warn("fetch failed", zap.String("id", string(entry.ID)), zap.Error(err))
		outcome = harvest.FetchOutcome{Kind: harvest.OutcomeTotal}
		note = err.Error()
	}

	rec, bytes, err := d.buildRecord(ctx, entry, outcome)
	if err != nil {
		d.logger.Error("persist artifacts failed", zap.String("id", string(entry.ID)), zap.Error(err))
		return false, false, ""
	}

	if err := d.store.Write(ctx, rec); err != nil {
		// Containment: the old record (or absence) still classifies the
		// identifier as retryable, so the next run picks it up again.
		d.logger.Error("record write failed", zap.String("id", string(entry.ID)), zap.Error(err))
		return false, false, ""
	}

	class = harvest.Classify(&rec)
	if class == harvest.ClassComplete {
		d.publishCompletion(ctx, runID, rec)
	}

	d.emit(progress.Event{
		RunID:          runID,
		TS:             d.clock.Now(),
		Stage:          progress.StageRecordDone,
		ID:             entry.ID,
		Classification: class,
		StatusClass:    statusClass(outcome),
		Revisions:      len(rec.History),
		Bytes:          bytes,
		Dur:            d.clock.Now().Sub(start),
		Note:           note,
	})
	return false, true, class
}

// buildRecord maps a fetch outcome onto the persisted record shape and writes
// README snapshots to the blob store. The returned byte count covers the
// stored snapshots.
func (d *Driver) buildRecord(
	ctx context.Context,
	entry harvest.CatalogEntry,
	outcome harvest.FetchOutcome,
) (harvest.Record, int64, error) {
	rec := harvest.Record{ID: entry.ID, FetchedAt: d.clock.Now()}
	if outcome.Metadata != nil {
		rec.Metadata = *outcome.Metadata
	} else {
		rec.Metadata = harvest.RepoMetadata{Downloads: entry.Downloads, Likes: entry.Likes}
	}

	var bytes int64
	switch outcome.Kind {
	case harvest.OutcomeSuccess, harvest.OutcomePartial:
		history := make([]harvest.RevisionEntry, 0, len(outcome.Revisions)+1)
		for _, rev := range outcome.Revisions {
			if len(rev.ReadmeBody) > 0 {
				uri, err := d.storeReadme(ctx, entry.ID, rev)
				if err != nil {
					return harvest.Record{}, 0, err
				}
				rev.ReadmeURI = uri
				bytes += int64(len(rev.ReadmeBody))
			}
			rev.ReadmeBody = nil
			history = append(history, rev)
		}
		if outcome.Kind == harvest.OutcomePartial {
			history = append(history, harvest.RevisionEntry{
				Position:   len(history),
				StatusCode: outcome.StatusCode,
			})
		}
		rec.History = history
	case harvest.OutcomeTotal:
		// An explicit status is recorded as a single errored entry. Status 0
		// means no data and no status (an access gap); only then does the
		// history stay empty.
		if outcome.StatusCode != 0 {
			rec.History = []harvest.RevisionEntry{{StatusCode: outcome.StatusCode}}
		}
	}
	return rec, bytes, nil
}

// storeReadme persists one README snapshot under a content-addressed path so
// identical bodies across revisions share a blob.
func (d *Driver) storeReadme(ctx context.Context, id harvest.Identifier, rev harvest.RevisionEntry) (string, error) {
	hash, err := d.hasher.Hash(rev.ReadmeBody)
	if err != nil {
		return "", fmt.Errorf("hash readme: %w", err)
	}
	path := fmt.Sprintf("%s/%s.md", blobDir(id), hash)
	if prefix := strings.Trim(d.cfg.BlobPrefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	uri, err := d.blobs.PutObject(ctx, path, d.cfg.ContentType, rev.ReadmeBody)
	if err != nil {
		return "", fmt.Errorf("put readme: %w", err)
	}
	return uri, nil
}

func (d *Driver) publishCompletion(ctx context.Context, runID string, rec harvest.Record) {
	if d.cfg.Topic == "" || d.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":     runID,
		"id":         string(rec.ID),
		"url":        rec.Metadata.URL,
		"revisions":  len(rec.History),
		"fetched_at": rec.FetchedAt.Format(time.RFC3339),
	}
	if _, err := d.publisher.Publish(ctx, d.cfg.Topic, payload); err != nil {
		d.logger.Warn("completion publish failed", zap.String("id", string(rec.ID)), zap.Error(err))
	}
}

func (d *Driver) emit(evt progress.Event) {
	if d.emitter == nil {
		return
	}
	d.emitter.Emit(evt)
}

var blobDirSanitizer = strings.NewReplacer("/", "__", "\\", "__", ":", "__")

func blobDir(id harvest.Identifier) string {
	return blobDirSanitizer.Replace(string(id))
}

func statusClass(outcome harvest.FetchOutcome) progress.StatusClass {
	if outcome.StatusCode != 0 {
		return progress.ClassifyStatus(outcome.StatusCode)
	}
	if outcome.Kind == harvest.OutcomeSuccess {
		return progress.Status2xx
	}
	return progress.StatusOther
}
