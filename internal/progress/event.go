package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageRecordStart Stage = "RECORD_START"
	StageRecordDone  Stage = "RECORD_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for record completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of harvest progress.
type Event struct {
	// RunID identifies the harvest run emitting the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or record milestone occurred.
	Stage Stage
	// ID scopes record events to one catalog identifier.
	ID harvest.Identifier
	// Classification is the post-write classification for RECORD_DONE.
	Classification harvest.Classification
	// StatusClass groups the terminal HTTP status of the fetch.
	StatusClass StatusClass
	// Revisions counts the history entries persisted with the record.
	Revisions int
	// Bytes carries the total README bytes stored for the record.
	Bytes int64
	// Dur captures execution latency for records and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageRecordStart:
		if e.ID == "" {
			return errors.New("record start requires identifier")
		}
	case StageRecordDone:
		if e.ID == "" {
			return errors.New("record done requires identifier")
		}
		if e.Classification == "" {
			return errors.New("record done requires classification")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for record events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
