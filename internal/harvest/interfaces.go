package harvest

import (
	"context"
	"errors"
	"time"
)

// ErrCatalogMissing is returned when no persisted catalog exists and
// discovery was not possible. It is fatal to a run.
var ErrCatalogMissing = errors.New("identifier catalog missing")

// ErrRecordNotFound is returned by stores when an identifier has no record.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore persists the per-identifier records.
//
// LoadAll returns every persisted record keyed by identifier. Backends that
// read several shards merge duplicates last-writer-wins on FetchedAt before
// returning. Write atomically supersedes the record for record.ID: a crash
// mid-write must never leave a record that classifies as Complete when it is
// not. Write must be safe under concurrent calls for distinct identifiers.
type RecordStore interface {
	LoadAll(ctx context.Context) (map[Identifier]Record, error)
	Write(ctx context.Context, record Record) error
}

// Lister produces the full identifier catalog from the hub listing pages.
// It is invoked at most once per catalog lifetime.
type Lister interface {
	List(ctx context.Context) ([]CatalogEntry, error)
}

// Fetcher retrieves metadata and the revision history for one repository.
type Fetcher interface {
	Fetch(ctx context.Context, entry CatalogEntry, creds Credentials) (FetchOutcome, error)
}

// CredentialProvider supplies the opaque authentication context.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// BlobStore writes raw artifacts (README snapshots) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes record-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for blob naming and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
