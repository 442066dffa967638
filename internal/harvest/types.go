package harvest

import (
	"net/http"
	"time"
)

// Identifier is the opaque, stable token naming one catalog entity. For the
// hub it is the repository path ("owner/name"), never reinterpreted by the
// core once discovered.
type Identifier string

// CatalogEntry is one discovered repository plus the counters scraped off the
// listing page. The counters are advisory (threshold filtering); only the ID
// participates in reconciliation.
type CatalogEntry struct {
	ID        Identifier `json:"id"`
	Downloads int        `json:"downloads"`
	Likes     int        `json:"likes"`
}

// RepoMetadata carries the fields extracted from a repository page. The core
// persists it verbatim and never branches on its contents.
type RepoMetadata struct {
	URL       string   `json:"url"`
	Owner     string   `json:"owner"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags,omitempty"`
	Downloads int      `json:"downloads"`
	Likes     int      `json:"likes"`
}

// RevisionEntry is one historical version of the tracked file. StatusCode is
// the fetch status for this entry: 200 marks a fully retrieved revision, 4xx
// and 5xx mark the point where retrieval stopped.
type RevisionEntry struct {
	Position   int       `json:"position"`
	CommitID   string    `json:"commit_id,omitempty"`
	CommitURL  string    `json:"commit_url,omitempty"`
	CommitDate time.Time `json:"commit_date,omitzero"`
	Files      []string  `json:"files,omitempty"`
	ReadmeURI  string    `json:"readme_uri,omitempty"`
	StatusCode int       `json:"status_code"`

	// ReadmeBody holds the downloaded README for this revision between fetch
	// and blob persistence. It is never written into the record store.
	ReadmeBody []byte `json:"-"`
}

// Errored reports whether this entry carries an error classification.
func (e RevisionEntry) Errored() bool {
	return e.StatusCode >= 400
}

// Record is the persisted outcome of the most recent fetch attempt for one
// identifier. A retry fully supersedes the prior record; records are never
// merged. The history field is either all-success, empty (no data was
// obtainable), or contains at least one errored entry.
type Record struct {
	ID        Identifier      `json:"id"`
	Metadata  RepoMetadata    `json:"metadata"`
	History   []RevisionEntry `json:"history"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// OutcomeKind tags a FetchOutcome variant.
type OutcomeKind string

// Fetch outcome variants.
const (
	// OutcomeSuccess carries metadata and the complete revision history.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomePartial carries whatever was obtained before an explicit error
	// status stopped retrieval.
	OutcomePartial OutcomeKind = "partial"
	// OutcomeTotal carries no revision data. StatusCode 0 means the hub
	// returned nothing and no explicit error either, which is read as an
	// access/permission gap.
	OutcomeTotal OutcomeKind = "total"
)

// FetchOutcome is the structured result of one entity fetch.
type FetchOutcome struct {
	Kind       OutcomeKind
	Metadata   *RepoMetadata
	Revisions  []RevisionEntry
	StatusCode int
}

// Credentials is the opaque authentication context attached to outbound hub
// requests. The core passes it through and never persists it.
type Credentials struct {
	Cookies []*http.Cookie
}
