package harvest

// Classification is the derived work state of one identifier. It is computed
// from the record store on every run and never persisted.
type Classification string

// Work classifications.
const (
	// ClassUnseen means no record exists for the identifier.
	ClassUnseen Classification = "unseen"
	// ClassIncomplete means the record exists but its history is empty: the
	// attempt yielded no data at all (typically an access gap).
	ClassIncomplete Classification = "incomplete"
	// ClassFailed means the history carries at least one errored entry.
	ClassFailed Classification = "failed"
	// ClassComplete means the history is non-empty and entirely successful.
	ClassComplete Classification = "complete"
)

// Retryable reports whether the classification keeps the identifier in the
// work set. Everything short of Complete is retried.
func (c Classification) Retryable() bool {
	return c != ClassComplete
}

// Classify derives the work classification for one identifier. rec is nil
// when the store holds no record. A history mixing successful and errored
// entries classifies as Failed: any error present forces a retry.
func Classify(rec *Record) Classification {
	if rec == nil {
		return ClassUnseen
	}
	if len(rec.History) == 0 {
		return ClassIncomplete
	}
	for _, entry := range rec.History {
		if entry.Errored() {
			return ClassFailed
		}
	}
	return ClassComplete
}

// ClassifyStored looks up id in the store and classifies the result.
func ClassifyStored(id Identifier, store map[Identifier]Record) Classification {
	if rec, ok := store[id]; ok {
		return Classify(&rec)
	}
	return Classify(nil)
}
