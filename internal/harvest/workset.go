package harvest

import "sort"

// ComputeWorkSet reconciles the catalog against the loaded store and returns
// exactly the identifiers whose classification is not Complete. The result is
// a pure function of its inputs: no I/O, no side effects, and independent of
// catalog order. It is sorted only so logs and tests are deterministic.
//
// An empty result means every cataloged identifier is Complete.
func ComputeWorkSet(catalog []CatalogEntry, store map[Identifier]Record) []CatalogEntry {
	work := make([]CatalogEntry, 0, len(catalog))
	for _, entry := range catalog {
		if ClassifyStored(entry.ID, store).Retryable() {
			work = append(work, entry)
		}
	}
	sort.Slice(work, func(i, j int) bool { return work[i].ID < work[j].ID })
	return work
}

// Summary counts catalog identifiers per classification. plan and the status
// endpoint report it to operators.
type Summary struct {
	Unseen     int `json:"unseen"`
	Incomplete int `json:"incomplete"`
	Failed     int `json:"failed"`
	Complete   int `json:"complete"`
}

// Total returns the catalog size the summary was computed over.
func (s Summary) Total() int {
	return s.Unseen + s.Incomplete + s.Failed + s.Complete
}

// Summarize classifies every catalog identifier against the store.
func Summarize(catalog []CatalogEntry, store map[Identifier]Record) Summary {
	var s Summary
	for _, entry := range catalog {
		switch ClassifyStored(entry.ID, store) {
		case ClassUnseen:
			s.Unseen++
		case ClassIncomplete:
			s.Incomplete++
		case ClassFailed:
			s.Failed++
		case ClassComplete:
			s.Complete++
		}
	}
	return s
}
