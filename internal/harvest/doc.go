// Package harvest defines the core types and collaborator interfaces for the
// incremental hub harvester: catalog entries, per-repository records with
// their revision histories, the pure classification of a record into a retry
// decision, and the work-set computation that gates every fetch.
package harvest
