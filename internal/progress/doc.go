// Package progress defines the event stream emitted while a harvest run
// reconciles the catalog against the record store.
package progress
