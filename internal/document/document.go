// Package document defines the Document type shared by the event consumer,
// batch queue, and indexer — the unit of work that flows from an ingested
// event to a stored Point.
package document

// Document is a globally unique piece of content awaiting indexing.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	SessionID string
	OrgID     string // required for tenant isolation on indexing
}
