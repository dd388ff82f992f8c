// Package model defines the data structures shared by the store, the
// workspace session and the HTTP layer.
package model

import "time"

// Snippet is a named, persisted SQL text entry.
//
// The `json:"..."` struct tags fix the persisted layout: the snippets
// collection is a JSON array of these objects, and export files use the
// same shape so an export can be fed straight back into import.
//
// time.Time marshals as RFC 3339 (ISO 8601), e.g. "2024-05-01T09:30:00.123Z".
type Snippet struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SQL          string    `json:"sql"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// Backup is an unsaved edit in flight for one snippet id.
//
// Backups live under their own storage key so they never show up in
// listings, search, or export. SnippetID may reference a snippet that has
// no saved record yet; such a backup can still be recovered.
type Backup struct {
	SnippetID string `json:"snippetId"`
	Name      string `json:"name"`
	SQL       string `json:"sql"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Time returns the backup timestamp as a time.Time in UTC.
func (b Backup) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// SnippetUpdate carries the optional fields of an update.
// A nil pointer means "leave this field unchanged"; a pointer to "" for SQL
// means "clear the text".
type SnippetUpdate struct {
	Name *string
	SQL  *string
}

// ImportResult reports the outcome of an import. On failure Count is zero
// and Message names the violated constraint.
type ImportResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}
