package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sakif/sql-snippets/internal/model"
)

// Import failure messages. The offending item's 1-based position is appended.
const (
	msgInvalidJSON   = "Invalid JSON format"
	msgNotArray      = "Invalid format: Expected an array of snippets"
	msgNotObject     = "Invalid format: Each item must be an object"
	msgMissingName   = "Invalid format: Each snippet must have a 'name' field"
	msgMissingSQL    = "Invalid format: Each snippet must have a 'sql' field"
	msgImportSuccess = "Snippets imported successfully"
	msgImportSave    = "Failed to save snippets to local storage"
)

const maxImportIDLength = 200

// Export returns every snippet as a pretty-printed JSON array, the format
// Import accepts.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := json.MarshalIndent(s.loadSnippets(ctx), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: encoding export: %w", err)
	}
	return out, nil
}

// Import replaces the whole snippet collection with the snippets in data.
//
// ALL OR NOTHING:
// Every element is validated before anything is written. The first invalid
// element aborts the import with Success=false and the store is untouched.
// Backups are left as they are.
//
// Ids and timestamps are taken from the input when well-formed. A missing,
// malformed, or duplicate id gets a fresh one; a missing or unparsable
// timestamp, or a lastModified before createdAt, falls back to import time.
//
// The returned error is non-nil only when the validated set could not be
// written to the medium.
func (s *Store) Import(ctx context.Context, data []byte) (model.ImportResult, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return model.ImportResult{Message: msgInvalidJSON}, nil
	}
	items, ok := top.([]any)
	if !ok {
		return model.ImportResult{Message: msgNotArray}, nil
	}

	now := s.timestamp()
	seen := make(map[string]bool, len(items))
	imported := make([]model.Snippet, 0, len(items))

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return failed(msgNotObject, i+1), nil
		}
		name, ok := obj["name"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return failed(msgMissingName, i+1), nil
		}
		sql, ok := obj["sql"].(string)
		if !ok || sql == "" {
			return failed(msgMissingSQL, i+1), nil
		}
		name, err := validate(name, sql)
		if err != nil {
			return failed(err.Error(), i+1), nil
		}

		id, _ := obj["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" || len(id) > maxImportIDLength || seen[id] {
			id = newID(now)
		}
		seen[id] = true

		createdAt, okCreated := parseTimestamp(obj["createdAt"])
		if !okCreated {
			createdAt = now
		}
		lastModified, okModified := parseTimestamp(obj["lastModified"])
		if !okModified {
			lastModified = now
		}
		if lastModified.Before(createdAt) {
			createdAt, lastModified = now, now
		}

		imported = append(imported, model.Snippet{
			ID:           id,
			Name:         name,
			SQL:          sql,
			CreatedAt:    createdAt,
			LastModified: lastModified,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveSnippets(ctx, imported); err != nil {
		return model.ImportResult{Message: msgImportSave}, err
	}

	s.logger.Info("snippets imported", slog.Int("count", len(imported)))
	return model.ImportResult{
		Success: true,
		Message: msgImportSuccess,
		Count:   len(imported),
	}, nil
}

func failed(msg string, index int) model.ImportResult {
	return model.ImportResult{Message: fmt.Sprintf("%s (item %d)", msg, index)}
}

// parseTimestamp accepts an RFC 3339 string or epoch milliseconds.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC().Truncate(time.Millisecond), true
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}
