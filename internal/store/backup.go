package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/model"
)

// RecoveredName is used when an orphan backup is re-created with a blank name.
const RecoveredName = "Recovered Snippet"

// CreateBackup upserts the backup for snippetID with the current time.
// The snippet does not need to exist yet.
func (s *Store) CreateBackup(ctx context.Context, snippetID, name, sql string) error {
	if strings.TrimSpace(snippetID) == "" {
		return apperror.ValidationFailed("snippetId", "snippet ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backups := s.loadBackups(ctx)
	backups[snippetID] = model.Backup{
		SnippetID: snippetID,
		Name:      name,
		SQL:       sql,
		Timestamp: s.timestamp().UnixMilli(),
	}
	return s.saveBackups(ctx, backups)
}

// GetBackup returns the backup for snippetID, or apperror.ErrNotFound.
func (s *Store) GetBackup(ctx context.Context, snippetID string) (*model.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.loadBackups(ctx)[snippetID]
	if !ok {
		return nil, apperror.NotFound("backup", snippetID)
	}
	return &b, nil
}

// ClearBackup removes the backup for snippetID. A missing backup is not an error.
func (s *Store) ClearBackup(ctx context.Context, snippetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups := s.loadBackups(ctx)
	if _, ok := backups[snippetID]; !ok {
		return nil
	}
	delete(backups, snippetID)
	return s.saveBackups(ctx, backups)
}

// ListBackups returns every backup, newest first.
func (s *Store) ListBackups(ctx context.Context) []model.Backup {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups := s.loadBackups(ctx)
	out := make([]model.Backup, 0, len(backups))
	for _, b := range backups {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].SnippetID < out[j].SnippetID
	})
	return out
}

// HasUnsavedChanges reports whether a backup exists for snippetID and its
// (name, sql) differs from the saved record. A backup without a saved
// record always counts as unsaved.
func (s *Store) HasUnsavedChanges(ctx context.Context, snippetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.loadBackups(ctx)[snippetID]
	if !ok {
		return false
	}
	snippets := s.loadSnippets(ctx)
	idx := indexOf(snippets, snippetID)
	if idx < 0 {
		return true
	}
	return b.Name != snippets[idx].Name || b.SQL != snippets[idx].SQL
}

// Recover applies the backup for snippetID and clears it.
//
// If the snippet exists the backup content is saved through the normal
// update path. If it does not (a backup written before the first save), the
// snippet is re-created under the backup's id so the recovered record keeps
// the identity the editor already had.
func (s *Store) Recover(ctx context.Context, snippetID string) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups := s.loadBackups(ctx)
	b, ok := backups[snippetID]
	if !ok {
		return nil, apperror.NotFound("backup", snippetID)
	}

	snippets := s.loadSnippets(ctx)
	if indexOf(snippets, snippetID) >= 0 {
		sn, err := s.update(ctx, snippetID, model.SnippetUpdate{Name: &b.Name, SQL: &b.SQL})
		if err != nil {
			return nil, err
		}
		s.logger.Info("snippet recovered from backup", slog.String("id", snippetID))
		return sn, nil
	}

	name := b.Name
	if strings.TrimSpace(name) == "" {
		name = RecoveredName
	}
	name, err := validate(name, b.SQL)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	sn := model.Snippet{
		ID:           snippetID,
		Name:         name,
		SQL:          b.SQL,
		CreatedAt:    now,
		LastModified: now,
	}
	if err := s.saveSnippets(ctx, append(snippets, sn)); err != nil {
		return nil, err
	}
	s.dropBackup(ctx, snippetID)

	s.logger.Info("orphan backup re-created as snippet", slog.String("id", snippetID))
	return &sn, nil
}

// =========================================================================
// COLLECTION I/O
// =========================================================================

func (s *Store) loadBackups(ctx context.Context) map[string]model.Backup {
	raw, found, err := s.kv.Get(ctx, BackupsKey)
	if err != nil {
		s.logger.Error("failed to read backups, using empty collection",
			slog.String("error", err.Error()),
		)
		return map[string]model.Backup{}
	}
	if !found || len(raw) == 0 {
		return map[string]model.Backup{}
	}

	var backups map[string]model.Backup
	if err := json.Unmarshal(raw, &backups); err != nil {
		s.logger.Error("corrupt backups collection, using empty collection",
			slog.String("error", err.Error()),
		)
		return map[string]model.Backup{}
	}
	if backups == nil {
		backups = map[string]model.Backup{}
	}
	return backups
}

func (s *Store) saveBackups(ctx context.Context, backups map[string]model.Backup) error {
	raw, err := json.Marshal(backups)
	if err != nil {
		return apperror.Persistence("serialize backups", err)
	}
	if err := s.kv.Set(ctx, BackupsKey, raw); err != nil {
		s.logger.Error("failed to save backups", slog.String("error", err.Error()))
		return apperror.Persistence("save backup to local storage", err)
	}
	return nil
}

// dropBackup clears a backup after its snippet was written. The snippet
// write already succeeded, so a failure here is logged, not returned.
func (s *Store) dropBackup(ctx context.Context, snippetID string) {
	backups := s.loadBackups(ctx)
	if _, ok := backups[snippetID]; !ok {
		return
	}
	delete(backups, snippetID)
	if err := s.saveBackups(ctx, backups); err != nil {
		s.logger.Warn("failed to clear backup",
			slog.String("id", snippetID),
			slog.String("error", err.Error()),
		)
	}
}
