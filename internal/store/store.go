// Package store is the exclusive owner of the snippet and backup collections.
//
// THE MEDIUM:
// Both collections are serialized whole into a flat key/value medium
// (repository.KVStore), one key per collection:
//
//	sql-snippets          → JSON array of model.Snippet
//	sql-snippets-backups  → JSON object of snippetId → model.Backup
//
// Every operation is read-modify-write of a whole collection, serialized by
// one mutex. No other component writes these keys.
//
// FAILURE SEMANTICS:
//   - Reads never fail. A missing key, a medium error, or a corrupt blob all
//     read as an empty collection (and are logged), so the workspace stays
//     usable.
//   - Writes do fail. A rejected write surfaces as apperror.ErrPersistence
//     and the previously stored collection is left as it was.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/xid"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/model"
	"github.com/sakif/sql-snippets/internal/repository"
)

// Storage keys in the medium.
const (
	SnippetsKey = "sql-snippets"
	BackupsKey  = "sql-snippets-backups"
)

// Validation limits.
const (
	MaxNameLength = 100
	MaxSQLLength  = 100000 // ~100KB of SQL
)

// Store provides CRUD, search, import/export, and backup bookkeeping over
// snippets. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	kv     repository.KVStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now. Tests use it to control timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on top of kv.
func New(kv repository.KVStore, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all snippets, most recently modified first.
// The slice is a fresh copy; mutating it does not affect the store.
func (s *Store) List(ctx context.Context) []model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()

	snippets := s.loadSnippets(ctx)
	sortByLastModified(snippets)
	return snippets
}

// GetByID returns the snippet with id, or apperror.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range s.loadSnippets(ctx) {
		if sn.ID == id {
			found := sn
			return &found, nil
		}
	}
	return nil, apperror.NotFound("snippet", id)
}

// Create validates name and sql, appends a new snippet, and clears any stale
// backup that already carries the new id.
func (s *Store) Create(ctx context.Context, name, sql string) (*model.Snippet, error) {
	name, err := validate(name, sql)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snippets := s.loadSnippets(ctx)
	now := s.timestamp()
	sn := model.Snippet{
		ID:           newID(now),
		Name:         name,
		SQL:          sql,
		CreatedAt:    now,
		LastModified: now,
	}

	if err := s.saveSnippets(ctx, append(snippets, sn)); err != nil {
		return nil, err
	}
	s.dropBackup(ctx, sn.ID)

	s.logger.Info("snippet created",
		slog.String("id", sn.ID),
		slog.String("name", sn.Name),
	)
	return &sn, nil
}

// Update merges the provided fields into the snippet with id.
//
// lastModified moves forward to now, but never backwards and never below
// createdAt, even if the wall clock has stepped back.
func (s *Store) Update(ctx context.Context, id string, upd model.SnippetUpdate) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(ctx, id, upd)
}

// update is Update without locking. Callers hold s.mu.
func (s *Store) update(ctx context.Context, id string, upd model.SnippetUpdate) (*model.Snippet, error) {
	snippets := s.loadSnippets(ctx)
	idx := indexOf(snippets, id)
	if idx < 0 {
		return nil, apperror.NotFound("snippet", id)
	}

	sn := snippets[idx]
	name, sql := sn.Name, sn.SQL
	if upd.Name != nil {
		name = *upd.Name
	}
	if upd.SQL != nil {
		sql = *upd.SQL
	}
	name, err := validate(name, sql)
	if err != nil {
		return nil, err
	}

	sn.Name = name
	sn.SQL = sql
	sn.LastModified = latest(s.timestamp(), sn.LastModified, sn.CreatedAt)
	snippets[idx] = sn

	if err := s.saveSnippets(ctx, snippets); err != nil {
		return nil, err
	}
	s.dropBackup(ctx, id)

	s.logger.Debug("snippet updated",
		slog.String("id", sn.ID),
		slog.String("name", sn.Name),
	)
	return &sn, nil
}

// Delete removes the snippet with id and its backup. It reports whether a
// record was actually removed; a missing id touches nothing.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snippets := s.loadSnippets(ctx)
	idx := indexOf(snippets, id)
	if idx < 0 {
		return false, nil
	}

	remaining := append(snippets[:idx:idx], snippets[idx+1:]...)
	if err := s.saveSnippets(ctx, remaining); err != nil {
		return false, err
	}
	s.dropBackup(ctx, id)

	s.logger.Info("snippet deleted", slog.String("id", id))
	return true, nil
}

// Search returns snippets whose name or sql contains query, ignoring case.
// A blank query returns the same result as List.
func (s *Store) Search(ctx context.Context, query string) []model.Snippet {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	matches := []model.Snippet{}
	for _, sn := range s.loadSnippets(ctx) {
		if strings.Contains(strings.ToLower(sn.Name), q) ||
			strings.Contains(strings.ToLower(sn.SQL), q) {
			matches = append(matches, sn)
		}
	}
	sortByLastModified(matches)
	return matches
}

// =========================================================================
// COLLECTION I/O
// =========================================================================

// loadSnippets reads the snippet collection. Failures degrade to empty.
func (s *Store) loadSnippets(ctx context.Context) []model.Snippet {
	raw, found, err := s.kv.Get(ctx, SnippetsKey)
	if err != nil {
		s.logger.Error("failed to read snippets, using empty collection",
			slog.String("error", err.Error()),
		)
		return []model.Snippet{}
	}
	if !found || len(raw) == 0 {
		return []model.Snippet{}
	}

	var snippets []model.Snippet
	if err := json.Unmarshal(raw, &snippets); err != nil {
		s.logger.Error("corrupt snippets collection, using empty collection",
			slog.String("error", err.Error()),
		)
		return []model.Snippet{}
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	return snippets
}

func (s *Store) saveSnippets(ctx context.Context, snippets []model.Snippet) error {
	raw, err := json.Marshal(snippets)
	if err != nil {
		return apperror.Persistence("serialize snippets", err)
	}
	if err := s.kv.Set(ctx, SnippetsKey, raw); err != nil {
		s.logger.Error("failed to save snippets",
			slog.Int("count", len(snippets)),
			slog.String("error", err.Error()),
		)
		return apperror.Persistence("save snippets to local storage", err)
	}
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

// timestamp returns now at the millisecond precision the collection keeps.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// validate trims name and enforces the required-name and size limits.
func validate(name, sql string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "Snippet name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("snippet name must be %d characters or less", MaxNameLength))
	}
	if len(sql) > MaxSQLLength {
		return "", apperror.ValidationFailed("sql",
			fmt.Sprintf("sql must be %d characters or less", MaxSQLLength))
	}
	return name, nil
}

// newID returns "snippet-<unix-ms>-<xid>".
func newID(now time.Time) string {
	return fmt.Sprintf("snippet-%d-%s", now.UnixMilli(), xid.New().String())
}

func indexOf(snippets []model.Snippet, id string) int {
	for i := range snippets {
		if snippets[i].ID == id {
			return i
		}
	}
	return -1
}

// sortByLastModified orders most recent first. Stable, so equal timestamps
// keep insertion order.
func sortByLastModified(snippets []model.Snippet) {
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].LastModified.After(snippets[j].LastModified)
	})
}

func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}
