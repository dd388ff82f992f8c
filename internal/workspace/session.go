// Package workspace is the snippet manager a UI drives: one open view made of
// the editor buffer, its auto-save scheduler, and the snippet store beneath.
//
// Lock order: Session → Editor/Scheduler → Store. The session never
// subscribes a listener that takes its own lock, so a save triggered while
// the session lock is held cannot deadlock on the event it emits.
package workspace

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/autosave"
	"github.com/sakif/sql-snippets/internal/editor"
	"github.com/sakif/sql-snippets/internal/format"
	"github.com/sakif/sql-snippets/internal/metrics"
	"github.com/sakif/sql-snippets/internal/model"
	"github.com/sakif/sql-snippets/internal/store"
)

// Defaults for a freshly created snippet.
const (
	DefaultName = "New Snippet"
	DefaultSQL  = "-- Enter your SQL query here..."
)

// Config tunes a session.
type Config struct {
	Autosave autosave.Config
	Theme    editor.Theme
}

// Status is a snapshot of the open view.
type Status struct {
	SnippetID   string           `json:"snippetId"`
	Name        string           `json:"name"`
	SQL         string           `json:"sql"`
	State       autosave.State   `json:"state"`
	Unsaved     bool             `json:"unsaved"`
	Recoverable bool             `json:"recoverable"`
	LastError   string           `json:"lastError,omitempty"`
	Stats       editor.Stats     `json:"stats"`
	Theme       editor.Theme     `json:"theme"`
	Selection   editor.Selection `json:"selection"`
}

// Session is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	store     *store.Store
	editor    *editor.Editor
	sched     *autosave.Scheduler
	formatter format.Formatter
	logger    *slog.Logger
	metrics   metrics.Recorder

	// formatted is set when Format rewrote the buffer without arming
	// auto-save. Any save clears it.
	formatted atomic.Bool

	unsubscribe []func()
}

// New builds a session over st with nothing open. Call Open to select the
// most recent snippet.
func New(st *store.Store, f format.Formatter, clock autosave.Clock, cfg Config, logger *slog.Logger, m metrics.Recorder) *Session {
	if m == nil {
		m = metrics.Noop{}
	}
	ed := editor.New(cfg.Theme)
	sched := autosave.New(st, ed, clock, cfg.Autosave, logger, m)

	s := &Session{
		store:     st,
		editor:    ed,
		sched:     sched,
		formatter: f,
		logger:    logger,
		metrics:   m,
	}
	s.unsubscribe = append(s.unsubscribe,
		ed.OnChange(func(string) { sched.Edit() }),
		sched.Subscribe(func(ev autosave.Event) {
			if ev.State == autosave.Saved {
				s.formatted.Store(false)
			}
		}),
	)
	return s
}

// Subscribe forwards scheduler state changes to fn.
func (s *Session) Subscribe(fn func(autosave.Event)) (unsubscribe func()) {
	return s.sched.Subscribe(fn)
}

// Open selects the most recently modified snippet, or leaves the view empty
// when the store has none. It returns the opened snippet or nil.
func (s *Session) Open(ctx context.Context) *model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()

	snippets := s.store.List(ctx)
	if len(snippets) == 0 {
		s.load(nil)
		return nil
	}
	s.load(&snippets[0])
	return &snippets[0]
}

// NewSnippet creates a snippet with default content and opens it. Creation
// alone never arms auto-save.
func (s *Session) NewSnippet(ctx context.Context) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, err := s.store.Create(ctx, DefaultName, DefaultSQL)
	if err != nil {
		return nil, err
	}
	s.load(sn)
	s.logger.Info("snippet created", slog.String("id", sn.ID))
	return sn, nil
}

// Select opens the snippet with id, cancelling timers for the previous one.
func (s *Session) Select(ctx context.Context, id string) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.load(sn)
	return sn, nil
}

// Edit applies a user edit to the SQL text.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	s.editor.Input(text)
	return nil
}

// Rename applies a user edit to the name.
func (s *Session) Rename(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return err
	}
	if name == s.sched.Name() {
		return nil
	}
	s.sched.Rename(name)
	return nil
}

// Save writes the view now. An empty name is a validation error.
func (s *Session) Save(ctx context.Context) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	sn, err := s.sched.SaveNow(ctx)
	if err != nil {
		return nil, err
	}
	s.formatted.Store(false)
	s.logger.Info("snippet saved", slog.String("id", sn.ID))
	return sn, nil
}

// Delete removes the open snippet and selects the first remaining one.
// It returns the newly selected snippet, or nil when the store is empty.
func (s *Session) Delete(ctx context.Context) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	id, name := s.sched.SnippetID(), s.sched.Name()
	unsaved := s.sched.State() != autosave.Clean && s.sched.State() != autosave.Saved

	// Timers go first so a late save or backup cannot target the deleted id.
	s.sched.Load("", "")
	if _, err := s.store.Delete(ctx, id); err != nil {
		s.sched.Load(id, name)
		if unsaved {
			s.sched.Edit()
		}
		return nil, err
	}
	s.logger.Info("snippet deleted", slog.String("id", id))

	remaining := s.store.List(ctx)
	if len(remaining) == 0 {
		s.load(nil)
		return nil, nil
	}
	s.load(&remaining[0])
	return &remaining[0], nil
}

// Format pretty-prints the buffer. On success the text is replaced without
// arming auto-save and the view is marked unsaved if anything changed. On
// failure the buffer is left exactly as it was.
func (s *Session) Format(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return "", err
	}
	text := s.editor.Value()
	out, err := s.formatter.Format(text)
	s.metrics.IncFormat(err == nil)
	if err != nil {
		s.logger.Debug("format failed", slog.String("error", err.Error()))
		return "", err
	}
	if out != text {
		s.editor.SetValue(out)
		s.formatted.Store(true)
	}
	return out, nil
}

// Revert drops unsaved work: the last saved record is reloaded and its
// backup cleared.
func (s *Session) Revert(ctx context.Context) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	id := s.sched.SnippetID()
	if err := s.sched.Revert(ctx); err != nil {
		return nil, err
	}
	sn, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.load(sn)
	return sn, nil
}

// Recover applies the backup for id and opens the result.
func (s *Session) Recover(ctx context.Context, id string) (*model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancel timers first so a pending save cannot overwrite the recovered text.
	if s.sched.SnippetID() == id {
		s.sched.Load(id, s.sched.Name())
	}
	sn, err := s.store.Recover(ctx, id)
	if err != nil {
		return nil, err
	}
	s.load(sn)
	s.logger.Info("snippet recovered", slog.String("id", sn.ID))
	return sn, nil
}

// Copy returns the selected text, or the whole buffer when nothing is
// selected.
func (s *Session) Copy() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpen(); err != nil {
		return "", err
	}
	if sel := s.editor.SelectedText(); sel != "" {
		return sel, nil
	}
	return s.editor.Value(), nil
}

// SelectRange sets the editor selection.
func (s *Session) SelectRange(start, end int) editor.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Select(start, end)
}

// SetTheme switches the editor theme by name.
func (s *Session) SetTheme(name string) (editor.Theme, error) {
	t, err := editor.ParseTheme(name)
	if err != nil {
		return "", err
	}
	if err := s.editor.SetTheme(t); err != nil {
		return "", err
	}
	return t, nil
}

// ToggleTheme flips the editor theme.
func (s *Session) ToggleTheme() editor.Theme {
	return s.editor.ToggleTheme()
}

// Highlight renders the buffer with syntax highlighting.
func (s *Session) Highlight(w io.Writer, outFormat string) error {
	return s.editor.Highlight(w, outFormat)
}

// Status snapshots the view.
func (s *Session) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SnippetID: s.sched.SnippetID(),
		Name:      s.sched.Name(),
		SQL:       s.editor.Value(),
		State:     s.sched.State(),
		Stats:     s.editor.Stats(),
		Theme:     s.editor.Theme(),
		Selection: s.editor.Selection(),
	}
	switch st.State {
	case autosave.Dirty, autosave.Saving, autosave.Error:
		st.Unsaved = true
	default:
		st.Unsaved = s.formatted.Load()
	}
	if err := s.sched.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if st.SnippetID != "" {
		st.Recoverable = s.store.HasUnsavedChanges(ctx, st.SnippetID)
	}
	return st
}

// Close cancels pending timers, then detaches the editor.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sched.Close()
	s.editor.Detach()
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
}

// load switches the view to sn, or to an empty view when sn is nil. Timers
// are cancelled before the editor is touched. Callers hold s.mu.
func (s *Session) load(sn *model.Snippet) {
	s.formatted.Store(false)
	if sn == nil {
		s.sched.Load("", "")
		s.editor.Detach()
		s.editor.SetValue("")
		return
	}
	s.sched.Load(sn.ID, sn.Name)
	s.editor.Attach(sn.SQL)
}

// requireOpen fails when no snippet is open. Callers hold s.mu.
func (s *Session) requireOpen() error {
	if strings.TrimSpace(s.sched.SnippetID()) == "" {
		return apperror.ValidationFailed("snippet", "No snippet selected")
	}
	return nil
}
