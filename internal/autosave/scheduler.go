// Package autosave debounces edits into store writes and keeps a periodic
// recovery backup of unsaved work.
//
// STATE MACHINE:
//
//	Clean ──edit──▶ Dirty ──debounce fires──▶ Saving ──ok──▶ Saved
//	                  ▲                            └─fail─▶ Error
//	                  └──────────── edit ───────────────────┘
//
//   - A genuine edit from Clean, Dirty, Saved, or Error moves to Dirty and
//     (re)starts the debounce timer.
//   - The debounce fire saves only when a snippet is loaded and its trimmed
//     name is non-empty. Otherwise the scheduler stays Dirty.
//   - A failed save never retries by itself; the next edit or a manual
//     SaveNow re-arms the cycle.
//   - While unsaved work exists a backup timer writes a recovery snapshot
//     every BackupInterval. It never changes the state.
//   - Load, Revert, and Close cancel both timers.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/metrics"
	"github.com/sakif/sql-snippets/internal/model"
)

// Reference delays.
const (
	DefaultDebounce       = 1000 * time.Millisecond
	DefaultBackupInterval = 30 * time.Second
)

// ErrClosed is returned by SaveNow after Close.
var ErrClosed = errors.New("autosave: scheduler closed")

// State is the save status of the loaded snippet.
type State int

const (
	Clean State = iota
	Dirty
	Saving
	Saved
	Error
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := Clean; st <= Error; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("autosave: unknown state %q", b)
}

// Store is the part of the snippet store the scheduler writes through.
type Store interface {
	Create(ctx context.Context, name, sql string) (*model.Snippet, error)
	Update(ctx context.Context, id string, upd model.SnippetUpdate) (*model.Snippet, error)
	CreateBackup(ctx context.Context, snippetID, name, sql string) error
	ClearBackup(ctx context.Context, snippetID string) error
}

// Source supplies the text to save, normally the editor buffer.
type Source interface {
	Value() string
}

// Config holds the two delays. Zero values take the defaults.
type Config struct {
	Debounce       time.Duration
	BackupInterval time.Duration
}

// Event is delivered to listeners on every state change.
type Event struct {
	State     State
	SnippetID string
	Snippet   *model.Snippet // the saved record, on Saved
	Err       error          // the failure, on Error
}

// Scheduler owns the debounce and backup timers for one open snippet.
//
// Lock order: Scheduler → Source → Store. Listeners run after the
// scheduler lock is released.
type Scheduler struct {
	mu      sync.Mutex
	store   Store
	source  Source
	clock   Clock
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Recorder

	id      string
	name    string
	state   State
	lastErr error
	closed  bool

	debounce handle
	backup   handle

	listeners map[int]func(Event)
	nextID    int
}

// New creates a scheduler with no snippet loaded.
func New(store Store, source Source, clock Clock, cfg Config, logger *slog.Logger, m metrics.Recorder) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.BackupInterval <= 0 {
		cfg.BackupInterval = DefaultBackupInterval
	}
	if clock == nil {
		clock = RealClock()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Scheduler{
		store:     store,
		source:    source,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		listeners: make(map[int]func(Event)),
	}
}

// Load switches to a snippet context. Pending timers for the previous
// context are cancelled and its backup is left untouched. An empty id means
// "nothing saved yet"; the first SaveNow creates the record.
func (s *Scheduler) Load(id, name string) {
	s.mu.Lock()
	s.debounce.cancel()
	s.backup.cancel()
	s.id = id
	s.name = name
	s.lastErr = nil
	changed := s.state != Clean
	s.state = Clean
	ev := s.event(nil)
	s.mu.Unlock()

	if changed {
		s.notify(ev)
	}
}

// Edit records a genuine edit to the text.
func (s *Scheduler) Edit() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.markDirty()
	ev := s.event(nil)
	s.mu.Unlock()

	if changed {
		s.notify(ev)
	}
}

// Rename records a genuine edit to the name.
func (s *Scheduler) Rename(name string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.name = name
	changed := s.markDirty()
	ev := s.event(nil)
	s.mu.Unlock()

	if changed {
		s.notify(ev)
	}
}

// markDirty moves to Dirty, restarts the debounce, and starts the backup
// timer if it is not already running. Callers hold s.mu.
func (s *Scheduler) markDirty() bool {
	changed := s.state != Dirty
	s.state = Dirty
	s.debounce.arm(s.clock, s.cfg.Debounce, s.fireDebounce)
	if !s.backup.armed {
		s.backup.arm(s.clock, s.cfg.BackupInterval, s.fireBackup)
	}
	return changed
}

// SaveNow saves immediately, bypassing the debounce: create when no record
// exists yet, update otherwise. An empty name is rejected with
// apperror.ErrValidation and the state is left as it was.
func (s *Scheduler) SaveNow(ctx context.Context) (*model.Snippet, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if strings.TrimSpace(s.name) == "" {
		s.mu.Unlock()
		return nil, apperror.ValidationFailed("name", "Snippet name is required")
	}

	s.debounce.cancel()
	s.state = Saving
	events := []Event{s.event(nil)}

	sn, err := s.write(ctx, metrics.SaveManual)
	events = append(events, s.event(sn))
	s.mu.Unlock()

	s.notify(events...)
	return sn, err
}

// Revert drops unsaved work for the current snippet: timers are cancelled,
// the backup is cleared, and the state returns to Clean. Restoring the
// editor text is the caller's job.
func (s *Scheduler) Revert(ctx context.Context) error {
	s.mu.Lock()
	s.debounce.cancel()
	s.backup.cancel()
	id := s.id
	changed := s.state != Clean
	s.state = Clean
	s.lastErr = nil
	ev := s.event(nil)

	var err error
	if id != "" {
		err = s.store.ClearBackup(ctx, id)
	}
	s.mu.Unlock()

	if changed {
		s.notify(ev)
	}
	return err
}

// Close cancels both timers. Later edits are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debounce.cancel()
	s.backup.cancel()
	s.closed = true
}

// Subscribe registers fn for state changes and returns a func removing it.
func (s *Scheduler) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error behind the Error state, or nil.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SnippetID returns the loaded snippet id ("" before the first save).
func (s *Scheduler) SnippetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Name returns the name that the next save will write.
func (s *Scheduler) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Pending reports whether the debounce and backup timers are armed.
func (s *Scheduler) Pending() (debounce, backup bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounce.armed, s.backup.armed
}

// =========================================================================
// TIMER CALLBACKS
// =========================================================================

func (s *Scheduler) fireDebounce(seq uint64) {
	s.mu.Lock()
	if !s.debounce.claim(seq) || s.closed || s.state != Dirty {
		s.mu.Unlock()
		return
	}
	if s.id == "" || strings.TrimSpace(s.name) == "" {
		// Nothing to save into yet; wait for a name or a manual save.
		s.mu.Unlock()
		return
	}

	s.state = Saving
	events := []Event{s.event(nil)}
	sn, _ := s.write(context.Background(), metrics.SaveAuto)
	events = append(events, s.event(sn))
	s.mu.Unlock()

	s.notify(events...)
}

func (s *Scheduler) fireBackup(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.backup.claim(seq) || s.closed {
		return
	}
	if s.state != Dirty && s.state != Error {
		return
	}
	if s.id != "" {
		text := s.source.Value()
		if err := s.store.CreateBackup(context.Background(), s.id, s.name, text); err != nil {
			s.logger.Warn("failed to write backup",
				slog.String("id", s.id),
				slog.String("error", err.Error()),
			)
		} else {
			s.metrics.IncBackupsWritten()
			s.logger.Debug("backup written", slog.String("id", s.id))
		}
	}
	s.backup.arm(s.clock, s.cfg.BackupInterval, s.fireBackup)
}

// write performs the create-or-update and moves to Saved or Error.
// Callers hold s.mu with the state already set to Saving.
func (s *Scheduler) write(ctx context.Context, kind string) (*model.Snippet, error) {
	text := s.source.Value()

	var (
		sn  *model.Snippet
		err error
	)
	if s.id == "" {
		sn, err = s.store.Create(ctx, s.name, text)
	} else {
		name := s.name
		sn, err = s.store.Update(ctx, s.id, model.SnippetUpdate{Name: &name, SQL: &text})
	}

	if err != nil {
		s.state = Error
		s.lastErr = err
		s.metrics.IncSaveFailures(kind)
		s.logger.Error("save failed",
			slog.String("kind", kind),
			slog.String("id", s.id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.id = sn.ID
	s.name = sn.Name
	s.state = Saved
	s.lastErr = nil
	s.backup.cancel()
	s.metrics.IncSaves(kind)
	s.logger.Debug("snippet saved",
		slog.String("kind", kind),
		slog.String("id", sn.ID),
	)
	return sn, nil
}

// =========================================================================
// LISTENERS
// =========================================================================

// event snapshots the current state. Callers hold s.mu.
func (s *Scheduler) event(sn *model.Snippet) Event {
	ev := Event{State: s.state, SnippetID: s.id, Snippet: sn}
	if s.state == Error {
		ev.Err = s.lastErr
	}
	return ev
}

// notify delivers events. Callers must not hold s.mu.
func (s *Scheduler) notify(events ...Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
