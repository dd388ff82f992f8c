// Package editor binds a text buffer to the workspace: the current SQL,
// the selection, the theme, and change events.
//
// PROGRAMMATIC VS USER WRITES:
// SetValue is how the workspace loads a snippet or applies a format; it
// never notifies listeners. Input is a genuine user edit and is the only
// path that reaches OnChange listeners, so loading a snippet can never
// arm an auto-save on its own.
package editor

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/format"
)

// Theme selects the highlighting palette.
type Theme string

const (
	ThemeDefault Theme = "default"
	ThemeDark    Theme = "dark"
)

// Highlight output formats.
const (
	FormatHTML     = "html"
	FormatTerminal = "terminal"
)

// chroma style per theme.
var themeStyles = map[Theme]string{
	ThemeDefault: "github",
	ThemeDark:    "monokai",
}

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := themeStyles[t]; !ok {
		return "", apperror.ValidationFailed("theme",
			fmt.Sprintf("unknown theme %q (want %q or %q)", s, ThemeDefault, ThemeDark))
	}
	return t, nil
}

// Selection is a half-open rune range [Start, End) in the buffer.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Stats summarizes the buffer.
type Stats struct {
	Lines int `json:"lines"`
	Chars int `json:"chars"`
}

type listener struct {
	id int
	fn func(text string)
}

// Editor is safe for concurrent use. Listeners run after the editor's lock
// is released, so a listener may call back into the editor.
type Editor struct {
	mu        sync.Mutex
	attached  bool
	text      string
	sel       Selection
	theme     Theme
	listeners map[int]listener
	nextID    int
	lexer     chroma.Lexer
}

// New returns a detached editor with the given theme. An unknown theme
// falls back to ThemeDefault.
func New(theme Theme) *Editor {
	if _, ok := themeStyles[theme]; !ok {
		theme = ThemeDefault
	}
	return &Editor{
		theme:     theme,
		listeners: make(map[int]listener),
		lexer:     format.Lexer(),
	}
}

// Attach binds the editor to text. Like SetValue, it does not notify.
func (e *Editor) Attach(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.attached = true
	e.text = text
	e.sel = Selection{}
}

// Detach unbinds the editor. Input is ignored until the next Attach; the
// last value stays readable.
func (e *Editor) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached = false
}

// Attached reports whether the editor is bound.
func (e *Editor) Attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attached
}

// Value returns the buffer.
func (e *Editor) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// SetValue replaces the buffer without notifying listeners.
func (e *Editor) SetValue(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.text = text
	e.sel = clamp(e.sel, utf8.RuneCountInString(text))
}

// Input applies a user edit. Listeners are notified when the editor is
// attached and the text actually changed. It reports whether it notified.
func (e *Editor) Input(text string) bool {
	e.mu.Lock()
	if !e.attached || text == e.text {
		e.mu.Unlock()
		return false
	}
	e.text = text
	e.sel = clamp(e.sel, utf8.RuneCountInString(text))
	fns := e.snapshotListeners()
	e.mu.Unlock()

	for _, fn := range fns {
		fn(text)
	}
	return true
}

// OnChange registers fn for user edits and returns a func that removes it.
func (e *Editor) OnChange(fn func(text string)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = listener{id: id, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Select sets the selection, clamped to the buffer.
func (e *Editor) Select(start, end int) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sel = clamp(Selection{Start: start, End: end}, utf8.RuneCountInString(e.text))
	return e.sel
}

// Selection returns the current selection.
func (e *Editor) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sel
}

// SelectedText returns the selected runes, or "" for an empty selection.
func (e *Editor) SelectedText() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	runes := []rune(e.text)
	return string(runes[e.sel.Start:e.sel.End])
}

// Theme returns the current theme.
func (e *Editor) Theme() Theme {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.theme
}

// SetTheme switches the theme.
func (e *Editor) SetTheme(t Theme) error {
	if _, ok := themeStyles[t]; !ok {
		return apperror.ValidationFailed("theme", fmt.Sprintf("unknown theme %q", t))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.theme = t
	return nil
}

// ToggleTheme flips between default and dark and returns the new theme.
func (e *Editor) ToggleTheme() Theme {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.theme == ThemeDark {
		e.theme = ThemeDefault
	} else {
		e.theme = ThemeDark
	}
	return e.theme
}

// Stats counts lines and characters (runes) in the buffer.
func (e *Editor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Lines: strings.Count(e.text, "\n") + 1,
		Chars: utf8.RuneCountInString(e.text),
	}
}

// Highlight renders the buffer with syntax highlighting in the current
// theme. format is FormatHTML (an inline-styled fragment) or FormatTerminal
// (256-color ANSI).
func (e *Editor) Highlight(w io.Writer, outFormat string) error {
	e.mu.Lock()
	text, theme := e.text, e.theme
	e.mu.Unlock()

	var f chroma.Formatter
	switch outFormat {
	case FormatHTML:
		f = html.New(html.Standalone(false), html.WithClasses(false))
	case FormatTerminal:
		f = formatters.Get("terminal256")
	default:
		return apperror.ValidationFailed("format",
			fmt.Sprintf("unknown highlight format %q", outFormat))
	}

	style := styles.Get(themeStyles[theme])
	if style == nil {
		style = styles.Fallback
	}

	it, err := e.lexer.Tokenise(nil, text)
	if err != nil {
		return fmt.Errorf("editor: tokenizing: %w", err)
	}
	if err := f.Format(w, style, it); err != nil {
		return fmt.Errorf("editor: highlighting: %w", err)
	}
	return nil
}

// snapshotListeners returns listener funcs in registration order.
// Callers hold e.mu.
func (e *Editor) snapshotListeners() []func(string) {
	ls := make([]listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].id < ls[j].id })

	fns := make([]func(string), len(ls))
	for i, l := range ls {
		fns[i] = l.fn
	}
	return fns
}

func clamp(s Selection, n int) Selection {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End < 0 {
		s.End = 0
	}
	if s.Start > n {
		s.Start = n
	}
	if s.End > n {
		s.End = n
	}
	if s.End < s.Start {
		s.Start, s.End = s.End, s.Start
	}
	return s
}
