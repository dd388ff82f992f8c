package editor

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sql-snippets/internal/apperror"
)

func TestSetValue_NeverNotifies(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("SELECT 1")

	calls := 0
	e.OnChange(func(string) { calls++ })

	e.SetValue("SELECT 2")
	e.SetValue("SELECT 3")

	assert.Equal(t, "SELECT 3", e.Value())
	assert.Zero(t, calls, "programmatic writes must not notify")
}

func TestInput_Notifies(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("")

	var got []string
	e.OnChange(func(text string) { got = append(got, text) })

	assert.True(t, e.Input("S"))
	assert.True(t, e.Input("SE"))
	assert.False(t, e.Input("SE"), "unchanged text is not an edit")

	assert.Equal(t, []string{"S", "SE"}, got)
}

func TestInput_IgnoredWhenDetached(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("SELECT 1")
	e.Detach()

	calls := 0
	e.OnChange(func(string) { calls++ })

	assert.False(t, e.Input("SELECT 2"))
	assert.Equal(t, "SELECT 1", e.Value())
	assert.Zero(t, calls)
	assert.False(t, e.Attached())
}

func TestOnChange_Unsubscribe(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("")

	a, b := 0, 0
	unsubA := e.OnChange(func(string) { a++ })
	e.OnChange(func(string) { b++ })

	e.Input("x")
	unsubA()
	unsubA() // second call is a no-op
	e.Input("xy")

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

// A listener may call back into the editor without deadlocking.
func TestOnChange_ReentrantListener(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("")

	var seen string
	e.OnChange(func(string) { seen = e.Value() })

	e.Input("SELECT 1")
	assert.Equal(t, "SELECT 1", seen)
}

func TestSelection(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("SELECT 1 FROM dual")

	sel := e.Select(7, 8)
	assert.Equal(t, Selection{Start: 7, End: 8}, sel)
	assert.Equal(t, "1", e.SelectedText())

	// Out of range and reversed bounds are clamped.
	assert.Equal(t, Selection{Start: 0, End: 18}, e.Select(100, -5))

	// Shrinking the buffer shrinks the selection.
	e.SetValue("SELECT")
	assert.Equal(t, Selection{Start: 0, End: 6}, e.Selection())
}

func TestTheme(t *testing.T) {
	e := New(ThemeDefault)
	assert.Equal(t, ThemeDefault, e.Theme())

	assert.Equal(t, ThemeDark, e.ToggleTheme())
	assert.Equal(t, ThemeDefault, e.ToggleTheme())

	require.NoError(t, e.SetTheme(ThemeDark))
	assert.Equal(t, ThemeDark, e.Theme())

	err := e.SetTheme("solarized")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Equal(t, ThemeDark, e.Theme())
}

func TestParseTheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Theme
		wantErr bool
	}{
		{"default", ThemeDefault, false},
		{"DARK", ThemeDark, false},
		{" dark ", ThemeDark, false},
		{"neon", "", true},
	}
	for _, tc := range tests {
		got, err := ParseTheme(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestStats(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("SELECT 'ü'\nFROM t")

	assert.Equal(t, Stats{Lines: 2, Chars: 17}, e.Stats())
}

func TestHighlight(t *testing.T) {
	e := New(ThemeDefault)
	e.Attach("SELECT id FROM accounts")

	var buf bytes.Buffer
	require.NoError(t, e.Highlight(&buf, FormatHTML))
	out := buf.String()
	assert.True(t, strings.Contains(out, "<span"), "html output has no spans: %s", out)
	assert.Contains(t, out, "accounts")

	buf.Reset()
	require.NoError(t, e.Highlight(&buf, FormatTerminal))
	assert.Contains(t, buf.String(), "\x1b[")

	err := e.Highlight(&buf, "pdf")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
