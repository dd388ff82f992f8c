package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/sakif/sql-snippets/internal/apperror"
)

func TestFormat_SelectLayout(t *testing.T) {
	p := New()

	got, err := p.Format("select id, email from accounts where id = 1")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if !strings.HasPrefix(got, "SELECT\n") {
		t.Errorf("Format() does not start with an uppercase SELECT line:\n%s", got)
	}
	for _, want := range []string{"\n  id,\n", "\n  email\n", "\nFROM\n", "\n  accounts\n", "\nWHERE\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "select") || strings.Contains(got, "from") {
		t.Errorf("Format() left lowercase keywords:\n%s", got)
	}
}

func TestFormat_Conditions(t *testing.T) {
	got, err := New().Format("select a from t where a = 1 and b = 2 or c = 3")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(got, "\n  AND ") || !strings.Contains(got, "\n  OR ") {
		t.Errorf("AND/OR not on their own lines:\n%s", got)
	}
}

func TestFormat_MultipleStatements(t *testing.T) {
	got, err := New().Format("select 1; select 2;")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	parts := strings.Split(got, "\n\n")
	if len(parts) != 2 {
		t.Fatalf("got %d blocks, want 2:\n%s", len(parts), got)
	}
	for i, part := range parts {
		if !strings.HasPrefix(part, "SELECT") || !strings.HasSuffix(part, ";") {
			t.Errorf("block %d = %q", i, part)
		}
	}
}

func TestFormat_PreservesCommentsAndStrings(t *testing.T) {
	in := "-- active accounts\nselect name from accounts where note = 'select from where'"

	got, err := New().Format(in)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(got, "-- active accounts") {
		t.Errorf("comment lost:\n%s", got)
	}
	if !strings.Contains(got, "'select from where'") {
		t.Errorf("string literal altered:\n%s", got)
	}
}

func TestFormat_Unchanged(t *testing.T) {
	tests := []string{
		"",
		"   \n\t",
		"-- Enter your SQL query here...",
	}
	for _, in := range tests {
		got, err := New().Format(in)
		if err != nil {
			t.Errorf("Format(%q) error = %v", in, err)
			continue
		}
		if got != in {
			t.Errorf("Format(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestFormat_Garbled(t *testing.T) {
	tests := []string{
		"selec * form users",
		"select from where",
		"select 1; select (",
	}
	for _, in := range tests {
		_, err := New().Format(in)
		if !errors.Is(err, apperror.ErrFormat) {
			t.Errorf("Format(%q) error = %v, want ErrFormat", in, err)
			continue
		}
		if err.Error() == "" {
			t.Errorf("Format(%q) error has no message", in)
		}
	}
}

func TestFormat_ReportsStatementNumber(t *testing.T) {
	_, err := New().Format("select 1; selec 2")
	if err == nil {
		t.Fatal("Format() error = nil")
	}
	if !strings.HasPrefix(err.Error(), "statement 2:") {
		t.Errorf("error = %q, want it to name statement 2", err.Error())
	}
}

// Formatting a formatted statement changes nothing.
func TestFormat_Idempotent(t *testing.T) {
	p := New()
	once, err := p.Format("select a, b from t where a = 1 and b = 2 order by a")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	twice, err := p.Format(once)
	if err != nil {
		t.Fatalf("Format() second pass error = %v", err)
	}
	if once != twice {
		t.Errorf("second pass changed output:\n%s\n---\n%s", once, twice)
	}
}

func TestFormat_QuotedIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "identifier spelling a clause keyword",
			in:   "select `from` from t",
			want: "SELECT\n  `from`\nFROM\n  t",
		},
		{
			name: "case and spaces kept",
			in:   "select a as `x y`, `order` from `my table`",
			want: "SELECT\n  a AS `x y`,\n  `order`\nFROM\n  `my table`",
		},
		{
			name: "qualified name",
			in:   "select `t`.`where` from `t`",
			want: "SELECT\n  `t`.`where`\nFROM\n  `t`",
		},
		{
			name: "backtick inside a string literal",
			in:   "select 'a`b' from t",
			want: "SELECT\n  'a`b'\nFROM\n  t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Format(tt.in)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Format() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSplitQuoted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []segment
	}{
		{
			name: "plain",
			in:   "select 1",
			want: []segment{{text: "select 1"}},
		},
		{
			name: "escaped backtick",
			in:   "select `a``b` x",
			want: []segment{{text: "select "}, {text: "`a``b`", quoted: true}, {text: " x"}},
		},
		{
			name: "inside strings and comments",
			in:   "select 'it`s', \"`q`\" -- `c`\n/* `d` /* `e` */ */ # `f`",
			want: []segment{{text: "select 'it`s', \"`q`\" -- `c`\n/* `d` /* `e` */ */ # `f`"}},
		},
		{
			name: "unterminated",
			in:   "select `abc",
			want: []segment{{text: "select "}, {text: "`abc", quoted: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitQuoted(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("splitQuoted() = %#v, want %#v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// The MySQL grammar behind the syntax check predates common table
// expressions, so WITH queries are rejected rather than re-laid.
func TestFormat_RejectsCommonTableExpressions(t *testing.T) {
	in := "with x as (select 1) select * from x"
	_, err := New().Format(in)
	if !errors.Is(err, apperror.ErrFormat) {
		t.Fatalf("Format(%q) error = %v, want ErrFormat", in, err)
	}
}
