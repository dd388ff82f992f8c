// Package format pretty-prints SQL text.
//
// Two libraries split the work:
//   - chroma's MySQL lexer tokenizes the text. Layout works on those tokens,
//     so comments and literal spelling survive untouched.
//   - sqlparser checks that every statement is syntactically valid MySQL.
//     Its AST is not used for output; printing from it would drop comments.
//
// Format is pure: the same input always yields the same output or the same
// error, and nothing outside the call is touched.
package format

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/xwb1989/sqlparser"

	"github.com/sakif/sql-snippets/internal/apperror"
)

// Dialect is the lexer the printer and the editor highlighter share.
const Dialect = "mysql"

// Formatter formats SQL text.
type Formatter interface {
	Format(sql string) (string, error)
}

// Printer is the default Formatter: uppercase keywords, one clause per line,
// clause bodies indented two spaces, one blank line between statements.
type Printer struct {
	lexer chroma.Lexer
}

var _ Formatter = (*Printer)(nil)

// New returns a Printer for the MySQL dialect.
func New() *Printer {
	return &Printer{lexer: Lexer()}
}

// Lexer returns the MySQL lexer, or chroma's plain-text fallback if the
// registry does not have it.
func Lexer() chroma.Lexer {
	l := lexers.Get(Dialect)
	if l == nil {
		l = lexers.Fallback
	}
	return l
}

// Format returns sql pretty-printed. Blank and comment-only input comes back
// unchanged. If any statement fails to parse, Format returns an
// apperror.ErrFormat error carrying the parser's message and the input is
// not partially formatted.
func (p *Printer) Format(sql string) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return sql, nil
	}

	words, err := p.tokenize(sql)
	if err != nil {
		return "", apperror.FormatFailed("failed to tokenize SQL", err)
	}

	stmts := splitStatements(words)
	if allCommentOnly(stmts) {
		return sql, nil
	}

	var toParse int
	for _, st := range stmts {
		if !st.commentOnly() {
			toParse++
		}
	}

	n, parsed := 0, 0
	for i := range stmts {
		if stmts[i].commentOnly() {
			continue
		}
		n++
		parsedStmt, err := sqlparser.Parse(stmts[i].source())
		switch {
		case err == nil && parsedStmt == nil:
			// Only comments as far as the parser is concerned.
			stmts[i].passthrough = true
		case err != nil:
			msg := err.Error()
			if toParse > 1 {
				msg = fmt.Sprintf("statement %d: %s", n, msg)
			}
			return "", apperror.FormatFailed(msg, err)
		default:
			parsed++
		}
	}
	if parsed == 0 {
		return sql, nil
	}

	blocks := make([]string, 0, len(stmts))
	for _, st := range stmts {
		out := layout(st.words)
		if st.passthrough {
			out = strings.TrimSpace(st.raw())
		}
		if st.terminated {
			out += ";"
		}
		blocks = append(blocks, out)
	}
	return strings.Join(blocks, "\n\n"), nil
}

// =========================================================================
// TOKENS
// =========================================================================

type kind int

const (
	kindWord kind = iota // identifiers, numbers, operators
	kindKeyword
	kindString
	kindComment
	kindPunct
	// kindQuoted is a backtick-quoted identifier, printed as written.
	kindQuoted
)

// word is one non-whitespace lexeme.
type word struct {
	text    string
	kind    kind
	space   bool // whitespace preceded it in the input
	newline bool // that whitespace contained a line break
}

// tokenize runs the lexer and folds its tokens into words. Adjacent string
// and comment fragments merge; punctuation splits into single characters.
// Backtick-quoted identifiers never reach the lexer, which would split them
// into operators and keywords; each becomes one kindQuoted word as written.
func (p *Printer) tokenize(sql string) ([]word, error) {
	var (
		words   []word
		space   bool
		newline bool
	)
	for _, seg := range splitQuoted(sql) {
		if seg.quoted {
			words = append(words, word{text: seg.text, kind: kindQuoted, space: space, newline: newline})
			space, newline = false, false
			continue
		}

		it, err := p.lexer.Tokenise(nil, seg.text)
		if err != nil {
			return nil, err
		}
		for _, tok := range it.Tokens() {
			if tok.Value == "" {
				continue
			}
			if strings.TrimSpace(tok.Value) == "" {
				space = true
				newline = newline || strings.Contains(tok.Value, "\n")
				continue
			}

			k := classify(tok)
			if n := len(words); n > 0 && !space && mergeable(words[n-1], k) {
				words[n-1].text += tok.Value
				continue
			}

			if k == kindPunct {
				for i, r := range tok.Value {
					words = append(words, word{
						text:    string(r),
						kind:    kindPunct,
						space:   space && i == 0,
						newline: newline && i == 0,
					})
				}
			} else {
				words = append(words, word{text: tok.Value, kind: k, space: space, newline: newline})
			}
			space, newline = false, false
		}
	}
	return words, nil
}

// segment is a run of input that is either plain SQL or exactly one
// backtick-quoted identifier, quotes included.
type segment struct {
	text   string
	quoted bool
}

// splitQuoted cuts sql around backtick-quoted identifiers. Backticks inside
// string literals and comments are left alone; the literal and comment
// rules follow the MySQL lexer so both passes agree on where they end.
// A doubled backtick inside an identifier is an escaped backtick.
func splitQuoted(sql string) []segment {
	var (
		segs  []segment
		start int
	)
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(sql, i, c)
		case c == '#':
			i = skipLine(sql, i)
		case c == '-' && strings.HasPrefix(sql[i:], "--") && i+2 < len(sql) && isSpace(sql[i+2]):
			i = skipLine(sql, i)
		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			i = skipBlockComment(sql, i)
		case c == '`':
			end := skipQuoted(sql, i, '`')
			if i > start {
				segs = append(segs, segment{text: sql[start:i]})
			}
			segs = append(segs, segment{text: sql[i:end], quoted: true})
			i, start = end, end
		default:
			i++
		}
	}
	if start < len(sql) {
		segs = append(segs, segment{text: sql[start:]})
	}
	return segs
}

// skipQuoted returns the index just past the quote q that closes the run
// opened at sql[i]. A doubled q is an escape. Unterminated runs end at len.
func skipQuoted(sql string, i int, q byte) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != q {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}

func skipLine(sql string, i int) int {
	if n := strings.IndexByte(sql[i:], '\n'); n >= 0 {
		return i + n + 1
	}
	return len(sql)
}

// skipBlockComment handles nested /* */ the way the lexer does.
func skipBlockComment(sql string, i int) int {
	depth := 0
	for j := i; j < len(sql); {
		switch {
		case strings.HasPrefix(sql[j:], "/*"):
			depth++
			j += 2
		case strings.HasPrefix(sql[j:], "*/"):
			depth--
			j += 2
			if depth == 0 {
				return j
			}
		default:
			j++
		}
	}
	return len(sql)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// isLineComment reports a "--" or "#" comment, which runs to end of line.
func (w word) isLineComment() bool {
	return w.kind == kindComment && !strings.HasPrefix(w.text, "/*")
}

func classify(tok chroma.Token) kind {
	switch {
	case tok.Type.InCategory(chroma.Comment):
		return kindComment
	case tok.Type.InCategory(chroma.LiteralString):
		return kindString
	case tok.Type.InCategory(chroma.Keyword), tok.Type == chroma.NameConstant:
		return kindKeyword
	case tok.Type == chroma.Punctuation:
		return kindPunct
	default:
		return kindWord
	}
}

// mergeable joins lexer fragments of one string literal or one block
// comment. A line comment ending in a newline is complete.
func mergeable(prev word, k kind) bool {
	if prev.kind != k {
		return false
	}
	switch k {
	case kindString:
		return true
	case kindComment:
		return !strings.HasSuffix(prev.text, "\n")
	default:
		return false
	}
}

// =========================================================================
// STATEMENTS
// =========================================================================

type statement struct {
	words       []word
	terminated  bool // ended with ';'
	passthrough bool // printed as written
}

func (s statement) commentOnly() bool {
	for _, w := range s.words {
		if w.kind != kindComment {
			return false
		}
	}
	return true
}

// raw rebuilds the statement close to how it was written.
func (s statement) raw() string {
	var b strings.Builder
	for _, w := range s.words {
		switch {
		case w.newline:
			b.WriteByte('\n')
		case w.space:
			b.WriteByte(' ')
		}
		b.WriteString(w.text)
	}
	return b.String()
}

// source rebuilds the statement text for the parser.
func (s statement) source() string {
	var b strings.Builder
	for _, w := range s.words {
		if w.space || w.newline {
			b.WriteByte(' ')
		}
		b.WriteString(w.text)
		if w.isLineComment() && !strings.HasSuffix(w.text, "\n") {
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

// splitStatements cuts words at ';' outside parentheses. Empty statements
// (";;" or a trailing ';') are dropped.
func splitStatements(words []word) []statement {
	var (
		out   []statement
		cur   []word
		depth int
	)
	for _, w := range words {
		if w.kind == kindPunct {
			switch w.text {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			case ";":
				if depth == 0 {
					if len(cur) > 0 {
						out = append(out, statement{words: cur, terminated: true})
					}
					cur = nil
					continue
				}
			}
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		out = append(out, statement{words: cur})
	}
	return out
}

func allCommentOnly(stmts []statement) bool {
	for _, st := range stmts {
		if !st.commentOnly() {
			return false
		}
	}
	return true
}
