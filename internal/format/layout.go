package format

import "strings"

const indentUnit = "  "

// clauses lists the keyword sequences that start a clause, longest first so
// "LEFT OUTER JOIN" wins over "LEFT JOIN".
var clauses = [][]string{
	{"LEFT", "OUTER", "JOIN"},
	{"RIGHT", "OUTER", "JOIN"},
	{"FULL", "OUTER", "JOIN"},
	{"INSERT", "INTO"},
	{"DELETE", "FROM"},
	{"GROUP", "BY"},
	{"ORDER", "BY"},
	{"UNION", "ALL"},
	{"LEFT", "JOIN"},
	{"RIGHT", "JOIN"},
	{"INNER", "JOIN"},
	{"CROSS", "JOIN"},
	{"FULL", "JOIN"},
	{"SELECT"},
	{"FROM"},
	{"WHERE"},
	{"HAVING"},
	{"LIMIT"},
	{"OFFSET"},
	{"JOIN"},
	{"UNION"},
	{"UPDATE"},
	{"DELETE"},
	{"SET"},
	{"VALUES"},
}

// listClauses break their top-level comma lists one item per line.
var listClauses = map[string]bool{
	"SELECT":   true,
	"GROUP BY": true,
	"ORDER BY": true,
	"SET":      true,
	"VALUES":   true,
}

// condClauses break top-level AND/OR onto their own lines.
var condClauses = map[string]bool{
	"WHERE":  true,
	"HAVING": true,
}

// printer accumulates the formatted output of one statement.
type printer struct {
	b         strings.Builder
	lineStart bool
	indent    int
	forceGap  bool // next emit gets a leading space even without one in the input
}

func (p *printer) emit(text string, space bool) {
	switch {
	case p.lineStart:
		p.b.WriteString(strings.Repeat(indentUnit, p.indent))
		p.lineStart = false
	case space || p.forceGap:
		p.b.WriteByte(' ')
	}
	p.b.WriteString(text)
	p.forceGap = false
}

func (p *printer) newline() {
	if p.b.Len() > 0 && !p.lineStart {
		p.b.WriteByte('\n')
	}
	p.lineStart = true
	p.forceGap = false
}

// layout prints one statement with clause keywords on their own line and
// clause bodies indented. Parentheses keep their contents inline.
func layout(words []word) string {
	p := &printer{lineStart: true}
	clause := ""
	depth := 0

	for i := 0; i < len(words); i++ {
		w := words[i]

		switch w.kind {
		case kindComment:
			if w.newline {
				p.newline()
			}
			text := strings.TrimRight(w.text, "\r\n")
			p.emit(text, w.space)
			if w.isLineComment() {
				p.newline()
			}
			continue

		case kindPunct:
			switch w.text {
			case "(":
				p.emit("(", w.space)
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
				p.emit(")", false)
			case ",":
				p.emit(",", false)
				if depth == 0 && listClauses[clause] {
					p.newline()
				} else {
					p.forceGap = true
				}
			default:
				p.emit(w.text, w.space)
			}
			continue
		}

		if depth == 0 {
			if seq, n := matchClause(words, i); n > 0 {
				p.indent = 0
				p.newline()
				p.emit(seq, false)
				p.indent = 1
				p.newline()
				clause = seq
				i += n - 1
				continue
			}

			upper := strings.ToUpper(w.text)
			if (upper == "AND" || upper == "OR") && condClauses[clause] && isWordLike(w) {
				p.newline()
				p.emit(upper, false)
				continue
			}
		}

		text := w.text
		if w.kind == kindKeyword {
			text = strings.ToUpper(text)
		}
		p.emit(text, w.space)
	}

	return strings.TrimRight(p.b.String(), " \n")
}

// matchClause reports the clause keyword sequence starting at words[i] and
// how many words it spans, or 0 when none starts there.
func matchClause(words []word, i int) (string, int) {
	for _, seq := range clauses {
		if i+len(seq) > len(words) {
			continue
		}
		ok := true
		for j, kw := range seq {
			w := words[i+j]
			if !isWordLike(w) || !strings.EqualFold(w.text, kw) {
				ok = false
				break
			}
		}
		if ok {
			return strings.Join(seq, " "), len(seq)
		}
	}
	return "", 0
}

// isWordLike is true for keywords and bare identifiers, never for strings
// or comments that merely spell a keyword.
func isWordLike(w word) bool {
	return w.kind == kindKeyword || w.kind == kindWord
}
