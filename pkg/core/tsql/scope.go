package tsql

import (
	"sort"
	"strings"
)

// next returns the index of the first significant token at or after i.
// The trailing EOF token is significant, so the result is always valid.
func next(tokens []Token, i int) int {
	for i < len(tokens)-1 && !tokens[i].Significant() {
		i++
	}
	if i >= len(tokens) {
		return len(tokens) - 1
	}
	return i
}

// prev returns the index of the last significant token before i, or -1.
func prev(tokens []Token, i int) int {
	for i--; i >= 0; i-- {
		if tokens[i].Significant() {
			return i
		}
	}
	return -1
}

// matchingParen returns the index of the ")" closing the "(" at open, or -1.
func matchingParen(tokens []Token, open int) int {
	depth := tokens[open].Depth
	for i := open + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Type == TokenRParen && t.Depth == depth {
			return i
		}
		if t.Type == TokenRParen && t.Depth < depth {
			return -1
		}
	}
	return -1
}

// scopeEnd returns the index of the token that terminates the clause scope
// containing tokens[i]: the first unmatched ")", a ";" at the same depth,
// or EOF.
func scopeEnd(tokens []Token, i int) int {
	depth := tokens[i].Depth
	if tokens[i].Type == TokenLParen {
		depth++
	}
	for j := i + 1; j < len(tokens); j++ {
		t := tokens[j]
		switch {
		case t.Type == TokenEOF:
			return j
		case t.Type == TokenRParen && t.Depth < depth:
			return j
		case t.Type == TokenSemicolon && t.Depth <= depth:
			return j
		}
	}
	return len(tokens) - 1
}

// statementStart returns the index of the first significant token of the
// statement containing tokens[i].
func statementStart(tokens []Token, i int) int {
	depth := tokens[i].Depth
	for j := i - 1; j >= 0; j-- {
		t := tokens[j]
		if t.Type == TokenSemicolon && t.Depth <= depth || t.Type == TokenLParen && t.Depth < depth {
			return next(tokens, j+1)
		}
	}
	return next(tokens, 0)
}

// span returns the source text covering the significant tokens in [from, to).
func span(src string, tokens []Token, from, to int) string {
	first := next(tokens, from)
	last := prev(tokens, to)
	if first >= to || last < first {
		return ""
	}
	return src[tokens[first].Pos:tokens[last].End]
}

// significantIn returns the significant tokens in [from, to).
func significantIn(tokens []Token, from, to int) []Token {
	var out []Token
	for i := from; i < to && i < len(tokens); i++ {
		if tokens[i].Significant() && tokens[i].Type != TokenEOF {
			out = append(out, tokens[i])
		}
	}
	return out
}

// splitArgs splits the tokens between the parens at open and close on
// top-level commas, returning [from, to) token ranges.
func splitArgs(tokens []Token, open, close int) [][2]int {
	depth := tokens[open].Depth + 1
	var args [][2]int
	from := open + 1
	for i := open + 1; i < close; i++ {
		if tokens[i].Type == TokenComma && tokens[i].Depth == depth {
			args = append(args, [2]int{from, i})
			from = i + 1
		}
	}
	return append(args, [2]int{from, close})
}

// fragment returns a short excerpt of src starting at pos for error messages.
func fragment(src string, pos, end int) string {
	if end > len(src) {
		end = len(src)
	}
	if end-pos > 60 {
		end = pos + 60
	}
	return strings.Join(strings.Fields(src[pos:end]), " ")
}

// edit replaces src[start:end] with text; start == end inserts.
type edit struct {
	start, end int
	text       string
}

// applyEdits splices non-overlapping edits into src. Unchanged spans are
// copied verbatim.
func applyEdits(src string, edits []edit) string {
	if len(edits) == 0 {
		return src
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.Grow(len(src) + 16*len(edits))
	last := 0
	for _, e := range edits {
		if e.start < last {
			continue
		}
		b.WriteString(src[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(src[last:])
	return b.String()
}

// isPlainIdentifier reports whether s can be written unquoted.
func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// reservedWords are PostgreSQL keywords that cannot serve as bare
// identifiers.
var reservedWords = toSet(
	"all", "analyse", "analyze", "and", "any", "array", "as", "asc", "asymmetric",
	"both", "case", "cast", "check", "collate", "column", "constraint", "create",
	"current_catalog", "current_date", "current_role", "current_time",
	"current_timestamp", "current_user", "default", "deferrable", "desc",
	"distinct", "do", "else", "end", "except", "false", "fetch", "for", "foreign",
	"from", "grant", "group", "having", "in", "initially", "intersect", "into",
	"lateral", "leading", "limit", "localtime", "localtimestamp", "not", "null",
	"offset", "on", "only", "or", "order", "placing", "primary", "references",
	"returning", "select", "session_user", "some", "symmetric", "table", "then",
	"to", "trailing", "true", "union", "unique", "user", "using", "variadic",
	"when", "where", "window", "with",
	// type-reserved in practice
	"authorization", "binary", "collation", "concurrently", "cross", "full",
	"ilike", "inner", "is", "isnull", "join", "left", "like", "natural", "notnull",
	"outer", "overlaps", "right", "similar", "tablesample", "verbose",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func isReserved(word string) bool {
	return reservedWords[strings.ToLower(word)]
}
