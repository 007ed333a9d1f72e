package tsql

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// rewriteTop removes SELECT TOP n and appends LIMIT n at the end of that
// SELECT's scope: after its last significant token and before the first
// unmatched ")", ";" or end of text. Depth tracking keeps the LIMIT of a
// subquery inside its parentheses, after its ORDER BY.
func rewriteTop(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if tok.IsAny("UPDATE", "DELETE", "INSERT") {
			if j := next(tokens, i+1); tokens[j].Is("TOP") {
				return "", sqlerr.Unsupported(fragment(src, tok.Pos, tokens[next(tokens, j+1)].End))
			}
			continue
		}
		if !tok.Is("SELECT") {
			continue
		}

		head := i
		j := next(tokens, i+1)
		if tokens[j].IsAny("ALL", "DISTINCT") {
			head, j = j, next(tokens, j+1)
		}
		if !tokens[j].Is("TOP") {
			continue
		}

		count, countEnd, err := topCount(src, tokens, j)
		if err != nil {
			return "", err
		}
		after := next(tokens, countEnd+1)
		if tokens[after].Is("PERCENT") {
			return "", sqlerr.Unsupported("TOP ... PERCENT")
		}
		if tokens[after].Is("WITH") && tokens[next(tokens, after+1)].Is("TIES") {
			return "", sqlerr.Unsupported("TOP ... WITH TIES")
		}

		end := scopeEnd(tokens, i)
		for k := countEnd + 1; k < end; k++ {
			t := tokens[k]
			if t.Depth != tok.Depth {
				continue
			}
			if t.IsAny("UNION", "INTERSECT", "EXCEPT", "LIMIT", "OFFSET") {
				return "", sqlerr.Unsupported("TOP with " + strings.ToUpper(t.Literal))
			}
		}

		last := prev(tokens, end)
		edits = append(edits,
			edit{tokens[head].End, tokens[countEnd].End, ""},
			edit{tokens[last].End, tokens[last].End, " LIMIT " + count})
	}
	return applyEdits(src, edits), nil
}

// topCount reads the row count following TOP at index top and returns it
// with the index of its last token.
func topCount(src string, tokens []Token, top int) (string, int, error) {
	k := next(tokens, top+1)
	switch tokens[k].Type {
	case TokenLParen:
		close := matchingParen(tokens, k)
		if close < 0 {
			return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[top].Pos, len(src)))
		}
		inner := significantIn(tokens, k+1, close)
		if len(inner) == 0 {
			return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[top].Pos, tokens[close].End))
		}
		count := src[inner[0].Pos:inner[len(inner)-1].End]
		if len(inner) > 1 {
			count = "(" + count + ")"
		}
		return count, close, nil
	case TokenNumber, TokenParam, TokenPositional:
		return tokens[k].Literal, k, nil
	}
	return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[top].Pos, tokens[k].End))
}

// paginationStop lists words that end an OFFSET or FETCH expression.
var paginationStop = toSet(
	"fetch", "limit", "offset", "for", "union", "intersect", "except", "option",
	"only", "first", "next", "order", "where", "group", "having", "select", "from",
	"returning", "window",
)

// rowsKeyword scans the expression after tokens[from] for a ROW or ROWS at
// the same depth. It returns that index, or -1 and the index of the token
// that ended the scan.
func rowsKeyword(tokens []Token, from int) (rows, stop int) {
	depth := tokens[from].Depth
	for j := from + 1; j < len(tokens); j++ {
		t := tokens[j]
		switch {
		case t.Type == TokenEOF,
			t.Type == TokenSemicolon && t.Depth <= depth,
			t.Type == TokenRParen && t.Depth < depth:
			return -1, j
		case t.Depth != depth:
		case t.IsAny("ROW", "ROWS"):
			return j, j
		case t.Type == TokenWord && paginationStop[strings.ToLower(t.Literal)]:
			return -1, j
		}
	}
	return -1, len(tokens) - 1
}

// rewriteOffsetFetch converts OFFSET x ROWS [FETCH NEXT y ROWS ONLY] and a
// standalone FETCH FIRST y ROWS ONLY into LIMIT/OFFSET. An OFFSET without
// ROWS is already native and is left alone.
func rewriteOffsetFetch(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if p := prev(tokens, i); p >= 0 && tokens[p].Type == TokenDot {
			continue
		}

		switch {
		case tok.Is("OFFSET"):
			rows, stop := rowsKeyword(tokens, i)
			if rows < 0 {
				if tokens[stop].Is("FETCH") {
					return "", sqlerr.MalformedPagination(fragment(src, tok.Pos, tokens[stop].End))
				}
				continue
			}
			offset := significantIn(tokens, i+1, rows)
			if len(offset) == 0 {
				return "", sqlerr.MalformedPagination(fragment(src, tok.Pos, tokens[rows].End))
			}
			off := expression(src, offset)

			f := next(tokens, rows+1)
			if !tokens[f].Is("FETCH") {
				edits = append(edits, edit{tok.Pos, tokens[rows].End, "OFFSET " + off})
				i = rows
				continue
			}
			count, end, err := fetchCount(src, tokens, f)
			if err != nil {
				return "", err
			}
			text := "LIMIT " + count
			if !isZero(offset) {
				text += " OFFSET " + off
			}
			edits = append(edits, edit{tok.Pos, tokens[end].End, text})
			i = end

		case tok.Is("FETCH"):
			k := next(tokens, i+1)
			if !tokens[k].IsAny("FIRST", "NEXT") {
				continue
			}
			if rows, _ := rowsKeyword(tokens, k); rows < 0 {
				// cursor FETCH NEXT FROM c
				continue
			}
			count, end, err := fetchCount(src, tokens, i)
			if err != nil {
				return "", err
			}
			edits = append(edits, edit{tok.Pos, tokens[end].End, "LIMIT " + count})
			i = end
		}
	}
	return applyEdits(src, edits), nil
}

// fetchCount parses FETCH FIRST|NEXT y ROW[S] ONLY starting at index f and
// returns the count and the index of ONLY.
func fetchCount(src string, tokens []Token, f int) (string, int, error) {
	k := next(tokens, f+1)
	if !tokens[k].IsAny("FIRST", "NEXT") {
		return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[f].Pos, tokens[k].End))
	}
	rows, stop := rowsKeyword(tokens, k)
	if rows < 0 {
		return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[f].Pos, tokens[stop].End))
	}
	count := significantIn(tokens, k+1, rows)
	if len(count) == 0 {
		return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[f].Pos, tokens[rows].End))
	}
	only := next(tokens, rows+1)
	switch {
	case tokens[only].Is("ONLY"):
		return expression(src, count), only, nil
	case tokens[only].Is("WITH"):
		return "", 0, sqlerr.Unsupported("FETCH ... WITH TIES")
	}
	return "", 0, sqlerr.MalformedPagination(fragment(src, tokens[f].Pos, tokens[only].End))
}

// expression returns the source text of toks, parenthesized when it spans
// more than one token.
func expression(src string, toks []Token) string {
	text := src[toks[0].Pos:toks[len(toks)-1].End]
	if len(toks) > 1 && !isSimpleOperand(toks) {
		return "(" + text + ")"
	}
	return text
}

func isZero(toks []Token) bool {
	if len(toks) != 1 || toks[0].Type != TokenNumber {
		return false
	}
	d, err := decimal.NewFromString(toks[0].Literal)
	return err == nil && d.IsZero()
}

// notAlias lists words that may follow a lateral source but cannot be its
// alias.
var notAlias = toSet(
	"on", "using", "left", "right", "inner", "outer", "full", "cross", "join",
	"natural", "where", "group", "order", "having", "limit", "offset", "union",
	"except", "intersect", "window", "fetch", "for", "returning", "select",
	"from", "with", "lateral",
)

// rewriteLateralJoins appends ON true to lateral joins that need a join
// condition and have none. The source is located by its matching closing
// parenthesis, followed by an optional alias and column alias list.
func rewriteLateralJoins(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if !tok.Is("LATERAL") {
			continue
		}
		join := prev(tokens, i)
		if join < 0 || !tokens[join].Is("JOIN") {
			continue
		}
		if kind := prev(tokens, join); kind >= 0 && tokens[kind].IsAny("CROSS", "NATURAL") {
			continue
		}

		close := lateralSourceEnd(tokens, next(tokens, i+1))
		if close < 0 {
			continue
		}
		end := close
		a := next(tokens, close+1)
		switch {
		case tokens[a].Is("AS"):
			end = next(tokens, a+1)
		case isNameToken(tokens[a]) && !notAlias[strings.ToLower(tokens[a].Literal)]:
			end = a
		}
		if end != close {
			if c := next(tokens, end+1); tokens[c].Type == TokenLParen {
				if m := matchingParen(tokens, c); m > 0 {
					end = m
				}
			}
		}
		if n := next(tokens, end+1); tokens[n].IsAny("ON", "USING") {
			continue
		}
		edits = append(edits, edit{tokens[end].End, tokens[end].End, " ON true"})
	}
	return applyEdits(src, edits), nil
}

// lateralSourceEnd returns the index of the ")" ending the lateral source
// that starts at i: a parenthesized subquery or a function call.
func lateralSourceEnd(tokens []Token, i int) int {
	switch tokens[i].Type {
	case TokenLParen:
		return matchingParen(tokens, i)
	case TokenWord, TokenQuotedIdent, TokenBracketIdent:
		k := i
		for d := next(tokens, k+1); tokens[d].Type == TokenDot; d = next(tokens, k+1) {
			k = next(tokens, d+1)
		}
		if open := next(tokens, k+1); tokens[open].Type == TokenLParen {
			return matchingParen(tokens, open)
		}
	}
	return -1
}
