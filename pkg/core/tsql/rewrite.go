package tsql

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// Pass is one rewrite step. Passes are pure and leave text without matches
// unchanged.
type Pass func(string) (string, error)

// callAt reports whether tokens[i] is a function name followed by an
// argument list and returns the indices of its parentheses.
func callAt(tokens []Token, i int) (open, close int, ok bool) {
	if tokens[i].Type != TokenWord {
		return 0, 0, false
	}
	if p := prev(tokens, i); p >= 0 && tokens[p].Type == TokenDot {
		return 0, 0, false
	}
	open = next(tokens, i+1)
	if tokens[open].Type != TokenLParen {
		return 0, 0, false
	}
	close = matchingParen(tokens, open)
	return open, close, close > 0
}

// rejectProcedureCalls fails on EXEC/EXECUTE, which PostgreSQL has no
// equivalent for.
func rejectProcedureCalls(src string) (string, error) {
	tokens := Tokenize(src)
	for i, tok := range tokens {
		if !tok.IsAny("EXEC", "EXECUTE") {
			continue
		}
		if p := prev(tokens, i); p >= 0 && (tokens[p].Type == TokenDot ||
			tokens[p].Type == TokenComma || tokens[p].IsAny("GRANT", "REVOKE")) {
			continue
		}

		// EXEC @res = proc
		j := next(tokens, i+1)
		if tokens[j].Type == TokenParam {
			if k := next(tokens, j+1); tokens[k].Literal == "=" {
				j = next(tokens, k+1)
			}
		}
		var name strings.Builder
		for ; j < len(tokens); j++ {
			t := tokens[j]
			if t.Type != TokenWord && t.Type != TokenBracketIdent && t.Type != TokenQuotedIdent && t.Type != TokenDot {
				break
			}
			name.WriteString(t.Literal)
		}
		if name.Len() == 0 {
			return "", sqlerr.Unsupported("EXEC")
		}
		return "", sqlerr.Unsupported("EXEC " + name.String())
	}
	return src, nil
}

var currentTimeFunctions = map[string]string{
	"GETDATE":           "NOW()",
	"SYSDATETIME":       "NOW()",
	"SYSDATETIMEOFFSET": "NOW()",
	"GETUTCDATE":        "(NOW() AT TIME ZONE 'UTC')",
	"SYSUTCDATETIME":    "(NOW() AT TIME ZONE 'UTC')",
}

func rewriteCurrentTime(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if tok.Type != TokenWord {
			continue
		}
		repl, ok := currentTimeFunctions[strings.ToUpper(tok.Literal)]
		if !ok {
			continue
		}
		open, close, ok := callAt(tokens, i)
		if !ok || next(tokens, open+1) != close {
			continue
		}
		edits = append(edits, edit{tok.Pos, tokens[close].End, repl})
	}
	return applyEdits(src, edits), nil
}

var renamedFunctions = map[string]string{
	"ISNULL":     "COALESCE",
	"LEN":        "LENGTH",
	"DATALENGTH": "OCTET_LENGTH",
}

func rewriteFunctionNames(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if tok.Type != TokenWord {
			continue
		}
		upper := strings.ToUpper(tok.Literal)
		if upper == "NEWID" {
			if open, close, ok := callAt(tokens, i); ok && next(tokens, open+1) == close {
				edits = append(edits, edit{tok.Pos, tokens[close].End, "gen_random_uuid()"})
			}
			continue
		}
		repl, ok := renamedFunctions[upper]
		if !ok {
			continue
		}
		if _, _, ok := callAt(tokens, i); ok {
			edits = append(edits, edit{tok.Pos, tok.End, repl})
		}
	}
	return applyEdits(src, edits), nil
}

// datePart is a PostgreSQL interval unit and the multiple of it one
// T-SQL date part represents.
type datePart struct {
	unit   string
	factor int64
}

var dateParts = map[string]datePart{
	"year": {"year", 1}, "yy": {"year", 1}, "yyyy": {"year", 1},
	"quarter": {"month", 3}, "qq": {"month", 3}, "q": {"month", 3},
	"month": {"month", 1}, "mm": {"month", 1}, "m": {"month", 1},
	"dayofyear": {"day", 1}, "dy": {"day", 1}, "y": {"day", 1},
	"day": {"day", 1}, "dd": {"day", 1}, "d": {"day", 1},
	"weekday": {"day", 1}, "dw": {"day", 1}, "w": {"day", 1},
	"week": {"week", 1}, "wk": {"week", 1}, "ww": {"week", 1},
	"hour": {"hour", 1}, "hh": {"hour", 1},
	"minute": {"minute", 1}, "mi": {"minute", 1}, "n": {"minute", 1},
	"second": {"second", 1}, "ss": {"second", 1}, "s": {"second", 1},
	"millisecond": {"millisecond", 1}, "ms": {"millisecond", 1},
	"microsecond": {"microsecond", 1}, "mcs": {"microsecond", 1},
}

func (p datePart) interval(n decimal.Decimal) string {
	n = n.Mul(decimal.NewFromInt(p.factor))
	unit := p.unit + "s"
	if n.Equal(decimal.NewFromInt(1)) {
		unit = p.unit
	}
	return fmt.Sprintf("INTERVAL '%s %s'", n.String(), unit)
}

// rewriteDateAdd turns DATEADD(unit, n, expr) into interval arithmetic.
// Calls are rewritten last-first so nested calls resolve inside out.
func rewriteDateAdd(src string) (string, error) {
	for {
		tokens := Tokenize(src)
		at := -1
		for i := len(tokens) - 1; i >= 0; i-- {
			if tokens[i].Is("DATEADD") {
				if _, _, ok := callAt(tokens, i); ok {
					at = i
					break
				}
			}
		}
		if at < 0 {
			return src, nil
		}
		repl, end, err := dateAdd(src, tokens, at)
		if err != nil {
			return "", err
		}
		src = src[:tokens[at].Pos] + repl + src[end:]
	}
}

func dateAdd(src string, tokens []Token, at int) (string, int, error) {
	open, close, _ := callAt(tokens, at)
	frag := fragment(src, tokens[at].Pos, tokens[close].End)
	args := splitArgs(tokens, open, close)
	if len(args) != 3 {
		return "", 0, sqlerr.Unsupported(frag)
	}

	unitText := strings.ToLower(span(src, tokens, args[0][0], args[0][1]))
	unitText = strings.Trim(unitText, `'"[]`)
	part, ok := dateParts[unitText]
	if !ok {
		return "", 0, sqlerr.Unsupported("DATEADD unit " + unitText)
	}

	amount := significantIn(tokens, args[1][0], args[1][1])
	sign := "+"
	if len(amount) > 0 && (amount[0].Literal == "-" || amount[0].Literal == "+") {
		sign = amount[0].Literal
		amount = amount[1:]
	}
	baseToks := significantIn(tokens, args[2][0], args[2][1])
	if len(amount) == 0 || len(baseToks) == 0 {
		return "", 0, sqlerr.Unsupported(frag)
	}

	base := src[baseToks[0].Pos:baseToks[len(baseToks)-1].End]
	if !isSimpleOperand(baseToks) {
		base = "(" + base + ")"
	}

	var interval string
	if len(amount) == 1 && amount[0].Type == TokenNumber {
		n, err := decimal.NewFromString(amount[0].Literal)
		if err != nil {
			return "", 0, sqlerr.Unsupported(frag)
		}
		interval = part.interval(n)
	} else {
		amt := src[amount[0].Pos:amount[len(amount)-1].End]
		if len(amount) > 1 {
			amt = "(" + amt + ")"
		}
		interval = amt + " * " + part.interval(decimal.NewFromInt(1))
	}
	return base + " " + sign + " " + interval, tokens[close].End, nil
}

// isSimpleOperand reports whether toks form a literal, a (qualified) name,
// a function call or a parenthesized group, which bind tighter than + and -.
func isSimpleOperand(toks []Token) bool {
	if len(toks) == 0 {
		return false
	}
	wholeGroup := func(open int) bool {
		last := toks[len(toks)-1]
		if last.Type != TokenRParen || last.Depth != toks[open].Depth {
			return false
		}
		for k := open + 1; k < len(toks)-1; k++ {
			if toks[k].Type == TokenRParen && toks[k].Depth == toks[open].Depth {
				return false
			}
		}
		return true
	}

	switch toks[0].Type {
	case TokenNumber, TokenString, TokenParam, TokenPositional, TokenSysVar:
		return len(toks) == 1
	case TokenLParen:
		return wholeGroup(0)
	case TokenWord, TokenQuotedIdent, TokenBracketIdent:
	default:
		return false
	}
	i := 1
	for i+1 < len(toks) && toks[i].Type == TokenDot {
		i += 2
	}
	if i == len(toks) {
		return true
	}
	return toks[i].Type == TokenLParen && wholeGroup(i)
}

// rewriteBracketIdentifiers strips the dbo schema and unwraps [name].
func rewriteBracketIdentifiers(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if isDefaultSchema(tok) && i+2 < len(tokens) && tokens[i+1].Type == TokenDot &&
			isNameToken(tokens[i+2]) {
			if p := prev(tokens, i); p < 0 || tokens[p].Type != TokenDot {
				edits = append(edits, edit{tok.Pos, tokens[i+1].End, ""})
				i++
				continue
			}
		}
		if tok.Type != TokenBracketIdent || isSubscript(tokens, i) {
			continue
		}
		edits = append(edits, edit{tok.Pos, tok.End, unbracket(tok.Literal)})
	}
	return applyEdits(src, edits), nil
}

func isDefaultSchema(tok Token) bool {
	switch tok.Type {
	case TokenWord:
		return strings.EqualFold(tok.Literal, "dbo")
	case TokenBracketIdent:
		return strings.EqualFold(tok.Literal, "[dbo]")
	}
	return false
}

func isNameToken(tok Token) bool {
	return tok.Type == TokenWord || tok.Type == TokenBracketIdent || tok.Type == TokenQuotedIdent
}

// isSubscript reports whether the bracket at i is an array subscript such
// as tags[1] rather than a quoted identifier.
func isSubscript(tokens []Token, i int) bool {
	inner := strings.TrimSuffix(strings.TrimPrefix(tokens[i].Literal, "["), "]")
	if inner == "" || isDigit(inner[0]) || inner[0] == '$' || strings.Contains(inner, ":") {
		return true
	}
	if i == 0 || tokens[i-1].End != tokens[i].Pos {
		return false
	}
	switch p := tokens[i-1]; p.Type {
	case TokenWord:
		return !isReserved(p.Literal)
	case TokenQuotedIdent, TokenRParen, TokenBracketIdent, TokenParam, TokenPositional:
		return true
	}
	return false
}

func unbracket(lit string) string {
	inner := strings.TrimPrefix(lit, "[")
	if strings.HasSuffix(inner, "]") {
		inner = inner[:len(inner)-1]
	}
	inner = strings.ReplaceAll(inner, "]]", "]")
	if isPlainIdentifier(inner) {
		if !isReserved(inner) {
			return inner
		}
		// an unquoted reserved name is stored folded to lower case
		return `"` + strings.ToLower(inner) + `"`
	}
	return `"` + strings.ReplaceAll(inner, `"`, `""`) + `"`
}

var serialTypes = map[string]string{
	"INT":      "SERIAL",
	"INTEGER":  "SERIAL",
	"BIGINT":   "BIGSERIAL",
	"SMALLINT": "SMALLSERIAL",
	"TINYINT":  "SMALLSERIAL",
}

// rewriteIdentity replaces an IDENTITY column modifier. Directly after an
// integer type both become the matching serial type; elsewhere the modifier
// becomes GENERATED BY DEFAULT AS IDENTITY.
func rewriteIdentity(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if !tok.Is("IDENTITY") {
			continue
		}
		p := prev(tokens, i)
		if p >= 0 && (tokens[p].Type == TokenDot || tokens[p].Is("AS")) {
			continue
		}

		end := tok.End
		open := next(tokens, i+1)
		if tokens[open].Type != TokenLParen && !identityModifier(tokens, p) {
			// a column or alias named identity
			continue
		}
		if tokens[open].Type == TokenLParen {
			close := matchingParen(tokens, open)
			if close < 0 || !identitySeed(significantIn(tokens, open+1, close)) {
				return "", sqlerr.Unsupported(fragment(src, tok.Pos, tokens[len(tokens)-1].End))
			}
			end = tokens[close].End
		}

		start, repl := tok.Pos, "GENERATED BY DEFAULT AS IDENTITY"
		if p >= 0 {
			if serial, ok := serialTypes[strings.ToUpper(tokens[p].Literal)]; ok && tokens[p].Type == TokenWord {
				start, repl = tokens[p].Pos, serial
			}
		}
		edits = append(edits, edit{start, end, repl})
	}
	return applyEdits(src, edits), nil
}

// identityModifier reports whether a bare IDENTITY after tokens[p] sits in a
// column definition: after an integer type, after DECIMAL or NUMERIC with or
// without precision, or after NOT NULL.
func identityModifier(tokens []Token, p int) bool {
	if p < 0 {
		return false
	}
	switch tok := tokens[p]; tok.Type {
	case TokenRParen:
		// DECIMAL(18, 0) IDENTITY, but not COUNT(*) identity
		depth := 0
		for j := p; j >= 0; j-- {
			switch tokens[j].Type {
			case TokenRParen:
				depth++
			case TokenLParen:
				depth--
			}
			if depth == 0 {
				t := prev(tokens, j)
				return t >= 0 && tokens[t].IsAny("NUMERIC", "DECIMAL")
			}
		}
	case TokenWord:
		_, serial := serialTypes[strings.ToUpper(tok.Literal)]
		return serial || tok.IsAny("NULL", "NUMERIC", "DECIMAL")
	}
	return false
}

// identitySeed accepts an empty list or "seed, increment" with optional signs.
func identitySeed(args []Token) bool {
	if len(args) == 0 {
		return true
	}
	numbers := 0
	expectNumber := true
	for _, t := range args {
		switch {
		case expectNumber && (t.Literal == "-" || t.Literal == "+"):
		case expectNumber && t.Type == TokenNumber:
			numbers++
			expectNumber = false
		case !expectNumber && t.Type == TokenComma:
			expectNumber = true
		default:
			return false
		}
	}
	return numbers == 2 && !expectNumber
}

// rewriteApply converts OUTER/CROSS APPLY to lateral joins. The ON clause
// PostgreSQL requires for LEFT JOIN is added by rewriteLateralJoins.
func rewriteApply(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if !tok.IsAny("OUTER", "CROSS") {
			continue
		}
		j := next(tokens, i+1)
		if !tokens[j].Is("APPLY") {
			continue
		}
		repl := "CROSS JOIN LATERAL"
		if tok.Is("OUTER") {
			repl = "LEFT JOIN LATERAL"
		}
		edits = append(edits, edit{tok.Pos, tokens[j].End, repl})
	}
	return applyEdits(src, edits), nil
}

var outputListEnd = toSet("values", "select", "from", "where", "default", "option")

// rewriteOutput moves an OUTPUT clause of INSERT, UPDATE or DELETE to a
// RETURNING clause at the end of the statement.
func rewriteOutput(src string) (string, error) {
	tokens := Tokenize(src)
	var edits []edit
	for i, tok := range tokens {
		if !tok.Is("OUTPUT") {
			continue
		}
		if p := prev(tokens, i); p >= 0 && (tokens[p].Type == TokenDot ||
			tokens[p].Type == TokenComma || tokens[p].IsAny("SELECT", "AS", "BY")) {
			continue
		}

		verb := ""
		for k := statementStart(tokens, i); k < i; k++ {
			if tokens[k].Depth == tok.Depth && tokens[k].IsAny("INSERT", "UPDATE", "DELETE", "MERGE") {
				verb = strings.ToUpper(tokens[k].Literal)
				break
			}
		}
		switch verb {
		case "":
			continue
		case "MERGE":
			return "", sqlerr.Unsupported("MERGE ... OUTPUT")
		}

		stop := len(tokens) - 1
		terminated := true
	scan:
		for k := i + 1; k < len(tokens); k++ {
			t := tokens[k]
			switch {
			case t.Type == TokenEOF,
				t.Type == TokenRParen && t.Depth < tok.Depth,
				t.Type == TokenSemicolon && t.Depth <= tok.Depth:
				stop = k
				break scan
			case t.Depth != tok.Depth:
			case t.Is("INTO"):
				return "", sqlerr.Unsupported("OUTPUT ... INTO")
			case t.Type == TokenWord && outputListEnd[strings.ToLower(t.Literal)]:
				stop, terminated = k, false
				break scan
			}
		}
		list := significantIn(tokens, i+1, stop)
		if len(list) == 0 {
			return "", sqlerr.Unsupported("OUTPUT")
		}

		listStart, listEnd := list[0].Pos, list[len(list)-1].End
		var inner []edit
		for k := i + 1; k < stop-1; k++ {
			t := tokens[k]
			if !t.IsAny("INSERTED", "DELETED") || tokens[k+1].Type != TokenDot {
				continue
			}
			pseudo := strings.ToUpper(t.Literal)
			if verb == "INSERT" && pseudo == "DELETED" || verb == "DELETE" && pseudo == "INSERTED" ||
				verb == "UPDATE" && pseudo == "DELETED" {
				return "", sqlerr.Unsupported(fmt.Sprintf("OUTPUT %s in %s", pseudo, verb))
			}
			inner = append(inner, edit{t.Pos - listStart, tokens[k+1].End - listStart, ""})
		}
		returning := "RETURNING " + applyEdits(src[listStart:listEnd], inner)

		if terminated {
			edits = append(edits, edit{tok.Pos, listEnd, returning})
			continue
		}
		end := scopeEnd(tokens, i)
		last := prev(tokens, end)
		edits = append(edits,
			edit{tok.Pos, tokens[stop].Pos, ""},
			edit{tokens[last].End, tokens[last].End, " " + returning})
	}
	return applyEdits(src, edits), nil
}
