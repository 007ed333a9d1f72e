package tsql

import (
	"fmt"
	"strings"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenSpace
	TokenComment
	TokenString       // 'text', N'text', $tag$text$tag$
	TokenQuotedIdent  // "name"
	TokenBracketIdent // [name]
	TokenParam        // @name
	TokenSysVar       // @@name
	TokenPositional   // $1
	TokenNumber
	TokenWord
	TokenLParen
	TokenRParen
	TokenComma
	TokenSemicolon
	TokenDot
	TokenOperator
)

var tokenNames = [...]string{
	TokenEOF:          "EOF",
	TokenSpace:        "SPACE",
	TokenComment:      "COMMENT",
	TokenString:       "STRING",
	TokenQuotedIdent:  "QUOTED_IDENT",
	TokenBracketIdent: "BRACKET_IDENT",
	TokenParam:        "PARAM",
	TokenSysVar:       "SYSVAR",
	TokenPositional:   "POSITIONAL",
	TokenNumber:       "NUMBER",
	TokenWord:         "WORD",
	TokenLParen:       "(",
	TokenRParen:       ")",
	TokenComma:        ",",
	TokenSemicolon:    ";",
	TokenDot:          ".",
	TokenOperator:     "OPERATOR",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a lexeme with its byte span in the source text.
//
// Depth is the parenthesis nesting level the token sits at. An opening
// parenthesis and its matching closing parenthesis share the same depth,
// one less than the tokens between them.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	End     int
	Depth   int
}

// Is reports whether the token is the given keyword, case-insensitively.
func (t Token) Is(keyword string) bool {
	return t.Type == TokenWord && strings.EqualFold(t.Literal, keyword)
}

// IsAny reports whether the token is one of the given keywords.
func (t Token) IsAny(keywords ...string) bool {
	for _, kw := range keywords {
		if t.Is(kw) {
			return true
		}
	}
	return false
}

// Significant reports whether the token carries syntax, as opposed to
// whitespace or a comment.
func (t Token) Significant() bool {
	return t.Type != TokenSpace && t.Type != TokenComment
}

// Lexer splits query text into tokens without interpreting the grammar.
// It never fails: unterminated strings and comments run to the end of input.
type Lexer struct {
	input   string
	pos     int  // текущая позиция
	readPos int  // следующая позиция для чтения
	ch      byte // текущий символ
	depth   int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// Tokenize returns every token of input, terminated by a TokenEOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	tokens := make([]Token, 0, len(input)/3+1)
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	start := l.pos
	tok := Token{Pos: start, Depth: l.depth}

	switch {
	case l.ch == 0 && l.pos >= len(l.input):
		tok.Type = TokenEOF
		tok.End = start
		return tok
	case isSpace(l.ch):
		for isSpace(l.ch) {
			l.readChar()
		}
		tok.Type = TokenSpace
	case l.ch == '-' && l.peekChar() == '-':
		for l.ch != '\n' && l.pos < len(l.input) {
			l.readChar()
		}
		tok.Type = TokenComment
	case l.ch == '/' && l.peekChar() == '*':
		l.readBlockComment()
		tok.Type = TokenComment
	case l.ch == '\'':
		l.readQuoted('\'')
		tok.Type = TokenString
	case (l.ch == 'N' || l.ch == 'n') && l.peekChar() == '\'':
		l.readChar()
		l.readQuoted('\'')
		tok.Type = TokenString
	case l.ch == '"':
		l.readQuoted('"')
		tok.Type = TokenQuotedIdent
	case l.ch == '[':
		l.readQuoted(']')
		tok.Type = TokenBracketIdent
	case l.ch == '@' && l.peekChar() == '@' && isLetter(l.peekAt(2)):
		l.readChar()
		l.readChar()
		l.readIdentifier()
		tok.Type = TokenSysVar
	case l.ch == '@' && isLetter(l.peekChar()):
		l.readChar()
		l.readIdentifier()
		tok.Type = TokenParam
	case l.ch == '$' && isDigit(l.peekChar()):
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		tok.Type = TokenPositional
	case l.ch == '$' && l.readDollarQuoted():
		tok.Type = TokenString
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		l.readNumber()
		tok.Type = TokenNumber
	case isLetter(l.ch):
		l.readIdentifier()
		tok.Type = TokenWord
	case l.ch == '(':
		l.readChar()
		tok.Type = TokenLParen
		l.depth++
	case l.ch == ')':
		l.readChar()
		tok.Type = TokenRParen
		l.depth--
		tok.Depth = l.depth
	case l.ch == ',':
		l.readChar()
		tok.Type = TokenComma
	case l.ch == ';':
		l.readChar()
		tok.Type = TokenSemicolon
	case l.ch == '.':
		l.readChar()
		tok.Type = TokenDot
	default:
		l.readOperator()
		tok.Type = TokenOperator
	}

	tok.End = l.pos
	tok.Literal = l.input[start:l.pos]
	return tok
}

// readChar читает следующий символ
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	if l.pos > len(l.input) {
		l.pos = len(l.input)
	}
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	return l.peekAt(1)
}

func (l *Lexer) peekAt(n int) byte {
	i := l.pos + n
	if i >= len(l.input) {
		return 0
	}
	return l.input[i]
}

func (l *Lexer) eof() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) readIdentifier() {
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '$' {
		l.readChar()
	}
}

func (l *Lexer) readNumber() {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) ||
		(l.peekChar() == '+' || l.peekChar() == '-') && isDigit(l.peekAt(2))) {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
}

// readQuoted consumes a quoted run ending in closing; a doubled closing
// character is an escape.
func (l *Lexer) readQuoted(closing byte) {
	l.readChar() // opening quote
	for !l.eof() {
		if l.ch == closing {
			if l.peekChar() == closing {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return
		}
		l.readChar()
	}
}

func (l *Lexer) readBlockComment() {
	l.readChar()
	l.readChar()
	nest := 1
	for !l.eof() && nest > 0 {
		switch {
		case l.ch == '*' && l.peekChar() == '/':
			nest--
			l.readChar()
		case l.ch == '/' && l.peekChar() == '*':
			nest++
			l.readChar()
		}
		l.readChar()
	}
}

// readDollarQuoted consumes $tag$...$tag$ and reports whether the input at
// the current position opened one.
func (l *Lexer) readDollarQuoted() bool {
	rest := l.input[l.pos:]
	end := 1
	for end < len(rest) && (isLetter(rest[end]) || isDigit(rest[end])) {
		end++
	}
	if end >= len(rest) || rest[end] != '$' {
		return false
	}
	tag := rest[:end+1]
	closing := strings.Index(rest[len(tag):], tag)
	n := len(rest)
	if closing >= 0 {
		n = len(tag) + closing + len(tag)
	}
	for i := 0; i < n; i++ {
		l.readChar()
	}
	return true
}

var twoCharOperators = map[string]bool{
	"<>": true, "<=": true, ">=": true, "!=": true, "!<": true, "!>": true,
	"::": true, "||": true, "->": true,
	"+=": true, "-=": true, "*=": true, "/=": true,
}

func (l *Lexer) readOperator() {
	if l.pos+2 <= len(l.input) && twoCharOperators[l.input[l.pos:l.pos+2]] {
		l.readChar()
	}
	l.readChar()
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// isLetter accepts identifier starts; bytes of multi-byte UTF-8 sequences
// count as letters so non-ASCII identifiers stay whole.
func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch == '#' || ch >= 0x80
}
