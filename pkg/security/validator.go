// Package security guards what sqlbridge is allowed to send to a database.
package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
)

// ErrNotReadOnly is wrapped by every rejection of SQLValidator.
var ErrNotReadOnly = errors.New("query is not read-only")

// forbidden - ключевые слова, которые меняют данные, схему или права.
// INTO covers SELECT ... INTO, which creates a table in T-SQL.
var forbidden = map[string]bool{
	// DML
	"INSERT": true, "UPDATE": true, "DELETE": true, "TRUNCATE": true, "MERGE": true, "INTO": true,
	// DDL
	"DROP": true, "CREATE": true, "ALTER": true,
	// DCL
	"GRANT": true, "REVOKE": true, "DENY": true,
	// Процедуры и динамический SQL
	"EXEC": true, "EXECUTE": true, "CALL": true, "SP_EXECUTESQL": true,
	// Транзакции
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVE": true,
	// Прочее
	"BACKUP": true, "RESTORE": true, "DBCC": true, "BULK": true, "OPENROWSET": true, "SHUTDOWN": true,
}

// SQLValidator проверяет SQL запросы на соответствие политикам безопасности.
//
// В safe mode разрешен только один SELECT или WITH запрос без изменяющих
// операций. Проверка идет по токенам, поэтому ключевые слова внутри строк,
// комментариев и [идентификаторов] не мешают.
//
// В unsafe mode все запросы разрешены.
type SQLValidator struct {
	safeMode bool
}

// NewSQLValidator создает новый SQL валидатор.
func NewSQLValidator(safeMode bool) *SQLValidator {
	return &SQLValidator{safeMode: safeMode}
}

// Validate returns an error wrapping ErrNotReadOnly when sql is rejected.
// Templates and translated statements are both accepted as input.
func (v *SQLValidator) Validate(sql string) error {
	if !v.safeMode {
		return nil
	}

	var tokens []tsql.Token
	for _, tok := range tsql.Tokenize(sql) {
		if tok.Significant() && tok.Type != tsql.TokenEOF {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty query", ErrNotReadOnly)
	}

	// 1. Разрешены только SELECT и WITH
	if !tokens[0].IsAny("SELECT", "WITH") {
		return fmt.Errorf("%w: only SELECT and WITH queries allowed in safe mode, got: %s",
			ErrNotReadOnly, queryType(tokens[0]))
	}

	for i, tok := range tokens {
		switch tok.Type {
		case tsql.TokenWord:
			// 2. Запрещенные ключевые слова, кроме имен после точки (t.[delete] или s.Update)
			if forbidden[strings.ToUpper(tok.Literal)] && (i == 0 || tokens[i-1].Type != tsql.TokenDot) {
				return fmt.Errorf("%w: forbidden keyword '%s' found in safe mode", ErrNotReadOnly, strings.ToUpper(tok.Literal))
			}
		case tsql.TokenSemicolon:
			// 3. Одна команда, точка с запятой только в конце
			if i != len(tokens)-1 {
				return fmt.Errorf("%w: multiple statements not allowed in safe mode", ErrNotReadOnly)
			}
		}
	}
	return nil
}

func queryType(tok tsql.Token) string {
	if tok.Type == tsql.TokenWord {
		return strings.ToUpper(tok.Literal)
	}
	return tok.Type.String()
}
