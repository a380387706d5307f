package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Placeholder selects the bind parameter syntax of a SQL dialect.
type Placeholder int

const (
	// Dollar produces $1, $2, ... (PostgreSQL).
	Dollar Placeholder = iota
	// Question produces ?, ?, ... (SQLite).
	Question
)

func (p Placeholder) param(i int) string {
	if p == Question {
		return "?"
	}
	return fmt.Sprintf("$%d", i)
}

// InsertConfig defines an insert-if-absent statement.
type InsertConfig struct {
	Table        string   // target table (e.g., "platforms")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
}

// InsertIgnoreSQL builds INSERT ... ON CONFLICT (keys) DO NOTHING for a
// single row. Existing rows are never overwritten; callers detect a skip
// by zero rows affected. Both PostgreSQL and SQLite accept this form.
func InsertIgnoreSQL(cfg InsertConfig, ph Placeholder) (string, error) {
	if cfg.Table == "" {
		return "", eris.New("db: insert: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: insert: no conflict keys specified")
	}

	cols := make(map[string]bool, len(cfg.Columns))
	for _, c := range cfg.Columns {
		cols[c] = true
	}
	for _, k := range cfg.ConflictKeys {
		if !cols[k] {
			return "", eris.Errorf("db: insert: conflict key %q is not an inserted column", k)
		}
	}

	params := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		params[i] = ph.param(i + 1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(params, ", "),
		quoteAndJoin(cfg.ConflictKeys),
	), nil
}

// MustInsertIgnoreSQL is InsertIgnoreSQL for package-level statements.
func MustInsertIgnoreSQL(cfg InsertConfig, ph Placeholder) string {
	q, err := InsertIgnoreSQL(cfg, ph)
	if err != nil {
		panic(err)
	}
	return q
}

// sanitizeTable handles schema-qualified table names like "harvest.platforms".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
