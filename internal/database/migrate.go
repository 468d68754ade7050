package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var Schema string

// Migrate executes every statement of script in order.
func Migrate(ctx context.Context, db *sql.DB, script string) error {
	for _, stmt := range SplitStatements(script) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed executing statement %q: %w", stmt, err)
		}
	}
	return nil
}

// SplitStatements splits a SQL script on semicolons and drops comment lines
// and empty statements.
func SplitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		lines := strings.Split(stmt, "\n")
		var cleanLines []string
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
				cleanLines = append(cleanLines, line)
			}
		}
		stmt = strings.TrimSpace(strings.Join(cleanLines, "\n"))
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
