package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the bundled schema for driver. Every statement is idempotent,
// so it runs on each startup.
func Migrate(ctx context.Context, conn *sql.DB, driver string) error {
	content, err := migrationsFS.ReadFile(fmt.Sprintf("migrations/%s.sql", driver))
	if err != nil {
		return fmt.Errorf("no schema for driver %q: %w", driver, err)
	}

	for _, stmt := range splitStatements(string(content)) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func splitStatements(content string) []string {
	var result []string
	for _, part := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			result = append(result, strings.Join(lines, "\n"))
		}
	}
	return result
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}
