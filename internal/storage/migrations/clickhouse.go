package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	chstore "amm-lab/internal/storage/clickhouse"
)

// ErrQuotedSemicolon is returned for a ClickHouse migration with a ';'
// inside a string literal. Statements are split on ';' before execution.
var ErrQuotedSemicolon = errors.New("semicolon inside string literal")

// RunClickhouseMigrations creates the analytics database named in dsn if
// needed, applies every embedded ClickHouse migration and returns a
// connection to that database. The caller closes it.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	database, err := dsnDatabase(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, database); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, database)
	if err != nil {
		return nil, fmt.Errorf("connect to analytics database %s: %w", database, err)
	}
	if err := applyClickhouse(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// createDatabase connects without a database and creates it.
func createDatabase(ctx context.Context, dsn, database string) error {
	server, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect to clickhouse server: %w", err)
	}
	defer server.Close()

	if err := server.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+database); err != nil {
		return fmt.Errorf("create analytics database %s: %w", database, err)
	}
	return nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn) error {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("list clickhouse migrations: %w", err)
	}
	for _, name := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+name)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if err := checkQuotedSemicolons(string(data)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		// Exec takes a single statement.
		for i, stmt := range statements(string(data)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s statement %d: %w", name, i+1, err)
			}
		}
	}
	return nil
}

// statements drops "--" comment lines and splits the rest on ';'.
// Block comments and quoted semicolons are not understood; migrations
// avoid both, and checkQuotedSemicolons rejects the latter.
func statements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if t := strings.TrimSpace(line); t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, part := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// checkQuotedSemicolons returns ErrQuotedSemicolon when a single-quoted
// literal contains ';'. Doubled quotes ('') are escapes.
func checkQuotedSemicolons(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("offset %d: %w", i, ErrQuotedSemicolon)
			}
		}
	}
	return nil
}

// dsnDatabase returns the database path element of a clickhouse:// DSN.
func dsnDatabase(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	database := strings.Trim(u.Path, "/")
	if database == "" {
		return "", errors.New("clickhouse dsn names no database")
	}
	return database, nil
}
