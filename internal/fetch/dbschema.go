package fetch

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/profile"
)

// DefaultExcludedSchemas are the managed-platform schemas that carry no
// project knowledge (the Supabase system set).
var DefaultExcludedSchemas = []string{
	"pg_catalog",
	"information_schema",
	"extensions",
	"graphql",
	"graphql_public",
	"pgbouncer",
	"realtime",
	"storage",
}

// Database dumps a schema with pg_dump, falling back to
// information_schema introspection when the tool is not installed.
type Database struct {
	Runner CommandRunner

	// OpenDB is the introspection seam; defaults to lib/pq.
	OpenDB func(conn string) (*sql.DB, error)
}

func (d *Database) Fetch(ctx context.Context, entry profile.Entry, bundle creds.Bundle) (domain.Artifact, error) {
	exclude := entry.ExcludeSchemas
	if len(exclude) == 0 {
		exclude = DefaultExcludedSchemas
	}

	if _, err := d.Runner.LookPath("pg_dump"); err != nil {
		data, ierr := d.introspect(ctx, bundle.ConnString, exclude)
		if ierr != nil {
			return domain.Artifact{}, &Error{Op: "database schema", Detail: "pg_dump not found and introspection failed: " + ierr.Error()}
		}
		return domain.Artifact{Data: data, Ext: ".sql"}, nil
	}

	args := []string{"--schema-only", "--no-owner", "--no-privileges"}
	for _, s := range exclude {
		args = append(args, "--exclude-schema", s)
	}
	args = append(args, "--dbname", bundle.ConnString)

	stdout, stderr, err := d.Runner.Run(ctx, "pg_dump", args, nil)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = err.Error()
		}
		return domain.Artifact{}, &Error{Op: "pg_dump", Detail: detail}
	}
	return domain.Artifact{Data: stdout, Ext: ".sql"}, nil
}

// introspect produces a textual schema summary from information_schema.
// Less faithful than pg_dump but still a useful artifact.
func (d *Database) introspect(ctx context.Context, conn string, exclude []string) ([]byte, error) {
	open := d.OpenDB
	if open == nil {
		open = func(conn string) (*sql.DB, error) { return sql.Open("postgres", conn) }
	}
	db, err := open(conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	placeholders := make([]string, len(exclude))
	args := make([]any, len(exclude))
	for i, s := range exclude {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := fmt.Sprintf(`
		SELECT table_schema, table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema NOT IN (%s)
		ORDER BY table_schema, table_name, ordinal_position`,
		strings.Join(placeholders, ", "))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buf bytes.Buffer
	buf.WriteString("-- schema summary (pg_dump unavailable; information_schema introspection)\n")
	lastTable := ""
	for rows.Next() {
		var schema, table, column, dataType, nullable string
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable); err != nil {
			return nil, err
		}
		key := schema + "." + table
		if key != lastTable {
			if lastTable != "" {
				buf.WriteString("\n);\n")
			}
			fmt.Fprintf(&buf, "\nCREATE TABLE %s (\n", key)
			lastTable = key
		} else {
			buf.WriteString(",\n")
		}
		null := ""
		if nullable == "NO" {
			null = " NOT NULL"
		}
		fmt.Fprintf(&buf, "    %s %s%s", column, dataType, null)
	}
	if lastTable != "" {
		buf.WriteString("\n);\n")
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
