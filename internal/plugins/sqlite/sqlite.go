// Package sqlite provides a sink that writes rows into a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// Sink inserts each row into the configured table, creating it on first
// write from the row's columns.
type Sink struct {
	mu      sync.Mutex
	path    string
	table   string
	db      *sql.DB
	columns []string
}

// New builds a Sink from its properties: "path" (database file) and "table".
func New(props map[string]string) (any, error) {
	path := props["path"]
	if path == "" {
		return nil, fmt.Errorf("sqlite sink requires a path property")
	}
	table := props["table"]
	if table == "" {
		return nil, fmt.Errorf("sqlite sink requires a table property")
	}
	for _, r := range table {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Sink{path: path, table: table}, nil
}

// Write inserts the partition's rows inside one transaction.
func (s *Sink) Write(ctx context.Context, records []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	if err := s.prepare(ctx, records[0]); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(s.columns)), ",")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", s.table, strings.Join(s.columns, ", "), placeholders))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		row, ok := rec.(map[string]any)
		if !ok {
			return fmt.Errorf("sqlite sink: record %T is not a row", rec)
		}
		values := make([]any, len(s.columns))
		for i, column := range s.columns {
			values[i] = fmt.Sprintf("%v", row[column])
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// prepare opens the database and creates the table from the first row's
// columns, sorted for a stable schema.
func (s *Sink) prepare(ctx context.Context, first any) error {
	if s.db != nil {
		return nil
	}
	row, ok := first.(map[string]any)
	if !ok {
		return fmt.Errorf("sqlite sink: record %T is not a row", first)
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return err
	}

	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	ddl := make([]string, len(columns))
	for i, column := range columns {
		ddl[i] = column + " TEXT"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)", s.table, strings.Join(ddl, ", "))); err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.columns = columns
	return nil
}

// Close releases the database handle.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindSink, "sqlite", New)
}
