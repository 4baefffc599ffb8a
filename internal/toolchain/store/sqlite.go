// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/toolchain"
)

// SQLite keeps the registry in a SQLite table. Insertion order is kept in
// the position column.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		`CREATE TABLE IF NOT EXISTS toolchains (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			family TEXT NOT NULL,
			root TEXT NOT NULL,
			version TEXT NOT NULL,
			compiler TEXT NOT NULL,
			linker TEXT NOT NULL,
			debugger TEXT NOT NULL,
			detected INTEGER NOT NULL DEFAULT 0,
			added_at TEXT,
			UNIQUE (family, root)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// Load implements toolchain.Store.
func (s *SQLite) Load(ctx context.Context) ([]toolchain.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, family, root, version, compiler, linker, debugger, detected, added_at
		FROM toolchains ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query toolchains: %w", err)
	}
	defer rows.Close()

	var out []toolchain.Descriptor
	for rows.Next() {
		var (
			d        toolchain.Descriptor
			fam      string
			detected int
			addedAt  sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Name, &fam, &d.Root, &d.Version, &d.Compiler, &d.Linker, &d.Debugger, &detected, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan toolchain: %w", err)
		}
		if d.Family, err = family.ParseToolchain(fam); err != nil {
			return nil, fmt.Errorf("toolchain %s: %w", d.ID, err)
		}
		d.Detected = detected != 0
		if addedAt.Valid && addedAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, addedAt.String); err == nil {
				d.AddedAt = t
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Save implements toolchain.Store. The table is rewritten in one transaction.
func (s *SQLite) Save(ctx context.Context, items []toolchain.Descriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM toolchains"); err != nil {
		return fmt.Errorf("failed to clear toolchains: %w", err)
	}
	for i, d := range items {
		var addedAt any
		if !d.AddedAt.IsZero() {
			addedAt = d.AddedAt.UTC().Format(time.RFC3339Nano)
		}
		detected := 0
		if d.Detected {
			detected = 1
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO toolchains
			(id, position, name, family, root, version, compiler, linker, debugger, detected, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, i, d.Name, d.Family.String(), d.Root, d.Version, d.Compiler, d.Linker, d.Debugger, detected, addedAt)
		if err != nil {
			return fmt.Errorf("failed to insert toolchain %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Close implements toolchain.Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
