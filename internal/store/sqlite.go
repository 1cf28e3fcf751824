package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// SQLiteBackend persists the pattern document in a local SQLite database.
// Every save rewrites the pattern table inside one transaction, so the table
// always holds a complete document.
type SQLiteBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteBackend opens (or creates) the database at dbPath and runs schema
// migrations.
func NewSQLiteBackend(dbPath string, logger *zap.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for WAL mode simplicity.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, logger: logger}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	if _, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var ver int
	err := b.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&ver)
	if err == sql.ErrNoRows {
		ver = 0
	} else if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	if ver < 1 {
		if err := b.migrateV1(); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBackend) migrateV1() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id               TEXT PRIMARY KEY,
			tool             TEXT NOT NULL,
			category         TEXT NOT NULL,
			shape            TEXT NOT NULL,
			root_cause       TEXT NOT NULL DEFAULT '',
			prevention_steps TEXT NOT NULL DEFAULT '[]',
			observations     INTEGER NOT NULL,
			successes        INTEGER NOT NULL DEFAULT 0,
			confidence       REAL NOT NULL,
			first_seen       TEXT NOT NULL,
			last_seen        TEXT NOT NULL,
			decay_applied_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_tool ON patterns(tool)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_category ON patterns(category)`,
		`INSERT OR REPLACE INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	return nil
}

// Load reads every pattern row into a document. Rows that fail to decode or
// validate are reported as ErrStorageCorrupt.
func (b *SQLiteBackend) Load(ctx context.Context) (*Document, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, tool, category, shape, root_cause, prevention_steps,
		        observations, successes, confidence, first_seen, last_seen, decay_applied_at
		 FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	defer rows.Close()

	doc := NewDocument()
	for rows.Next() {
		var (
			p         pattern.Pattern
			category  string
			shapeJSON string
			stepsJSON string
			firstSeen string
			lastSeen  string
			decayedAt sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Tool, &category, &shapeJSON, &p.RootCause, &stepsJSON,
			&p.Observations, &p.SuccessAfterPrevention, &p.Confidence, &firstSeen, &lastSeen, &decayedAt); err != nil {
			return nil, fmt.Errorf("%w: scan pattern: %v", ErrStorageCorrupt, err)
		}

		p.Category = pattern.ErrorCategory(category)
		if p.Shape, err = pattern.UnmarshalShape([]byte(shapeJSON)); err != nil {
			return nil, fmt.Errorf("%w: pattern %s shape: %v", ErrStorageCorrupt, p.ID, err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &p.PreventionSteps); err != nil {
			return nil, fmt.Errorf("%w: pattern %s steps: %v", ErrStorageCorrupt, p.ID, err)
		}
		if p.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
			return nil, fmt.Errorf("%w: pattern %s first_seen %q: %v", ErrStorageCorrupt, p.ID, firstSeen, err)
		}
		if p.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
			return nil, fmt.Errorf("%w: pattern %s last_seen %q: %v", ErrStorageCorrupt, p.ID, lastSeen, err)
		}
		if decayedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, decayedAt.String)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %s decay_applied_at %q: %v", ErrStorageCorrupt, p.ID, decayedAt.String, err)
			}
			p.DecayAppliedAt = t
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: pattern %s: %v", ErrStorageCorrupt, p.ID, err)
		}
		doc.Put(p.Clone())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	return doc, nil
}

// Save rewrites the pattern table from the document in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, doc *Document) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM patterns"); err != nil {
		return fmt.Errorf("clear patterns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO patterns (id, tool, category, shape, root_cause, prevention_steps,
		                       observations, successes, confidence, first_seen, last_seen, decay_applied_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range doc.Patterns {
		shapeJSON, err := pattern.MarshalShape(p.Shape)
		if err != nil {
			return fmt.Errorf("marshal shape for %s: %w", p.ID, err)
		}
		stepsJSON, err := json.Marshal(p.PreventionSteps)
		if err != nil {
			return fmt.Errorf("marshal steps for %s: %w", p.ID, err)
		}

		var decayedAt any
		if !p.DecayAppliedAt.IsZero() {
			decayedAt = p.DecayAppliedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID,
			p.Tool,
			string(p.Category),
			string(shapeJSON),
			p.RootCause,
			string(stepsJSON),
			p.Observations,
			p.SuccessAfterPrevention,
			p.Confidence,
			p.FirstSeen.UTC().Format(time.RFC3339Nano),
			p.LastSeen.UTC().Format(time.RFC3339Nano),
			decayedAt,
		); err != nil {
			return fmt.Errorf("insert pattern %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
