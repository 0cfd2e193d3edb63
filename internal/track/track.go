// Package track persists archive state in an external tracking store,
// keyed by identity token.
//
// The store backs the --sync-db gate: a file is transferred only when
// its token is flagged as current, and a successful transfer marks the
// token archived. SQLite serves single-host setups; postgres serves a
// shared store.
package track

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ncvault/internal/config"
	"ncvault/internal/domain"
)

// TrackedFile is one row of the tracked_files table
type TrackedFile struct {
	Token       string
	Cached      bool
	CachedPath  string
	Size        int64
	Status      string
	ArchivePath string
	ArchivedAt  time.Time
	Batch       int
}

// Run statuses recorded in archive_runs
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Store wraps the tracking database
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the tracking store described by the config. An
// empty DSN selects a per-user sqlite database under the ncvault data
// directory.
func Open(cfg config.TrackDBConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	dsn := cfg.DSN
	if dsn == "" {
		if driver != "sqlite3" {
			return nil, fmt.Errorf("trackdb driver %s requires a dsn", driver)
		}
		dataDir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dataDir, "ncvault.db")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking store: %w", err)
	}

	if driver == "sqlite3" {
		// Limit connection pool to prevent "database is locked" errors
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tracking tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracked_files (
		token TEXT PRIMARY KEY,
		cached BOOLEAN NOT NULL DEFAULT FALSE,
		cached_path TEXT,
		size BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'new',
		archive_path TEXT,
		archived_at TIMESTAMP,
		batch INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_tracked_files_status ON tracked_files(status);

	CREATE TABLE IF NOT EXISTS archive_runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		batch INTEGER,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		files_seen INTEGER DEFAULT 0,
		files_transferred INTEGER DEFAULT 0,
		files_up_to_date INTEGER DEFAULT 0,
		files_skipped INTEGER DEFAULT 0,
		bytes_transferred BIGINT DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running'
	);

	CREATE INDEX IF NOT EXISTS idx_archive_runs_project ON archive_runs(project, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to the $n style postgres expects
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Register upserts a token as cached at the given path. The harvesting
// side of the store uses this; the archival gate only reads it.
func (s *Store) Register(ctx context.Context, token, cachedPath string, size int64) error {
	query := s.rebind(`
		INSERT INTO tracked_files (token, cached, cached_path, size, status)
		VALUES (?, TRUE, ?, ?, 'cached')
		ON CONFLICT(token) DO UPDATE SET
			cached = TRUE,
			cached_path = excluded.cached_path,
			size = excluded.size,
			status = 'cached'
	`)
	if _, err := s.db.ExecContext(ctx, query, token, cachedPath, size); err != nil {
		return fmt.Errorf("failed to register token: %w", err)
	}
	return nil
}

// Lookup returns the row for a token, or nil when the token is unknown
func (s *Store) Lookup(ctx context.Context, token string) (*TrackedFile, error) {
	query := s.rebind(`
		SELECT token, cached, cached_path, size, status, archive_path, archived_at, batch
		FROM tracked_files
		WHERE token = ?
	`)

	var (
		tf         TrackedFile
		cachedPath sql.NullString
		arcPath    sql.NullString
		arcAt      sql.NullTime
		batch      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&tf.Token, &tf.Cached, &cachedPath, &tf.Size, &tf.Status, &arcPath, &arcAt, &batch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	tf.CachedPath = cachedPath.String
	tf.ArchivePath = arcPath.String
	tf.ArchivedAt = arcAt.Time
	tf.Batch = int(batch.Int64)
	return &tf, nil
}

// MarkArchived records the archived transition for a token. Marking is
// last-write-wins and idempotent; an unknown token is a no-op.
func (s *Store) MarkArchived(ctx context.Context, token, destPath string, modTime time.Time, batch int) error {
	query := s.rebind(`
		UPDATE tracked_files
		SET status = 'archived', archive_path = ?, archived_at = ?, batch = ?
		WHERE token = ?
	`)
	if _, err := s.db.ExecContext(ctx, query, destPath, modTime, batch, token); err != nil {
		return fmt.Errorf("failed to mark token archived: %w", err)
	}
	return nil
}

// BeginRun opens an archive_runs row and returns its id
func (s *Store) BeginRun(ctx context.Context, project string, batch int) (string, error) {
	id := uuid.NewString()
	query := s.rebind(`
		INSERT INTO archive_runs (id, project, batch, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, id, project, batch, time.Now(), RunRunning); err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// FinishRun closes an archive_runs row with final counters
func (s *Store) FinishRun(ctx context.Context, id string, stats domain.RunStats, status string) error {
	query := s.rebind(`
		UPDATE archive_runs
		SET finished_at = ?, files_seen = ?, files_transferred = ?,
		    files_up_to_date = ?, files_skipped = ?, bytes_transferred = ?, status = ?
		WHERE id = ?
	`)
	_, err := s.db.ExecContext(ctx, query,
		time.Now(), stats.Seen, stats.Transferred, stats.UpToDate, stats.Skipped, stats.Bytes, status, id)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// GetRun retrieves one archive_runs row
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := s.rebind(`
		SELECT id, project, batch, started_at, finished_at,
		       files_seen, files_transferred, files_up_to_date, files_skipped,
		       bytes_transferred, status
		FROM archive_runs
		WHERE id = ?
	`)

	var (
		rec      RunRecord
		batch    sql.NullInt64
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Project, &batch, &rec.StartedAt, &finished,
		&rec.FilesSeen, &rec.FilesTransferred, &rec.FilesUpToDate, &rec.FilesSkipped,
		&rec.BytesTransferred, &rec.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rec.Batch = int(batch.Int64)
	rec.FinishedAt = finished.Time
	return &rec, nil
}

// RunRecord is one row of the archive_runs table
type RunRecord struct {
	ID               string
	Project          string
	Batch            int
	StartedAt        time.Time
	FinishedAt       time.Time
	FilesSeen        int
	FilesTransferred int
	FilesUpToDate    int
	FilesSkipped     int
	BytesTransferred int64
	Status           string
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
