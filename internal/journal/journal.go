package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"subject-focus/internal/apiclient"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
)

// Default timeout for journal operations
const defaultTimeout = 5 * time.Second

// FileName is the journal database file inside the data directory.
const FileName = "subject-focus.db"

// Journal records session lifetimes and exported renders so that sessions
// left open by a crashed client can be found and closed later.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the journal at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Journal, error) {
	logging.Info("Journal path: %s", dbPath)

	if err := diagnoseJournalPermissions(dbPath); err != nil {
		logging.Warn("Journal permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors when focusctl
	// and the viewer share the file
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close journal after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, dbPath: dbPath}

	if err := j.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close journal after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	logging.Info("Journal initialized successfully at %s", dbPath)
	return j, nil
}

func (j *Journal) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL DEFAULT '',
		frame_count INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		fps REAL NOT NULL,
		opened_at INTEGER NOT NULL,
		closed_at INTEGER,
		close_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(closed_at) WHERE closed_at IS NULL;

	CREATE TABLE IF NOT EXISTS renders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		frames_processed INTEGER NOT NULL DEFAULT 0,
		output_path TEXT NOT NULL,
		digest TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_renders_session ON renders(session_id);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = j.db.ExecContext(ctx, schema)
	return err
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.dbPath
}

// SessionOpened records a new session. Re-opening a known id resets it to
// open.
func (j *Journal) SessionOpened(ctx context.Context, id, fileName string, meta apiclient.VideoMetadata) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("session_opened", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, file_name, frame_count, width, height, fps, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			frame_count = excluded.frame_count,
			width = excluded.width,
			height = excluded.height,
			fps = excluded.fps,
			opened_at = excluded.opened_at,
			closed_at = NULL,
			close_reason = ''
	`, id, fileName, meta.FrameCount, meta.Width, meta.Height, meta.FPS, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", id, err)
	}
	return nil
}

// SessionClosed marks a session closed. Closing an unknown or already
// closed session is not an error.
func (j *Journal) SessionClosed(ctx context.Context, id, reason string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("session_closed", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = j.db.ExecContext(ctx, `
		UPDATE sessions SET closed_at = ?, close_reason = ?
		WHERE id = ? AND closed_at IS NULL
	`, time.Now().Unix(), reason, id)
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", id, err)
	}
	return nil
}

// RecordRender stores an exported render and returns its id.
func (j *Journal) RecordRender(ctx context.Context, r RenderRecord) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_render", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var res sql.Result
	res, err = j.db.ExecContext(ctx, `
		INSERT INTO renders (session_id, frames_processed, output_path, digest, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.SessionID, r.FramesProcessed, r.OutputPath, r.Digest, r.SizeBytes, created.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record render for %s: %w", r.SessionID, err)
	}
	return res.LastInsertId()
}

// Session returns one session record.
func (j *Journal) Session(ctx context.Context, id string) (*SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := j.db.QueryRowContext(ctx, `
		SELECT id, file_name, frame_count, width, height, fps, opened_at, closed_at, close_reason
		FROM sessions WHERE id = ?
	`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// OpenSessions lists sessions not yet closed, oldest first.
func (j *Journal) OpenSessions(ctx context.Context) ([]SessionRecord, error) {
	return j.listSessions(ctx, "open_sessions", `WHERE closed_at IS NULL`)
}

// Sessions lists every session, newest first.
func (j *Journal) Sessions(ctx context.Context) ([]SessionRecord, error) {
	return j.listSessions(ctx, "sessions", `ORDER BY opened_at DESC, rowid DESC`)
}

func (j *Journal) listSessions(ctx context.Context, op, clause string) (records []SessionRecord, err error) {
	start := time.Now()
	defer func() { recordQuery(op, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if op == "open_sessions" {
		clause += ` ORDER BY opened_at ASC, rowid ASC`
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, file_name, frame_count, width, height, fps, opened_at, closed_at, close_reason
		FROM sessions `+clause)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("failed to close rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		rec, scanErr := scanSession(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		records = append(records, *rec)
	}
	err = rows.Err()
	return records, err
}

// Renders lists the renders of a session, newest first. An empty sessionID
// lists every render.
func (j *Journal) Renders(ctx context.Context, sessionID string) (records []RenderRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("renders", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT id, session_id, frames_processed, output_path, digest, size_bytes, created_at
		FROM renders`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list renders: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("failed to close rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		var r RenderRecord
		var created int64
		if err = rows.Scan(&r.ID, &r.SessionID, &r.FramesProcessed, &r.OutputPath, &r.Digest, &r.SizeBytes, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		records = append(records, r)
	}
	err = rows.Err()
	return records, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var opened int64
	var closed sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.FileName, &rec.FrameCount, &rec.Width, &rec.Height, &rec.FPS,
		&opened, &closed, &rec.CloseReason); err != nil {
		return nil, err
	}
	rec.OpenedAt = time.Unix(opened, 0)
	if closed.Valid {
		t := time.Unix(closed.Int64, 0)
		rec.ClosedAt = &t
	}
	return &rec, nil
}

// recordQuery records journal query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.JournalQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.JournalQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseJournalPermissions checks the journal directory and file permissions
func diagnoseJournalPermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat journal directory: %w", err)
	}

	logging.Debug("Journal directory: %s (mode: %v)", dir, dirInfo.Mode())

	// Check if directory is writable by testing
	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("journal directory not writable: %w", err)
	}
	_ = os.Remove(testFile) // Explicitly ignore cleanup error

	if info, err := os.Stat(dbPath); err == nil {
		logging.Debug("Journal file exists: %s (mode: %v, size: %d bytes)", dbPath, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Journal file is read-only! Mode: %v", info.Mode())
		}
	}

	// A read-only WAL file makes every write fail
	walPath := dbPath + "-wal"
	if walInfo, err := os.Stat(walPath); err == nil && walInfo.Mode().Perm()&0o200 == 0 {
		logging.Warn("WAL file is read-only! Mode: %v - this will cause write failures", walInfo.Mode())
		if chmodErr := os.Chmod(walPath, 0o600); chmodErr != nil {
			logging.Error("Failed to fix WAL file permissions: %v", chmodErr)
		} else {
			logging.Info("Fixed WAL file permissions")
		}
	}

	return nil
}
