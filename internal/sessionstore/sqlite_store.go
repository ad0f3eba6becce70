// Package sessionstore persists per-session view state using SQLite.
// Frames themselves are never stored, only the state needed to restore a
// view and a short log of loaded frames.
package sessionstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/transport"
	"github.com/framescope/server/internal/viewport"
)

// Session is the persisted view state of one viewer.
type Session struct {
	ID       string            `json:"session_id"`
	Colormap string            `json:"colormap"`
	Window   *lut.Window       `json:"window,omitempty"`
	Viewport viewport.Viewport `json:"viewport"`
	// Params are the fetch parameters of the last loaded frame.
	Params    *transport.Params `json:"params,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FrameRecord logs one successfully loaded frame.
type FrameRecord struct {
	FrameID     string    `json:"frame_id"`
	SessionID   string    `json:"session_id"`
	Generation  uint64    `json:"generation"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	DType       string    `json:"dtype"`
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store provides persistent storage for sessions using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based session store.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		colormap TEXT NOT NULL,
		window_low REAL,
		window_high REAL,
		viewport_json TEXT NOT NULL,
		params_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS frame_log (
		frame_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		dtype TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		loaded_at TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_frame_log_session ON frame_log(session_id, loaded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession inserts or updates a session. UpdatedAt is set to now.
func (s *Store) SaveSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	viewportJSON, err := json.Marshal(sess.Viewport)
	if err != nil {
		return fmt.Errorf("failed to marshal viewport: %w", err)
	}
	var paramsJSON sql.NullString
	if sess.Params != nil {
		b, err := json.Marshal(sess.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = sql.NullString{String: string(b), Valid: true}
	}
	var low, high sql.NullFloat64
	if sess.Window != nil {
		low = sql.NullFloat64{Float64: sess.Window.Low, Valid: true}
		high = sql.NullFloat64{Float64: sess.Window.High, Valid: true}
	}

	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO sessions (session_id, colormap, window_low, window_high, viewport_json, params_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			colormap = excluded.colormap,
			window_low = excluded.window_low,
			window_high = excluded.window_high,
			viewport_json = excluded.viewport_json,
			params_json = excluded.params_json,
			updated_at = excluded.updated_at
	`,
		sess.ID,
		sess.Colormap,
		low,
		high,
		string(viewportJSON),
		paramsJSON,
		sess.CreatedAt.Format(timeLayout),
		sess.UpdatedAt.Format(timeLayout),
	)
	return err
}

const sessionColumns = `session_id, colormap, window_low, window_high, viewport_json, params_json, created_at, updated_at`

// GetSession retrieves a session by ID. It returns nil, nil when absent.
func (s *Store) GetSession(id string) (*Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions, err := s.scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanSessions(rows)
}

// DeleteSession deletes a session and its frame log.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Delete log first
	if _, err := s.db.Exec("DELETE FROM frame_log WHERE session_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM sessions WHERE session_id = ?", id)
	return err
}

// DeleteExpiredSessions deletes sessions idle for longer than retention.
func (s *Store) DeleteExpiredSessions(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)

	_, err := s.db.Exec(`
		DELETE FROM frame_log WHERE session_id IN (
			SELECT session_id FROM sessions WHERE updated_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecordFrame appends a frame load to the session's log.
func (s *Store) RecordFrame(rec *FrameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO frame_log (frame_id, session_id, generation, width, height, dtype, fingerprint, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.FrameID,
		rec.SessionID,
		int64(rec.Generation),
		rec.Width,
		rec.Height,
		rec.DType,
		rec.Fingerprint,
		rec.LoadedAt.UTC().Format(timeLayout),
	)
	return err
}

// ListFrames returns up to limit log entries of a session, newest first.
func (s *Store) ListFrames(sessionID string, limit int) ([]*FrameRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT frame_id, session_id, generation, width, height, dtype, fingerprint, loaded_at
		FROM frame_log WHERE session_id = ?
		ORDER BY loaded_at DESC, generation DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FrameRecord
	for rows.Next() {
		var rec FrameRecord
		var gen int64
		var loadedAt string
		if err := rows.Scan(&rec.FrameID, &rec.SessionID, &gen, &rec.Width, &rec.Height, &rec.DType, &rec.Fingerprint, &loadedAt); err != nil {
			return nil, err
		}
		rec.Generation = uint64(gen)
		rec.LoadedAt, _ = time.Parse(timeLayout, loadedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		var sess Session
		var low, high sql.NullFloat64
		var viewportJSON string
		var paramsJSON sql.NullString
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&sess.ID,
			&sess.Colormap,
			&low,
			&high,
			&viewportJSON,
			&paramsJSON,
			&createdAtStr,
			&updatedAtStr,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(viewportJSON), &sess.Viewport); err != nil {
			return nil, fmt.Errorf("failed to unmarshal viewport: %w", err)
		}
		if paramsJSON.Valid {
			var p transport.Params
			if err := json.Unmarshal([]byte(paramsJSON.String), &p); err != nil {
				return nil, fmt.Errorf("failed to unmarshal params: %w", err)
			}
			sess.Params = &p
		}
		if low.Valid && high.Valid {
			sess.Window = &lut.Window{Low: low.Float64, High: high.Float64}
		}

		sess.CreatedAt, _ = time.Parse(timeLayout, createdAtStr)
		sess.UpdatedAt, _ = time.Parse(timeLayout, updatedAtStr)

		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}
