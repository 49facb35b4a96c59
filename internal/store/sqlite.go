// Package store archives transcripts to SQLite. The pipeline treats it as a
// write-only collaborator: per chunk it receives the raw engine transcripts,
// the consolidated result, and the disagreement list.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/transcript"
)

// Session terminal states.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
	StatusTimeout = "timeout"
)

// Summary is the per-session roll-up reported when a session ends.
type Summary struct {
	SessionID     string  `json:"sessionId"`
	Chunks        int64   `json:"chunks"`
	Disagreements int64   `json:"disagreements"`
	AvgConfidence float64 `json:"avgConfidence"`
}

type Store struct {
	db            *sql.DB
	log           zerolog.Logger
	retentionDays int
}

// Open initializes the archive database, creating the schema when absent.
func Open(ctx context.Context, path string, retentionDays int) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{
		db:            db,
		log:           observability.GetLogger().With().Str("component", "store").Logger(),
		retentionDays: retentionDays,
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Prune on start failed")
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    engine_transcripts BLOB,
    consolidated BLOB,
    text TEXT,
    confidence REAL,
    degraded INTEGER NOT NULL DEFAULT 0,
    arbiter TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE(session_id, sequence),
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS disagreements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    position INTEGER NOT NULL,
    options TEXT,
    chosen TEXT,
    resolved_by TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_disagreements_session ON disagreements(session_id, sequence);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a new active session.
func (s *Store) CreateSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, status, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET status=excluded.status, ended_at=NULL`,
		sessionID, StatusActive, time.Now().UTC())
	return err
}

// EndSession marks a session stopped or timed out.
func (s *Store) EndSession(ctx context.Context, sessionID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ? WHERE session_id = ?`,
		status, time.Now().UTC(), sessionID)
	return err
}

// SaveChunk archives one processed chunk: both raw engine transcripts, the
// consolidated result, and every disagreement.
func (s *Store) SaveChunk(ctx context.Context, raws []*transcript.EngineTranscript, result *transcript.ConsolidatedTranscript) error {
	rawBlob, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("marshal engine transcripts: %w", err)
	}
	consBlob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal consolidated transcript: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks(session_id, sequence, engine_transcripts, consolidated, text, confidence, degraded, arbiter, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.SessionID, result.Sequence, rawBlob, consBlob, result.Text, result.Confidence,
		boolToInt(result.Degraded), result.Arbiter, now); err != nil {
		return err
	}
	for _, d := range result.Disagreements {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO disagreements(session_id, sequence, position, options, chosen, resolved_by, created_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			result.SessionID, result.Sequence, d.Position, strings.Join(d.Options, "|"), d.Chosen, string(d.ResolvedBy), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SessionSummary rolls up a session's archived chunks.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (*Summary, error) {
	sum := &Summary{SessionID: sessionID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM chunks WHERE session_id = ?`,
		sessionID).Scan(&sum.Chunks, &sum.AvgConfidence)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM disagreements WHERE session_id = ?`,
		sessionID).Scan(&sum.Disagreements)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// Prune deletes sessions older than the retention window.
func (s *Store) Prune(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Info().Int64("sessions", n).Msg("Pruned expired sessions")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
