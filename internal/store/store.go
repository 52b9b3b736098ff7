// Package store implements the broker-side persistence named in spec §6:
// session metadata, and sealed offer/answer envelopes with a TTL, at
// most one per (session, handshake-id, kind). Envelopes are not keyed
// by target peer, so one target peer can hold several outstanding
// offers under different handshake ids. Schema is applied via embedded, sorted .sql migrations
// tracked in a schema_migrations table, the same shape used by the
// collaborator stack's own relay store.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the broker's session/envelope persistence layer.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Session is a row of broker-visible session metadata. The broker never
// stores the plaintext passphrase -- authentication happens end-to-end
// via the sealed envelopes (spec §4.5-§4.6), not at the broker.
type Session struct {
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateSession inserts a new session row with the given TTL, or
// refreshes the TTL of an existing one.
func (s *Store) CreateSession(sessionID string, ttl time.Duration) (Session, error) {
	now := time.Now().UTC()
	sess := Session{SessionID: sessionID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, created_at, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET expires_at = excluded.expires_at`,
		sess.SessionID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession fetches a session row. The caller is responsible for
// checking ExpiresAt; GetSession does not delete on read.
func (s *Store) GetSession(sessionID string) (Session, bool, error) {
	var sess Session
	err := s.db.QueryRow(
		`SELECT session_id, created_at, expires_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&sess.SessionID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("get session: %w", err)
	}
	return sess, true, nil
}

// SweepExpired deletes sessions whose TTL has elapsed and envelopes
// whose own TTL has elapsed, and returns the number of sessions
// deleted. An envelope outlives its session until its own TTL elapses.
// Intended to run on a ticker in the broker server.
func (s *Store) SweepExpired() (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM envelopes WHERE expires_at < ?`, now); err != nil {
		return 0, fmt.Errorf("sweep envelopes: %w", err)
	}
	return res.RowsAffected()
}

// PutEnvelope stores the sole outstanding sealed offer/answer for
// (sessionID, handshakeID, kind), overwriting any previous one.
func (s *Store) PutEnvelope(sessionID, handshakeID, kind, targetPeer, sealed string, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl)
	_, err := s.db.Exec(
		`INSERT INTO envelopes (session_id, handshake_id, kind, target_peer, sealed, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, handshake_id, kind) DO UPDATE SET
			target_peer = excluded.target_peer,
			sealed = excluded.sealed,
			expires_at = excluded.expires_at`,
		sessionID, handshakeID, kind, targetPeer, sealed, expires,
	)
	if err != nil {
		return fmt.Errorf("put envelope: %w", err)
	}
	return nil
}

// TakeEnvelope fetches and deletes (fetch-once) the queued sealed
// envelope for (sessionID, handshakeID, kind): delivered offers are
// removed from the queue on fetch (spec §4.5).
func (s *Store) TakeEnvelope(sessionID, handshakeID, kind string) (sealed string, ok bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`SELECT sealed FROM envelopes WHERE session_id = ? AND handshake_id = ? AND kind = ?`,
		sessionID, handshakeID, kind,
	).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take envelope: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM envelopes WHERE session_id = ? AND handshake_id = ? AND kind = ?`,
		sessionID, handshakeID, kind,
	); err != nil {
		return "", false, fmt.Errorf("delete envelope: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return sealed, true, nil
}
