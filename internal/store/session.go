package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session is the persisted record of one live stream.
type Session struct {
	ID           string     `json:"id"`
	Transport    string     `json:"transport"`
	ICEDegraded  bool       `json:"ice_degraded"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Frames       int64      `json:"frames"`
	FailedFrames int64      `json:"failed_frames"`
}

// SessionRepository provides access to session records.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, transport, ice_degraded, started_at, frames, failed_frames)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Transport, sess.ICEDegraded, sess.StartedAt.UTC(), sess.Frames, sess.FailedFrames,
	)
	return err
}

// Finish records the end of a session and its final counters.
func (r *SessionRepository) Finish(id string, endedAt time.Time, frames, failed int64) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ?, failed_frames = ? WHERE id = ?`,
		endedAt.UTC(), frames, failed, id,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, transport, ice_degraded, started_at, ended_at, frames, failed_frames
		 FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions, newest first. limit <= 0 means 50.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, transport, ice_degraded, started_at, ended_at, frames, failed_frames
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*Session, error) {
	sess := &Session{}
	var (
		degraded int
		ended    sql.NullTime
	)
	if err := s.Scan(&sess.ID, &sess.Transport, &degraded, &sess.StartedAt, &ended, &sess.Frames, &sess.FailedFrames); err != nil {
		return nil, err
	}
	sess.ICEDegraded = degraded != 0
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}
