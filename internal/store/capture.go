package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CaptureStatus is the lifecycle state of a capture session.
type CaptureStatus string

const (
	CaptureRunning   CaptureStatus = "running"
	CaptureCompleted CaptureStatus = "completed"
	CaptureAborted   CaptureStatus = "aborted"
	CaptureFailed    CaptureStatus = "failed"
)

// CaptureSession records one run of the dataset builder.
type CaptureSession struct {
	ID         string        `json:"id"`
	Labels     []string      `json:"labels"`
	Status     CaptureStatus `json:"status"`
	Samples    int           `json:"samples"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// CaptureRepository provides access to capture sessions.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture session repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

// Start inserts a running session for labels.
func (r *CaptureRepository) Start(labels []string) (*CaptureSession, error) {
	c := &CaptureSession{
		ID:        uuid.NewString(),
		Labels:    labels,
		Status:    CaptureRunning,
		StartedAt: time.Now(),
	}

	encoded, err := json.Marshal(labels)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(
		`INSERT INTO capture_sessions (id, labels, status, started_at) VALUES (?, ?, ?, ?)`,
		c.ID, string(encoded), string(c.Status), c.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddLabel links a completed label to the session and adds its samples to the total.
func (r *CaptureRepository) AddLabel(sessionID, gestureID string, samples int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO capture_labels (session_id, gesture_id, samples) VALUES (?, ?, ?)`,
		sessionID, gestureID, samples,
	); err != nil {
		return err
	}

	result, err := tx.Exec(
		`UPDATE capture_sessions
		 SET samples = (SELECT COALESCE(SUM(samples), 0) FROM capture_labels WHERE session_id = ?)
		 WHERE id = ?`,
		sessionID, sessionID,
	)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Finish closes a session with its final status.
func (r *CaptureRepository) Finish(id string, status CaptureStatus, cause error) error {
	var msg string
	if cause != nil {
		msg = cause.Error()
	}

	result, err := r.db.Exec(
		`UPDATE capture_sessions SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), msg, time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by ID.
func (r *CaptureRepository) GetByID(id string) (*CaptureSession, error) {
	row := r.db.QueryRow(
		`SELECT id, labels, status, samples, error, started_at, finished_at
		 FROM capture_sessions WHERE id = ?`,
		id,
	)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List retrieves sessions, newest first.
func (r *CaptureRepository) List() ([]*CaptureSession, error) {
	rows, err := r.db.Query(
		`SELECT id, labels, status, samples, error, started_at, finished_at
		 FROM capture_sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*CaptureSession
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, c)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(row scanner) (*CaptureSession, error) {
	c := &CaptureSession{}
	var labels, status string
	var finished sql.NullTime

	if err := row.Scan(&c.ID, &labels, &status, &c.Samples, &c.Error, &c.StartedAt, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labels), &c.Labels); err != nil {
		return nil, err
	}
	c.Status = CaptureStatus(status)
	if finished.Valid {
		c.FinishedAt = &finished.Time
	}
	return c, nil
}
