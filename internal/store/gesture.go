package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Gesture is a catalog entry for one label in the landmark dataset.
type Gesture struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Samples   int       `json:"samples"`
	Captured  int       `json:"captured"`
	Augmented int       `json:"augmented"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GestureRepository provides access to the label catalog.
type GestureRepository struct {
	db *sql.DB
}

// Gestures returns the gesture repository for this store.
func (s *Store) Gestures() *GestureRepository {
	return &GestureRepository{db: s.db}
}

// Upsert records the sample counts for g.Label, creating the entry on first use.
// Counts replace earlier ones since a capture overwrites the label file.
func (r *GestureRepository) Upsert(g *Gesture) error {
	now := time.Now()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO gestures (id, label, samples, captured, augmented, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET
			samples = excluded.samples,
			captured = excluded.captured,
			augmented = excluded.augmented,
			updated_at = excluded.updated_at`,
		g.ID, g.Label, g.Samples, g.Captured, g.Augmented, now, now,
	)
	if err != nil {
		return err
	}

	stored, err := r.GetByLabel(g.Label)
	if err != nil {
		return err
	}
	*g = *stored
	return nil
}

// GetByLabel retrieves a catalog entry by label.
func (r *GestureRepository) GetByLabel(label string) (*Gesture, error) {
	g := &Gesture{}

	err := r.db.QueryRow(
		`SELECT id, label, samples, captured, augmented, created_at, updated_at
		 FROM gestures WHERE label = ?`,
		label,
	).Scan(&g.ID, &g.Label, &g.Samples, &g.Captured, &g.Augmented, &g.CreatedAt, &g.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return g, nil
}

// List retrieves all catalog entries ordered by label.
func (r *GestureRepository) List() ([]*Gesture, error) {
	rows, err := r.db.Query(
		`SELECT id, label, samples, captured, augmented, created_at, updated_at
		 FROM gestures ORDER BY label`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestures []*Gesture
	for rows.Next() {
		g := &Gesture{}
		if err := rows.Scan(&g.ID, &g.Label, &g.Samples, &g.Captured, &g.Augmented, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		gestures = append(gestures, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return gestures, nil
}

// Delete removes a label from the catalog.
func (r *GestureRepository) Delete(label string) error {
	result, err := r.db.Exec(`DELETE FROM gestures WHERE label = ?`, label)
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
