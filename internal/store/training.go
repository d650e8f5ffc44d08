package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TrainingRun records one run of the classifier trainer.
type TrainingRun struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Labels      []string   `json:"labels"`
	TrainSize   int        `json:"train_size"`
	ValSize     int        `json:"val_size"`
	Epochs      int        `json:"epochs"`
	Loss        float64    `json:"loss"`
	Accuracy    float64    `json:"accuracy"`
	ValLoss     float64    `json:"val_loss"`
	ValAccuracy float64    `json:"val_accuracy"`
	ModelPath   string     `json:"model_path,omitempty"`
	EncoderPath string     `json:"encoder_path,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// TrainingRepository provides access to training runs.
type TrainingRepository struct {
	db *sql.DB
}

// TrainingRuns returns the training run repository for this store.
func (s *Store) TrainingRuns() *TrainingRepository {
	return &TrainingRepository{db: s.db}
}

// Start inserts a running training run.
func (r *TrainingRepository) Start() (*TrainingRun, error) {
	run := &TrainingRun{
		ID:        uuid.NewString(),
		Status:    RunRunning,
		StartedAt: time.Now(),
	}

	_, err := r.db.Exec(
		`INSERT INTO training_runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Finish stores the outcome of run and stamps its finish time.
func (r *TrainingRepository) Finish(run *TrainingRun) error {
	now := time.Now()
	run.FinishedAt = &now

	labels, err := json.Marshal(run.Labels)
	if err != nil {
		return err
	}
	if run.Labels == nil {
		labels = []byte("[]")
	}

	result, err := r.db.Exec(
		`UPDATE training_runs SET status = ?, labels = ?, train_size = ?, val_size = ?, epochs = ?,
			loss = ?, accuracy = ?, val_loss = ?, val_accuracy = ?, model_path = ?, encoder_path = ?,
			error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), string(labels), run.TrainSize, run.ValSize, run.Epochs,
		run.Loss, run.Accuracy, run.ValLoss, run.ValAccuracy, run.ModelPath, run.EncoderPath,
		run.Error, now, run.ID,
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

// GetByID retrieves a training run by ID.
func (r *TrainingRepository) GetByID(id string) (*TrainingRun, error) {
	row := r.db.QueryRow(`SELECT `+trainingColumns+` FROM training_runs WHERE id = ?`, id)
	run, err := scanTraining(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List retrieves training runs, newest first. limit <= 0 returns all.
func (r *TrainingRepository) List(limit int) ([]*TrainingRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT `+trainingColumns+` FROM training_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*TrainingRun
	for rows.Next() {
		run, err := scanTraining(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const trainingColumns = `id, status, labels, train_size, val_size, epochs, loss, accuracy,
	val_loss, val_accuracy, model_path, encoder_path, error, started_at, finished_at`

func scanTraining(row scanner) (*TrainingRun, error) {
	run := &TrainingRun{}
	var status, labels string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &status, &labels, &run.TrainSize, &run.ValSize, &run.Epochs,
		&run.Loss, &run.Accuracy, &run.ValLoss, &run.ValAccuracy, &run.ModelPath, &run.EncoderPath,
		&run.Error, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labels), &run.Labels); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}
