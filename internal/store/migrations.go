package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Gestures table - one row per label with its dataset size
		`CREATE TABLE IF NOT EXISTS gestures (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL UNIQUE,
			samples INTEGER NOT NULL DEFAULT 0,
			captured INTEGER NOT NULL DEFAULT 0,
			augmented INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Capture sessions table - one row per `mudra capture` run
		`CREATE TABLE IF NOT EXISTS capture_sessions (
			id TEXT PRIMARY KEY,
			labels TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'aborted', 'failed')),
			samples INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Labels completed within a capture session
		`CREATE TABLE IF NOT EXISTS capture_labels (
			session_id TEXT NOT NULL REFERENCES capture_sessions(id) ON DELETE CASCADE,
			gesture_id TEXT NOT NULL REFERENCES gestures(id) ON DELETE CASCADE,
			samples INTEGER NOT NULL,
			PRIMARY KEY (session_id, gesture_id)
		)`,

		// Training runs table - one row per `mudra train` run
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')),
			labels TEXT NOT NULL DEFAULT '[]',
			train_size INTEGER NOT NULL DEFAULT 0,
			val_size INTEGER NOT NULL DEFAULT 0,
			epochs INTEGER NOT NULL DEFAULT 0,
			loss REAL NOT NULL DEFAULT 0,
			accuracy REAL NOT NULL DEFAULT 0,
			val_loss REAL NOT NULL DEFAULT 0,
			val_accuracy REAL NOT NULL DEFAULT 0,
			model_path TEXT NOT NULL DEFAULT '',
			encoder_path TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_capture_labels_gesture_id ON capture_labels(gesture_id)`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
