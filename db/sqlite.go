package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ctgenie/ml"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        predicted_label TEXT NOT NULL,
        class_index INTEGER NOT NULL,
        confidence REAL NOT NULL,
        probabilities TEXT NOT NULL,
        features TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS model_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_type VARCHAR(50),
        version VARCHAR(50),
        n_features INTEGER,
        test_accuracy REAL,
        shap_available INTEGER,
        loaded_at DATETIME NOT NULL
    );
    `

// AuditLog records served predictions in SQLite.
type AuditLog struct {
	db  *sql.DB
	now func() time.Time
}

// PredictionRecord is one row of the predictions table.
type PredictionRecord struct {
	ID            int64              `json:"id"`
	RequestID     string             `json:"request_id"`
	Label         string             `json:"prediction_label"`
	ClassIndex    int                `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Features      ml.FeatureVector   `json:"ctg_features"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ModelLoad is one row of the model_log table.
type ModelLoad struct {
	ModelType     string    `json:"model_type"`
	Version       string    `json:"version"`
	NFeatures     int       `json:"n_features"`
	TestAccuracy  *float64  `json:"test_accuracy"`
	ShapAvailable bool      `json:"shap_available"`
	LoadedAt      time.Time `json:"loaded_at"`
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*AuditLog, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection serializes inserts.
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &AuditLog{db: database, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (a *AuditLog) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SavePrediction inserts one served prediction synchronously. Handlers go through Recorder.
func (a *AuditLog) SavePrediction(ctx context.Context, requestID string, features ml.FeatureVector, prediction *ml.Prediction) error {
	if a == nil || a.db == nil {
		return errors.New("database not initialized")
	}
	if prediction == nil {
		return errors.New("prediction required")
	}
	probabilities, err := json.Marshal(prediction.Probabilities)
	if err != nil {
		return err
	}
	encodedFeatures, err := json.Marshal(features)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
        INSERT INTO predictions (
            request_id, predicted_label, class_index, confidence, probabilities, features, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		requestID,
		prediction.Label.String(),
		prediction.ClassIndex,
		prediction.Confidence,
		string(probabilities),
		string(encodedFeatures),
		a.now(),
	)
	return err
}

// RecentPredictions returns up to limit rows, newest first.
func (a *AuditLog) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, request_id, predicted_label, class_index, confidence, probabilities, features, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var r PredictionRecord
		var probabilities, features string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Label, &r.ClassIndex, &r.Confidence,
			&probabilities, &features, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(probabilities), &r.Probabilities); err != nil {
			return nil, fmt.Errorf("decode probabilities for row %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
			return nil, fmt.Errorf("decode features for row %d: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordModelLoad notes which model a process started with.
func (a *AuditLog) RecordModelLoad(ctx context.Context, info ml.ModelInfo) error {
	if a == nil || a.db == nil {
		return errors.New("database not initialized")
	}
	var accuracy sql.NullFloat64
	if info.TestAccuracy != nil {
		accuracy = sql.NullFloat64{Float64: *info.TestAccuracy, Valid: true}
	}
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO model_log (model_type, version, n_features, test_accuracy, shap_available, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		info.ModelType, info.Version, info.NFeatures, accuracy, info.ShapAvailable, a.now())
	return err
}

// ModelLoads lists recorded model loads, newest first.
func (a *AuditLog) ModelLoads(ctx context.Context) ([]ModelLoad, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT model_type, version, n_features, test_accuracy, shap_available, loaded_at
        FROM model_log
        ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loads := make([]ModelLoad, 0)
	for rows.Next() {
		var l ModelLoad
		var accuracy sql.NullFloat64
		if err := rows.Scan(&l.ModelType, &l.Version, &l.NFeatures, &accuracy, &l.ShapAvailable, &l.LoadedAt); err != nil {
			return nil, err
		}
		if accuracy.Valid {
			v := accuracy.Float64
			l.TestAccuracy = &v
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}
