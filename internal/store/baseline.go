package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/cvfighter/internal/calibration"
)

// BaselineRecord is a persisted calibration result.
type BaselineRecord struct {
	ID        string               `json:"id"`
	Baseline  calibration.Baseline `json:"baseline"`
	Samples   int                  `json:"samples"`
	CreatedAt time.Time            `json:"created_at"`
}

// BaselineRepository stores calibration sessions.
type BaselineRepository struct {
	db *sql.DB
}

// Baselines returns the baseline repository for this store.
func (s *Store) Baselines() *BaselineRepository {
	return &BaselineRepository{db: s.db}
}

// Save inserts a calibrated baseline. Uncalibrated baselines are rejected.
func (r *BaselineRepository) Save(b calibration.Baseline, samples int) (*BaselineRecord, error) {
	if !b.Calibrated {
		return nil, errors.New("refusing to save an uncalibrated baseline")
	}

	rec := &BaselineRecord{
		ID:        uuid.New().String(),
		Baseline:  b,
		Samples:   samples,
		CreatedAt: time.Now(),
	}

	_, err := r.db.Exec(
		`INSERT INTO baselines (id, neutral_torso_angle, shoulder_width, torso_length,
		 neutral_hip_height, wrist_neutral_z, samples, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, b.NeutralTorsoAngle, b.ShoulderWidth, b.TorsoLength,
		b.NeutralHipHeight, b.WristNeutralZ, samples, rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// Latest returns the most recent baseline, or ErrNotFound.
func (r *BaselineRepository) Latest() (*BaselineRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, neutral_torso_angle, shoulder_width, torso_length,
		 neutral_hip_height, wrist_neutral_z, samples, created_at
		 FROM baselines ORDER BY rowid DESC LIMIT 1`,
	)

	rec, err := scanBaseline(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns up to limit baselines, newest first.
func (r *BaselineRepository) List(limit int) ([]*BaselineRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, neutral_torso_angle, shoulder_width, torso_length,
		 neutral_hip_height, wrist_neutral_z, samples, created_at
		 FROM baselines ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*BaselineRecord
	for rows.Next() {
		rec, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBaseline(s scanner) (*BaselineRecord, error) {
	rec := &BaselineRecord{}
	b := &rec.Baseline

	err := s.Scan(&rec.ID, &b.NeutralTorsoAngle, &b.ShoulderWidth, &b.TorsoLength,
		&b.NeutralHipHeight, &b.WristNeutralZ, &rec.Samples, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	b.Calibrated = true
	return rec, nil
}
