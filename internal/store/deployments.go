package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Deploy statuses.
const (
	StatusScheduled = "scheduled"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Deployment is a single redeploy triggered by a GitHub push.
type Deployment struct {
	ID              int64      `json:"id"`
	JobID           string     `json:"job_id"`
	Delivery        *string    `json:"delivery,omitempty"`
	CommitHash      *string    `json:"commit_hash,omitempty"`
	Message         *string    `json:"message,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// RecordScheduled records that a restart job was scheduled. When the job
// already finished, only the push metadata is filled in.
func (s *Store) RecordScheduled(ctx context.Context, d *Deployment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (job_id, delivery, commit_hash, message, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			delivery = excluded.delivery,
			commit_hash = excluded.commit_hash,
			message = excluded.message
	`,
		d.JobID,
		d.Delivery,
		d.CommitHash,
		d.Message,
		StatusScheduled,
		s.timestamp(),
	)
	if err != nil {
		return unavailable("insert deployment record", err)
	}
	return nil
}

// CompleteDeployment stores the outcome of a restart job.
func (s *Store) CompleteDeployment(ctx context.Context, jobID, status string, duration time.Duration, errMsg string) error {
	now := s.timestamp()
	seconds := duration.Seconds()

	var errorMessage *string
	if errMsg != "" {
		errorMessage = &errMsg
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (job_id, status, started_at, completed_at, duration_seconds, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			duration_seconds = excluded.duration_seconds,
			error_message = excluded.error_message
	`,
		jobID,
		status,
		now,
		now,
		seconds,
		errorMessage,
	)
	if err != nil {
		return unavailable("update deployment record", err)
	}
	return nil
}

// GetDeployment returns the deployment for a restart job id.
func (s *Store) GetDeployment(ctx context.Context, jobID string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, delivery, commit_hash, message, status,
		       started_at, completed_at, duration_seconds, error_message
		FROM deployments
		WHERE job_id = ?
	`, jobID)

	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("query deployment", err)
	}
	return d, nil
}

// RecentDeployments returns up to limit deployments, newest first.
func (s *Store) RecentDeployments(ctx context.Context, limit int) ([]Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, delivery, commit_hash, message, status,
		       started_at, completed_at, duration_seconds, error_message
		FROM deployments
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, unavailable("query deployment history", err)
	}
	defer rows.Close()

	deployments := []Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, unavailable("scan deployment record", err)
		}
		deployments = append(deployments, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate deployment records", err)
	}

	return deployments, nil
}

// scanDeployment works with both *sql.Row and *sql.Rows.
func scanDeployment(s scanner) (*Deployment, error) {
	var (
		d           Deployment
		startedAt   string
		completedAt sql.NullString
	)

	err := s.Scan(
		&d.ID,
		&d.JobID,
		&d.Delivery,
		&d.CommitHash,
		&d.Message,
		&d.Status,
		&startedAt,
		&completedAt,
		&d.DurationSeconds,
		&d.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if d.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		d.CompletedAt = &t
	}

	return &d, nil
}
