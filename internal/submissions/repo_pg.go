package submissions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRecordStore implements RecordStore using Postgres.
type PGRecordStore struct {
	DB *sql.DB
}

// CreateParent inserts a new submission row.
func (r *PGRecordStore) CreateParent(ctx context.Context, sub Submission) error {
	const query = `
INSERT INTO submissions (id, session_id, status, form, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`
	_, err := r.DB.ExecContext(ctx, query,
		sub.ID,
		sub.SessionID,
		sub.Status,
		[]byte(sub.Form),
		sub.CreatedAt,
	)
	return err
}

// UpdateParent replaces the form snapshot of an existing submission.
func (r *PGRecordStore) UpdateParent(ctx context.Context, id string, form json.RawMessage) error {
	const query = `
UPDATE submissions SET form = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, []byte(form))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// LinkArtifact attaches an uploaded file to a submission. The slot is
// unique per submission, so replaying a link is an overwrite, not a
// duplicate.
func (r *PGRecordStore) LinkArtifact(ctx context.Context, artifact Artifact) error {
	const query = `
INSERT INTO submission_artifacts (submission_id, slot, storage_id, file_name, file_type, file_size, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (submission_id, slot)
DO UPDATE SET storage_id = EXCLUDED.storage_id,
              file_name  = EXCLUDED.file_name,
              file_type  = EXCLUDED.file_type,
              file_size  = EXCLUDED.file_size`
	_, err := r.DB.ExecContext(ctx, query,
		artifact.SubmissionID,
		artifact.Slot,
		artifact.StorageID,
		artifact.FileName,
		artifact.FileType,
		artifact.FileSize,
		artifact.CreatedAt,
	)
	return err
}

// FinalizeParent transitions the submission to submitted.
func (r *PGRecordStore) FinalizeParent(ctx context.Context, id string) error {
	const query = `
UPDATE submissions
SET status = $2, submitted_at = COALESCE(submitted_at, NOW()), updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, StatusSubmitted)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteParent removes a submission; artifact rows cascade.
func (r *PGRecordStore) DeleteParent(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	return err
}

// GetParent returns a submission with its artifacts.
func (r *PGRecordStore) GetParent(ctx context.Context, id string) (Submission, error) {
	const query = `
SELECT id, session_id, status, form, created_at, updated_at, submitted_at
FROM submissions
WHERE id = $1`
	var sub Submission
	var form []byte
	var submittedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&sub.ID,
		&sub.SessionID,
		&sub.Status,
		&form,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&submittedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, err
	}
	sub.Form = json.RawMessage(form)
	if submittedAt.Valid {
		t := submittedAt.Time.UTC()
		sub.SubmittedAt = &t
	}

	artifacts, err := r.listArtifacts(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	sub.Artifacts = artifacts
	return sub, nil
}

func (r *PGRecordStore) listArtifacts(ctx context.Context, submissionID string) ([]Artifact, error) {
	const query = `
SELECT submission_id, slot, storage_id, file_name, file_type, file_size, created_at
FROM submission_artifacts
WHERE submission_id = $1
ORDER BY slot`
	rows, err := r.DB.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		var createdAt time.Time
		if err := rows.Scan(&a.SubmissionID, &a.Slot, &a.StorageID, &a.FileName, &a.FileType, &a.FileSize, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = createdAt.UTC()
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
