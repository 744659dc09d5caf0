package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Job statuses. At most one job is in_progress at any instant.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusIdle       = "idle"
	StatusError      = "error"
)

// DefaultTarget is the backfill depth used when a job does not specify one.
const DefaultTarget = 1000

// Job describes what to archive for one channel and how far back.
// Timestamps are unix seconds.
type Job struct {
	ID                 int64   `json:"id"`
	ChannelID          string  `json:"channel_id"`
	PeerTitle          string  `json:"peer_title"`
	PeerType           string  `json:"peer_type"`
	Status             string  `json:"status"`
	LastMessageID      int64   `json:"last_message_id"`
	OldestMessageID    *int64  `json:"oldest_message_id,omitempty"`
	TargetMessageCount int64   `json:"target_message_count"`
	MessageCount       int64   `json:"message_count"`
	LastSyncedAt       *int64  `json:"last_synced_at,omitempty"`
	CreatedAt          int64   `json:"created_at"`
	UpdatedAt          int64   `json:"updated_at"`
	Error              *string `json:"error,omitempty"`
}

const jobColumns = `id, channel_id, peer_title, peer_type, status, last_message_id,
	oldest_message_id, target_message_count, message_count, last_synced_at,
	created_at, updated_at, error`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var (
		j        Job
		oldest   sql.NullInt64
		synced   sql.NullInt64
		errText  sql.NullString
	)
	err := row.Scan(&j.ID, &j.ChannelID, &j.PeerTitle, &j.PeerType, &j.Status,
		&j.LastMessageID, &oldest, &j.TargetMessageCount, &j.MessageCount,
		&synced, &j.CreatedAt, &j.UpdatedAt, &errText)
	if err != nil {
		return nil, err
	}
	if oldest.Valid {
		j.OldestMessageID = &oldest.Int64
	}
	if synced.Valid {
		j.LastSyncedAt = &synced.Int64
	}
	if errText.Valid {
		j.Error = &errText.String
	}
	return &j, nil
}

// UpsertJob creates or re-queues the job for channelID: status returns to
// pending, the error clears and the target updates. Exactly one row exists
// per channel.
func (s *Store) UpsertJob(channelID, peerTitle, peerType string, target int64) (*Job, error) {
	if target <= 0 {
		target = DefaultTarget
	}
	now := time.Now().Unix()

	_, err := s.db.Exec(`
		INSERT INTO jobs (channel_id, peer_title, peer_type, status, target_message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET
			status = excluded.status,
			peer_title = CASE WHEN excluded.peer_title != '' THEN excluded.peer_title ELSE peer_title END,
			peer_type = CASE WHEN excluded.peer_type != '' THEN excluded.peer_type ELSE peer_type END,
			target_message_count = excluded.target_message_count,
			error = NULL,
			updated_at = excluded.updated_at`,
		channelID, peerTitle, peerType, StatusPending, target, now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting job for %s: %w", channelID, err)
	}

	return s.JobByChannel(channelID)
}

// JobByChannel returns the job for channelID, or (nil, nil) when absent.
func (s *Store) JobByChannel(channelID string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE channel_id = ?`, channelID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading job for %s: %w", channelID, err)
	}
	return job, nil
}

// ListJobs returns all jobs, most recently touched first.
func (s *Store) ListJobs() ([]*Job, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextJob returns the oldest waiting job: pending first-come-first-served,
// with in_progress rows included so jobs interrupted by a crash resume.
// Returns (nil, nil) when nothing waits.
func (s *Store) NextJob() (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?) ORDER BY updated_at ASC, id ASC LIMIT 1`,
		StatusPending, StatusInProgress)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("picking next job: %w", err)
	}
	return job, nil
}

// MarkInProgress flips the job to in_progress.
func (s *Store) MarkInProgress(id int64) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		StatusInProgress, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("marking job %d in progress: %w", id, err)
	}
	return nil
}

// JobProgress carries everything a finished (or parked) sync pass persists.
type JobProgress struct {
	PeerTitle       string
	PeerType        string
	Status          string
	LastMessageID   int64
	OldestMessageID *int64
	MessageCount    int64
}

// FinalizeJob persists the outcome of a sync pass and stamps last_synced_at.
// The error column clears; failures go through MarkError instead.
func (s *Store) FinalizeJob(id int64, p JobProgress) error {
	now := time.Now().Unix()
	var oldest sql.NullInt64
	if p.OldestMessageID != nil {
		oldest = sql.NullInt64{Int64: *p.OldestMessageID, Valid: true}
	}
	_, err := s.db.Exec(`UPDATE jobs SET
			peer_title = CASE WHEN ? != '' THEN ? ELSE peer_title END,
			peer_type = CASE WHEN ? != '' THEN ? ELSE peer_type END,
			status = ?,
			last_message_id = ?,
			oldest_message_id = ?,
			message_count = ?,
			last_synced_at = ?,
			updated_at = ?,
			error = NULL
		WHERE id = ?`,
		p.PeerTitle, p.PeerTitle, p.PeerType, p.PeerType, p.Status,
		p.LastMessageID, oldest, p.MessageCount, now, now, id)
	if err != nil {
		return fmt.Errorf("finalizing job %d: %w", id, err)
	}
	return nil
}

// MarkPending parks the job as pending with an informational error text
// (the flood-wait path); the loop picks it up again later.
func (s *Store) MarkPending(id int64, errText string) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusPending, errText, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("parking job %d: %w", id, err)
	}
	return nil
}

// MarkError records a failure. The job stays in the table and is not
// retried until a fresh schedule re-queues it.
func (s *Store) MarkError(id int64, errText string) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusError, errText, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("recording job %d error: %w", id, err)
	}
	return nil
}
