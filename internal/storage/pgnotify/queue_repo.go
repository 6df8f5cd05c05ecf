package pgnotify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrDuplicateJob — на (delay_signature, channel) уже есть живой job.
// Ожидаемая ситуация при повторных webhook-ах, вызывающий гасит её молча.
var ErrDuplicateJob = errors.New("duplicate notification job")

const jobColumns = `
  id, channel, delay_signature, payload,
  attempt, state, next_attempt_at, lease_expires_at,
  last_error, created_at, updated_at`

// Enqueue создаёт PENDING job. Дубликат по (delay_signature, channel) среди
// живых состояний ловится уникальным частичным индексом, не прикладной логикой.
func (s *Storage) Enqueue(ctx context.Context, job models.NotificationJob) (string, error) {
	if job.Channel == "" {
		return "", errors.New("channel is required")
	}
	if job.DelaySignature == "" {
		return "", errors.New("delay signature is required")
	}

	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal payload")
	}

	now := time.Now().UTC()
	nextAt := job.NextAttemptAt
	if nextAt.IsZero() {
		nextAt = now
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO notification_jobs (
  id, channel, delay_signature, payload,
  attempt, state, next_attempt_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,0,$5,$6,$7,$7)
`, id, job.Channel, job.DelaySignature, payload, models.JobStatePending, nextAt.UTC(), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrDuplicateJob
		}
		return "", errors.Wrap(err, "insert job")
	}

	return id, nil
}

// Claim атомарно забирает один годный job (PENDING либо дозревший
// FAILED_RETRYABLE), переводит его в IN_FLIGHT и вешает lease.
// Нет годных — (nil, nil): poll-семантика, ждать — забота вызывающего.
func (s *Storage) Claim(ctx context.Context, channel string, lease time.Duration) (*models.NotificationJob, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM notification_jobs
WHERE channel = $1
  AND state IN ($2, $3)
  AND next_attempt_at <= $4
ORDER BY next_attempt_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`, channel, models.JobStatePending, models.JobStateFailedRetryable, now)

	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select claimable job")
	}

	leaseUntil := now.Add(lease)
	_, err = tx.Exec(ctx, `
UPDATE notification_jobs
SET state = $2, attempt = attempt + 1, lease_expires_at = $3, updated_at = $4
WHERE id = $1
`, job.ID, models.JobStateInFlight, leaseUntil, now)
	if err != nil {
		return nil, errors.Wrap(err, "lease job")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	job.State = models.JobStateInFlight
	job.Attempt++
	job.LeaseExpiresAt = &leaseUntil
	return job, nil
}

// Ack: IN_FLIGHT -> SUCCEEDED.
func (s *Storage) Ack(ctx context.Context, jobID string) error {
	ct, err := s.db.Exec(ctx, `
UPDATE notification_jobs
SET state = $2, lease_expires_at = NULL, updated_at = now()
WHERE id = $1 AND state = $3
`, jobID, models.JobStateSucceeded, models.JobStateInFlight)
	if err != nil {
		return errors.Wrap(err, "ack job")
	}
	if ct.RowsAffected() == 0 {
		return errors.Errorf("job %s is not in flight", jobID)
	}
	return nil
}

// Nack: IN_FLIGHT -> FAILED_RETRYABLE с backoff-окном, либо DEAD,
// если попытки исчерпаны. Возвращает job в новом состоянии.
func (s *Storage) Nack(ctx context.Context, jobID string, sendErr string) (*models.NotificationJob, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM notification_jobs
WHERE id = $1 AND state = $2
FOR UPDATE
`, jobID, models.JobStateInFlight)

	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Errorf("job %s is not in flight", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select job for nack")
	}

	state := models.JobStateFailedRetryable
	nextAt := now.Add(s.retryDelay(job.Attempt))
	if job.Attempt >= s.maxAttempts {
		state = models.JobStateDead
		nextAt = now
	}

	_, err = tx.Exec(ctx, `
UPDATE notification_jobs
SET state = $2, next_attempt_at = $3, lease_expires_at = NULL, last_error = $4, updated_at = $5
WHERE id = $1
`, job.ID, state, nextAt, sendErr, now)
	if err != nil {
		return nil, errors.Wrap(err, "nack job")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	job.State = state
	job.NextAttemptAt = nextAt
	job.LeaseExpiresAt = nil
	job.LastError = &sendErr
	return job, nil
}

// MarkDead: IN_FLIGHT -> DEAD сразу, попытка на перманентную ошибку
// не тратится (ретрай её всё равно не вылечит).
func (s *Storage) MarkDead(ctx context.Context, jobID string, sendErr string) (*models.NotificationJob, error) {
	row := s.db.QueryRow(ctx, `
UPDATE notification_jobs
SET state = $2, lease_expires_at = NULL, last_error = $3, updated_at = now()
WHERE id = $1 AND state = $4
RETURNING`+jobColumns+`
`, jobID, models.JobStateDead, sendErr, models.JobStateInFlight)

	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Errorf("job %s is not in flight", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mark job dead")
	}
	return job, nil
}

// ReclaimExpiredLeases возвращает в PENDING все IN_FLIGHT job-ы с истёкшим
// lease (воркер умер посреди отправки). Единственный механизм crash recovery.
func (s *Storage) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `
UPDATE notification_jobs
SET state = $1, lease_expires_at = NULL, updated_at = now()
WHERE state = $2 AND lease_expires_at <= $3
`, models.JobStatePending, models.JobStateInFlight, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "reclaim expired leases")
	}
	return ct.RowsAffected(), nil
}

// ListDeadJobs — read-only проекция для оператора. DEAD job-ы не удаляются.
func (s *Storage) ListDeadJobs(ctx context.Context, limit, offset int) ([]*models.NotificationJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+jobColumns+`
FROM notification_jobs
WHERE state = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`, models.JobStateDead, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select dead jobs")
	}
	defer rows.Close()

	var out []*models.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan dead job")
		}
		out = append(out, job)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*models.NotificationJob, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM notification_jobs
WHERE id = $1
`, jobID)

	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select job")
	}
	return job, nil
}

// QueueDepthByChannel — сколько job-ов ждёт отправки (PENDING + FAILED_RETRYABLE).
func (s *Storage) QueueDepthByChannel(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `
SELECT channel, count(*)
FROM notification_jobs
WHERE state IN ($1, $2)
GROUP BY channel
`, models.JobStatePending, models.JobStateFailedRetryable)
	if err != nil {
		return nil, errors.Wrap(err, "select queue depth")
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var channel string
		var n int64
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, errors.Wrap(err, "scan queue depth")
		}
		out[channel] = n
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func scanJob(row pgx.Row) (*models.NotificationJob, error) {
	var j models.NotificationJob
	var payload []byte
	var leaseExpiresAt *time.Time
	var lastError *string
	if err := row.Scan(
		&j.ID, &j.Channel, &j.DelaySignature, &payload,
		&j.Attempt, &j.State, &j.NextAttemptAt, &leaseExpiresAt,
		&lastError, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &j.Payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal payload")
	}
	j.LeaseExpiresAt = leaseExpiresAt
	j.LastError = lastError
	return &j, nil
}
