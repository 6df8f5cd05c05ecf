package pgnotify

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS notification_jobs (
  id UUID PRIMARY KEY,
  channel TEXT NOT NULL,
  delay_signature TEXT NOT NULL,
  payload JSONB NOT NULL,
  attempt INT NOT NULL DEFAULT 0,
  state TEXT NOT NULL,
  next_attempt_at TIMESTAMPTZ NOT NULL,
  lease_expires_at TIMESTAMPTZ NULL,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Главная защита от дублей при конкурентных продьюсерах: на "живые"
		// состояния может существовать максимум один job на (сигнатура, канал).
		`
CREATE UNIQUE INDEX IF NOT EXISTS uq_notification_jobs_live
ON notification_jobs(delay_signature, channel)
WHERE state IN ('PENDING','IN_FLIGHT','FAILED_RETRYABLE')`,
		`CREATE INDEX IF NOT EXISTS idx_notification_jobs_claim ON notification_jobs(channel, state, next_attempt_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_jobs_lease ON notification_jobs(lease_expires_at) WHERE state = 'IN_FLIGHT'`,
		`
CREATE TABLE IF NOT EXISTS delay_signatures (
  delay_signature TEXT PRIMARY KEY,
  first_seen_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS delay_ledger (
  delay_signature TEXT NOT NULL,
  channel TEXT NOT NULL,
  notified_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (delay_signature, channel)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
