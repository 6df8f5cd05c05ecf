package pgnotify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Леджер — единственный источник правды о том, по какой сигнатуре и каналу
// клиент уже уведомлён. Гасит дубли от повторных/перепутанных webhook-ов.

// MarkSeen фиксирует первое появление сигнатуры. Повторные вызовы — no-op.
func (s *Storage) MarkSeen(ctx context.Context, signature string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO delay_signatures (delay_signature, first_seen_at)
VALUES ($1, $2)
ON CONFLICT (delay_signature) DO NOTHING
`, signature, at.UTC())
	return errors.Wrap(err, "mark signature seen")
}

func (s *Storage) FirstSeen(ctx context.Context, signature string) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRow(ctx, `
SELECT first_seen_at FROM delay_signatures WHERE delay_signature = $1
`, signature).Scan(&at)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select first seen")
	}
	return &at, nil
}

func (s *Storage) HasNotified(ctx context.Context, signature, channel string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `
SELECT 1 FROM delay_ledger WHERE delay_signature = $1 AND channel = $2
`, signature, channel).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "select ledger entry")
	}
	return true, nil
}

// RecordNotified идемпотентна: повторная запись по той же паре — no-op,
// не ошибка (диспетчер может писать после успешной отправки дважды).
func (s *Storage) RecordNotified(ctx context.Context, signature, channel string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO delay_signatures (delay_signature, first_seen_at)
VALUES ($1, $2)
ON CONFLICT (delay_signature) DO NOTHING
`, signature, at.UTC())
	if err != nil {
		return errors.Wrap(err, "upsert signature")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO delay_ledger (delay_signature, channel, notified_at)
VALUES ($1, $2, $3)
ON CONFLICT (delay_signature, channel) DO NOTHING
`, signature, channel, at.UTC())
	if err != nil {
		return errors.Wrap(err, "insert ledger entry")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
