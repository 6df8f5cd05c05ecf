package mocks

import (
	"context"
	"time"

	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) HasNotified(ctx context.Context, signature, channel string) (bool, error) {
	args := m.Called(ctx, signature, channel)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) MarkSeen(ctx context.Context, signature string, at time.Time) error {
	args := m.Called(ctx, signature, at)
	return args.Error(0)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, job models.NotificationJob) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}
