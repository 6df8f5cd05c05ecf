package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BearBump/ShipAlert/internal/cache/rediscache"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/BearBump/ShipAlert/internal/services/delaycheck"
	pipelinemocks "github.com/BearBump/ShipAlert/internal/services/pipeline/mocks"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandle_SuppressionCacheShortCircuitsLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	c := rediscache.New(mr.Addr())

	ledger := &pipelinemocks.MockLedger{}
	queue := &pipelinemocks.MockQueue{}
	svc := New(ledger, queue, []string{models.ChannelSMS}, metrics.NewReporter()).
		WithSuppressionCache(c, 10*time.Minute)

	sig := delaycheck.Signature("order-7", "TRK-7", models.DelayReasonDateSlip, 5)
	require.NoError(t, c.Set(context.Background(),
		fmt.Sprintf("notified:%s:%s", sig, models.ChannelSMS), []byte("1"), time.Minute))

	ledger.On("MarkSeen", mock.Anything, sig, mock.Anything).Return(nil).Once()

	require.NoError(t, svc.Handle(context.Background(), delayedMsg()))

	// Кэш сработал: в леджер и очередь не ходили.
	ledger.AssertNotCalled(t, "HasNotified", mock.Anything, mock.Anything, mock.Anything)
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}
