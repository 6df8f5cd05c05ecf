package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

func TestProducer_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	require.NoError(t, p.Publish(context.Background(), "notifications.dead", []byte("job-1"), []byte(`{}`)))
	require.Len(t, fw.last, 1)
	require.Equal(t, "notifications.dead", fw.last[0].Topic)
	require.Equal(t, []byte("job-1"), fw.last[0].Key)
}

func TestProducer_PublishError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	p := newProducerWithWriter(fw)

	err := p.Publish(context.Background(), "t", []byte("k"), []byte("v"))
	require.Error(t, err)
}

func TestNewProducer(t *testing.T) {
	require.NotNil(t, NewProducer([]string{"localhost:0"}))
}
