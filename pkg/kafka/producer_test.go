package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishBatchEncodesValues(t *testing.T) {
	w := &memWriter{}
	p, err := NewProducer(withWriter(w))
	require.NoError(t, err)

	err = p.PublishBatch(context.Background(), "rows", []Message{
		{Key: []byte("BTC"), Value: map[string]int{"n": 1}, Headers: []kafka.Header{Header("run_id", "r1")}},
		{Key: []byte("ETH"), Value: "raw"},
		{Value: []byte{0x01}},
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "rows", w.msgs[0].Topic)
	assert.Equal(t, "BTC", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "r1", string(w.msgs[0].Headers[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, []byte{0x01}, w.msgs[2].Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishMessageWrapsWriterError(t *testing.T) {
	w := &memWriter{err: errors.New("leader not available")}
	p, err := NewProducer(withWriter(w))
	require.NoError(t, err)

	err = p.PublishMessage(context.Background(), "logs", []string{"x"})
	assert.ErrorIs(t, err, w.err)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression("unknown"))
}
