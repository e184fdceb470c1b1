package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "CoinPull/pkg/kafka"
)

type recordingProducer struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.msgs = append(p.msgs, messages...)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaBatchPublisherKeysByAsset(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaBatchPublisher(prod, "coinpull.rows", "symbol")
	b, docs := sampleBatch(t)

	require.NoError(t, pub.Consume(context.Background(), b))

	assert.Equal(t, "kafka", pub.Name())
	assert.Equal(t, "coinpull.rows", prod.topic)
	require.Len(t, prod.msgs, 2)
	assert.Equal(t, "BTC", string(prod.msgs[0].Key))
	assert.Equal(t, "USDT", string(prod.msgs[1].Key))

	msg, ok := prod.msgs[1].Value.(rowMessage)
	require.True(t, ok)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, 1, msg.Seq)
	assert.JSONEq(t, docs[1], string(msg.Doc))
	assert.Equal(t, "USDT", msg.Fields["symbol"])
}

func TestKafkaBatchPublisherSkipsEmptyBatch(t *testing.T) {
	prod := &recordingProducer{err: errors.New("should not be called")}
	pub := NewKafkaBatchPublisher(prod, "t", "")
	assert.NoError(t, pub.PublishBatch(context.Background(), nil))
}

func TestKafkaBatchPublisherWrapsErrors(t *testing.T) {
	prod := &recordingProducer{err: errors.New("broker down")}
	pub := NewKafkaBatchPublisher(prod, "t", "symbol")
	b, _ := sampleBatch(t)
	assert.ErrorIs(t, pub.PublishBatch(context.Background(), b), prod.err)
}
