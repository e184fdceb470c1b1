package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"CoinPull/internal/domain/models"
	domrepo "CoinPull/internal/domain/repository"
	pkgkafka "CoinPull/pkg/kafka"
)

// batchProducer is satisfied by *pkgkafka.Producer.
type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaBatchPublisher publishes every row of a batch as one message keyed by
// the row's identity, so an asset's samples stay ordered on one partition.
type KafkaBatchPublisher struct {
	producer batchProducer
	topic    string
	identity string
}

// rowMessage is the wire form of one published row.
type rowMessage struct {
	RunID       string                 `json:"run_id"`
	Iteration   int                    `json:"iteration"`
	Seq         int                    `json:"seq"`
	CollectedAt time.Time              `json:"collected_at"`
	Asset       string                 `json:"asset"`
	Fields      map[string]interface{} `json:"fields"`
	Doc         json.RawMessage        `json:"doc"`
}

func NewKafkaBatchPublisher(producer batchProducer, topic, identity string) *KafkaBatchPublisher {
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	return &KafkaBatchPublisher{producer: producer, topic: topic, identity: identity}
}

func (p *KafkaBatchPublisher) Name() string { return "kafka" }

// PublishBatch sends the batch in a single write.
func (p *KafkaBatchPublisher) PublishBatch(ctx context.Context, b *models.Batch) error {
	if b == nil || len(b.Rows) == 0 {
		return nil
	}

	msgs := make([]pkgkafka.Message, 0, len(b.Rows))
	for i, r := range b.Rows {
		doc, err := encodeRow(r)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		asset := batchAsset(r, p.identity)
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(asset),
			Value: rowMessage{
				RunID:       b.RunID,
				Iteration:   b.Iteration,
				Seq:         i,
				CollectedAt: b.CollectedAt.UTC(),
				Asset:       asset,
				Fields:      r.Map(),
				Doc:         doc,
			},
			Headers: []kafka.Header{pkgkafka.Header("run_id", b.RunID)},
		})
	}

	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// Consume lets the publisher act as a batch sink.
func (p *KafkaBatchPublisher) Consume(ctx context.Context, b *models.Batch) error {
	return p.PublishBatch(ctx, b)
}

func (p *KafkaBatchPublisher) Close() error { return p.producer.Close() }

var (
	_ domrepo.Publisher = (*KafkaBatchPublisher)(nil)
	_ domrepo.BatchSink = (*KafkaBatchPublisher)(nil)
)
