package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Audit event kinds.
const (
	KindOrderExecuted    = "order.executed"
	KindOrderRejected    = "order.rejected"
	KindConsistencyAlert = "consistency.alert"
	KindIntentDiverged   = "intent.diverged"
)

// Event is an audit record. Key orders events of one user on a partition.
type Event struct {
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                          { return nil }

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	l *zap.Logger
}

func NewLogPublisher(l *zap.Logger) *LogPublisher {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogPublisher{l: l}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	p.l.Info("audit event",
		zap.String("kind", e.Kind),
		zap.String("key", e.Key),
		zap.Time("occurred_at", e.OccurredAt),
		zap.ByteString("payload", payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

type PublisherMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

func NewPublisherMetrics(registry prometheus.Registerer) *PublisherMetrics {
	m := &PublisherMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_publish_total",
				Help: "Audit event publish attempts.",
			},
			[]string{"kind", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audit_publish_latency_seconds",
				Help:    "Audit event publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

// KafkaPublisher sends events as JSON to one topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	l        *zap.Logger
	metrics  *PublisherMetrics
}

func NewKafkaPublisher(brokers []string, topic string, l *zap.Logger, metrics *PublisherMetrics) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return NewKafkaPublisherFromProducer(producer, topic, l, metrics), nil
}

func NewKafkaPublisherFromProducer(producer sarama.SyncProducer, topic string, l *zap.Logger, metrics *PublisherMetrics) *KafkaPublisher {
	if l == nil {
		l = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, l: l, metrics: metrics}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	value, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal audit event")
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.Key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(e.Kind)},
		},
	}

	start := time.Now()
	_, _, err = p.producer.SendMessage(msg)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.PublishTotal.WithLabelValues(e.Kind, status).Inc()
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.l.Error("kafka publish failed", zap.String("topic", p.topic), zap.String("kind", e.Kind), zap.Error(err))
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
