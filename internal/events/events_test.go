package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

func TestPriceBroadcaster(t *testing.T) {
	b := NewPriceBroadcaster(1)
	fast := b.Subscribe()
	slow := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	tick := TickFromUpdate(domain.PriceUpdate{Symbol: "BTC", Price: decimal.RequireFromString("65000.5"), Timestamp: time.Unix(1, 0)})
	b.Publish(tick)
	assert.Equal(t, "65000.5", (<-fast).Price)

	// slow never reads: the second tick is dropped for it, not blocking others
	b.Publish(tick)
	b.Publish(tick)
	assert.Len(t, slow, 1)
	assert.Equal(t, "BTC", (<-fast).Symbol)

	b.Unsubscribe(fast)
	b.Unsubscribe(fast)
	_, open := <-fast
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
}

func TestKafkaPublisher(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	metrics := NewPublisherMetrics(prometheus.NewRegistry())
	p := NewKafkaPublisherFromProducer(producer, "tradeledger.audit", nil, metrics)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Kind != KindConsistencyAlert || e.Key != "alice" {
			return errors.Errorf("unexpected event %+v", e)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, Event{Kind: KindConsistencyAlert, Key: "alice", Payload: map[string]string{"symbol": "SOL"}}))
	assert.Error(t, p.Publish(ctx, Event{Kind: KindOrderExecuted, Key: "bob"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues(KindConsistencyAlert, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues(KindOrderExecuted, "error")))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic", nil, nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", nil, nil)
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), Event{Kind: KindIntentDiverged, Key: "intent-1", Payload: 42}))
	entries := logs.FilterMessage("audit event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, KindIntentDiverged, entries[0].ContextMap()["kind"])

	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
