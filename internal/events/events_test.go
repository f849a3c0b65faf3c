package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage/memory"
)

func lockEvent(seq uint64) *domain.Event {
	return &domain.Event{
		Type:      domain.EventTypeLock,
		Seq:       seq,
		ChainID:   "chain-a",
		Timestamp: 1_700_000_000,
		Lock: &domain.LockEvent{
			DepositID:        "dep",
			Asset:            "USDT",
			Amount:           100,
			Sender:           "alice",
			DestinationChain: "chain-b",
		},
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(8, zerolog.Nop())
	a := hub.Subscribe()
	b := hub.Subscribe()
	require.Equal(t, 2, hub.Len())

	require.NoError(t, hub.Publish(context.Background(), lockEvent(1)))

	assert.Equal(t, uint64(1), (<-a.Events()).Seq)
	assert.Equal(t, uint64(1), (<-b.Events()).Seq)

	a.Close()
	a.Close()
	_, open := <-a.Events()
	assert.False(t, open)
	assert.Equal(t, 1, hub.Len())
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(2, zerolog.Nop())
	slow := hub.Subscribe()

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, hub.Publish(context.Background(), lockEvent(seq)))
	}

	assert.Equal(t, 0, hub.Len())
	var got []uint64
	for e := range slow.Events() {
		got = append(got, e.Seq)
	}
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	s := hub.Subscribe()
	hub.Close()

	_, open := <-s.Events()
	assert.False(t, open)
	s.Close()
}

type fakePublisher struct {
	mu       sync.Mutex
	exchange string
	keys     []string
	msgs     []amqp.Publishing
	err      error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.exchange = exchange
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestAMQPSink_Publish(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, "bridge.events", "")

	require.NoError(t, sink.Publish(context.Background(), lockEvent(7)))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "bridge.events", pub.exchange)
	assert.Equal(t, "bridge.chain-a.lock", pub.keys[0])

	msg := pub.msgs[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "chain-a:7", msg.MessageId)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, uint64(7), decoded.Seq)
	require.NotNil(t, decoded.Lock)
	assert.Equal(t, "dep", decoded.Lock.DepositID)
}

func TestStoreSink_SkipsAudit(t *testing.T) {
	store := memory.NewTransferEventStore()
	sink := NewStoreSink(store)
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, lockEvent(1)))
	require.NoError(t, sink.Publish(ctx, &domain.Event{
		Type:    domain.EventTypeAudit,
		Seq:     2,
		ChainID: "chain-a",
		Audit:   &domain.AuditEvent{Action: "pause"},
	}))

	rows, err := store.GetByDepositID(ctx, "dep")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EventTypeLock, rows[0].Type)
	assert.Equal(t, "chain-b", rows[0].Counterpart)
}

func TestFanout_ContinuesPastFailingSink(t *testing.T) {
	failing := &fakePublisher{err: errors.New("broker down")}
	hub := NewHub(4, zerolog.Nop())
	sub := hub.Subscribe()

	f := NewFanout(zerolog.Nop(), NewAMQPSink(failing, "x", "p"), hub)
	err := f.Publish(context.Background(), lockEvent(3))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "amqp")
	assert.Equal(t, uint64(3), (<-sub.Events()).Seq)
}

func TestAMQPSink_RoutingKey(t *testing.T) {
	assert.Equal(t, "bridge.chain-a.lock", NewAMQPSink(nil, "events", "").RoutingKey(lockEvent(1)))
	assert.Equal(t, "ops.chain-a.lock", NewAMQPSink(nil, "events", "ops").RoutingKey(lockEvent(1)))
}
