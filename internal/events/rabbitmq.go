package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
)

// Publisher is the subset of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as persistent JSON messages. The routing key is
// "<prefix>.<chain>.<type>", so consumers can bind to one chain or one
// event type.
type AMQPSink struct {
	ch       Publisher
	exchange string
	prefix   string
}

// NewAMQPSink creates a sink publishing to exchange.
func NewAMQPSink(ch Publisher, exchange, prefix string) *AMQPSink {
	if prefix == "" {
		prefix = "bridge"
	}
	return &AMQPSink{ch: ch, exchange: exchange, prefix: prefix}
}

// Name implements Sink.
func (s *AMQPSink) Name() string {
	return "amqp"
}

// RoutingKey returns the routing key of e.
func (s *AMQPSink) RoutingKey(e *domain.Event) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, e.ChainID, e.Type)
}

// Publish implements Sink.
func (s *AMQPSink) Publish(ctx context.Context, e *domain.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", e.Seq, err)
	}

	return s.ch.PublishWithContext(ctx,
		s.exchange,
		s.RoutingKey(e),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    fmt.Sprintf("%s:%d", e.ChainID, e.Seq),
			Type:         string(e.Type),
			Body:         body,
			Timestamp:    time.Unix(e.Timestamp, 0).UTC(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

// DialAMQP connects to url with exponential backoff and declares a durable
// topic exchange. The caller closes the returned connection.
func DialAMQP(ctx context.Context, url, exchange string, maxRetries int, logger zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var conn *amqp.Connection
	var err error
	wait := time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			return nil, nil, fmt.Errorf("dial amqp: %w", err)
		}
		logger.Warn().Err(err).Int("attempt", i+1).Dur("retry_in", wait).Msg("amqp dial failed")
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return conn, ch, nil
}

var _ Sink = (*AMQPSink)(nil)
