package backend

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/internal/config"
	"github.com/Dezexus/subvision/internal/metrics"
	"github.com/Dezexus/subvision/pkg/models"
)

const EventsExchange = "subvision"

// EventConsumer receives the extraction backend's push channel over the
// message broker: log, progress, subtitle_new, subtitle_update and finish
// events, each scoped to a client identifier.
type EventConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     zerolog.Logger
}

// NewEventConsumer connects to the broker and declares the events exchange
// plus a consumer-owned queue. Each process binds its own queue so the API
// relay and the persistence worker both see every event.
func NewEventConsumer(cfg config.QueueConfig, queueName string, log zerolog.Logger) (*EventConsumer, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// One queue receives every client's events; routing keys carry the
	// client identifier (events.<client_id>).
	err = channel.QueueBind(queueName, "events.*", EventsExchange, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &EventConsumer{conn: conn, channel: channel, queue: queueName, log: log}, nil
}

// Close closes the broker connection.
func (ec *EventConsumer) Close() error {
	if ec.channel != nil {
		ec.channel.Close()
	}
	if ec.conn != nil {
		return ec.conn.Close()
	}
	return nil
}

// Consume delivers decoded job events to handler until ctx is cancelled.
// Malformed messages are acked and dropped with a log line; handler errors
// nack the message without requeue.
func (ec *EventConsumer) Consume(ctx context.Context, handler func(models.JobEvent) error) error {
	if err := ec.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ec.channel.Consume(
		ec.queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("event channel closed")
			}
			var event models.JobEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				ec.log.Warn().Err(err).Msg("dropping malformed job event")
				msg.Ack(false)
				continue
			}
			metrics.JobEventsReceived.WithLabelValues(event.Type).Inc()
			if err := handler(event); err != nil {
				ec.log.Error().Err(err).Str("type", event.Type).
					Str("client_id", event.ClientID).Msg("job event handler failed")
				msg.Nack(false, false)
				continue
			}
			msg.Ack(false)
		}
	}
}
