// Package events delivers cart events to the audit log, the application
// log and RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-cartsync/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// channelSource is the part of ChannelPool the publisher needs.
type channelSource interface {
	GetChannel() (*amqp.Channel, error)
	ReturnChannel(ch *amqp.Channel)
}

// Publisher sends cart events to a durable queue for downstream consumers
// such as analytics and abandonment tracking.
type Publisher struct {
	pool      channelSource
	queueName string
	logger    *zap.Logger
}

func NewPublisher(pool *ChannelPool, queueName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		pool:      pool,
		queueName: queueName,
		logger:    logger,
	}
}

// Record publishes event as a persistent JSON message.
func (p *Publisher) Record(ctx context.Context, event models.CartEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := p.pool.GetChannel()
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}
	defer p.pool.ReturnChannel(ch)

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key (queue name)
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.ID,
			Type:         string(event.Type),
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("published cart event", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
	return nil
}
