package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

const defaultExchange = "marketplace.notifications"

// AMQPPublisher pushes notifications onto a RabbitMQ topic exchange, keyed by
// recipient role, for downstream push-delivery workers.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

var _ booking.Notifier = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials the broker and declares the notification exchange.
func NewAMQPPublisher(url string, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Notify publishes the message as JSON with the routing key
// notification.<kind>.<role>.
func (publisher *AMQPPublisher) Notify(ctx context.Context, message booking.NotificationMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	routingKey := fmt.Sprintf("notification.%s.%s", message.Kind, message.RecipientRole)
	return publisher.channel.PublishWithContext(ctx, publisher.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel and connection.
func (publisher *AMQPPublisher) Close() error {
	if publisher.channel != nil {
		_ = publisher.channel.Close()
	}
	if publisher.conn != nil {
		return publisher.conn.Close()
	}
	return nil
}
