package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Client performs request/reply calls against the service queues. Other
// services use it instead of speaking the wire protocol by hand; it is
// also what integration suites drive.
type Client struct {
	conn             *amqp.Connection
	responseExchange string
}

// NewClient wraps an established broker connection.
func NewClient(conn *amqp.Connection, responseExchange string) *Client {
	return &Client{conn: conn, responseExchange: responseExchange}
}

// Call publishes payload to the named exchange/queue and waits for the
// correlated reply on an exclusive response queue. Each call uses a fresh
// channel and correlation id, so a Client is safe for concurrent use.
func (c *Client) Call(ctx context.Context, exchange, routingKey string, payload any) (Reply, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	replyQueue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(replyQueue.Name, replyQueue.Name, c.responseExchange, false, nil); err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		ReplyTo:       replyQueue.Name,
		Body:          body,
	})
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil, fmt.Errorf("reply channel closed before a response for %q arrived", routingKey)
			}
			if delivery.CorrelationId != correlationID {
				continue
			}

			var reply Reply
			if err := json.Unmarshal(delivery.Body, &reply); err != nil {
				return nil, err
			}
			return reply, nil
		}
	}
}
