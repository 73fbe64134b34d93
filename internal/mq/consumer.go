package mq

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Worker describes one consumed queue and the handler serving it.
type Worker struct {
	Queue    string
	Exchange string
	Prefetch int
	// WithEvent marks replies that echo the request correlation id in
	// the event field.
	WithEvent bool
	Handle    HandlerFunc
}

// Workers returns the full consumer set of the service.
func Workers(h *Handlers) []Worker {
	return []Worker{
		{
			Queue:     "auth.token.new",
			Exchange:  "open-matchmaking.auth.token.new.direct",
			Prefetch:  50,
			WithEvent: true,
			Handle:    h.GenerateToken,
		},
		{
			Queue:     "auth.token.verify",
			Exchange:  "open-matchmaking.auth.token.verify.direct",
			Prefetch:  1,
			WithEvent: true,
			Handle:    h.VerifyToken,
		},
		{
			Queue:     "auth.token.refresh",
			Exchange:  "open-matchmaking.auth.token.refresh.direct",
			Prefetch:  1,
			WithEvent: true,
			Handle:    h.RefreshToken,
		},
		{
			Queue:     "auth.users.register",
			Exchange:  "open-matchmaking.auth.users.register.direct",
			Prefetch:  1,
			WithEvent: true,
			Handle:    h.RegisterClient,
		},
		{
			Queue:     "auth.users.retrieve",
			Exchange:  "open-matchmaking.auth.users.retrieve.direct",
			Prefetch:  1,
			WithEvent: true,
			Handle:    h.UserProfile,
		},
		{
			Queue:    "auth.microservices.register",
			Exchange: "open-matchmaking.direct",
			Prefetch: 1,
			Handle:   h.RegisterMicroservice,
		},
	}
}

// Supervisor owns one consuming goroutine per worker and their shared
// broker connection.
type Supervisor struct {
	conn             *amqp.Connection
	responseExchange string
	logger           *zap.Logger
	wg               sync.WaitGroup
}

// NewSupervisor wraps an established broker connection.
func NewSupervisor(conn *amqp.Connection, responseExchange string, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{conn: conn, responseExchange: responseExchange, logger: logger}
}

// Start declares the topology for every worker and begins consuming.
// Consumption stops when ctx is cancelled or the connection closes.
func (s *Supervisor) Start(ctx context.Context, workers []Worker) error {
	for _, worker := range workers {
		ch, deliveries, err := s.subscribe(worker)
		if err != nil {
			return err
		}

		s.wg.Add(1)
		go func(worker Worker, ch *amqp.Channel, deliveries <-chan amqp.Delivery) {
			defer s.wg.Done()
			defer ch.Close()
			s.consume(ctx, worker, ch, deliveries)
		}(worker, ch, deliveries)
	}
	return nil
}

// Wait blocks until every consuming goroutine has stopped.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) subscribe(worker Worker) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, nil, err
	}

	for _, exchange := range []string{worker.Exchange, s.responseExchange} {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, nil, err
		}
	}
	if _, err := ch.QueueDeclare(worker.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, nil, err
	}
	if err := ch.QueueBind(worker.Queue, worker.Queue, worker.Exchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, err
	}
	if err := ch.Qos(worker.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, err
	}

	deliveries, err := ch.Consume(worker.Queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return ch, deliveries, nil
}

func (s *Supervisor) consume(ctx context.Context, worker Worker, ch *amqp.Channel, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			s.handleDelivery(ctx, worker, ch, delivery)
		}
	}
}

// handleDelivery runs the handler, publishes the reply when the request
// asked for one and acknowledges the message. Infrastructure failures are
// requeued once; a redelivered failure is dropped.
func (s *Supervisor) handleDelivery(ctx context.Context, worker Worker, ch *amqp.Channel, delivery amqp.Delivery) {
	reply, err := worker.Handle(ctx, delivery.Body)
	if err != nil {
		s.logger.Error("handle message",
			zap.String("queue", worker.Queue),
			zap.Error(err),
		)
		_ = delivery.Nack(false, !delivery.Redelivered)
		return
	}

	if worker.WithEvent {
		reply[EventField] = delivery.CorrelationId
	}

	if delivery.ReplyTo != "" {
		if err := s.publishReply(ctx, ch, delivery, reply); err != nil {
			s.logger.Error("publish reply",
				zap.String("queue", worker.Queue),
				zap.String("reply_to", delivery.ReplyTo),
				zap.Error(err),
			)
		}
	}

	_ = delivery.Ack(false)
}

func (s *Supervisor) publishReply(ctx context.Context, ch *amqp.Channel, delivery amqp.Delivery, reply Reply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, s.responseExchange, delivery.ReplyTo, true, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: delivery.CorrelationId,
		Body:          body,
	})
}
