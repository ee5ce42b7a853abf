package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"driftsync/internal/config"
	"driftsync/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	DEFAULT_EVENT_WORKERS   = 16
	DEFAULT_PUBLISH_TIMEOUT = 5 * time.Second
)

// EventHandler processes one decoded inbound event. Calls are sequential
// per player and concurrent across players.
type EventHandler interface {
	Handle(ctx context.Context, event model.InboundEvent) error
}

// inboundDelivery pairs a decoded event with its raw delivery for acking
type inboundDelivery struct {
	event    model.InboundEvent
	delivery amqp.Delivery
}

// EventConsumer reads host events off the queue and fans them out to a
// hash-sharded worker pool: one identity always lands on the same shard, so
// its events stay ordered, while one player's slow stats save or publish
// cannot delay the other shards.
type EventConsumer struct {
	client  Client
	config  config.RabbitMQConfig
	handler EventHandler
	shards  []chan inboundDelivery
	wg      sync.WaitGroup
}

// NewEventConsumer declares the event exchange and queue and binds them
func NewEventConsumer(client Client, cfg config.RabbitMQConfig, handler EventHandler) (*EventConsumer, error) {
	if err := client.DeclareExchange(cfg.EventExchange, "direct"); err != nil {
		return nil, err
	}
	if _, err := client.DeclareQueue(cfg.EventQueue); err != nil {
		return nil, err
	}
	if err := client.BindQueue(cfg.EventQueue, cfg.EventExchange, "events"); err != nil {
		return nil, err
	}

	return &EventConsumer{
		client:  client,
		config:  cfg,
		handler: handler,
	}, nil
}

// Start consumes events until the context is cancelled. Malformed messages
// are acked and dropped; handler errors are logged, never redelivered, so a
// poison message cannot wedge the queue.
func (c *EventConsumer) Start(ctx context.Context) error {
	deliveries, err := c.client.Consume(c.config.EventQueue, "driftsync-core")
	if err != nil {
		return fmt.Errorf("starting event consumer: %w", err)
	}

	workers := c.config.EventWorkers
	if workers <= 0 {
		workers = DEFAULT_EVENT_WORKERS
	}

	c.shards = make([]chan inboundDelivery, workers)
	for i := range c.shards {
		shard := make(chan inboundDelivery, 64)
		c.shards[i] = shard
		c.wg.Add(1)
		go c.work(ctx, shard)
	}

	c.wg.Add(1)
	go c.dispatch(ctx, deliveries)

	log.Info().Int("workers", workers).Msg("Event consumer started")
	return nil
}

// dispatch decodes deliveries and routes each to its identity's shard
func (c *EventConsumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	defer func() {
		for _, shard := range c.shards {
			close(shard)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event consumer stopping")
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn().Msg("Event delivery channel closed")
				return
			}

			var event model.InboundEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				log.Error().Err(err).Msg("Malformed host event, dropped")
				c.ack(delivery)
				continue
			}

			shard := c.shards[event.Identity.PlayerID%uint64(len(c.shards))]
			select {
			case shard <- inboundDelivery{event: event, delivery: delivery}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// work drains one shard sequentially
func (c *EventConsumer) work(ctx context.Context, shard <-chan inboundDelivery) {
	defer c.wg.Done()

	for in := range shard {
		if err := c.handler.Handle(ctx, in.event); err != nil {
			log.Error().
				Err(err).
				Str("kind", in.event.Kind).
				Uint64("playerID", in.event.Identity.PlayerID).
				Msg("Event handling failed")
		}
		c.ack(in.delivery)
	}
}

func (c *EventConsumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		log.Warn().Err(err).Uint64("deliveryTag", delivery.DeliveryTag).Msg("Failed to ack event")
	}
}

// Wait blocks until the dispatcher and all shard workers have exited
func (c *EventConsumer) Wait() {
	c.wg.Wait()
}

// NotifyPublisher delivers outbound notifications to players through the
// notify exchange, one routing key per player. Publish failures are logged
// and swallowed: a missed notification is never worth failing the scoring
// path for.
type NotifyPublisher struct {
	client Client
	config config.RabbitMQConfig
}

// NewNotifyPublisher declares the notify exchange
func NewNotifyPublisher(client Client, cfg config.RabbitMQConfig) (*NotifyPublisher, error) {
	if err := client.DeclareExchange(cfg.NotifyExchange, "topic"); err != nil {
		return nil, err
	}

	return &NotifyPublisher{
		client: client,
		config: cfg,
	}, nil
}

// Send implements the router's Notifier
func (p *NotifyPublisher) Send(playerID uint64, event model.OutboundEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("kind", event.Kind).Msg("Failed to encode notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DEFAULT_PUBLISH_TIMEOUT)
	defer cancel()

	routingKey := "player." + strconv.FormatUint(playerID, 10)
	if err := p.client.Publish(ctx, p.config.NotifyExchange, routingKey, body, nil); err != nil {
		log.Warn().
			Err(err).
			Uint64("playerID", playerID).
			Str("kind", event.Kind).
			Msg("Notification publish failed, dropped")
	}
}
