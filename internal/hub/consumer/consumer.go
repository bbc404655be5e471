package consumer

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/logger"
)

const redialInterval = 5 * time.Second

// Consumer binds an exclusive queue to the fanout exchange and feeds every
// broadcast into the local hub. Each hub instance runs one consumer; the
// fanout exchange is what keeps instances converged.
type Consumer struct {
	cfg   config.RabbitMQConfig
	hub   Dispatcher
	mylog *logger.Logger
}

// Dispatcher is the hub-side sink for consumed broadcasts.
type Dispatcher interface {
	Dispatch(b dto.Broadcast)
}

func New(cfg config.RabbitMQConfig, hub Dispatcher, mylog *logger.Logger) *Consumer {
	return &Consumer{cfg: cfg, hub: hub, mylog: mylog}
}

// Run consumes until the context is cancelled, redialing on broker loss.
func (c *Consumer) Run(ctx context.Context) error {
	mylog := c.mylog.Action("hub_consumer")

	for {
		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mylog.Error("consumer lost broker, redialing", err)
		}

		select {
		case <-time.After(redialInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL())
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	// Exclusive auto-delete queue: each hub instance gets its own copy of
	// every broadcast.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, "", c.cfg.Exchange, false, nil); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, true, false, false, nil)
	if err != nil {
		return err
	}

	c.mylog.Action("hub_consumer").Info("consuming broadcasts",
		zap.String("queue", q.Name), zap.String("exchange", c.cfg.Exchange))

	for {
		select {
		case msg, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.handle(msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) handle(msg amqp.Delivery) {
	var b dto.Broadcast
	if err := json.Unmarshal(msg.Body, &b); err != nil {
		c.mylog.Action("hub_consumer").Error("dropping malformed broadcast", err)
		_ = msg.Nack(false, false)
		return
	}
	c.hub.Dispatch(b)
	_ = msg.Ack(false)
}
