package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/xpkg/config"
	"courier-dispatch/internal/xpkg/errs"
	"courier-dispatch/internal/xpkg/logger"
	"courier-dispatch/internal/xpkg/metrics"
)

const reconnInterval = 5 * time.Second

// RabbitMQ publishes broadcasts to a fanout exchange so every hub instance
// sees every event regardless of which instance produced it.
type RabbitMQ struct {
	ctx   context.Context
	cfg   config.RabbitMQConfig
	conn  *amqp.Connection
	ch    *amqp.Channel
	mylog *logger.Logger

	mu           sync.Mutex
	reconnecting bool
}

func New(ctx context.Context, cfg config.RabbitMQConfig, mylog *logger.Logger) (core.IBroadcaster, error) {
	r := &RabbitMQ{
		ctx:   ctx,
		cfg:   cfg,
		mylog: mylog,
	}
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.cfg.URL())
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(
		r.cfg.Exchange, // name
		"fanout",       // kind
		true,           // durable
		false,          // auto-delete
		false,          // internal
		false,          // no-wait
		nil,
	); err != nil {
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) IsAlive() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return errs.ErrMBConn
	}
	if r.ch == nil || r.ch.IsClosed() {
		return errs.ErrMBCh
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn, ch := r.conn, r.ch
	r.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		if err := ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, b dto.Broadcast) error {
	log := r.mylog.Action("publish_broadcast")

	// Snapshot under r.mu; reconnect swaps conn and ch concurrently.
	r.mu.Lock()
	conn, ch := r.conn, r.ch
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		log.Error("rabbitmq connection is closed", errs.ErrMBConn)
		go r.reconnect(r.ctx)
		return errs.ErrMBConn
	}

	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}

	err = ch.PublishWithContext(ctx, r.cfg.Exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}

	metrics.BroadcastsTotal.Inc()
	return nil
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(reconnInterval)
	defer t.Stop()
	log := r.mylog.Action("rabbitmq_reconnect")

	for {
		select {
		case <-t.C:
			if err := r.connect(); err == nil {
				log.Info("rabbitmq reconnected")
				return
			}
			log.Info("rabbitmq failed to reconnect")
		case <-ctx.Done():
			return
		}
	}
}
