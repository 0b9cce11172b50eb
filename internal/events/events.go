// Package events carries "run this call now" requests over RabbitMQ so that
// intake actions (create, submit, decline) are processed without waiting for
// the next sweep.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meeting-scheduler/internal/calls"
	"meeting-scheduler/internal/orchestrator"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	Enabled bool
	URI     string
	Queue   string
}

// RunRequest is the message body.
type RunRequest struct {
	CallID      string    `json:"call_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

// Publisher enqueues run requests. It implements calls.RunRequester.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	clock   func() time.Time
}

// NewPublisher dials the broker. It returns nil, nil when disabled.
func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		log.Info("rabbitmq disabled, run requests stay in process")
		return nil, nil
	}
	conn, err := amqp.Dial(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := declare(ch, cfg.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq declare %s: %w", cfg.Queue, err)
	}
	return &Publisher{conn: conn, channel: ch, queue: cfg.Queue, clock: time.Now}, nil
}

func (p *Publisher) RequestRun(ctx context.Context, callID string) error {
	body, err := json.Marshal(RunRequest{CallID: callID, RequestedAt: p.clock().UTC()})
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    callID,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if p == nil || p.channel == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}

var _ calls.RunRequester = (*Publisher)(nil)

// Runner runs one call; the sweeper's RunOne satisfies it.
type Runner interface {
	RunOne(ctx context.Context, callID string) (orchestrator.Result, error)
}

// Listener consumes run requests and hands them to the runner.
type Listener struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	runner  Runner
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewListener dials the broker. It returns nil, nil when disabled.
func NewListener(cfg Config, runner Runner, log *slog.Logger) (*Listener, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := amqp.Dial(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return &Listener{conn: conn, channel: ch, queue: cfg.Queue, runner: runner, log: log}, nil
}

// Start declares the queue and consumes it until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	if err := declare(l.channel, l.queue); err != nil {
		return err
	}
	if err := l.channel.Qos(1, 0, false); err != nil {
		return err
	}
	msgs, err := l.channel.Consume(
		l.queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.log.Warn("rabbitmq delivery channel closed")
					return
				}
				if err := l.handle(ctx, msg.Body); err != nil {
					l.log.Warn("run request dropped", "message_id", msg.MessageId, "err", err)
					// The periodic sweep retries; never requeue in a hot loop.
					_ = msg.Nack(false, false)
					continue
				}
				_ = msg.Ack(false)
			}
		}
	}()
	l.log.Info("rabbitmq listener started", "queue", l.queue)
	return nil
}

func (l *Listener) handle(ctx context.Context, body []byte) error {
	var req RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode run request: %w", err)
	}
	if req.CallID == "" {
		return errors.New("run request without call_id")
	}
	res, err := l.runner.RunOne(ctx, req.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		l.log.Info("run request for unknown call ignored", "call_id", req.CallID)
		return nil
	}
	if err != nil {
		return err
	}
	l.log.Debug("run request processed", "call_id", req.CallID, "outcome", string(res.Outcome))
	return nil
}

func (l *Listener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}
	if err := l.channel.Close(); err != nil {
		return err
	}
	l.wg.Wait()
	return l.conn.Close()
}
