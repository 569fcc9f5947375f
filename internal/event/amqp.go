package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

type dialer func(url string) (amqpConnection, error)

type brokerConn struct{ *amqp.Connection }

func (c brokerConn) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

const dialTimeout = 5 * time.Second

func dialBroker(url string) (amqpConnection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, err
	}
	return brokerConn{conn}, nil
}

// AMQPTransport publishes events to a durable RabbitMQ queue over one
// long-lived connection. A failed send drops the connection; the next send redials.
type AMQPTransport struct {
	url    string
	queue  string
	nodeID int64
	dial   dialer
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn amqpConnection
	ch   amqpChannel
}

func NewAMQPTransport(url, queue string, nodeID int64, logger *zap.SugaredLogger) *AMQPTransport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AMQPTransport{url: url, queue: queue, nodeID: nodeID, dial: dialBroker, logger: logger}
}

// Send declares the queue if needed and publishes ev as a persistent JSON message.
func (t *AMQPTransport) Send(ctx context.Context, ev Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", t.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    utilities.NewSnowflakeIDWithNode(t.nodeID),
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Kind),
		Body:         body,
	})
	if err != nil {
		t.reset()
		return fmt.Errorf("publish to %s: %w", t.queue, err)
	}
	return nil
}

// channel returns an open channel with the queue declared, dialing if needed. Caller holds mu.
func (t *AMQPTransport) channel() (amqpChannel, error) {
	if t.ch != nil && t.conn != nil && !t.conn.IsClosed() {
		return t.ch, nil
	}
	t.reset()

	conn, err := t.dial(t.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", t.queue, err)
	}
	t.logger.Infow("connected to broker", "queue", t.queue)
	t.conn, t.ch = conn, ch
	return ch, nil
}

// reset closes and forgets the current connection. Caller holds mu.
func (t *AMQPTransport) reset() {
	if t.ch != nil {
		_ = t.ch.Close()
		t.ch = nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// Close releases the broker connection.
func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	if t.ch != nil {
		errs = append(errs, t.ch.Close())
		t.ch = nil
	}
	if t.conn != nil {
		errs = append(errs, t.conn.Close())
		t.conn = nil
	}
	return errors.Join(errs...)
}
