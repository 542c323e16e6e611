// Package broker owns everything AMQP: the per-owner connection factory,
// the consuming worker framework and the publisher.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sheetflow/sheetflow/internal/config"
)

// Channel is the slice of amqp091.Channel the factory hands out.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection abstracts an AMQP connection for the factory.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection. Tests inject fakes.
type Dialer func(url string) (Connection, error)

type amqpConnection struct{ conn *amqp.Connection }

func (c *amqpConnection) Channel() (Channel, error) { return c.conn.Channel() }
func (c *amqpConnection) IsClosed() bool            { return c.conn.IsClosed() }
func (c *amqpConnection) Close() error              { return c.conn.Close() }

func defaultDialer(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("op=broker.dial: %w", err)
	}
	return &amqpConnection{conn: conn}, nil
}

type ownerConn struct {
	conn    Connection
	channel Channel
}

// Factory hands each owner (one consuming or publishing goroutine) its own
// connection and channel. AMQP channels are not safe for concurrent use, so
// owners never share; the mutex covers the map only.
type Factory struct {
	cfg  config.Config
	dial Dialer

	mu    sync.Mutex
	conns map[string]*ownerConn
}

// NewFactory builds a Factory with the real AMQP dialer.
func NewFactory(cfg config.Config) *Factory {
	return NewFactoryWithDialer(cfg, defaultDialer)
}

// NewFactoryWithDialer builds a Factory with an injected dialer.
func NewFactoryWithDialer(cfg config.Config, dial Dialer) *Factory {
	return &Factory{cfg: cfg, dial: dial, conns: make(map[string]*ownerConn)}
}

// Channel returns the owner's channel, dialing a fresh connection and
// declaring the topology when the owner has none or its connection died.
func (f *Factory) Channel(owner string) (Channel, error) {
	f.mu.Lock()
	oc, ok := f.conns[owner]
	f.mu.Unlock()
	if ok && !oc.conn.IsClosed() {
		return oc.channel, nil
	}
	if ok {
		f.CloseOwner(owner)
	}

	conn, err := f.dial(f.cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("op=broker.channel owner=%s: %w", owner, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("op=broker.channel owner=%s: %w", owner, err)
	}
	if err := f.DeclareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	f.mu.Lock()
	f.conns[owner] = &ownerConn{conn: conn, channel: ch}
	f.mu.Unlock()
	return ch, nil
}

// DeclareTopology declares the durable topic exchange, the four durable
// queues and their bindings. Declarations are idempotent on the broker.
func (f *Factory) DeclareTopology(ch Channel) error {
	if err := ch.ExchangeDeclare(f.cfg.BrokerExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=broker.topology exchange: %w", err)
	}
	bindings := []struct {
		queue   string
		pattern string
	}{
		{f.cfg.QueueSchemas, f.cfg.BindSchemas},
		{f.cfg.QueueValidations, f.cfg.BindValidations},
		{f.cfg.QueueSchemasResults, f.cfg.BindSchemasResults},
		{f.cfg.QueueValidationsResults, f.cfg.BindValidationsResults},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("op=broker.topology queue=%s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.pattern, f.cfg.BrokerExchange, false, nil); err != nil {
			return fmt.Errorf("op=broker.topology bind=%s: %w", b.pattern, err)
		}
	}
	return nil
}

// CloseOwner tears down one owner's connection.
func (f *Factory) CloseOwner(owner string) {
	f.mu.Lock()
	oc, ok := f.conns[owner]
	delete(f.conns, owner)
	f.mu.Unlock()
	if !ok {
		return
	}
	if err := oc.channel.Close(); err != nil {
		slog.Debug("closing broker channel", slog.String("owner", owner), slog.Any("error", err))
	}
	if err := oc.conn.Close(); err != nil {
		slog.Debug("closing broker connection", slog.String("owner", owner), slog.Any("error", err))
	}
}

// CloseAll tears down every owner's connection.
func (f *Factory) CloseAll() {
	f.mu.Lock()
	owners := make([]string, 0, len(f.conns))
	for o := range f.conns {
		owners = append(owners, o)
	}
	f.mu.Unlock()
	for _, o := range owners {
		f.CloseOwner(o)
	}
}
