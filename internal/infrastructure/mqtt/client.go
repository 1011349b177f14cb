package mqtt

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Client is one broker session for the node.
//
// Subscriptions made through the client are replayed whenever paho
// reconnects, and the retained status marker flips to "online" on every
// connect. All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	topics Topics
	broker string

	up atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler processes one inbound message. It runs on its own
// goroutine and may publish. A returned error is logged only.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and blocks until the session is up, ctx is
// cancelled, or the attempt fails. The Last Will marks the node offline
// if the session later dies without Close.
func Connect(ctx context.Context, cfg config.MQTTConfig, topics Topics) (*Client, error) {
	opts := buildClientOptions(cfg, ClientID(cfg, topics.DeviceID))
	configureLWT(opts, topics)

	c := &Client{
		topics: topics,
		broker: net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port)),
		subs:   make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; mark the session up now so
	// the caller can publish immediately.
	c.up.Store(true)
	return c, nil
}

func (c *Client) connected() {
	c.up.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subs {
		c.client.Subscribe(topic, sub.qos, c.deliver(sub.handler))
	}
	hook := c.onConnect
	c.mu.RUnlock()

	c.client.Publish(c.topics.Status(), statusQoS, true, StatusOnline)
	if hook != nil {
		hook()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close marks the node offline and disconnects. A clean close does not
// fire the Last Will or the disconnect hook.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(c.topics.Status(), statusQoS, true, StatusOffline).WaitTimeout(defaultPublishTimeout)
	}
	c.up.Store(false)
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// HealthCheck reports ErrNotConnected when the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.client != nil && c.client.IsConnected()
}

// Broker returns the broker address as host:port.
func (c *Client) Broker() string { return c.broker }

// Topics returns the topic builder the client was connected with.
func (c *Client) Topics() Topics { return c.topics }

// SetOnConnect registers fn for every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn for an unexpected connection loss.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// deliver adapts handler to paho, logging its error and recovering a panic.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
