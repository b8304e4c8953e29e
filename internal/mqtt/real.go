package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/plant-waterer/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	bufferCapacity = 256
	initialRetries = 4
)

// Options configures the real client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
}

// RealClient publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on (re)connect.
type RealClient struct {
	client paho.Client
	topics Topics
	logger *slog.Logger

	mu      sync.Mutex
	buffer  *ringBuffer
	handler WriteHandler
}

// NewRealClient creates a client and connects with exponential backoff.
// If the broker stays unreachable after the initial attempts, connecting
// continues in the background until ctx is done; publishes are buffered
// meanwhile.
func NewRealClient(ctx context.Context, o Options) *RealClient {
	c := &RealClient{
		topics: Topics{Prefix: o.Prefix},
		logger: logging.GetLogger("mqtt"),
		buffer: newRingBuffer(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(c.topics.System(), string(willPayload()), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), initialRetries), ctx)
	if err := backoff.Retry(c.connect, bo); err != nil {
		c.logger.Warn("broker unreachable, retrying in background", "broker", o.Broker, "error", err)
		go c.connectInBackground(ctx)
	}
	return c
}

func (c *RealClient) connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

func (c *RealClient) connectInBackground(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(c.connect, backoff.WithContext(bo, ctx)); err != nil {
		c.logger.Error("giving up connecting to broker", "error", err)
	}
}

// onConnect runs on every successful connect, including auto-reconnects.
func (c *RealClient) onConnect(client paho.Client) {
	c.logger.Info("connected to broker")

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		c.subscribe(handler)
	}
	c.replay(client)
}

// replay publishes and empties the offline buffer.
func (c *RealClient) replay(client paho.Client) {
	c.mu.Lock()
	pending := c.buffer.drainAll()
	c.mu.Unlock()

	for _, m := range pending {
		token := client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			c.logger.Warn("replay failed, dropping buffered message", "topic", m.topic)
		}
	}
	if len(pending) > 0 {
		c.logger.Info("replayed buffered messages", "count", len(pending))
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("connection lost", "error", err)
}

func (c *RealClient) subscribe(handler WriteHandler) {
	token := c.client.Subscribe(c.topics.SetWildcard(), 1, func(_ paho.Client, m paho.Message) {
		name, ok := c.topics.AttributeFromSet(m.Topic())
		if !ok {
			return
		}
		if err := handler(name, m.Payload()); err != nil {
			c.logger.Debug("write not applied", "topic", m.Topic(), "error", err)
		}
	})
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("subscribe timeout", "topic", c.topics.SetWildcard())
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("subscribe failed", "topic", c.topics.SetWildcard(), "error", err)
	}
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		overflow := c.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		if overflow {
			c.logger.Warn("buffer full, dropping oldest", "capacity", bufferCapacity)
		}
		// onConnect may have drained the buffer between the check and the push.
		if c.client.IsConnectionOpen() {
			c.replay(c.client)
		}
		return nil
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishAttribute sends a notified attribute value, retained, QoS 0.
func (c *RealClient) PublishAttribute(name string, payload []byte) error {
	return c.publish(c.topics.Attribute(name), 0, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.publish(c.topics.System(), 1, event.Retained, payload)
}

// PublishDiscovery sends the retained attribute table.
func (c *RealClient) PublishDiscovery() error {
	payload, err := FormatDiscovery(c.topics)
	if err != nil {
		return fmt.Errorf("format discovery: %w", err)
	}
	return c.publish(c.topics.Discovery(), 1, true, payload)
}

// SubscribeWrites implements Subscriber.
func (c *RealClient) SubscribeWrites(handler WriteHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	if c.client.IsConnectionOpen() {
		c.subscribe(handler)
	}
	return nil
}

// IsConnected reports whether the connection to the broker is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
