// Package bus connects the backend to the MQTT broker the gate and sensors use.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"parking-backend/config"
)

// Publisher sends a JSON payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Client wraps a Paho client. Inbound messages of every subscription are
// funnelled into one channel so that a single consumer sees them in order.
type Client struct {
	client   mqtt.Client
	qos      byte
	topics   []string
	messages chan Message
	timeout  time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient prepares a client that subscribes to topics on every (re)connect.
func NewClient(cfg config.MQTTConfig, topics []string) *Client {
	c := &Client{
		qos:      cfg.PublishQoS(),
		topics:   topics,
		messages: make(chan Message, 256),
		timeout:  10 * time.Second,
		done:     make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})
	c.client = mqtt.NewClient(opts)
	return c
}

// Connect dials the broker and waits for the first connection.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	for _, topic := range c.topics {
		token := client.Subscribe(topic, c.qos, c.onMessage)
		if !token.WaitTimeout(c.timeout) || token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("mqtt subscribe failed")
			continue
		}
		log.Info().Str("topic", topic).Msg("mqtt subscribed")
	}
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m := Message{Topic: msg.Topic(), Payload: append([]byte(nil), msg.Payload()...)}
	select {
	case c.messages <- m:
	case <-c.done:
	}
}

// Messages returns the inbound stream. It is never closed while the client is
// connected; consumers should stop on their own context.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Publish marshals payload to JSON and waits for the broker to acknowledge it
// at the configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	token := c.client.Publish(topic, c.qos, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.timeout):
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.client.Disconnect(250)
	})
}
