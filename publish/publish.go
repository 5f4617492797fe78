// Package publish forwards USSD reports to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"i4.energy/across/ussd/ussd"
)

const (
	DefaultTopic    = "ussd/result"
	DefaultClientID = "ussd-1"
	DefaultQoS      = 1
	DefaultTimeout  = 10 * time.Second

	// disconnectQuiesce is how long Close lets in-flight work finish, in
	// milliseconds.
	disconnectQuiesce = 250
)

var (
	// ErrNoBroker is returned by Connect when Config.Broker is empty.
	ErrNoBroker = errors.New("no MQTT broker configured")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("MQTT operation timed out")
)

// Config describes the broker connection and where reports go.
type Config struct {
	// Broker is the server URI, e.g. "tcp://localhost:1883".
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retained bool
	// Timeout bounds connecting and each publish.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *Config) setDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Client is the part of mqtt.Client the Publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

var _ Client = mqtt.Client(nil)

// Publisher sends each report as a JSON document to one topic.
type Publisher struct {
	client Client
	config Config
	logger *slog.Logger
}

// New wraps an already connected client.
func New(client Client, config Config) *Publisher {
	config.setDefaults()
	return &Publisher{
		client: client,
		config: config,
		logger: config.Logger,
	}
}

// Connect opens a connection to config.Broker and returns a Publisher
// using it.
func Connect(ctx context.Context, config Config) (*Publisher, error) {
	if config.Broker == "" {
		return nil, ErrNoBroker
	}
	config.setDefaults()
	logger := config.Logger

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(config.Timeout)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), config.Timeout); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Broker, err)
	}
	return New(client, config), nil
}

// Publish sends report to the configured topic and waits for the broker
// to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, report ussd.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	token := p.client.Publish(p.config.Topic, p.config.QoS, p.config.Retained, payload)
	if err := wait(ctx, token, p.config.Timeout); err != nil {
		return fmt.Errorf("publish to %s: %w", p.config.Topic, err)
	}
	p.logger.Debug("Report published", "topic", p.config.Topic, "bytes", len(payload))
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
