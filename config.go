package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"i4.energy/across/ussd/modem"
	"i4.energy/across/ussd/publish"
	"i4.energy/across/ussd/septet"
	"i4.energy/across/ussd/ussd"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB1")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// Debug forces debug logging regardless of LogLevel
	Debug bool

	// Command is the AT command keyword, AT+CUSD=1 when empty
	Command string
	// Args is a pre-encoded command argument, sent as is
	Args string
	// USSD is the request text, 7-bit packed before sending (e.g. "*100#")
	USSD string
	// TruncateSeptets drops the carry byte when packing USSD
	TruncateSeptets bool

	// Timeout bounds one exchange, negative waits forever
	Timeout time.Duration
	// PollInterval is the pause after each line of modem chatter
	PollInterval time.Duration
	// MaxRetries is the number of chatter lines tolerated, negative is unbounded
	MaxRetries int

	// List prints the available serial ports and exits
	List bool
	// BindAddress enables serve mode on the given address (e.g. "0.0.0.0:8080")
	BindAddress string

	// MQTTBroker enables publishing of results (e.g. "tcp://localhost:1883")
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
}

// errZeroBound rejects an explicit 0 for exchange bounds, where the modem
// layer reads 0 as "use the default".
var errZeroBound = errors.New("0 is not allowed, use a negative value to disable")

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB1"
		c.BaudRate = modem.DefaultBaudRate
		c.LogLevel = "info"
		c.Timeout = modem.DefaultTimeout
		c.PollInterval = modem.DefaultPollInterval
		c.MaxRetries = modem.DefaultMaxRetries
		c.MQTTTopic = publish.DefaultTopic
		c.MQTTClientID = publish.DefaultClientID
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if timeout := os.Getenv("TIMEOUT"); timeout != "" {
			d, err := time.ParseDuration(timeout)
			if err == nil && d == 0 {
				err = errZeroBound
			}
			if err != nil {
				return fmt.Errorf("invalid TIMEOUT %q: %w", timeout, err)
			}
			c.Timeout = d
		}

		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTTBroker = broker
		}

		if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
			c.MQTTTopic = topic
		}

		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MQTTClientID = id
		}

		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTTUsername = user
			c.MQTTPassword = os.Getenv("MQTT_PASSWORD")
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			if err != nil {
				return
			}
			value := f.Value.String()
			switch f.Name {
			case "serial-port":
				c.SerialPort = value
			case "baud-rate":
				if b, convErr := strconv.Atoi(value); convErr == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = value
			case "debug":
				c.Debug, err = strconv.ParseBool(value)
			case "command":
				c.Command = value
			case "args":
				c.Args = value
			case "ussd":
				c.USSD = value
			case "truncate-septets":
				c.TruncateSeptets, err = strconv.ParseBool(value)
			case "timeout":
				c.Timeout, err = time.ParseDuration(value)
				if err == nil && c.Timeout == 0 {
					err = errZeroBound
				}
			case "poll-interval":
				c.PollInterval, err = time.ParseDuration(value)
				if err == nil && c.PollInterval == 0 {
					err = errZeroBound
				}
			case "max-retries":
				c.MaxRetries, err = strconv.Atoi(value)
				if err == nil && c.MaxRetries == 0 {
					err = errZeroBound
				}
			case "list":
				c.List, err = strconv.ParseBool(value)
			case "bind-address":
				c.BindAddress = value
			case "mqtt-broker":
				c.MQTTBroker = value
			case "mqtt-topic":
				c.MQTTTopic = value
			case "mqtt-client-id":
				c.MQTTClientID = value
			}
			if err != nil {
				err = fmt.Errorf("invalid -%s %q: %w", f.Name, value, err)
			}
		})
		return err
	}
}

// Request validates the request flags and returns the request and keyword
// to send.
func (c *Config) Request() (ussd.Request, string, error) {
	return parseRequest(c.USSD, c.Args, c.Command)
}

// parseRequest applies the rules shared by the command line and the HTTP
// API: text and a pre-encoded argument exclude each other, and a custom
// command keyword needs a pre-encoded argument.
func parseRequest(text, args, command string) (ussd.Request, string, error) {
	if command != "" {
		if text != "" {
			return ussd.Request{}, "", fmt.Errorf("%w: a custom command takes an encoded argument, not USSD text", ussd.ErrArgumentConflict)
		}
		if args == "" {
			return ussd.Request{}, "", fmt.Errorf("%w: a custom command needs an argument", ussd.ErrMissingRequest)
		}
	}
	req, err := ussd.NewRequest(text, args)
	if err != nil {
		return ussd.Request{}, "", err
	}
	return req, command, nil
}

// SeptetMode returns the packing mode selected by TruncateSeptets.
func (c *Config) SeptetMode() septet.Mode {
	if c.TruncateSeptets {
		return septet.ModeTruncate
	}
	return septet.ModeFlush
}

// Level returns the slog level for LogLevel, or debug when Debug is set.
func (c *Config) Level() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ModemConfig builds the exchange configuration for the serial modem.
func (c *Config) ModemConfig(logger *slog.Logger) (modem.Config, error) {
	return modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{
			PortName: c.SerialPort,
			BaudRate: c.BaudRate,
		}).
		WithLogger(logger).
		WithTimeout(c.Timeout).
		WithPollInterval(c.PollInterval).
		WithMaxRetries(c.MaxRetries).
		Build()
}

// PublishConfig builds the MQTT publisher configuration.
func (c *Config) PublishConfig(logger *slog.Logger) publish.Config {
	return publish.Config{
		Broker:   c.MQTTBroker,
		ClientID: c.MQTTClientID,
		Username: c.MQTTUsername,
		Password: c.MQTTPassword,
		Topic:    c.MQTTTopic,
		QoS:      publish.DefaultQoS,
		Logger:   logger,
	}
}
