package modem

import (
	"log/slog"
	"time"
)

const (
	// DefaultTimeout bounds a whole exchange.
	DefaultTimeout = time.Minute
	// DefaultPollInterval is the pause after each line of modem chatter.
	DefaultPollInterval = time.Second
	// DefaultMaxRetries is the number of chatter lines tolerated before
	// giving up.
	DefaultMaxRetries = 30
	// DefaultMaxLineLength is the longest response line accepted, not
	// counting the line terminator.
	DefaultMaxLineLength = 1000
)

// Config controls how a Session talks to the modem. Use NewConfigBuilder
// to create one with defaults applied. A zero Timeout, PollInterval or
// MaxRetries selects its default; use a negative value to lift the bound.
type Config struct {
	// Dialer opens the transport. Required by Run only.
	Dialer Dialer
	// Logger receives progress and modem chatter. Nil discards.
	Logger *slog.Logger
	// Timeout bounds the exchange. Negative waits forever.
	Timeout time.Duration
	// PollInterval is the pause after a chatter line. Negative disables it.
	PollInterval time.Duration
	// MaxRetries is the number of chatter lines tolerated. Negative is
	// unbounded.
	MaxRetries int
	// MaxLineLength caps a single response line.
	MaxLineLength int
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	b.config.Timeout = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.config.MaxRetries = n
	return b
}

func (b *ConfigBuilder) WithMaxLineLength(n int) *ConfigBuilder {
	b.config.MaxLineLength = n
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	config := b.config
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	config.setDefaults()
	return config, nil
}
