package modem

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultBaudRate is the UART speed the SIM5320 ships with.
	DefaultBaudRate = 115200
	// DefaultBufferSize bounds a single response line.
	DefaultBufferSize = 256
	// DefaultATTimeout bounds a single command/response exchange.
	DefaultATTimeout = 8 * time.Second
	// DefaultDelimiter terminates every command line.
	DefaultDelimiter = "\r"
	// DefaultModelPrefix is what AT+CGMM must report during Init.
	DefaultModelPrefix = "SIMCOM_SIM5320"
	// DefaultAssistServerURL is the SUPL server used for assisted GPS.
	DefaultAssistServerURL = "supl.google.com:7276"
	// DefaultPositionMode is the AT+CGPSPMD bitmask enabling every
	// positioning method.
	DefaultPositionMode = 127
)

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// PollConfig defines a bounded polling policy: at most MaxRetries attempts
// spaced by Interval.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

func (p PollConfig) withDefaults(interval time.Duration, retries int) PollConfig {
	if p.Interval <= 0 {
		p.Interval = interval
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = retries
	}
	return p
}

// FlowControl selects the UART hardware flow control lines in use.
type FlowControl struct {
	RTS bool `yaml:"rts"`
	CTS bool `yaml:"cts"`
}

// Enabled reports whether any flow control line was requested.
func (f FlowControl) Enabled() bool {
	return f.RTS || f.CTS
}

type Config struct {
	Dialer     Dialer
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// Debug logs every command written and every line received.
	Debug bool

	Delimiter   string
	BufferSize  int
	ATTimeout   time.Duration
	InitTimeout time.Duration
	ScanTimeout time.Duration

	ModelPrefix string
	FlowControl FlowControl

	AssistServerURL string
	AssistServerSSL bool
	PositionMode    int

	// Reset bounds the wait for the boot banner after AT+CRESET. Each
	// attempt waits up to Interval for a line.
	Reset PollConfig
	// AttachRequest bounds the AT+CGATT=1 retries.
	AttachRequest PollConfig
	// AttachPoll bounds the AT+CGATT? status polls.
	AttachPoll PollConfig
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ATTimeout <= 0 {
		c.ATTimeout = DefaultATTimeout
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 60 * time.Second
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 180 * time.Second
	}
	if c.ModelPrefix == "" {
		c.ModelPrefix = DefaultModelPrefix
	}
	if c.AssistServerURL == "" {
		c.AssistServerURL = DefaultAssistServerURL
	}
	if c.PositionMode == 0 {
		c.PositionMode = DefaultPositionMode
	}
	c.Reset = c.Reset.withDefaults(DefaultATTimeout, 10)
	c.AttachRequest = c.AttachRequest.withDefaults(time.Second, 10)
	c.AttachPoll = c.AttachPoll.withDefaults(time.Second, 30)
}

// ConfigBuilder assembles a Config step by step. Build applies the
// defaults and validates the result.
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

func (b *ConfigBuilder) WithRegisterer(r prometheus.Registerer) *ConfigBuilder {
	b.config.Registerer = r
	return b
}

func (b *ConfigBuilder) WithDebug(on bool) *ConfigBuilder {
	b.config.Debug = on
	return b
}

func (b *ConfigBuilder) WithDelimiter(d string) *ConfigBuilder {
	b.config.Delimiter = d
	return b
}

func (b *ConfigBuilder) WithBufferSize(n int) *ConfigBuilder {
	b.config.BufferSize = n
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithScanTimeout(d time.Duration) *ConfigBuilder {
	b.config.ScanTimeout = d
	return b
}

func (b *ConfigBuilder) WithModelPrefix(prefix string) *ConfigBuilder {
	b.config.ModelPrefix = prefix
	return b
}

func (b *ConfigBuilder) WithFlowControl(fc FlowControl) *ConfigBuilder {
	b.config.FlowControl = fc
	return b
}

func (b *ConfigBuilder) WithAssistServer(url string, ssl bool) *ConfigBuilder {
	b.config.AssistServerURL = url
	b.config.AssistServerSSL = ssl
	return b
}

func (b *ConfigBuilder) WithResetPolicy(p PollConfig) *ConfigBuilder {
	b.config.Reset = p
	return b
}

func (b *ConfigBuilder) WithAttachPolicy(request, poll PollConfig) *ConfigBuilder {
	b.config.AttachRequest = request
	b.config.AttachPoll = poll
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
