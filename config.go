package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB2")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// Debug logs every AT command and response line
	Debug bool `yaml:"debug"`

	// RTS and CTS select UART hardware flow control
	RTS bool `yaml:"rts"`
	CTS bool `yaml:"cts"`

	// AttachOnStart attaches to the packet domain after bring-up
	AttachOnStart bool `yaml:"attach_on_start"`

	// GPSMode is "standalone" or "ue-based"; empty leaves GPS off
	GPSMode string `yaml:"gps_mode"`
	// GPSPollInterval is how often the current fix is read and published
	GPSPollInterval time.Duration `yaml:"gps_poll_interval"`
	// AssistServer is the SUPL server used for UE based GPS
	AssistServer    string `yaml:"assist_server"`
	AssistServerSSL bool   `yaml:"assist_server_ssl"`

	// MQTTBroker enables fix publishing when set (e.g. "tcp://localhost:1883")
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTUsername string `yaml:"mqtt_username"`
	MQTTPassword string `yaml:"mqtt_password"`
	// MQTTQoS is the delivery guarantee of published fixes (0, 1 or 2)
	MQTTQoS byte `yaml:"mqtt_qos"`
}

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
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB2"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.AttachOnStart = true
		c.GPSPollInterval = 10 * time.Second
		c.MQTTClientID = "simgw-1"
		c.MQTTTopic = "simgw/fix"
		return nil
	}
}

// WithFile overlays the values present in a YAML file. An empty path is
// ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

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

		envBool("RTS", &c.RTS)
		envBool("CTS", &c.CTS)
		envBool("ATTACH_ON_START", &c.AttachOnStart)

		if mode := os.Getenv("GPS_MODE"); mode != "" {
			c.GPSMode = mode
		}

		if interval := os.Getenv("GPS_POLL_INTERVAL"); interval != "" {
			d, err := time.ParseDuration(interval)
			if err != nil {
				return fmt.Errorf("GPS_POLL_INTERVAL: %w", err)
			}
			c.GPSPollInterval = d
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTTBroker = broker
		}
		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MQTTClientID = id
		}
		if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
			c.MQTTTopic = topic
		}
		if qos := os.Getenv("MQTT_QOS"); qos != "" {
			q, err := strconv.ParseUint(qos, 10, 8)
			if err != nil {
				return fmt.Errorf("MQTT_QOS: %w", err)
			}
			c.MQTTQoS = byte(q)
		}
		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTTUsername = user
			c.MQTTPassword = os.Getenv("MQTT_PASSWORD")
		}

		return nil
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			value := f.Value.String()
			switch f.Name {
			case "bind-address":
				c.BindAddress = value
			case "serial-port":
				c.SerialPort = value
			case "baud-rate":
				if b, convErr := strconv.Atoi(value); convErr == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = value
			case "debug":
				c.Debug, _ = strconv.ParseBool(value)
			case "gps-mode":
				c.GPSMode = value
			case "gps-poll-interval":
				if d, parseErr := time.ParseDuration(value); parseErr == nil {
					c.GPSPollInterval = d
				} else {
					err = fmt.Errorf("gps-poll-interval: %w", parseErr)
				}
			case "mqtt-broker":
				c.MQTTBroker = value
			case "mqtt-topic":
				c.MQTTTopic = value
			case "mqtt-qos":
				if q, parseErr := strconv.ParseUint(value, 10, 8); parseErr == nil {
					c.MQTTQoS = byte(q)
				} else {
					err = fmt.Errorf("mqtt-qos: %w", parseErr)
				}
			}
		})
		return err
	}
}

func (c *Config) validate() error {
	if c.SerialPort == "" {
		return fmt.Errorf("serial port is required")
	}
	if c.GPSPollInterval <= 0 {
		return fmt.Errorf("gps poll interval must be positive, got %v", c.GPSPollInterval)
	}
	if c.MQTTBroker != "" && c.MQTTTopic == "" {
		return fmt.Errorf("mqtt topic is required when a broker is configured")
	}
	if c.MQTTQoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTTQoS)
	}
	return nil
}

// WithValidation rejects configurations the daemon cannot run with
func WithValidation() ConfigOption {
	return func(c *Config) error {
		return c.validate()
	}
}
