package main

//go:generate go tool mockgen -source=publisher.go -destination=mock_publisher_test.go -package=main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/simgw/modem"
)

// publishTimeout bounds the wait for a broker acknowledgement.
const publishTimeout = 5 * time.Second

// FixSource reads the current GPS fix. *modem.GPS implements it.
type FixSource interface {
	Coord(ctx context.Context) (modem.Coord, bool, error)
}

// Broker is the part of mqtt.Client the publisher uses.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher polls the GPS fix and publishes every fix it gets as JSON.
type Publisher struct {
	Logger   *slog.Logger
	Source   FixSource
	Broker   Broker
	Topic    string
	Interval time.Duration
	QoS      byte
}

// Run polls until ctx is done. Failed polls and publishes are logged and
// the loop carries on.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.Logger.Warn("Failed to publish GPS fix", "error", err)
			}
		}
	}
}

// PublishOnce reads the fix and publishes it. It reports whether a fix was
// published; no fix is not an error.
func (p *Publisher) PublishOnce(ctx context.Context) (bool, error) {
	coord, ok, err := p.Source.Coord(ctx)
	if err != nil {
		return false, fmt.Errorf("read fix: %w", err)
	}
	if !ok {
		p.Logger.Debug("No GPS fix")
		return false, nil
	}

	payload, err := json.Marshal(coord)
	if err != nil {
		return false, fmt.Errorf("encode fix: %w", err)
	}

	token := p.Broker.Publish(p.Topic, p.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return false, errors.New("publish fix: timed out waiting for broker")
	}
	if err := token.Error(); err != nil {
		return false, fmt.Errorf("publish fix: %w", err)
	}

	p.Logger.Debug("Published GPS fix", "topic", p.Topic, "latitude", coord.Latitude, "longitude", coord.Longitude)
	return true, nil
}

// NewMQTTClient connects to the configured broker. The client reconnects on
// its own after the initial connection succeeds.
func NewMQTTClient(config *Config, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTTBroker)
	opts.SetClientID(config.MQTTClientID)
	if config.MQTTUsername != "" {
		opts.SetUsername(config.MQTTUsername)
		opts.SetPassword(config.MQTTPassword)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.MQTTBroker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timed out", config.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.MQTTBroker, err)
	}
	return client, nil
}
