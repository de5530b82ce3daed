package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/simgw/modem"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB2", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Bool("debug", false, "Log every AT command and response")
	flag.String("gps-mode", "", "Start GPS in this mode (standalone, ue-based)")
	flag.Duration("gps-poll-interval", 10*time.Second, "Interval between GPS fix reads")
	flag.String("mqtt-broker", "", "MQTT broker to publish fixes to (e.g. tcp://localhost:1883)")
	flag.String("mqtt-topic", "simgw/fix", "MQTT topic for published fixes")
	flag.Uint("mqtt-qos", 0, "MQTT QoS level for published fixes (0, 1 or 2)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine), WithValidation())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := modem.SerialDialer{PortName: config.SerialPort, BaudRate: config.BaudRate}
	if err := run(ctx, config, dialer, logger); err != nil {
		logger.Error("Gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *Config, dialer modem.Dialer, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(dialer).
		WithLogger(logger.With("component", "modem")).
		WithRegisterer(registry).
		WithDebug(config.Debug).
		WithFlowControl(modem.FlowControl{RTS: config.RTS, CTS: config.CTS}).
		WithAssistServer(config.AssistServer, config.AssistServerSSL).
		Build()
	if err != nil {
		return fmt.Errorf("create modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("create modem: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil && !errors.Is(err, modem.ErrAlreadyClosed) {
			logger.Error("Failed to close modem", "error", err)
		}
	}()

	if err := bringUp(ctx, m, config, logger); err != nil {
		return err
	}

	var publisher *Publisher
	if config.MQTTBroker != "" && config.GPSMode != "" {
		client, err := NewMQTTClient(config, logger.With("component", "mqtt"))
		if err != nil {
			return err
		}
		defer client.Disconnect(500)

		publisher = &Publisher{
			Logger:   logger.With("component", "publisher"),
			Source:   m.GPS(),
			Broker:   client,
			Topic:    config.MQTTTopic,
			Interval: config.GPSPollInterval,
			QoS:      config.MQTTQoS,
		}
	}

	httpServer := &http.Server{
		Addr:              config.BindAddress,
		Handler:           NewServer(logger.With("component", "server"), m, registry),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Closing HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}

	notifySystemd(logger, daemon.SdNotifyReady)
	logger.Info("SIM5320 gateway ready")

	err = g.Wait()

	notifySystemd(logger, daemon.SdNotifyStopping)
	shutdownModem(m, config, logger)
	return err
}

// notifySystemd reports state to the service manager, if there is one.
func notifySystemd(logger *slog.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.Warn("Failed to notify systemd", "state", state, "error", err)
	}
}

// bringUp resets and initialises the modem, then powers the radio, attaches
// and starts GPS as configured.
func bringUp(ctx context.Context, m *modem.Modem, config *Config, logger *slog.Logger) error {
	logger.Info("Resetting modem")
	if err := m.Reset(ctx); err != nil {
		return fmt.Errorf("reset modem: %w", err)
	}

	if err := m.Init(ctx); err != nil {
		var stepErr *modem.StepError
		if errors.As(err, &stepErr) {
			logger.Error("Modem init failed", "step", stepErr.Steps(), "error", stepErr.Err)
		}
		return fmt.Errorf("init modem: %w", err)
	}

	if err := m.EnableFlowControl(ctx); err != nil {
		return fmt.Errorf("enable flow control: %w", err)
	}

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start radio: %w", err)
	}

	if imei, err := m.IMEI(ctx); err == nil {
		logger.Info("Modem ready", "imei", imei)
	}

	if config.AttachOnStart {
		logger.Info("Attaching to packet domain")
		if err := m.Network().Attach(ctx); err != nil {
			return fmt.Errorf("attach: %w", err)
		}
	}

	if config.GPSMode != "" {
		mode, err := modem.ParseGPSMode(config.GPSMode)
		if err != nil {
			return err
		}
		if err := m.GPS().Start(ctx, mode); err != nil {
			return fmt.Errorf("start GPS: %w", err)
		}
		logger.Info("GPS started", "mode", mode)
	}
	return nil
}

// shutdownModem stops GPS and detaches on a fresh context, the run context
// being already canceled.
func shutdownModem(m *modem.Modem, config *Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if config.GPSMode != "" {
		if err := m.GPS().Stop(ctx); err != nil {
			logger.Warn("Failed to stop GPS", "error", err)
		}
	}
	if config.AttachOnStart {
		if err := m.Network().Detach(ctx); err != nil {
			logger.Warn("Failed to detach", "error", err)
		}
	}
	logger.Info("Closing modem connection")
}
