package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/simgw/at"
)

// Lifecycle flags of a Modem.
const (
	// flagOwnsTransport marks a transport obtained from the Dialer; Close
	// releases it.
	flagOwnsTransport uint8 = 1 << iota
	// flagClosed is set once Close has run.
	flagClosed
)

// Modem represents a SIMCom SIM5320 cellular modem that communicates via
// AT commands. It owns the transaction engine and, when it dialed it, the
// transport. The GPS, network and identity services share the engine and
// are valid for the lifetime of the Modem.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// engine serializes every exchange with the modem
	engine *Engine
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	// mu guards flags
	mu    sync.Mutex
	flags uint8

	gps     *GPS
	network *Network
	info    *Info
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection through the configured Dialer and
// starts the transaction engine. The modem hardware is not touched; call
// Reset and Init to bring it up.
//
// The transport is owned by the Modem and released by Close.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m, err := newModem(transport, config, flagOwnsTransport)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return m, nil
}

// NewWithTransport creates a Modem on a transport owned by the caller.
// Close leaves the transport open; closing it is the caller's job and also
// ends the engine's reader.
func NewWithTransport(transport Transport, config Config) (*Modem, error) {
	if transport == nil {
		return nil, ErrNotInitialized
	}
	return newModem(transport, config, 0)
}

func newModem(transport Transport, config Config, flags uint8) (*Modem, error) {
	config.setDefaults()

	engine, err := NewEngine(transport, config)
	if err != nil {
		return nil, err
	}

	return &Modem{
		transport: transport,
		engine:    engine,
		config:    config,
		logger:    config.Logger,
		flags:     flags,
		gps:       &GPS{engine: engine, config: config},
		network:   &Network{engine: engine, config: config, logger: config.Logger},
		info:      &Info{engine: engine},
	}, nil
}

// Engine returns the transaction engine, for callers that need to run
// several operations as one atomic unit. Inside Engine().Transact, pass
// tx.Context(ctx) to the public methods so they join the transaction.
func (m *Modem) Engine() *Engine {
	return m.engine
}

// GPS returns the GPS service sharing this modem's engine.
func (m *Modem) GPS() *GPS {
	return m.gps
}

// Network returns the network service sharing this modem's engine.
func (m *Modem) Network() *Network {
	return m.network
}

// Info returns the identity query service sharing this modem's engine.
func (m *Modem) Info() *Info {
	return m.info
}

// Close shuts down the modem and releases all resources.
// It stops the engine and closes the transport if the Modem dialed it.
// After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flags&flagClosed != 0 {
		return ErrAlreadyClosed
	}
	m.flags |= flagClosed

	m.engine.Close()

	if m.flags&flagOwnsTransport != 0 {
		return m.transport.Close()
	}
	return nil
}

// Reset restarts the modem with AT+CRESET and waits for the boot banner.
// Each of the configured attempts is a window of the attempt interval;
// lines other than the banner are skipped without ending the window. Not
// seeing the banner in any window is ErrTimeout.
func (m *Modem) Reset(ctx context.Context) error {
	return m.engine.Transact(ctx, func(tx *Tx) error {
		if _, err := tx.Command(ctx, at.CmdReset, at.OK); err != nil {
			return fmt.Errorf("request reset: %w", err)
		}

		policy := m.config.Reset
		for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
			started, err := m.awaitBanner(ctx, tx, attempt, policy.Interval)
			if err != nil {
				return fmt.Errorf("wait for boot banner: %w", err)
			}
			if started {
				m.logger.Info("Modem restarted", "attempt", attempt)
				return nil
			}
			m.logger.Debug("Waiting for boot banner", "attempt", attempt)
		}
		return fmt.Errorf("%w: no %q banner after %d attempts", ErrTimeout, at.UrcStart, policy.MaxRetries)
	})
}

// awaitBanner reads lines for one window. It reports false once the window
// passes without the banner.
func (m *Modem) awaitBanner(ctx context.Context, tx *Tx, attempt int, window time.Duration) (bool, error) {
	end := time.Now().Add(window)
	for {
		remaining := time.Until(end)
		if remaining <= 0 {
			return false, nil
		}
		line, err := tx.ReadLine(ctx, remaining)
		switch {
		case err == nil && line == at.UrcStart:
			return true, nil
		case err == nil:
			m.logger.Debug("Skipping line before boot banner", "attempt", attempt, "line", line)
		case errors.Is(err, ErrMismatch) && ctx.Err() == nil:
			return false, nil
		default:
			return false, err
		}
	}
}

// Init performs the bring-up sequence for the modem hardware:
//
//  1. probe with AT
//  2. disable echo
//  3. check that AT+CGMM reports the configured model prefix
//  4. switch to minimum functionality (low power)
//  5. configure the GPS subsystem
//
// The whole sequence is one transaction. The first failing step aborts it
// with a *StepError; later steps are not sent and applied settings are not
// rolled back. When ctx has no deadline the configured init timeout applies.
func (m *Modem) Init(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && m.config.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.InitTimeout)
		defer cancel()
	}

	return m.engine.Transact(ctx, func(tx *Tx) error {
		if _, err := tx.Command(ctx, at.CmdAt, at.OK); err != nil {
			return &StepError{Step: "probe", Err: err}
		}

		if _, err := tx.Command(ctx, at.CmdEchoOff, at.OK); err != nil {
			return &StepError{Step: "echo off", Err: err}
		}

		model, err := tx.Query(ctx, at.CmdModel, "")
		if err != nil {
			return &StepError{Step: "model check", Err: err}
		}
		if !strings.HasPrefix(model, m.config.ModelPrefix) {
			return &StepError{
				Step: "model check",
				Err:  fmt.Errorf("%w: model %q, want prefix %q", ErrMismatch, model, m.config.ModelPrefix),
			}
		}

		if err := m.stop(ctx, tx); err != nil {
			return &StepError{Step: "low power", Err: err}
		}

		if err := m.gps.configure(ctx, tx); err != nil {
			return &StepError{Step: "gps configure", Err: err}
		}

		m.logger.Info("Modem initialized", "model", model)
		return nil
	})
}

// Start switches the radio to full functionality (AT+CFUN=1).
func (m *Modem) Start(ctx context.Context) error {
	if _, err := m.engine.Exec(ctx, at.CmdFunFull, at.OK); err != nil {
		return fmt.Errorf("start radio: %w", err)
	}
	return nil
}

// Stop switches the radio to minimum functionality (AT+CFUN=0).
func (m *Modem) Stop(ctx context.Context) error {
	return m.stop(ctx, m.engine)
}

func (m *Modem) stop(ctx context.Context, t Transactor) error {
	return t.Transact(ctx, func(tx *Tx) error {
		if _, err := tx.Command(ctx, at.CmdFunMin, at.OK); err != nil {
			return fmt.Errorf("stop radio: %w", err)
		}
		return nil
	})
}

// IsActive reports whether the radio is not in minimum functionality.
func (m *Modem) IsActive(ctx context.Context) (bool, error) {
	payload, err := m.engine.Query(ctx, at.CmdFunQuery, at.RespFunction)
	if err != nil {
		return false, fmt.Errorf("query functionality: %w", err)
	}
	fun, err := at.Int(payload)
	if err != nil {
		return false, fmt.Errorf("%w: functionality %q", ErrDecode, payload)
	}
	return fun != 0, nil
}

// IMEI returns the device IMEI as reported by AT+CGSN.
func (m *Modem) IMEI(ctx context.Context) (string, error) {
	imei, err := m.engine.Query(ctx, at.CmdSerialNumber, "")
	if err != nil {
		return "", fmt.Errorf("query IMEI: %w", err)
	}
	return imei, nil
}

// EnableFlowControl turns on UART hardware flow control for the lines set
// in the configuration: AT+IFC=2,2 for RTS and CTS, AT+IFC=2,0 for RTS
// only, AT+IFC=0,2 for CTS only. With no line requested it succeeds
// without a transaction. The local side is switched first when the
// transport implements FlowController.
func (m *Modem) EnableFlowControl(ctx context.Context) error {
	fc := m.config.FlowControl
	if !fc.Enabled() {
		return nil
	}

	return m.engine.Transact(ctx, func(tx *Tx) error {
		if local, ok := m.transport.(FlowController); ok {
			if err := local.SetFlowControl(fc); err != nil {
				return fmt.Errorf("%w: enable local flow control: %w", ErrTransport, err)
			}
		}
		rts, cts := 0, 0
		if fc.RTS {
			rts = 2
		}
		if fc.CTS {
			cts = 2
		}
		if _, err := tx.Command(ctx, fmt.Sprintf(at.CmdFlowCtrl, rts, cts), at.OK); err != nil {
			return fmt.Errorf("enable flow control: %w", err)
		}
		return nil
	})
}

// DisableFlowControl turns UART hardware flow control off on both sides.
// With no line configured it succeeds without a transaction.
func (m *Modem) DisableFlowControl(ctx context.Context) error {
	if !m.config.FlowControl.Enabled() {
		return nil
	}

	return m.engine.Transact(ctx, func(tx *Tx) error {
		if local, ok := m.transport.(FlowController); ok {
			if err := local.SetFlowControl(FlowControl{}); err != nil {
				return fmt.Errorf("%w: disable local flow control: %w", ErrTransport, err)
			}
		}
		if _, err := tx.Command(ctx, fmt.Sprintf(at.CmdFlowCtrl, 0, 0), at.OK); err != nil {
			return fmt.Errorf("disable flow control: %w", err)
		}
		return nil
	})
}
