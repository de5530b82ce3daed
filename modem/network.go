package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/simgw/at"
)

// AttachStatus is the packet domain attach state.
type AttachStatus int

const (
	Detached AttachStatus = iota
	Attached
)

func (s AttachStatus) String() string {
	if s == Attached {
		return "attached"
	}
	return "detached"
}

// Network handles packet domain attach, registration queries and operator
// scans. It shares the transaction engine of the Modem that created it.
type Network struct {
	engine *Engine
	config Config
	logger *slog.Logger
}

// Attach requests a packet domain attach and waits until the modem reports
// it. The request is retried per Config.AttachRequest until the modem
// accepts it; the last rejection is returned if it never does. The status
// is then polled per Config.AttachPoll; ErrTimeout is returned when the
// budget runs out. Every request and poll is its own transaction, so other
// callers can reach the modem in between.
func (n *Network) Attach(ctx context.Context) error {
	var lastErr error
	accepted, err := poll(ctx, n.config.AttachRequest, func(attempt int) (bool, error) {
		_, err := n.engine.Exec(ctx, at.CmdAttach, at.OK)
		if err == nil {
			return true, nil
		}
		if fatal(ctx, err) {
			return false, err
		}
		n.logger.Warn("Attach request rejected", "attempt", attempt, "error", err)
		lastErr = err
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("request attach: %w", err)
	}
	if accepted == 0 {
		return fmt.Errorf("request attach: %w", lastErr)
	}

	attempts, err := poll(ctx, n.config.AttachPoll, func(attempt int) (bool, error) {
		status, err := n.AttachStatus(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return false, err
			}
			n.logger.Warn("Attach status poll failed", "attempt", attempt, "error", err)
			return false, nil
		}
		return status == Attached, nil
	})
	if err != nil {
		return fmt.Errorf("await attach: %w", err)
	}
	if attempts == 0 {
		return fmt.Errorf("%w: not attached after %d polls", ErrTimeout, n.config.AttachPoll.MaxRetries)
	}

	n.logger.Info("Attached to packet domain", "polls", attempts)
	return nil
}

// Detach leaves the packet domain.
func (n *Network) Detach(ctx context.Context) error {
	if _, err := n.engine.Exec(ctx, at.CmdDetach, at.OK); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

// AttachStatus returns the current packet domain attach state.
func (n *Network) AttachStatus(ctx context.Context) (AttachStatus, error) {
	payload, err := n.engine.Query(ctx, at.CmdAttachQuery, at.RespAttach)
	if err != nil {
		return Detached, fmt.Errorf("query attach status: %w", err)
	}
	switch payload {
	case "0":
		return Detached, nil
	case "1":
		return Attached, nil
	default:
		return Detached, fmt.Errorf("%w: attach status %q", ErrDecode, payload)
	}
}

// RegistrationParams queries the registration state of one domain.
func (n *Network) RegistrationParams(ctx context.Context, t RegistrationType) (RegistrationParams, error) {
	cmd, prefix, err := t.query()
	if err != nil {
		return RegistrationParams{}, err
	}
	payload, err := n.engine.Query(ctx, cmd, prefix)
	if err != nil {
		return RegistrationParams{}, fmt.Errorf("query %s registration: %w", t, err)
	}
	return ParseRegistration(t, payload)
}

// ScanPLMN lists the operators the modem can see. A scan takes minutes, so
// the exchange is bounded by Config.ScanTimeout instead of the AT timeout.
func (n *Network) ScanPLMN(ctx context.Context) ([]Operator, error) {
	ctx = WithExchangeTimeout(ctx, n.config.ScanTimeout)

	payload, err := n.engine.Query(ctx, at.CmdOperatorScan, at.RespOperator)
	if err != nil {
		return nil, fmt.Errorf("scan operators: %w", err)
	}
	return ParseOperators(payload)
}

// OperatorNames reads the operator name table stored in the modem.
func (n *Network) OperatorNames(ctx context.Context) ([]OperatorName, error) {
	payloads, err := n.engine.Collect(ctx, at.CmdOperatorNames, at.RespOperatorNames)
	if err != nil {
		return nil, fmt.Errorf("read operator names: %w", err)
	}

	names := make([]OperatorName, 0, len(payloads))
	for _, payload := range payloads {
		name, err := parseOperatorName(payload)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// SignalQuality returns the received signal strength and bit error rate.
func (n *Network) SignalQuality(ctx context.Context) (SignalQuality, error) {
	payload, err := n.engine.Query(ctx, at.CmdSignalQuality, at.RespSignal)
	if err != nil {
		return SignalQuality{}, fmt.Errorf("query signal quality: %w", err)
	}
	fields := at.Fields(payload)
	if len(fields) != 2 {
		return SignalQuality{}, fmt.Errorf("%w: signal quality %q", ErrDecode, payload)
	}
	rssi, err := at.Int(fields[0])
	if err != nil {
		return SignalQuality{}, fmt.Errorf("%w: rssi %q", ErrDecode, fields[0])
	}
	ber, err := at.Int(fields[1])
	if err != nil {
		return SignalQuality{}, fmt.Errorf("%w: ber %q", ErrDecode, fields[1])
	}
	return SignalQuality{RSSI: rssi, BER: ber}, nil
}

// RegisteringMode returns the operator selection mode.
func (n *Network) RegisteringMode(ctx context.Context) (RegisteringMode, error) {
	payload, err := n.engine.Query(ctx, at.CmdOperatorQuery, at.RespOperator)
	if err != nil {
		return 0, fmt.Errorf("query registering mode: %w", err)
	}
	mode, err := at.Int(at.Fields(payload)[0])
	if err != nil || mode < int(ModeAutomatic) || mode > int(ModeManualAutomatic) {
		return 0, fmt.Errorf("%w: registering mode %q", ErrDecode, payload)
	}
	return RegisteringMode(mode), nil
}

// ContextActive reports whether any PDP context is active.
func (n *Network) ContextActive(ctx context.Context) (bool, error) {
	payloads, err := n.engine.Collect(ctx, at.CmdContextQuery, at.RespContext)
	if err != nil {
		return false, fmt.Errorf("query PDP contexts: %w", err)
	}
	for _, payload := range payloads {
		fields := at.Fields(payload)
		if len(fields) != 2 {
			return false, fmt.Errorf("%w: PDP context %q", ErrDecode, payload)
		}
		state, err := at.Int(fields[1])
		if err != nil {
			return false, fmt.Errorf("%w: PDP context %q", ErrDecode, payload)
		}
		if state == 1 {
			return true, nil
		}
	}
	return false, nil
}

// poll calls fn up to p.MaxRetries times, p.Interval apart, until it
// reports done. It returns the attempt that succeeded, or zero when the
// budget ran out. An error from fn or ctx ends polling.
func poll(ctx context.Context, p PollConfig, fn func(attempt int) (bool, error)) (int, error) {
	var timer *time.Timer
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		if attempt > 1 {
			if timer == nil {
				timer = time.NewTimer(p.Interval)
				defer timer.Stop()
			} else {
				timer.Reset(p.Interval)
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-timer.C:
			}
		}

		done, err := fn(attempt)
		if err != nil {
			return 0, err
		}
		if done {
			return attempt, nil
		}
	}
	return 0, nil
}

// fatal reports whether err ends a retry loop: the line is gone or the
// caller gave up.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, ErrTransport) || ctx.Err() != nil
}
