package modem

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/simgw/at"
)

// GPSMode selects how the GPS engine obtains its fix.
type GPSMode int

const (
	// GPSStandalone computes the fix on the device alone.
	GPSStandalone GPSMode = iota
	// GPSUEBased uses assistance data from the configured SUPL server.
	GPSUEBased
)

// arg returns the AT+CGPS mode argument.
func (m GPSMode) arg() int {
	if m == GPSUEBased {
		return 2
	}
	return 1
}

func (m GPSMode) String() string {
	switch m {
	case GPSStandalone:
		return "standalone"
	case GPSUEBased:
		return "ue-based"
	default:
		return fmt.Sprintf("GPSMode(%d)", int(m))
	}
}

// ParseGPSMode accepts the names returned by GPSMode.String.
func ParseGPSMode(s string) (GPSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standalone":
		return GPSStandalone, nil
	case "ue-based", "ue_based", "uebased":
		return GPSUEBased, nil
	default:
		return 0, fmt.Errorf("unknown GPS mode %q", s)
	}
}

// GPS controls the SIM5320 GPS engine. It shares the transaction engine of
// the Modem that created it.
type GPS struct {
	engine *Engine
	config Config
}

// Configure stops the GPS engine and applies the assistance and positioning
// settings. It is also run by Modem.Init.
func (g *GPS) Configure(ctx context.Context) error {
	return g.configure(ctx, g.engine)
}

func (g *GPS) configure(ctx context.Context, t Transactor) error {
	ssl := 0
	if g.config.AssistServerSSL {
		ssl = 1
	}

	steps := []struct {
		name string
		cmd  string
	}{
		{"gps stop", at.CmdGPSStop},
		{"gps assist server", fmt.Sprintf(at.CmdGPSAssistURL, g.config.AssistServerURL)},
		{"gps assist ssl", fmt.Sprintf(at.CmdGPSAssistSSL, ssl)},
		{"gps auto start", at.CmdGPSAutoOff},
		{"gps position mode", fmt.Sprintf(at.CmdGPSPositionMode, g.config.PositionMode)},
		{"gps standalone fallback", at.CmdGPSStandaloneSwap},
	}

	return t.Transact(ctx, func(tx *Tx) error {
		for _, step := range steps {
			if _, err := tx.Command(ctx, step.cmd, at.OK); err != nil {
				return &StepError{Step: step.name, Err: err}
			}
		}
		return nil
	})
}

// Start turns the GPS engine on in the given mode.
func (g *GPS) Start(ctx context.Context, mode GPSMode) error {
	if _, err := g.engine.Exec(ctx, fmt.Sprintf(at.CmdGPSStart, mode.arg()), at.OK); err != nil {
		return fmt.Errorf("start GPS: %w", err)
	}
	return nil
}

// Stop turns the GPS engine off.
func (g *GPS) Stop(ctx context.Context) error {
	if _, err := g.engine.Exec(ctx, at.CmdGPSStop, at.OK); err != nil {
		return fmt.Errorf("stop GPS: %w", err)
	}
	return nil
}

// IsActive reports whether the GPS engine is running.
func (g *GPS) IsActive(ctx context.Context) (bool, error) {
	on, _, err := g.status(ctx)
	return on, err
}

// Mode returns the mode the GPS engine was started in.
func (g *GPS) Mode(ctx context.Context) (GPSMode, error) {
	_, mode, err := g.status(ctx)
	return mode, err
}

// status decodes "+CGPS: <on>,<mode>".
func (g *GPS) status(ctx context.Context) (bool, GPSMode, error) {
	payload, err := g.engine.Query(ctx, at.CmdGPSQuery, at.RespGPS)
	if err != nil {
		return false, 0, fmt.Errorf("query GPS status: %w", err)
	}

	fields := at.Fields(payload)
	if len(fields) < 2 {
		return false, 0, fmt.Errorf("%w: GPS status %q", ErrDecode, payload)
	}
	on, err := at.Int(fields[0])
	if err != nil {
		return false, 0, fmt.Errorf("%w: GPS status %q", ErrDecode, payload)
	}
	mode, err := at.Int(fields[1])
	if err != nil {
		return false, 0, fmt.Errorf("%w: GPS mode %q", ErrDecode, payload)
	}

	if mode == 1 {
		return on != 0, GPSStandalone, nil
	}
	return on != 0, GPSUEBased, nil
}

// SetDesiredAccuracy sets the horizontal accuracy threshold in meters.
func (g *GPS) SetDesiredAccuracy(ctx context.Context, meters int) error {
	if meters < 0 {
		return fmt.Errorf("desired accuracy must not be negative, got %d", meters)
	}
	if _, err := g.engine.Exec(ctx, fmt.Sprintf(at.CmdGPSAccuracy, meters), at.OK); err != nil {
		return fmt.Errorf("set GPS accuracy: %w", err)
	}
	return nil
}

// DesiredAccuracy returns the horizontal accuracy threshold in meters.
func (g *GPS) DesiredAccuracy(ctx context.Context) (int, error) {
	payload, err := g.engine.Query(ctx, at.CmdGPSAccuracyQuery, at.RespGPSAccuracy)
	if err != nil {
		return 0, fmt.Errorf("query GPS accuracy: %w", err)
	}
	meters, err := at.Int(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: GPS accuracy %q", ErrDecode, payload)
	}
	return meters, nil
}

// Coord returns the current fix. ok is false when the modem has no fix yet
// or reports one that does not decode; err is reserved for failed
// exchanges.
func (g *GPS) Coord(ctx context.Context) (coord Coord, ok bool, err error) {
	payload, err := g.engine.Query(ctx, at.CmdGPSInfo, at.RespGPSInfo)
	if err != nil {
		return Coord{}, false, fmt.Errorf("query GPS info: %w", err)
	}

	coord, err = ParseCoord(payload)
	if err != nil {
		g.config.Logger.Debug("No GPS fix", "payload", payload, "error", err)
		return Coord{}, false, nil
	}
	return coord, true, nil
}
