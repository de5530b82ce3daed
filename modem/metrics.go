package modem

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"i4.energy/across/simgw/at"
)

// metrics instruments AT exchanges. A nil *metrics records nothing.
type metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simgw_at_commands_total",
		Help: "AT command exchanges by command and result.",
	}, []string{"command", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simgw_at_command_duration_seconds",
		Help:    "Time from writing an AT command to its last expected line.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 180},
	}, []string{"command"})

	var err error
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &metrics{commands: commands, duration: duration}, nil
}

// register registers c, or returns the collector registered before it so
// several engines can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observe(cmd string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	id := at.CommandID(cmd)
	m.commands.WithLabelValues(id, resultLabel(err)).Inc()
	m.duration.WithLabelValues(id).Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	var respErr *ResponseError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &respErr):
		return "error"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	default:
		return "other"
	}
}
