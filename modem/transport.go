package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport_test.go -package=modem

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a
// cellular modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports, TCP connections to emulators,
// or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a cellular modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// FlowController is implemented by transports that can switch the local
// side of UART hardware flow control.
type FlowController interface {
	SetFlowControl(fc FlowControl) error
}

// SerialDialer opens the modem over a serial port using go.bug.st/serial.
//
// When Mode is nil the port is opened at BaudRate (DefaultBaudRate when zero)
// with 8-N-1 framing.
type SerialDialer struct {
	PortName string
	BaudRate int
	Mode     *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return &serialTransport{Port: port}, nil
}

// serialTransport adapts serial.Port to Transport and FlowController.
type serialTransport struct {
	serial.Port
}

// SetFlowControl asserts RTS when the modem is allowed to send and, when
// CTS flow control is requested, checks that the modem holds CTS.
// go.bug.st/serial does not expose kernel level RTS/CTS handshaking, so
// the lines are driven once at switch time.
func (t *serialTransport) SetFlowControl(fc FlowControl) error {
	if err := t.SetRTS(true); err != nil {
		return fmt.Errorf("assert RTS: %w", err)
	}
	if !fc.CTS {
		return nil
	}
	bits, err := t.GetModemStatusBits()
	if err != nil {
		return fmt.Errorf("read modem status bits: %w", err)
	}
	if !bits.CTS {
		return errors.New("modem does not assert CTS")
	}
	return nil
}
