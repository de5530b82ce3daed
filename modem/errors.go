package modem

import (
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/simgw/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when a Modem is constructed around a nil
	// Transport, either passed in directly or returned by the Dialer.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrClosed is returned by transactions started after the Engine was
	// closed. It matches ErrTransport.
	ErrClosed = fmt.Errorf("%w: engine closed", ErrTransport)

	// ErrTransport reports a failure of the serial line itself: a write or
	// read error, or the line reaching EOF.
	//
	// It is fatal to the transaction in progress. The state of the modem is
	// unknown afterwards.
	ErrTransport = errors.New("transport failure")

	// ErrMismatch is returned when the modem did not produce the expected
	// response: the pattern was not seen before the deadline, a different
	// final result code arrived, or the modem answered with an error.
	//
	// The engine never retries. Callers should assume that no state change
	// happened on the device.
	ErrMismatch = errors.New("unexpected modem response")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// configured receive buffer size. It matches ErrMismatch.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = fmt.Errorf("%w: response line too long", ErrMismatch)

	// ErrDecode is returned when a response was received but its payload
	// could not be interpreted. Decoders never substitute default values.
	ErrDecode = errors.New("could not interpret response")

	// ErrTimeout is returned when a bounded retry policy, such as the
	// network attach poll or the reset banner wait, is exhausted.
	//
	// It is distinct from ErrMismatch, which reports a single exchange that
	// went unanswered.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnsupported is returned for operations the SIM5320 cannot serve.
	// No command is sent to the modem.
	ErrUnsupported = errors.New("operation not supported")

	// ErrInitFailed is matched by every StepError and signals that a
	// compound bring-up sequence was aborted.
	ErrInitFailed = errors.New("initialization failed")
)

// ResponseError is returned when the modem terminates a command with ERROR,
// +CME ERROR or +CMS ERROR. It matches ErrMismatch.
type ResponseError struct {
	// Command is the command line that was rejected.
	Command string
	// Line is the final result line, e.g. "+CME ERROR: SIM not inserted".
	Line string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("modem replied %q", e.Line)
}

func (e *ResponseError) Unwrap() error {
	return ErrMismatch
}

// Code returns the value of a CME or CMS error, or an empty string for a
// plain ERROR.
func (e *ResponseError) Code() string {
	for _, prefix := range []string{at.CmeError, at.CmsError} {
		if code, ok := at.Payload(e.Line, prefix); ok {
			return code
		}
	}
	return ""
}

// StepError records which step of a compound sequence failed. It matches
// both ErrInitFailed and the underlying cause.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %q: %v", ErrInitFailed, e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrInitFailed, e.Err}
}

// Steps returns the chain of step names for nested step errors, outermost
// first, e.g. "gps configure/gps assist server".
func (e *StepError) Steps() string {
	steps := []string{e.Step}
	var inner *StepError
	if errors.As(e.Err, &inner) {
		steps = append(steps, inner.Steps())
	}
	return strings.Join(steps, "/")
}
