package modem

import (
	"io"
	"strings"
	"sync"
	"time"
)

// FakeModem is a scripted in-memory Transport for tests. Each command
// written is answered with the next response queued for it by On; the last
// response repeats. Commands without a script are answered with ERROR.
//
// Reads block until a response is emitted or the fake is closed, like a
// real serial port would.
type FakeModem struct {
	// Echo makes the fake repeat every command line before its response.
	Echo bool

	mu        sync.Mutex
	script    map[string][]string
	writes    []string
	flow      []FlowControl
	writeErr  error
	sent      int
	received  int
	blocked   bool
	pending   []byte
	rx        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewFakeModem creates a fake with an empty script.
func NewFakeModem() *FakeModem {
	return &FakeModem{
		script: make(map[string][]string),
		rx:     make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

// On queues raw responses for cmd, e.g. "\r\n+CGATT: 1\r\n\r\nOK\r\n".
// With no responses the command is accepted and never answered.
func (f *FakeModem) On(cmd string, responses ...string) *FakeModem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(responses) == 0 {
		responses = []string{""}
	}
	f.script[cmd] = append(f.script[cmd], responses...)
	return f
}

// FailWrites makes every following Write return err.
func (f *FakeModem) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Writes returns the command lines written so far, without delimiters.
func (f *FakeModem) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Count returns how often cmd was written.
func (f *FakeModem) Count(cmd string) int {
	n := 0
	for _, w := range f.Writes() {
		if w == cmd {
			n++
		}
	}
	return n
}

// FlowControlCalls returns the local flow control settings applied.
func (f *FakeModem) FlowControlCalls() []FlowControl {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FlowControl(nil), f.flow...)
}

// Emit queues unsolicited output from the modem.
func (f *FakeModem) Emit(data string) {
	f.mu.Lock()
	f.sent++
	f.mu.Unlock()

	select {
	case f.rx <- []byte(data):
	case <-f.closed:
	}
}

// TB is the part of testing.TB used by FakeModem.
type TB interface {
	Helper()
	Fatal(args ...any)
}

// WaitIdle blocks until everything emitted has been read and the reader
// is waiting for more input.
func (f *FakeModem) WaitIdle(t TB) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		idle := f.blocked && f.sent == f.received && len(f.pending) == 0
		f.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("fake modem did not become idle")
}

func (f *FakeModem) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return 0, err
	}
	cmd := strings.TrimRight(string(p), "\r\n")
	f.writes = append(f.writes, cmd)

	response := "\r\nERROR\r\n"
	if queue, ok := f.script[cmd]; ok {
		response = queue[0]
		if len(queue) > 1 {
			f.script[cmd] = queue[1:]
		}
	}
	f.mu.Unlock()

	if f.Echo {
		f.Emit(cmd + "\r\n")
	}
	if response != "" {
		f.Emit(response)
	}
	return len(p), nil
}

func (f *FakeModem) Read(p []byte) (int, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		f.mu.Unlock()
		return n, nil
	}
	f.blocked = true
	f.mu.Unlock()

	select {
	case data := <-f.rx:
		f.mu.Lock()
		defer f.mu.Unlock()
		f.blocked = false
		f.received++
		n := copy(p, data)
		f.pending = data[n:]
		return n, nil
	case <-f.closed:
		f.mu.Lock()
		f.blocked = false
		f.mu.Unlock()
		return 0, io.EOF
	}
}

// SetFlowControl records the local flow control setting.
func (f *FakeModem) SetFlowControl(fc FlowControl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flow = append(f.flow, fc)
	return nil
}

// Close ends pending and future reads with io.EOF.
func (f *FakeModem) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	return nil
}

var (
	_ Transport      = (*FakeModem)(nil)
	_ FlowController = (*FakeModem)(nil)
)
