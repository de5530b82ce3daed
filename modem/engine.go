package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"i4.energy/across/simgw/at"
)

// Transactor runs fn as one logical transaction. Both *Engine and *Tx
// implement it: the engine acquires the transaction lock, a *Tx reuses the
// lock it already holds. Compound operations are written against a
// Transactor so they can run standalone or nested inside a larger sequence.
type Transactor interface {
	Transact(ctx context.Context, fn func(tx *Tx) error) error
}

// Engine is the sole owner of a modem Transport. It serializes AT command
// transactions and matches responses against expected line prefixes.
//
// A single reader goroutine scans the transport into lines. Lines that
// arrive while no transaction is running are discarded when the next
// transaction starts, after unsolicited result codes have been forwarded to
// the URC channel. This keeps a late answer to a timed out command from
// being matched by the following one.
type Engine struct {
	transport Transport
	delimiter string
	timeout   time.Duration
	maxLine   int
	logger    *slog.Logger
	metrics   *metrics
	debug     atomic.Bool

	sem   *semaphore.Weighted
	lines chan rxLine
	urc   chan string

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	// readErr is written by the reader before done is closed.
	readErr error
}

type rxLine struct {
	text    string
	tooLong bool
}

// NewEngine starts an engine on transport. The engine does not close the
// transport; the reader goroutine exits once the transport returns an
// error or EOF, or when the engine is closed and a line arrives.
func NewEngine(transport Transport, config Config) (*Engine, error) {
	config.setDefaults()

	m, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	e := &Engine{
		transport: transport,
		delimiter: config.Delimiter,
		timeout:   config.ATTimeout,
		maxLine:   config.BufferSize,
		logger:    config.Logger,
		metrics:   m,
		sem:       semaphore.NewWeighted(1),
		lines:     make(chan rxLine, 64),
		urc:       make(chan string, 16),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.debug.Store(config.Debug)

	go e.readLoop()

	return e, nil
}

// SetDebug toggles logging of the AT traffic at debug level.
func (e *Engine) SetDebug(on bool) {
	e.debug.Store(on)
}

// URC returns a read-only channel that receives Unsolicited Result Codes
// seen between transactions (e.g. "+CPIN: READY", "+CGEV: NW DETACH").
// The channel is buffered, but may drop some URC if not consumed fast enough.
func (e *Engine) URC() <-chan string {
	return e.urc
}

// Close stops the engine. Transactions started afterwards fail with
// ErrClosed. Close does not close the transport.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
}

// Transact acquires the transaction lock, discards stale input and runs fn.
// The lock is released on every exit path.
//
// When ctx carries a transaction of this engine that is still running (see
// Tx.Context), fn runs inside it instead. Public operations called with such
// a context therefore compose into the surrounding transaction.
func (e *Engine) Transact(ctx context.Context, fn func(tx *Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok && tx.engine == e && !tx.ended.Load() {
		return fn(tx)
	}

	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire transaction lock: %w", err)
	}
	defer e.sem.Release(1)

	e.flush()
	tx := &Tx{engine: e}
	defer tx.ended.Store(true)
	return fn(tx)
}

// Exec runs a single command as its own transaction.
func (e *Engine) Exec(ctx context.Context, cmd string, patterns ...string) ([]string, error) {
	var lines []string
	err := e.Transact(ctx, func(tx *Tx) (err error) {
		lines, err = tx.Command(ctx, cmd, patterns...)
		return err
	})
	return lines, err
}

// Query runs Tx.Query as its own transaction.
func (e *Engine) Query(ctx context.Context, cmd, prefix string) (string, error) {
	var payload string
	err := e.Transact(ctx, func(tx *Tx) (err error) {
		payload, err = tx.Query(ctx, cmd, prefix)
		return err
	})
	return payload, err
}

// Collect runs Tx.Collect as its own transaction.
func (e *Engine) Collect(ctx context.Context, cmd, prefix string) ([]string, error) {
	var payloads []string
	err := e.Transact(ctx, func(tx *Tx) (err error) {
		payloads, err = tx.Collect(ctx, cmd, prefix)
		return err
	})
	return payloads, err
}

func (e *Engine) readLoop() {
	defer close(e.done)

	scanner := bufio.NewScanner(e.transport)
	scanner.Split(at.Splitter)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if e.debug.Load() {
			e.logger.Debug("AT rx", "line", text)
		}
		select {
		case e.lines <- rxLine{text: text, tooLong: len(text) > e.maxLine}:
		case <-e.closed:
			return
		}
	}

	err := scanner.Err()
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		err = ErrLineTooLong
	case err == nil:
		err = io.EOF
	}
	e.readErr = err
}

// flush drains lines left over from earlier exchanges.
func (e *Engine) flush() {
	for {
		select {
		case l := <-e.lines:
			if at.Classify(l.text) != at.TypeURC {
				e.logger.Debug("Discarding stale line", "line", l.text)
				continue
			}
			select {
			case e.urc <- l.text:
			default:
				e.logger.Warn("URC channel full, dropping URC", "urc", l.text)
			}
		default:
			return
		}
	}
}

func (e *Engine) readFailure() error {
	if e.readErr == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: read: %w", ErrTransport, e.readErr)
}

type exchangeTimeoutKey struct{}

// WithExchangeTimeout returns a context whose exchanges are bounded by d
// instead of the configured AT timeout, for commands the modem takes
// minutes to answer.
func WithExchangeTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, exchangeTimeoutKey{}, d)
}

// exchangeContext bounds a single exchange by the AT timeout, or by the
// earlier deadline of ctx.
func (e *Engine) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.timeout
	if d, ok := ctx.Value(exchangeTimeoutKey{}).(time.Duration); ok && d > 0 {
		timeout = d
	}
	return context.WithTimeout(ctx, timeout)
}

// Tx is a transaction in progress. It is only valid inside the function
// passed to Transact and must not be shared between goroutines.
type Tx struct {
	engine *Engine
	ended  atomic.Bool
}

type txKey struct{}

// Context returns a copy of ctx carrying tx. Engine operations and the
// Modem, GPS, Network and Info methods called with it run inside tx rather
// than waiting for the lock tx holds. Once tx has ended the context no
// longer joins it.
func (tx *Tx) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Transact runs fn inside the transaction already held.
func (tx *Tx) Transact(_ context.Context, fn func(tx *Tx) error) error {
	return fn(tx)
}

// Command writes cmd followed by the delimiter, then reads lines until each
// pattern has been matched in order. A pattern matches a line starting with
// it; the empty pattern matches the next data line that is not the echo of
// cmd. Unrelated lines are skipped. An error result code, or any other final
// result code arriving first, ends the exchange.
//
// The exchange is bounded by the configured AT timeout, or by the context
// deadline when that is earlier. The matched lines are returned.
func (tx *Tx) Command(ctx context.Context, cmd string, patterns ...string) ([]string, error) {
	ctx, cancel := tx.engine.exchangeContext(ctx)
	defer cancel()

	start := time.Now()
	matched, err := tx.command(ctx, cmd, patterns)
	tx.engine.metrics.observe(cmd, err, time.Since(start))
	if err != nil {
		return matched, fmt.Errorf("command %q: %w", cmd, err)
	}
	return matched, nil
}

// Query sends cmd, waits for a line starting with prefix followed by OK and
// returns the rest of that line, trimmed.
func (tx *Tx) Query(ctx context.Context, cmd, prefix string) (string, error) {
	lines, err := tx.Command(ctx, cmd, prefix, at.OK)
	if err != nil {
		return "", err
	}
	payload, _ := at.Payload(lines[0], prefix)
	return payload, nil
}

// Collect sends cmd and returns the payload of every line starting with
// prefix up to the final OK. No matching line is not an error.
func (tx *Tx) Collect(ctx context.Context, cmd, prefix string) ([]string, error) {
	ctx, cancel := tx.engine.exchangeContext(ctx)
	defer cancel()

	start := time.Now()
	payloads, err := tx.collect(ctx, cmd, prefix)
	tx.engine.metrics.observe(cmd, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", cmd, err)
	}
	return payloads, nil
}

// ReadLine waits up to window for the next line without sending anything.
func (tx *Tx) ReadLine(ctx context.Context, window time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	line, err := tx.next(ctx)
	if err != nil {
		return "", deadline(err, "any line")
	}
	return line, nil
}

func (tx *Tx) command(ctx context.Context, cmd string, patterns []string) ([]string, error) {
	if err := tx.send(cmd); err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		line, err := tx.expect(ctx, cmd, pattern)
		if err != nil {
			return matched, err
		}
		matched = append(matched, line)
	}
	return matched, nil
}

func (tx *Tx) expect(ctx context.Context, cmd, pattern string) (string, error) {
	want := describe(pattern)
	for {
		line, err := tx.next(ctx)
		if err != nil {
			return "", deadline(err, want)
		}

		switch {
		case pattern != "" && strings.HasPrefix(line, pattern):
			return line, nil
		case at.IsError(line):
			return "", &ResponseError{Command: cmd, Line: line}
		case at.Classify(line) == at.TypeFinal:
			return "", fmt.Errorf("%w: got %q, want %s", ErrMismatch, line, want)
		case pattern == "" && line != cmd && at.Classify(line) == at.TypeData:
			return line, nil
		}
		tx.engine.skip(line)
	}
}

func (tx *Tx) collect(ctx context.Context, cmd, prefix string) ([]string, error) {
	if err := tx.send(cmd); err != nil {
		return nil, err
	}

	payloads := []string{}
	for {
		line, err := tx.next(ctx)
		if err != nil {
			return nil, deadline(err, at.OK)
		}

		if payload, ok := at.Payload(line, prefix); ok {
			payloads = append(payloads, payload)
			continue
		}
		switch {
		case line == at.OK:
			return payloads, nil
		case at.IsError(line):
			return nil, &ResponseError{Command: cmd, Line: line}
		case at.Classify(line) == at.TypeFinal:
			return nil, fmt.Errorf("%w: got %q, want %s", ErrMismatch, line, at.OK)
		}
		tx.engine.skip(line)
	}
}

func (tx *Tx) send(cmd string) error {
	e := tx.engine
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	if e.debug.Load() {
		e.logger.Debug("AT tx", "command", cmd)
	}
	wire := strings.TrimSpace(cmd) + e.delimiter
	if _, err := e.transport.Write([]byte(wire)); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	return nil
}

// next returns the next received line. Lines already queued are returned
// even when the reader has stopped.
func (tx *Tx) next(ctx context.Context) (string, error) {
	e := tx.engine

	var l rxLine
	select {
	case l = <-e.lines:
	default:
		select {
		case l = <-e.lines:
		case <-e.done:
			select {
			case l = <-e.lines:
			default:
				return "", e.readFailure()
			}
		case <-e.closed:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if l.tooLong {
		return "", ErrLineTooLong
	}
	return l.text, nil
}

func (e *Engine) skip(line string) {
	if e.debug.Load() {
		e.logger.Debug("Skipping unrelated line", "line", line)
	}
}

// deadline turns an expired exchange into a protocol mismatch.
func deadline(err error, want string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no %s before deadline: %w", ErrMismatch, want, err)
	}
	return err
}

func describe(pattern string) string {
	if pattern == "" {
		return "data line"
	}
	return fmt.Sprintf("%q", pattern)
}
