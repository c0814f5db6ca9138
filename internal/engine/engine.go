// Package engine drives command conversations with PLC lighting
// transmitters. Every operation opens the serial transport, runs its
// exchanges and releases the port before returning, so at most one
// conversation is on the wire at a time. Nothing retries: a busy
// transmitter or a timed-out response surfaces to the caller after a
// single attempt.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plcworks/go-plclight-server/internal/logging"
	"github.com/plcworks/go-plclight-server/internal/metrics"
	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/serial"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// readQuantum paces port reads on freshly opened transports. Response
// waits and discovery drains resolve in multiples of it.
const readQuantum = 50 * time.Millisecond

// DefaultTimeout bounds one response read when the caller passes none.
const DefaultTimeout = 500 * time.Millisecond

// controlModeSettle is how long firmware takes to apply SETTYPE before it
// echoes the new mode. Reading earlier loses the echo.
const controlModeSettle = 500 * time.Millisecond

// sleepFn is swapped in tests to skip settle intervals.
var sleepFn = time.Sleep

// OpenFunc hands out an exclusive transport connection.
type OpenFunc func() (transport.LineConn, error)

// Engine owns the transport opener and the conversation defaults.
type Engine struct {
	open    OpenFunc
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDevice points the default opener at a serial device. A zero
// readTimeout uses the standard read quantum.
func WithDevice(device string, baud int, readTimeout time.Duration) Option {
	return func(e *Engine) {
		if readTimeout <= 0 {
			readTimeout = readQuantum
		}
		e.open = func() (transport.LineConn, error) {
			return serial.OpenConn(device, baud, readTimeout)
		}
	}
}

// WithOpener replaces the transport opener. Tests inject scripted
// connections here.
func WithOpener(fn OpenFunc) Option {
	return func(e *Engine) { e.open = fn }
}

// WithTimeout sets the default per-response timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger overrides the global logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an Engine. Callers must supply WithDevice or WithOpener
// before invoking operations.
func New(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout, logger: logging.L()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenTransport hands out a raw connection for callers that manage their
// own conversation lifetime, such as a discovery session.
func (e *Engine) OpenTransport() (transport.LineConn, error) {
	if e.open == nil {
		return nil, errors.New("engine: no transport configured")
	}
	c, err := e.open()
	if err != nil {
		metrics.IncError(metrics.ErrPortOpen)
		return nil, fmt.Errorf("open transport: %w", err)
	}
	return c, nil
}

// withConn scopes one conversation: open, run, release on every path.
// Conversation failures are counted by protocol kind on the way out.
func (e *Engine) withConn(fn func(transport.LineConn) error) error {
	c, err := e.OpenTransport()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	if err := fn(c); err != nil {
		metrics.IncCommandError(plc.Kind(err))
		return err
	}
	return nil
}

// readTimeout resolves a caller-supplied timeout, zero meaning default.
func (e *Engine) readTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return e.timeout
	}
	return d
}
