// Package discovery runs transmitter network discovery sessions. A session
// reboots the transmitter, triggers a whitelist rebuild and streams every
// line the transmitter emits to a peer text stream until the peer goes
// away. The protocol has no "discovery complete" message, so the peer
// disconnecting is the normal end of a session, not a failure.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plcworks/go-plclight-server/internal/logging"
	"github.com/plcworks/go-plclight-server/internal/metrics"
	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/serial"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// State tracks where a session is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrPeerTimeout is returned by Peer.ReceiveText when no text arrived
// within the poll window. It is the only peer error a session keeps
// polling through.
var ErrPeerTimeout = errors.New("peer receive timeout")

// ErrSessionStarted is returned by Run on any but the first call.
var ErrSessionStarted = errors.New("discovery session already started")

// Peer is the duplex text stream device output is forwarded to. SendText
// delivers one line; ReceiveText waits up to timeout for peer input and
// returns ErrPeerTimeout when none arrived. Any other error means the
// peer is gone.
type Peer interface {
	SendText(text string) error
	ReceiveText(timeout time.Duration) (string, error)
}

const (
	defaultRebootSettle = 10 * time.Second
	defaultDrainSettle  = 3 * time.Second
	defaultPollTimeout  = 100 * time.Millisecond

	// stopText is the literal peer message that relays WHITESTOP to the
	// transmitter. It does not end the session.
	stopText = "STOP"

	txBufSize = 16
)

// Session owns one transport and one peer for the duration of a discovery
// run. Two tasks share the transport: the trigger sequence and the
// forwarding loop; writes from both funnel through a single TXWriter.
type Session struct {
	conn transport.LineConn
	peer Peer
	cco  plc.Address

	rebootSettle time.Duration
	drainSettle  time.Duration
	pollTimeout  time.Duration
	logger       *slog.Logger

	state    atomic.Int32
	quit     chan struct{}
	stopOnce sync.Once
}

type Option func(*Session)

// WithRebootSettle overrides the wait between REBOOTCCO and SETTINGSTART.
func WithRebootSettle(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.rebootSettle = d
		}
	}
}

// WithDrainSettle overrides the wait before the final buffered-line flush.
func WithDrainSettle(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.drainSettle = d
		}
	}
}

// WithPollTimeout overrides the peer poll window. Longer windows cost
// forwarding latency, not correctness.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a session over conn for the transmitter at cco. The session
// takes ownership of conn and closes it when the session ends.
func New(conn transport.LineConn, peer Peer, cco plc.Address, opts ...Option) *Session {
	s := &Session{
		conn:         conn,
		peer:         peer,
		cco:          cco,
		rebootSettle: defaultRebootSettle,
		drainSettle:  defaultDrainSettle,
		pollTimeout:  defaultPollTimeout,
		logger:       logging.L(),
		quit:         make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Stop cancels a running session out of band. Safe to call any number of
// times, before or after Run.
func (s *Session) Stop() { s.stopOnce.Do(func() { close(s.quit) }) }

// Run drives the session to completion: trigger and forwarding tasks
// concurrently, then the drain epilogue. It returns once the transport is
// closed and no task survives. Peer disconnection is the normal end and
// returns nil.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrSessionStarted
	}
	metrics.IncDiscoverySession()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	tx := serial.NewTXWriter(ctx, s.conn, txBufSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.trigger(ctx, tx)
	}()
	go func() {
		defer wg.Done()
		// The forwarding task ending, for whatever reason, unwinds the
		// trigger task too.
		defer cancel()
		s.forward(ctx, tx)
	}()
	wg.Wait()
	tx.Close()

	s.state.Store(int32(StateDraining))
	s.logger.Info("discovery_draining")
	// The transmitter keeps reporting briefly after the stop; give it time,
	// then hand the tail to the peer if it is still there.
	time.Sleep(s.drainSettle)
	s.flushTail()
	_ = s.conn.Close()
	s.state.Store(int32(StateClosed))
	s.logger.Info("discovery_closed")
	return nil
}

// trigger reboots the transmitter and, once it has settled, starts the
// network rebuild. Completion does not end the session.
func (s *Session) trigger(ctx context.Context, tx *serial.TXWriter) {
	if err := tx.SendLine(plc.Encode(s.cco, plc.CmdReboot, plc.Data{})); err != nil {
		s.logger.Error("discovery_reboot_send_failed", "error", err)
		return
	}
	s.logger.Info("discovery_rebooting")
	select {
	case <-time.After(s.rebootSettle):
	case <-ctx.Done():
		return
	}
	if err := tx.SendLine(plc.Encode(s.cco, plc.CmdSettingStart, plc.Data{})); err != nil {
		s.logger.Error("discovery_start_send_failed", "error", err)
		return
	}
	s.state.CompareAndSwap(int32(StateStarting), int32(StateStreaming))
	s.logger.Info("discovery_streaming")
}

// forward pumps buffered transmitter lines to the peer and polls the peer
// for input. It returns when the peer goes away or the session scope is
// canceled.
func (s *Session) forward(ctx context.Context, tx *serial.TXWriter) {
	for ctx.Err() == nil {
		if !s.pump() {
			return
		}
		text, err := s.peer.ReceiveText(s.pollTimeout)
		switch {
		case errors.Is(err, ErrPeerTimeout):
			// Quiet peer, keep streaming.
		case err != nil:
			s.logger.Info("discovery_peer_gone", "reason", err)
			return
		case text == stopText:
			s.logger.Info("discovery_stop_requested")
			if err := tx.SendLine(plc.Encode(s.cco, plc.CmdWhitelistStop, plc.Data{})); err != nil {
				s.logger.Error("discovery_stop_send_failed", "error", err)
			}
		}
	}
}

// pump forwards everything currently buffered on the transport. Reports
// false when the peer or the transport is gone.
func (s *Session) pump() bool {
	lines, err := s.conn.Drain()
	if err != nil {
		s.logger.Error("discovery_drain_failed", "error", err)
		return false
	}
	for _, line := range lines {
		metrics.IncSerialRx()
		metrics.IncDiscoveryForwarded()
		if err := s.peer.SendText(string(bytes.TrimRight(line, "\r\n"))); err != nil {
			metrics.IncError(metrics.ErrPeerWrite)
			s.logger.Info("discovery_peer_gone", "reason", err)
			return false
		}
	}
	return true
}

// flushTail is the best-effort final forward after the drain settle. The
// peer is usually gone by now; errors are expected and dropped.
func (s *Session) flushTail() {
	lines, err := s.conn.Drain()
	if err != nil {
		return
	}
	for _, line := range lines {
		metrics.IncSerialRx()
		metrics.IncDiscoveryForwarded()
		if s.peer.SendText(string(bytes.TrimRight(line, "\r\n"))) != nil {
			return
		}
	}
}
