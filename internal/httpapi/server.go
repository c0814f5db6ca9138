// Package httpapi is the HTTP facade over the protocol engine: one route
// per engine operation under /api/lighting, plus the network discovery
// WebSocket. Handlers translate between JSON and the engine's typed
// arguments; no wire bytes cross this package.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plcworks/go-plclight-server/internal/discovery"
	"github.com/plcworks/go-plclight-server/internal/engine"
	"github.com/plcworks/go-plclight-server/internal/logging"
	"github.com/plcworks/go-plclight-server/internal/metrics"
	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// Controller is the engine surface the facade drives. One method per
// operation; timeouts are per request, zero meaning the engine default.
type Controller interface {
	ListTransmitter(timeout time.Duration) (plc.Address, error)
	ControlMode(cco plc.Address, timeout time.Duration) (engine.ControlMode, error)
	SetControlMode(cco plc.Address, mode engine.ControlMode, timeout time.Duration) error
	ResetControlMode(cco plc.Address, timeout time.Duration) error
	BroadcastDimming(cco plc.Address, timeout time.Duration) (engine.Dimming, error)
	SetBroadcastDimming(cco plc.Address, d engine.Dimming) error
	DimSingle(cco, sta plc.Address, d engine.Dimming) error
	DisableDimSingle(cco, sta plc.Address, d engine.Dimming) error
	DimGroup(cco plc.Address, group int, d engine.Dimming) error
	DisableDimGroup(cco plc.Address, group int) error
	STAGroup(cco, sta plc.Address, timeout time.Duration) (int, error)
	SetSTAGroup(cco, sta plc.Address, group int, timeout time.Duration) error
	AllSTAGroups(cco plc.Address, timeout time.Duration) ([]engine.GroupAssignment, error)
	TxPower(cco plc.Address, timeout time.Duration) (int, error)
	SetTxPower(cco plc.Address, power int, timeout time.Duration) error
	AccessTime(cco plc.Address, timeout time.Duration) (int, error)
	SetAccessTime(cco plc.Address, minutes int, timeout time.Duration) error
	Band(cco plc.Address, timeout time.Duration) (int, error)
	SetBand(cco plc.Address, band int, timeout time.Duration) error
	DimChannel(cco plc.Address, timeout time.Duration) (int, error)
	SetDimChannel(cco plc.Address, channels int, timeout time.Duration) error
	StartupControl(cco plc.Address, timeout time.Duration) (engine.StartupControl, error)
	SetStartupControl(cco plc.Address, sc engine.StartupControl, timeout time.Duration) error
	ModbusAddr(cco plc.Address, timeout time.Duration) (int, error)
	SetModbusAddr(cco plc.Address, addr int, timeout time.Duration) error
	IPConfigGet(cco plc.Address, timeout time.Duration) (engine.IPConfig, error)
	SetIPConfig(cco plc.Address, cfg engine.IPConfig, timeout time.Duration) error
	Whitelist(cco plc.Address, timeout time.Duration) ([]plc.Address, error)
	SetWhitelist(cco plc.Address, stas []plc.Address, timeout time.Duration) error
	ClearWhitelist(cco plc.Address, timeout time.Duration) error
	Status(cco, sta plc.Address, timeout time.Duration) (engine.STAStatus, error)
	Reboot(cco plc.Address) error
	OpenTransport() (transport.LineConn, error)
}

var _ Controller = (*engine.Engine)(nil)

// Server owns the HTTP listener, the route table and the discovery session
// registry.
type Server struct {
	mu        sync.RWMutex
	addr      string
	ctrl      Controller
	registry  *discovery.Registry
	sessOpts  []discovery.Option
	readyOnce sync.Once
	readyCh   chan struct{}
	listener  net.Listener
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readyCh: make(chan struct{}),
		logger:  logging.L(),
		upgrader: websocket.Upgrader{
			// Installer tools connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":8000"
	}
	if s.registry == nil {
		s.registry = discovery.NewRegistry()
	}
	return s
}

func WithListenAddr(a string) ServerOption     { return func(s *Server) { s.addr = a } }
func WithController(c Controller) ServerOption { return func(s *Server) { s.ctrl = c } }

func WithRegistry(r *discovery.Registry) ServerOption {
	return func(s *Server) { s.registry = r }
}

// WithSessionOptions forwards options to every discovery session the
// WebSocket endpoint spawns.
func WithSessionOptions(opts ...discovery.Option) ServerOption {
	return func(s *Server) { s.sessOpts = append(s.sessOpts, opts...) }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Registry exposes the session registry for readiness and shutdown wiring.
func (s *Server) Registry() *discovery.Registry { return s.registry }

// Serve binds the listener and serves requests until ctx is canceled. On
// cancellation every live discovery session is stopped before the HTTP
// server drains.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.Addr(), err)
	}
	s.setAddr(ln.Addr().String())
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	srv := &http.Server{Handler: mux}

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("http_listen", "addr", s.Addr())

	go func() {
		<-ctx.Done()
		s.registry.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handle wraps a handler with the request metrics and access log. The
// route pattern is the metrics label, keeping cardinality bounded.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		metrics.IncHTTPRequest(pattern, rec.code)
		s.logger.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"code", rec.code,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErr renders err as the API error body, mapping its kind to a
// status code.
func writeErr(w http.ResponseWriter, err error) {
	kind := plc.Kind(err)
	writeJSON(w, statusForKind(kind), map[string]any{
		"error": map[string]string{"kind": kind, "detail": err.Error()},
	})
}

func statusForKind(kind string) int {
	switch kind {
	case plc.KindValidation:
		return http.StatusBadRequest
	case plc.KindBusy:
		return http.StatusServiceUnavailable
	case plc.KindTimeout:
		return http.StatusGatewayTimeout
	case plc.KindMalformed, plc.KindBadMarker, plc.KindMismatch,
		plc.KindInconsistent, plc.KindSetting, plc.KindWrite:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

const minRequestTimeout = 100 * time.Millisecond

// reqTimeout reads the per-request serial timeout in seconds. Absent means
// the engine default; present values below 0.1s are rejected.
func reqTimeout(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timeout %q", plc.ErrValidation, raw)
	}
	d := time.Duration(secs * float64(time.Second))
	if d < minRequestTimeout {
		return 0, fmt.Errorf("%w: timeout %v below minimum %v", plc.ErrValidation, d, minRequestTimeout)
	}
	return d, nil
}

// intQuery reads a required integer query parameter.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing query parameter %q", plc.ErrValidation, name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: query parameter %s=%q", plc.ErrValidation, name, raw)
	}
	return v, nil
}

func pathCCO(r *http.Request) (plc.Address, error) { return plc.ParseCCO(r.PathValue("cco")) }
func pathSTA(r *http.Request) (plc.Address, error) { return plc.ParseSTA(r.PathValue("sta")) }
