package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/plcworks/go-plclight-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	SerialRxLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_lines_total",
		Help: "Total protocol lines read from the serial link.",
	})
	SerialTxLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_lines_total",
		Help: "Total protocol lines written to the serial link.",
	})
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_total",
		Help: "Commands sent to transmitters, by wire command token.",
	}, []string{"command"})
	CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "command_errors_total",
		Help: "Failed command conversations, by protocol error kind.",
	}, []string{"kind"})
	BusyResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "busy_responses_total",
		Help: "Responses replaced by a transmitter busy marker.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected inbound frames (field count, marker, command mismatch).",
	})
	ResponseTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "response_timeouts_total",
		Help: "Reads that elapsed without a complete response line.",
	})
	DiscoveryActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discovery_sessions_active",
		Help: "Current number of live discovery sessions.",
	})
	DiscoverySessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_sessions_total",
		Help: "Discovery sessions started since process start.",
	})
	DiscoveryForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_forwarded_lines_total",
		Help: "Device lines forwarded to discovery peers.",
	})
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "API requests by route and status code.",
	}, []string{"route", "code"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrPortOpen       = "port_open"
	ErrSerialWrite    = "serial_write"
	ErrSerialRead     = "serial_read"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrPeerWrite      = "peer_write"
)

// StartHTTP serves Prometheus metrics at /metrics on the given mux.
// If mux is nil, a default mux is created and registered.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSerialRx  uint64
	localSerialTx  uint64
	localCommands  uint64
	localCmdErrors uint64
	localBusy      uint64
	localMalformed uint64
	localTimeouts  uint64
	localSessions  uint64
	localSessTotal uint64
	localForwarded uint64
	localHTTPReqs  uint64
	localErrors    uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialRx      uint64
	SerialTx      uint64
	Commands      uint64 // sum across command labels
	CommandErrors uint64 // sum across kind labels
	Busy          uint64
	Malformed     uint64
	Timeouts      uint64
	Sessions      uint64
	SessionsTotal uint64
	Forwarded     uint64
	HTTPRequests  uint64 // sum across route/code labels
	Errors        uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		SerialRx:      atomic.LoadUint64(&localSerialRx),
		SerialTx:      atomic.LoadUint64(&localSerialTx),
		Commands:      atomic.LoadUint64(&localCommands),
		CommandErrors: atomic.LoadUint64(&localCmdErrors),
		Busy:          atomic.LoadUint64(&localBusy),
		Malformed:     atomic.LoadUint64(&localMalformed),
		Timeouts:      atomic.LoadUint64(&localTimeouts),
		Sessions:      atomic.LoadUint64(&localSessions),
		SessionsTotal: atomic.LoadUint64(&localSessTotal),
		Forwarded:     atomic.LoadUint64(&localForwarded),
		HTTPRequests:  atomic.LoadUint64(&localHTTPReqs),
		Errors:        atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncSerialRx() {
	SerialRxLines.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

func IncSerialTx() {
	SerialTxLines.Inc()
	atomic.AddUint64(&localSerialTx, 1)
}

// IncCommand counts one outbound command by its wire token.
func IncCommand(cmd string) {
	Commands.WithLabelValues(cmd).Inc()
	atomic.AddUint64(&localCommands, 1)
}

// IncCommandError counts one failed conversation by protocol error kind.
func IncCommandError(kind string) {
	CommandErrors.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localCmdErrors, 1)
}

func IncBusy() {
	BusyResponses.Inc()
	atomic.AddUint64(&localBusy, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncTimeout() {
	ResponseTimeouts.Inc()
	atomic.AddUint64(&localTimeouts, 1)
}

// SetDiscoverySessions records the current live session count.
func SetDiscoverySessions(n int) {
	DiscoveryActive.Set(float64(n))
	atomic.StoreUint64(&localSessions, uint64(n))
}

func IncDiscoverySession() {
	DiscoverySessions.Inc()
	atomic.AddUint64(&localSessTotal, 1)
}

func IncDiscoveryForwarded() {
	DiscoveryForwarded.Inc()
	atomic.AddUint64(&localForwarded, 1)
}

// IncHTTPRequest counts one finished API request.
func IncHTTPRequest(route string, code int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	atomic.AddUint64(&localHTTPReqs, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrPortOpen, ErrSerialWrite, ErrSerialRead,
		ErrSerialOverflow, ErrPeerWrite,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
