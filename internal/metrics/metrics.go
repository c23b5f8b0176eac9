// Package metrics exposes Prometheus counters/gauges for the proxy's
// forwarding pipeline, plus locally mirrored atomics so the supervisor can
// log a periodic snapshot without scraping itself.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/lossyproxy/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series, all labeled by direction ("client2server"/"server2client")
// where the event is direction-specific.
var (
	Forwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_forwarded_packets_total",
		Help: "Total packets forwarded unmodified toward their destination.",
	}, []string{"direction"})
	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_dropped_packets_total",
		Help: "Total packets dropped by the impairment policy.",
	}, []string{"direction"})
	Delayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_delayed_packets_total",
		Help: "Total packets scheduled for delayed delivery.",
	}, []string{"direction"})
	Corrupted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_corrupted_packets_total",
		Help: "Total packets corrupted before forwarding.",
	}, []string{"direction"})
	ForwardedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_forwarded_bytes_total",
		Help: "Total payload bytes forwarded (across all dispositions except drop).",
	}, []string{"direction"})
	MalformedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_malformed_packets_total",
		Help: "Total UDP datagrams rejected for being smaller than the fixed wire size.",
	}, []string{"direction"})
	StatsObserverConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxy_stats_observer_connected",
		Help: "1 if a stats observer is currently connected, 0 otherwise.",
	})
	StatsEventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_stats_events_emitted_total",
		Help: "Total stats events successfully written to the connected observer.",
	})
	StatsEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_stats_events_dropped_total",
		Help: "Total stats events dropped because no observer was connected or the write failed.",
	})
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

// Error label constants (stable label values to bound cardinality).
const (
	ErrClientRead  = "client_read"
	ErrServerRead  = "server_read"
	ErrClientWrite = "client_write"
	ErrServerWrite = "server_write"
	ErrControl     = "control_read"
	ErrCSVWrite    = "csv_write"
	ErrStatsWrite  = "stats_write"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
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

// Local mirrored counters, one pair per direction, for cheap in-process
// snapshotting (avoids scraping /metrics from within the same process).
var (
	localForwarded [2]uint64
	localDropped   [2]uint64
	localDelayed   [2]uint64
	localCorrupted [2]uint64
	localBytes     [2]uint64
	localMalformed [2]uint64
	localErrors    uint64
	localStatsOK   uint64
	localStatsDrop uint64
)

// Snapshot is a cheap copy of local counters, indexed [0]=client2server,
// [1]=server2client.
type Snapshot struct {
	Forwarded [2]uint64
	Dropped   [2]uint64
	Delayed   [2]uint64
	Corrupted [2]uint64
	Bytes     [2]uint64
	Malformed [2]uint64
	Errors    uint64
	StatsOK   uint64
	StatsDrop uint64
}

func Snap() Snapshot {
	var s Snapshot
	for i := 0; i < 2; i++ {
		s.Forwarded[i] = atomic.LoadUint64(&localForwarded[i])
		s.Dropped[i] = atomic.LoadUint64(&localDropped[i])
		s.Delayed[i] = atomic.LoadUint64(&localDelayed[i])
		s.Corrupted[i] = atomic.LoadUint64(&localCorrupted[i])
		s.Bytes[i] = atomic.LoadUint64(&localBytes[i])
		s.Malformed[i] = atomic.LoadUint64(&localMalformed[i])
	}
	s.Errors = atomic.LoadUint64(&localErrors)
	s.StatsOK = atomic.LoadUint64(&localStatsOK)
	s.StatsDrop = atomic.LoadUint64(&localStatsDrop)
	return s
}

// dirIndex maps a direction string to its local-array slot. Callers pass
// the label string directly so this package doesn't depend on wire.Direction.
func dirIndex(direction string) int {
	if direction == "server2client" {
		return 1
	}
	return 0
}

func IncForwarded(direction string, payloadBytes int) {
	Forwarded.WithLabelValues(direction).Inc()
	ForwardedBytes.WithLabelValues(direction).Add(float64(payloadBytes))
	i := dirIndex(direction)
	atomic.AddUint64(&localForwarded[i], 1)
	atomic.AddUint64(&localBytes[i], uint64(payloadBytes))
}

func IncDropped(direction string) {
	Dropped.WithLabelValues(direction).Inc()
	atomic.AddUint64(&localDropped[dirIndex(direction)], 1)
}

// IncDelayed counts a packet handed to the delay scheduler. Its payload
// bytes are counted by IncForwarded once the delayed send succeeds.
func IncDelayed(direction string, payloadBytes int) {
	Delayed.WithLabelValues(direction).Inc()
	atomic.AddUint64(&localDelayed[dirIndex(direction)], 1)
}

func IncCorrupted(direction string, payloadBytes int) {
	Corrupted.WithLabelValues(direction).Inc()
	ForwardedBytes.WithLabelValues(direction).Add(float64(payloadBytes))
	i := dirIndex(direction)
	atomic.AddUint64(&localCorrupted[i], 1)
	atomic.AddUint64(&localBytes[i], uint64(payloadBytes))
}

func IncMalformed(direction string) {
	MalformedPackets.WithLabelValues(direction).Inc()
	atomic.AddUint64(&localMalformed[dirIndex(direction)], 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func SetStatsObserverConnected(connected bool) {
	if connected {
		StatsObserverConnected.Set(1)
		return
	}
	StatsObserverConnected.Set(0)
}

func IncStatsEmitted() {
	StatsEventsEmitted.Inc()
	atomic.AddUint64(&localStatsOK, 1)
}

func IncStatsDropped() {
	StatsEventsDropped.Inc()
	atomic.AddUint64(&localStatsDrop, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers error label
// series so the first real error doesn't pay a registration-latency cost.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrClientRead, ErrServerRead, ErrClientWrite, ErrServerWrite,
		ErrControl, ErrCSVWrite, ErrStatsWrite,
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
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias for IsReady.
func Ready() bool { return IsReady() }
