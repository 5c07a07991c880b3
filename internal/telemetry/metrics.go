package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

const namespace = "ovsdb_tracker"

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			// 1ms .. ~4s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	// ---- Tracker ----
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Membership events handled, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	State = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current state of the endpoint, 0 otherwise.",
		},
		[]string{"endpoint", "state"},
	)

	JoinedMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "joined_members",
			Help:      "Remote units currently joined to the endpoint.",
		},
		[]string{"endpoint"},
	)

	ExpectedMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expected_members",
			Help:      "Units the membership oracle expects to join.",
		},
		[]string{"endpoint"},
	)

	SkippedAddresses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_addresses",
			Help:      "Joined units with a missing or invalid bound address.",
		},
		[]string{"endpoint"},
	)

	QuorumReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quorum_ready",
			Help:      "1 when every expected unit has joined and announced an address.",
		},
		[]string{"endpoint"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal, RequestDuration, InFlight,
		EventsTotal, State, JoinedMembers, ExpectedMembers, SkippedAddresses, QuorumReady,
		buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// ObserveEvent counts one handled event. err is the error returned by the
// tracker, if any.
func ObserveEvent(ev ovsdb.Event, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsTotal.WithLabelValues(ev.Kind(), result).Inc()
}

// ObserveStatus exports a tracker snapshot.
func ObserveStatus(st ovsdb.Status) {
	for _, s := range ovsdb.States() {
		v := 0.0
		if s == st.State {
			v = 1
		}
		State.WithLabelValues(st.Endpoint, s.String()).Set(v)
	}
	JoinedMembers.WithLabelValues(st.Endpoint).Set(float64(len(st.Members)))
	ExpectedMembers.WithLabelValues(st.Endpoint).Set(float64(st.Expected))
	SkippedAddresses.WithLabelValues(st.Endpoint).Set(float64(st.SkippedAddresses))
	ready := 0.0
	if st.Ready {
		ready = 1
	}
	QuorumReady.WithLabelValues(st.Endpoint).Set(ready)
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
// Example:
//
//	mux.Handle("/endpoints", telemetry.Instrument("endpoints", http.HandlerFunc(n.Endpoints)))
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
