package obs

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Game metrics.
var (
	phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_phase_transitions_total",
			Help: "Phase transitions by phase entered.",
		},
		[]string{"phase"},
	)

	abilityExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_ability_executions_total",
			Help: "Ability executions by action and outcome code.",
		},
		[]string{"action", "outcome"},
	)

	pointsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_points_total",
			Help: "Points moved by the economy ledger.",
		},
		[]string{"direction"},
	)

	votesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_votes_total",
			Help: "Ballots recorded by election.",
		},
		[]string{"election"},
	)

	claimConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_claim_conflicts_total",
			Help: "One-shot work skipped because it was already claimed.",
		},
		[]string{"kind"},
	)

	feedSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "game_feed_subscribers",
		Help: "Open change feed subscriptions.",
	})
)

var initOnce sync.Once

// Init registers every collector in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			phaseTransitions, abilityExecutions, pointsMoved, votesRecorded, claimConflicts, feedSubscribers,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func PhaseEntered(phase string) { phaseTransitions.WithLabelValues(phase).Inc() }

func AbilityExecuted(action, outcome string) {
	abilityExecutions.WithLabelValues(action, outcome).Inc()
}

// PointsMoved records a ledger movement; direction is debit, credit or grant.
func PointsMoved(direction string, amount int64) {
	if amount <= 0 {
		return
	}
	pointsMoved.WithLabelValues(direction).Add(float64(amount))
}

func VoteRecorded(election string) { votesRecorded.WithLabelValues(election).Inc() }

func ClaimConflict(kind string) { claimConflicts.WithLabelValues(kind).Inc() }

func FeedSubscribed() { feedSubscribers.Inc() }
func FeedUnsubscribed() { feedSubscribers.Dec() }

// Instrument measures request rate, latency and in-flight count.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var gameActions = map[string]bool{
	"players": true, "advance": true, "pause": true, "finish": true, "abilities": true,
	"votes": true, "guesses": true, "treasury": true, "rank": true, "stream": true, "ws": true,
}

var electionRoles = map[string]bool{
	"chairperson": true, "secretary": true, "treasurer": true, "prison": true,
}

// CanonicalPath collapses game codes so metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || parts[1] != "games" {
		return p
	}
	switch len(parts) {
	case 3:
		return "/v1/games/:code"
	case 4:
		if gameActions[parts[3]] {
			return "/v1/games/:code/" + parts[3]
		}
	case 6:
		if parts[3] == "elections" && electionRoles[parts[4]] && parts[5] == "candidates" {
			return "/v1/games/:code/elections/" + parts[4] + "/candidates"
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection to websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("obs: response writer does not support hijacking")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
