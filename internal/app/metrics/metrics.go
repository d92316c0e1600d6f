package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_vault",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_vault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gas_vault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	vaultOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_vault",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome.",
		},
		[]string{"op", "status"},
	)

	vaultOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gas_vault",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"op"},
	)

	vaultHeldValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_vault",
			Subsystem: "ledger",
			Name:      "held_value",
			Help:      "Value currently held across all accounts, in GAS fractions.",
		},
	)

	vaultAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_vault",
			Subsystem: "ledger",
			Name:      "accounts",
			Help:      "Number of accounts with recorded state.",
		},
	)

	vaultCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_vault",
			Subsystem: "ledger",
			Name:      "capacity",
			Help:      "Configured vault capacity, in GAS fractions.",
		},
	)

	vaultAllowance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_vault",
			Subsystem: "ledger",
			Name:      "allowance",
			Help:      "Configured per-account window allowance, in GAS fractions.",
		},
	)

	chainTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_vault",
			Subsystem: "chain",
			Name:      "transfers_total",
			Help:      "Total number of outbound chain transfers attempted.",
		},
		[]string{"success"},
	)

	chainTransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gas_vault",
			Subsystem: "chain",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of outbound chain transfer submissions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"success"},
	)

	auditRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gas_vault",
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by result.",
		},
		[]string{"result"},
	)

	auditDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gas_vault",
			Subsystem: "audit",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"result"},
	)

	auditFindings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gas_vault",
			Subsystem: "audit",
			Name:      "findings",
			Help:      "Findings reported by the most recent reconciliation run.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		vaultOperations,
		vaultOperationDuration,
		vaultHeldValue,
		vaultAccounts,
		vaultCapacity,
		vaultAllowance,
		chainTransfers,
		chainTransferDuration,
		auditRuns,
		auditDuration,
		auditFindings,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperation records the outcome of a single ledger operation.
func RecordOperation(op, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	vaultOperations.WithLabelValues(op, status).Inc()
	vaultOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLedgerState updates the held-value and account-count gauges.
func RecordLedgerState(held int64, accounts int) {
	vaultHeldValue.Set(float64(held))
	vaultAccounts.Set(float64(accounts))
}

// RecordLedgerLimits exports the configured capacity and allowance so
// dashboards can chart utilisation against them.
func RecordLedgerLimits(capacity, allowance int64) {
	vaultCapacity.Set(float64(capacity))
	vaultAllowance.Set(float64(allowance))
}

// RecordChainTransfer records an outbound transfer submission.
func RecordChainTransfer(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	chainTransfers.WithLabelValues(result).Inc()
	chainTransferDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordAuditRun records a reconciliation run.
func RecordAuditRun(result string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	auditRuns.WithLabelValues(result).Inc()
	auditDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordAuditFindings tracks how many findings the latest reconciliation run
// produced. Zero means the ledger and its projections agree.
func RecordAuditFindings(count int) {
	auditFindings.Set(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets wrapped handlers upgrade the connection, which the websocket
// event feed relies on.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 || parts[0] != "api" || parts[2] != "vault" {
		return "/" + parts[0]
	}
	rest := parts[3:]
	if len(rest) == 0 {
		return "/api/" + parts[1] + "/vault"
	}
	if rest[0] != "accounts" {
		return "/api/" + parts[1] + "/vault/" + strings.Join(rest, "/")
	}
	if len(rest) == 1 {
		return "/api/" + parts[1] + "/vault/accounts"
	}
	if len(rest) == 2 {
		return "/api/" + parts[1] + "/vault/accounts/:address"
	}
	return "/api/" + parts[1] + "/vault/accounts/:address/" + strings.Join(rest[2:], "/")
}
