package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Swap attempts by terminal status and route mode
	swapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "swap",
			Name:      "attempts_total",
			Help:      "Total number of swap attempts",
		},
		[]string{"network", "status", "mode"}, // status: success, failed
	)

	// Failures by the state the swap was in
	swapFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "swap",
			Name:      "failures_total",
			Help:      "Total number of failed swaps by state",
		},
		[]string{"network", "state"},
	)

	swapDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "swap",
			Name:      "duration_seconds",
			Help:      "End-to-end swap attempt duration",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 300, 600},
		},
		[]string{"network"},
	)

	feeBumpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "swap",
			Name:      "fee_bumps_total",
			Help:      "Resubmissions after an underpriced rejection",
		},
		[]string{"network"},
	)

	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "swap",
			Name:      "approvals_total",
			Help:      "Approval transactions submitted",
		},
		[]string{"network"},
	)

	gasGateWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "gas_gate",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for gas price to drop below the ceiling",
			Buckets:   []float64{0, 60, 300, 900, 1800, 3600},
		},
		[]string{"network"},
	)
)

// Register registers Go/process collectors and the bridge collectors.
// Safe to call more than once.
func Register(logger logrus.FieldLogger) {
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", logger)
	registerIfNotExists(swapsTotal, "swap_attempts_total", logger)
	registerIfNotExists(swapFailuresTotal, "swap_failures_total", logger)
	registerIfNotExists(swapDuration, "swap_duration_seconds", logger)
	registerIfNotExists(feeBumpsTotal, "swap_fee_bumps_total", logger)
	registerIfNotExists(approvalsTotal, "swap_approvals_total", logger)
	registerIfNotExists(gasGateWait, "gas_gate_wait_seconds", logger)
}

func registerIfNotExists(collector prometheus.Collector, name string, logger logrus.FieldLogger) {
	if err := prometheus.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			logger.Debugf("%s already registered", name)
		} else {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}

// Recorder is what the swap pipeline reports into.
type Recorder interface {
	SwapFinished(network, mode string, ok bool, failedState string, d time.Duration)
	FeeBumped(network string)
	Approved(network string)
	GasGateWaited(network string, d time.Duration)
}

// Prometheus is the Recorder backed by the package collectors.
type Prometheus struct{}

func (Prometheus) SwapFinished(network, mode string, ok bool, failedState string, d time.Duration) {
	status := "success"
	if !ok {
		status = "failed"
		swapFailuresTotal.WithLabelValues(network, failedState).Inc()
	}
	swapsTotal.WithLabelValues(network, status, mode).Inc()
	swapDuration.WithLabelValues(network).Observe(d.Seconds())
}

func (Prometheus) FeeBumped(network string) { feeBumpsTotal.WithLabelValues(network).Inc() }
func (Prometheus) Approved(network string)  { approvalsTotal.WithLabelValues(network).Inc() }

func (Prometheus) GasGateWaited(network string, d time.Duration) {
	gasGateWait.WithLabelValues(network).Observe(d.Seconds())
}

// Nop discards everything.
type Nop struct{}

func (Nop) SwapFinished(string, string, bool, string, time.Duration) {}
func (Nop) FeeBumped(string)                                         {}
func (Nop) Approved(string)                                          {}
func (Nop) GasGateWaited(string, time.Duration)                      {}

// Server exposes /metrics.
type Server struct {
	srv *http.Server
}

// Start listens on addr in the background; an empty addr disables the listener.
func Start(addr string, logger logrus.FieldLogger) *Server {
	if addr == "" {
		return nil
	}
	Register(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
	go func() {
		logger.Infof("metrics listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	return s
}

func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
