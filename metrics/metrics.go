package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

const (
	MetricsNamespace = "specrunner"
)

var (
	Debug                bool = true
	validSpecResults          = []types.Status{types.StatusPassed, types.StatusFailed, types.StatusPending, types.StatusExcluded}
	validRunResults           = []types.Status{types.StatusPassed, types.StatusFailed, types.StatusIncomplete}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	specsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "specs_total",
		Help:      "Count of finished specs by result",
	}, []string{
		"run_id",
		"result",
	})

	specFilesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "spec_files_dispatched_total",
		Help:      "Count of spec files handed to workers",
	}, []string{
		"run_id",
	})

	workerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_exits_total",
		Help:      "Count of worker process exits",
	}, []string{
		"expected",
	})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "active_workers",
		Help:      "Number of worker processes currently running",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of a run",
	}, []string{
		"run_id",
		"result",
	})

	suitesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suites_total",
		Help:      "Count of finished suites by result",
	}, []string{
		"result",
	})

	specDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "spec_duration_seconds",
		Help:      "Duration of finished specs",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{
		"result",
	})

	deprecationWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "deprecation_warnings_total",
		Help:      "Count of deprecation warnings reported by runs",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordSpec(runID string, result types.Status) {
	if !slices.Contains(validSpecResults, result) {
		log.Error("RecordSpec - invalid result", "result", result)
		return
	}
	specsTotal.WithLabelValues(runID, string(result)).Inc()
}

func RecordSpecFileDispatched(runID string) {
	specFilesDispatched.WithLabelValues(runID).Inc()
}

func RecordWorkerStarted() {
	activeWorkers.Inc()
}

func RecordWorkerExit(expected bool) {
	activeWorkers.Dec()
	workerExits.WithLabelValues(fmt.Sprintf("%t", expected)).Inc()
}

func RecordRun(runID string, result types.Status, duration time.Duration) {
	if !slices.Contains(validRunResults, result) {
		log.Error("RecordRun - invalid result", "result", result)
		return
	}
	runResults.WithLabelValues(runID, string(result)).Set(1)
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func RecordSuite(result types.Status) {
	if !slices.Contains(validSpecResults, result) {
		log.Error("RecordSuite - invalid result", "result", result)
		return
	}
	suitesTotal.WithLabelValues(string(result)).Inc()
}

func ObserveSpecDuration(result types.Status, duration time.Duration) {
	specDuration.WithLabelValues(string(result)).Observe(duration.Seconds())
}

func RecordDeprecationWarnings(n int) {
	deprecationWarnings.Add(float64(n))
}
