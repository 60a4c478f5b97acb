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

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

const (
	MetricsNamespace = "testhost"
)

// Assembly results
const (
	AssemblyCompleted = "completed"
	AssemblyListed    = "listed"
	AssemblyFaulted   = "faulted"
	AssemblySkipped   = "skipped"
)

var (
	Debug                bool = true
	validOutcomes             = []types.TestOutcome{types.TestOutcomePassed, types.TestOutcomeFailed, types.TestOutcomeSkipped}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	assembliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "assemblies_total",
		Help:      "Count of processed assemblies by result",
	}, []string{
		"result",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed tests by assembly and outcome",
	}, []string{
		"assembly",
		"outcome",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	runFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_failures",
		Help:      "Failure count of the latest run",
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

func RecordAssembly(result string) {
	assembliesTotal.WithLabelValues(result).Inc()
}

func RecordTestResult(assembly string, outcome types.TestOutcome) {
	if !isValidOutcome(outcome) {
		log.Error("RecordTestResult - invalid outcome", "outcome", outcome)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"assembly", assembly,
			"outcome", outcome)
	}
	testsTotal.WithLabelValues(assembly, string(outcome)).Inc()
}

func RecordRun(runID string, failures int, duration time.Duration) {
	runDuration.Observe(duration.Seconds())
	runFailures.WithLabelValues(runID).Set(float64(failures))
}

func isValidOutcome(outcome types.TestOutcome) bool {
	return slices.Contains(validOutcomes, outcome)
}
