package pipeline

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "greenline_pipeline_stage_duration_seconds",
		Help:    "Duration of each pipeline stage.",
		Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
	}, []string{"stage"})
	stageRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "greenline_pipeline_stage_rows",
		Help: "Rows produced by the last run of each stage.",
	}, []string{"stage"})
	sourcesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenline_pipeline_sources_skipped_total",
		Help: "Optional sources skipped because they were unavailable.",
	}, []string{"source"})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenline_pipeline_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"status"})
	testAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenline_pipeline_test_accuracy",
		Help: "Accuracy of the last run on the test partition.",
	})
	baselineAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenline_pipeline_baseline_accuracy",
		Help: "Majority-class accuracy of the last run on the test partition.",
	})
)

// PushMetrics sends the process metrics to a Prometheus Pushgateway. An
// empty url is a no-op.
func PushMetrics(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
