package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads a counter or gauge from the global registry. A non-empty label
// selects the series carrying that label value.
func value(name, label string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return 0
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			match := label == ""
			for _, l := range m.GetLabel() {
				if l.GetValue() == label {
					match = true
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("engine"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)
			m.assessments.WithLabelValues("Preferred").Inc()

			Convey("Then metrics carry the configured names", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_engine_assessments_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering the same manager twice", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording assessments", func() {
			before := value("riskgate_gating_assessments_total", "HighRisk")
			RecordAssessment("HighRisk")
			RecordFinalScore(87)
			RecordAssessmentLatency(0.4)

			Convey("Then the tier counter increases", func() {
				So(value("riskgate_gating_assessments_total", "HighRisk"), ShouldEqual, before+1)
			})
		})

		Convey("When recording failures and diagnostics", func() {
			before := value("riskgate_gating_invalid_scores_total", "behavior")
			RecordAssessmentFailure("data_insufficient")
			RecordInvalidScore("behavior")
			RecordTrend("DEGRADING")
			RecordDuplicateTrip()

			Convey("Then the invalid score counter increases", func() {
				So(value("riskgate_gating_invalid_scores_total", "behavior"), ShouldEqual, before+1)
			})
		})

		Convey("When recording history, queue and worker metrics", func() {
			So(func() {
				UpdateTrackedDrivers(12)
				UpdateHistoryShardCount(4)
				UpdateHistoryDriversPerShard("shard_0", 3)
				RecordHistoryLockTimeout()
				RecordHistoryConflict()
				RecordHistoryUpdateLatency(0.2)
				UpdateQueueSize(5)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.5)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(3)
				UpdateWorkerCount(2)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(1)
				RecordWorkerProcessingLatency(4)
				RecordWorkerError()
				RecordPublication("audit", "ok")
			}, ShouldNotPanic)

			Convey("Then the gauges hold the last value", func() {
				So(value("riskgate_gating_tracked_drivers", ""), ShouldEqual, 12)
				So(value("riskgate_gating_queue_capacity", ""), ShouldEqual, 10)
			})
		})

		Convey("When recording HTTP and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/v1/assessments", "POST", "200")
				RecordHTTPRequestDuration("/v1/assessments", "POST", "200", 1.5)
				RecordErrorByEndpoint("/v1/assessments", "POST", "422")
				RecordErrorByComponent("publish", "webhook")
				RecordRateLimited("/v1/assessments")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(7)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordAssessment("Standard")

		Convey("Then it exposes riskgate metrics only", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "riskgate_gating_"), ShouldBeTrue)
			}
		})
	})
}
