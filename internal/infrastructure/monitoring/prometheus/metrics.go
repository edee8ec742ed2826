package prometheus

import (
	"time"

	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// Buckets for the detection pipeline.  Detection is in-process text
// scanning, so the range is sub-millisecond to one second.
var (
	DefaultDetectDurationBuckets = []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1}
	DefaultSpanCountBuckets      = []float64{0, 1, 2, 5, 10, 20, 50, 100, 250}
	DefaultReloadDurationBuckets = []float64{.001, .01, .05, .1, .5, 1, 5, 10}
)

// DetectionMetrics holds the metric vectors of the span detection service.
type DetectionMetrics struct {
	DetectTotal       CounterVec
	DetectDuration    HistogramVec
	DetectSpanCount   HistogramVec
	SpansTotal        CounterVec
	AcronymsLearned   CounterVec
	DegradedTotal     CounterVec
	GlossaryReloads   CounterVec
	GlossaryPatterns  GaugeVec
	GlossaryReloadDur HistogramVec
	StreamMessages    CounterVec
}

// NewDetectionMetrics registers every detection metric on collector.
func NewDetectionMetrics(collector MetricsCollector) *DetectionMetrics {
	return &DetectionMetrics{
		DetectTotal:       collector.RegisterCounter("detect_requests_total", "Detection requests by outcome", "outcome"),
		DetectDuration:    collector.RegisterHistogram("detect_duration_seconds", "Detection latency", DefaultDetectDurationBuckets),
		DetectSpanCount:   collector.RegisterHistogram("detect_spans", "Spans returned per request", DefaultSpanCountBuckets),
		SpansTotal:        collector.RegisterCounter("spans_total", "Spans kept after overlap resolution by source", "source"),
		AcronymsLearned:   collector.RegisterCounter("acronyms_learned_total", "Acronym mappings learned from parenthetical definitions"),
		DegradedTotal:     collector.RegisterCounter("degraded_total", "Requests that continued without a failing collaborator", "component"),
		GlossaryReloads:   collector.RegisterCounter("glossary_reloads_total", "Glossary reloads by outcome", "outcome"),
		GlossaryPatterns:  collector.RegisterGauge("glossary_patterns", "Patterns in the active glossary snapshot"),
		GlossaryReloadDur: collector.RegisterHistogram("glossary_reload_duration_seconds", "Glossary load and build latency", DefaultReloadDurationBuckets),
		StreamMessages:    collector.RegisterCounter("stream_messages_total", "Document stream records by outcome", "outcome"),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveDetect records one completed detection.
func (m *DetectionMetrics) ObserveDetect(d time.Duration, spans []clinical.Span) {
	m.DetectTotal.WithLabelValues(outcome(true)).Inc()
	m.DetectDuration.WithLabelValues().Observe(d.Seconds())
	m.DetectSpanCount.WithLabelValues().Observe(float64(len(spans)))
	for _, sp := range spans {
		m.SpansTotal.WithLabelValues(string(sp.Source)).Inc()
	}
}

// ObserveDetectFailure records a detection that returned an error.
func (m *DetectionMetrics) ObserveDetectFailure() {
	m.DetectTotal.WithLabelValues(outcome(false)).Inc()
}

// AddAcronymsLearned counts newly learned mappings.
func (m *DetectionMetrics) AddAcronymsLearned(n int) {
	if n > 0 {
		m.AcronymsLearned.WithLabelValues().Add(float64(n))
	}
}

// IncDegraded counts a request that continued without component.
func (m *DetectionMetrics) IncDegraded(component string) {
	m.DegradedTotal.WithLabelValues(component).Inc()
}

// ObserveReload records a glossary reload attempt.
func (m *DetectionMetrics) ObserveReload(d time.Duration, patterns int, err error) {
	m.GlossaryReloads.WithLabelValues(outcome(err == nil)).Inc()
	m.GlossaryReloadDur.WithLabelValues().Observe(d.Seconds())
	if err == nil {
		m.GlossaryPatterns.WithLabelValues().Set(float64(patterns))
	}
}

// ObserveMessage counts a document stream record outcome.
func (m *DetectionMetrics) ObserveMessage(outcome string) {
	m.StreamMessages.WithLabelValues(outcome).Inc()
}
