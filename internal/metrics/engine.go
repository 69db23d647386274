package metrics

import (
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tunesync"

// EngineMetrics counts orchestrator events.
type EngineMetrics struct {
	TracksTotal    *prometheus.CounterVec
	ScansTotal     *prometheus.CounterVec
	ScanDuration   *prometheus.HistogramVec
	RejectedTotal  *prometheus.CounterVec
	DemotionsTotal prometheus.Counter
}

// NewEngineMetrics creates the counters and registers them on r.
func NewEngineMetrics(r prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		TracksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloads",
			Name:      "tracks_total",
			Help:      "Tracks taken out of pending, by terminal status",
		}, []string{"status"}),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "scans_total",
			Help:      "Finished scans by operation and result",
		}, []string{"operation", "result"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of finished scans",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"operation"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rejected_total",
			Help:      "Operations refused because another one was running",
		}, []string{"operation"}),
		DemotionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "demotions_total",
			Help:      "Tracks moved back to pending because their file disappeared",
		}),
	}

	r.MustRegister(m.TracksTotal, m.ScansTotal, m.ScanDuration, m.RejectedTotal, m.DemotionsTotal)
	return m
}

func (m *EngineMetrics) TrackFinished(status models.TrackStatus) {
	if status == "" {
		return
	}
	m.TracksTotal.WithLabelValues(string(status)).Inc()
}

func (m *EngineMetrics) ScanFinished(op string, d time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	m.ScansTotal.WithLabelValues(op, result).Inc()
	m.ScanDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *EngineMetrics) Rejected(op string) {
	m.RejectedTotal.WithLabelValues(op).Inc()
}

func (m *EngineMetrics) Demoted(n int) {
	if n > 0 {
		m.DemotionsTotal.Add(float64(n))
	}
}
