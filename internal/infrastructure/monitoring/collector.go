package monitoring

import (
	"time"

	"desklink/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exports the agent's link, control, and transfer metrics.
type Collector struct {
	linksActive      prometheus.Gauge
	linkTransitions  *prometheus.CounterVec
	linkSetupSeconds prometheus.Histogram

	qualityScore  *prometheus.GaugeVec
	presetChanges *prometheus.CounterVec

	controlFrames *prometheus.CounterVec
	framesDropped prometheus.Counter

	transferBytes     prometheus.Counter
	transfersComplete *prometheus.CounterVec

	signalEnvelopes *prometheus.CounterVec
	adapterFallback prometheus.Counter

	apiDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		linksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "desklink_links_active",
			Help: "Number of peer links currently in the table",
		}),

		linkTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "desklink_link_state_transitions_total",
			Help: "Link state machine transitions",
		}, []string{"from", "to"}),

		linkSetupSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "desklink_link_setup_duration_seconds",
			Help:    "Time from link creation to connected",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		qualityScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "desklink_link_quality_score",
			Help: "Latest quality score per link (0-100)",
		}, []string{"remote_id"}),

		presetChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "desklink_preset_changes_total",
			Help: "Applied encoding preset changes",
		}, []string{"preset", "manual"}),

		controlFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "desklink_control_frames_total",
			Help: "Control channel frames by type and direction",
		}, []string{"type", "direction"}),

		framesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "desklink_control_frames_dropped_total",
			Help: "Inbound control frames dropped as malformed or rejected",
		}),

		transferBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "desklink_file_transfer_bytes_total",
			Help: "File transfer payload bytes received",
		}),

		transfersComplete: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "desklink_file_transfers_total",
			Help: "File transfers by outcome",
		}, []string{"outcome"}),

		signalEnvelopes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "desklink_signal_envelopes_total",
			Help: "Signaling envelopes by type and direction",
		}, []string{"type", "direction"}),

		adapterFallback: promauto.NewCounter(prometheus.CounterOpts{
			Name: "desklink_adapter_fallback_total",
			Help: "Times the native input helper was unreachable and the emulated adapter took over",
		}),

		apiDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "desklink_api_request_duration_seconds",
			Help:    "Local API request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "path", "status"}),
	}
}

func (c *Collector) LinkOpened()  { c.linksActive.Inc() }
func (c *Collector) LinkRemoved() { c.linksActive.Dec() }

func (c *Collector) LinkTransition(change domain.LinkStateChange) {
	c.linkTransitions.WithLabelValues(string(change.Previous), string(change.Current)).Inc()
}

func (c *Collector) LinkConnected(setupTime time.Duration) {
	c.linkSetupSeconds.Observe(setupTime.Seconds())
}

func (c *Collector) QualityScored(metrics domain.QualityMetrics) {
	c.qualityScore.WithLabelValues(string(metrics.RemoteID)).Set(float64(metrics.Score))
}

func (c *Collector) LinkForgotten(remoteID domain.ParticipantID) {
	c.qualityScore.DeleteLabelValues(string(remoteID))
}

func (c *Collector) PresetChanged(change domain.PresetChange) {
	manual := "false"
	if change.Manual {
		manual = "true"
	}
	c.presetChanges.WithLabelValues(string(change.Current), manual).Inc()
}

func (c *Collector) ControlFrame(msgType domain.MessageType, direction string) {
	c.controlFrames.WithLabelValues(string(msgType), direction).Inc()
}

func (c *Collector) FrameDropped() { c.framesDropped.Inc() }

func (c *Collector) TransferBytes(n int64) { c.transferBytes.Add(float64(n)) }

func (c *Collector) TransferFinished(outcome string) {
	c.transfersComplete.WithLabelValues(outcome).Inc()
}

func (c *Collector) SignalEnvelope(envType domain.EnvelopeType, direction string) {
	c.signalEnvelopes.WithLabelValues(string(envType), direction).Inc()
}

func (c *Collector) AdapterFellBack() { c.adapterFallback.Inc() }

func (c *Collector) APIRequest(method, path, status string, duration time.Duration) {
	c.apiDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
