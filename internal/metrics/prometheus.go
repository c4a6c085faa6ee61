package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

var (
	busRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herzborg_bus_requests_total",
			Help: "Number of request/reply exchanges on a Herzborg bus.",
		},
		[]string{
			"bus",
			"function",
			"result",
		},
	)
	busRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herzborg_bus_request_duration_seconds",
			Help:    "Time spent waiting for a complete reply from the bus.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{
			"bus",
			"function",
		},
	)
	curtainPosition = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herzborg_curtain_position_percent",
			Help: "Last position reported by a curtain motor.",
		},
		[]string{
			"thing",
		},
	)
	thingOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herzborg_thing_online",
			Help: "1 when the thing is online, 0 otherwise.",
		},
		[]string{
			"thing",
		},
	)
)

func init() {
	prometheus.MustRegister(busRequests, busRequestDuration, curtainPosition, thingOnline)
}

// ObserveBusRequest records the outcome of one bus exchange. result is
// "ok", "invalid" for a reply that failed the frame checks, or "error".
func ObserveBusRequest(bus string, function string, result string, duration time.Duration) {
	busRequests.WithLabelValues(bus, function, result).Inc()
	busRequestDuration.WithLabelValues(bus, function).Observe(duration.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// PrometheusRecorder keeps the thing and position gauges current.
type PrometheusRecorder struct{}

func (PrometheusRecorder) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	value := 0.0
	if info.Status == thing.StatusOnline {
		value = 1
	}
	thingOnline.WithLabelValues(string(uid)).Set(value)
}

func (PrometheusRecorder) StateUpdated(channel thing.ChannelUID, state thing.State) {
	if channel.ID != "position" {
		return
	}
	switch s := state.(type) {
	case thing.PercentType:
		curtainPosition.WithLabelValues(string(channel.Thing)).Set(float64(s))
	case thing.UnDefType:
		curtainPosition.DeleteLabelValues(string(channel.Thing))
	}
}
