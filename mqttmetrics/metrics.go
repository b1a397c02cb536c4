// Package mqttmetrics provides Prometheus instrumentation for the host
// client: per-client packet, byte, reconnect and in-flight collectors
// registerable against any prometheus.Registerer.
package mqttmetrics

import "github.com/prometheus/client_golang/prometheus"

// Stats is the set of collectors one client instance updates. Pass the
// ConstLabels you want applied (typically client_id) to NewStats.
type Stats struct {
	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	Reconnects      prometheus.Counter
	Connected       prometheus.Gauge
	InFlight        prometheus.Gauge
}

// NewStats builds a Stats with the given constant labels (e.g.
// {"client_id": "sensor-1"}) already applied to every collector.
func NewStats(constLabels prometheus.Labels) *Stats {
	return &Stats{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mqtt5",
			Name:        "packets_sent_total",
			Help:        "Total MQTT packets written to the transport.",
			ConstLabels: constLabels,
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mqtt5",
			Name:        "packets_received_total",
			Help:        "Total MQTT packets read from the transport.",
			ConstLabels: constLabels,
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mqtt5",
			Name:        "bytes_sent_total",
			Help:        "Total bytes written to the transport.",
			ConstLabels: constLabels,
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mqtt5",
			Name:        "bytes_received_total",
			Help:        "Total bytes read from the transport.",
			ConstLabels: constLabels,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mqtt5",
			Name:        "reconnects_total",
			Help:        "Total number of successful reconnects.",
			ConstLabels: constLabels,
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mqtt5",
			Name:        "connected",
			Help:        "1 if the client currently holds a live connection, 0 otherwise.",
			ConstLabels: constLabels,
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mqtt5",
			Name:        "in_flight_packets",
			Help:        "Number of QoS 1/2 publishes currently outstanding.",
			ConstLabels: constLabels,
		}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate-registration error (mirrors prometheus.MustRegister).
func (s *Stats) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(s.PacketsSent, s.PacketsReceived, s.BytesSent, s.BytesReceived, s.Reconnects, s.Connected, s.InFlight)
}
