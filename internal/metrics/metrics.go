// Package metrics exposes the small set of counters and gauges that
// let an operator see queue depth, loss, and concealment rate for a
// running session, served on a /metrics endpoint the way madpsy-ka9q_ubersdr and flowpbx-flowpbx expose prometheus
// client_golang collectors.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument this client reports.
type Metrics struct {
	PacketsSent      prometheus.Counter
	PacketsReceived  prometheus.Counter
	PacketsLost      prometheus.Counter
	DuplicatePackets prometheus.Counter
	ConcealedFrames  prometheus.Counter
	JitterDepth      *prometheus.GaugeVec
	MixQueueDepth    prometheus.Gauge
	ActiveSenders    prometheus.Gauge

	srv *http.Server
}

// New registers every instrument against a fresh registry, so multiple
// Sessions in the same process (and in tests) don't collide on
// prometheus's default global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceclient_packets_sent_total",
			Help: "Total data packets written to the reflector socket.",
		}),
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceclient_packets_received_total",
			Help: "Total data packets classified as inbound audio.",
		}),
		PacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceclient_packets_lost_total",
			Help: "Inbound packets dropped because the playback queue was full or backlogged.",
		}),
		DuplicatePackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceclient_duplicate_packets_total",
			Help: "Inbound packets discarded because their sequence number was already played or buffered.",
		}),
		ConcealedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceclient_plc_frames_total",
			Help: "Frames filled in by packet loss concealment instead of a decoded payload.",
		}),
		JitterDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voiceclient_jitter_buffer_depth",
			Help: "Current number of buffered frames per sender.",
		}, []string{"sender"}),
		MixQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceclient_mix_queue_depth",
			Help: "Current depth of the inbound playback queue.",
		}),
		ActiveSenders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceclient_active_senders",
			Help: "Number of senders with live decode state.",
		}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m.srv = &http.Server{Handler: mux}

	return m
}

// Serve starts the metrics HTTP server listening on addr, and blocks
// until ctx is cancelled. It does not restrict addr to loopback; the
// voiceclient command's default address is 127.0.0.1:9101.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- m.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		_ = m.srv.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
