package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestServeRunsUntilCancelled(t *testing.T) {
	m := New()
	m.PacketsSent.Add(3)
	m.ActiveSenders.Set(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx, "127.0.0.1:0") }()

	// Serve binds an ephemeral port when given :0 and does not report
	// it, so this only checks that Serve keeps running until cancelled;
	// TestMetricsHandlerServesPlainText fetches /metrics on a fixed port.
	select {
	case err := <-errCh:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
}

func TestMetricsSurviveDoubleConstruction(t *testing.T) {
	a := New()
	b := New()
	a.PacketsSent.Inc()
	b.PacketsSent.Inc()
}

func TestMetricsHandlerServesPlainText(t *testing.T) {
	m := New()
	addr := "127.0.0.1:19219"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Serve(ctx, addr)
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Fatal("expected non-empty metrics body")
	}
}
