package monitor

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveFrame("ok", 12*time.Millisecond)
	m.ObserveFrame("ok", 8*time.Millisecond)
	m.ObserveFrame("error", 0)
	m.ObserveStatic("empty")
	m.ObserveICE("fallback")
	m.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.static.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ice.WithLabelValues("fallback")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.frameDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveStatic("detected")
	m.Sample()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sibisee_static_detections_total{status="detected"} 1`)
	assert.Contains(t, string(body), "sibisee_process_memory_megabytes")
}

func TestMetrics_RunStopsOnCancel(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
