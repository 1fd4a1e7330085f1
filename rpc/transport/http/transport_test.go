package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(ctx context.Context, storeId uint64, req []byte) []byte) *httptest.Server {
	t.Helper()
	st := &httpServerTransport{}
	st.RegisterHandler(handler)
	srv := httptest.NewServer(st.routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestRoundTrip(t *testing.T) {
	srv := newTestServer(t, func(_ context.Context, storeId uint64, req []byte) []byte {
		return []byte(fmt.Sprintf("%d:%s", storeId, req))
	})

	ct := NewHttpClientTransport()
	require.NoError(t, ct.Connect(common.ClientConfig{Endpoints: []string{srv.URL}, TimeoutSecond: 5, RetryCount: 1}))
	defer ct.Close()

	resp, err := ct.Send(context.Background(), 42, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "42:ping", string(resp))
}

func TestInvalidStoreId(t *testing.T) {
	srv := newTestServer(t, func(context.Context, uint64, []byte) []byte { return nil })

	resp, err := http.Post(srv.URL+"/pages", "application/octet-stream", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.GetOrCreateCounter(`dver_transport_test_total`).Inc()
	srv := newTestServer(t, func(context.Context, uint64, []byte) []byte { return nil })

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dver_transport_test_total")
}

func TestRetryOnNextEndpoint(t *testing.T) {
	var calls atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()
	healthy := newTestServer(t, func(context.Context, uint64, []byte) []byte { return []byte("ok") })

	ct := NewHttpClientTransport()
	require.NoError(t, ct.Connect(common.ClientConfig{Endpoints: []string{broken.URL, healthy.URL}, TimeoutSecond: 5, RetryCount: 2}))
	defer ct.Close()

	// two attempts always reach both endpoints once
	resp, err := ct.Send(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp))
}

func TestSendNotConnected(t *testing.T) {
	_, err := NewHttpClientTransport().Send(context.Background(), 1, nil)
	assert.Error(t, err)

	assert.Error(t, NewHttpClientTransport().Connect(common.ClientConfig{}))
}

func TestSendCancelled(t *testing.T) {
	srv := newTestServer(t, func(context.Context, uint64, []byte) []byte { return []byte("late") })

	ct := NewHttpClientTransport()
	require.NoError(t, ct.Connect(common.ClientConfig{Endpoints: []string{srv.URL}, TimeoutSecond: 5, RetryCount: 3}))
	defer ct.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ct.Send(ctx, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
