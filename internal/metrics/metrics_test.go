package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_ServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	QuotesDelivered.Add(3)

	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "quotebot_quotes_delivered_total")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestObserveSourceRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(SourceRequestDuration)

	ObserveSourceRequest("fetch_by_id", time.Now(), nil)
	ObserveSourceRequest("fetch_by_id", time.Now(), assert.AnError)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	statuses := map[string]uint64{}
	for _, m := range families[0].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "status" {
				statuses[l.GetValue()] += m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.GreaterOrEqual(t, statuses["success"], uint64(1))
	assert.GreaterOrEqual(t, statuses["error"], uint64(1))
}
