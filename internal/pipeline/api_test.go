package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-features/internal/model"
	"market-features/internal/profile"
)

func serve(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	svc.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReloadEndpoint_Get(t *testing.T) {
	h := newHarness(t, Options{}, &fakeBars{})
	srv := serve(t, h.svc)

	resp, err := http.Get(srv.URL + "/reload")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body profileResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unit-test", body.Profile)
	assert.Equal(t, []string{"sma_20", "rsi"}, body.Columns)
	assert.Equal(t, 30, body.MinBars)
}

func TestReloadEndpoint_Post(t *testing.T) {
	h := newHarness(t, Options{}, &fakeBars{})
	srv := serve(t, h.svc)

	doc := `{"name":"fast","source":"unit","indicators":["ema_5"],"causal_only":true}`
	resp, err := http.Post(srv.URL+"/reload", "application/json", strings.NewReader(doc))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body profileResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "fast", body.Profile)
	assert.True(t, body.CausalOnly)
	assert.Equal(t, "fast", h.svc.Active().Name)
	assert.True(t, h.svc.Active().Engine.IsCausalOnly())
}

func TestReloadEndpoint_Rejects(t *testing.T) {
	h := newHarness(t, Options{}, &fakeBars{})
	srv := serve(t, h.svc)

	cases := map[string]string{
		"malformed":     `{"name":`,
		"unknown field": `{"name":"x","source":"s","indicators":["rsi"],"colour":"red"}`,
		"unknown ind":   `{"name":"x","source":"s","indicators":["nope"]}`,
		"no indicators": `{"name":"x","source":"s","indicators":[]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/reload", "application/json", strings.NewReader(doc))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Equal(t, "unit-test", h.svc.Active().Name)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/reload", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRunEndpoint(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	h := newHarness(t, Options{}, bars)
	srv := serve(t, h.svc)

	resp, err := http.Get(srv.URL + "/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/run", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run model.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, model.RunOK, run.Status)
	assert.Equal(t, 40, run.Rows)
	require.Len(t, h.ledger.runs, 1)
	assert.Equal(t, run.RunID, h.ledger.runs[0].RunID)
}

func TestActivateFromSet(t *testing.T) {
	h := newHarness(t, Options{}, &fakeBars{})
	set, err := profile.Parse([]byte(`
profiles:
  - name: swing
    source: unit
    indicators: [rsi, atr]
`))
	require.NoError(t, err)

	_, err = h.svc.activate(set, "missing")
	assert.ErrorIs(t, err, profile.ErrNotFound)
	assert.Equal(t, "unit-test", h.svc.Active().Name)

	c, err := h.svc.activate(set, "swing")
	require.NoError(t, err)
	assert.Equal(t, "swing", c.Name)
	assert.Equal(t, "swing", h.svc.Active().Name)
}
