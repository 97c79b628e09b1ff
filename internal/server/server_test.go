package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaperctl/internal/api"
	"shaperctl/internal/engine"
	"shaperctl/internal/probe"
)

type stubOps struct {
	status    api.StatusResponse
	baseline  api.BaselineResponse
	calibrate func(ctx context.Context, result json.RawMessage) (api.CalibrateResponse, error)
	adjust    func(ctx context.Context, latencyMs *float64) (api.AdjustResponse, error)
	startErr  error
	stopErr   error
}

var _ Ops = (*stubOps)(nil)

func (s *stubOps) Status() api.StatusResponse     { return s.status }
func (s *stubOps) Baseline() api.BaselineResponse { return s.baseline }

func (s *stubOps) Calibrate(ctx context.Context, result json.RawMessage) (api.CalibrateResponse, error) {
	if s.calibrate == nil {
		return api.CalibrateResponse{}, nil
	}
	return s.calibrate(ctx, result)
}

func (s *stubOps) Adjust(ctx context.Context, latencyMs *float64) (api.AdjustResponse, error) {
	if s.adjust == nil {
		return api.AdjustResponse{}, nil
	}
	return s.adjust(ctx, latencyMs)
}

func (s *stubOps) StartLearning() (api.LearningResponse, error) {
	return api.LearningResponse{LearningMode: true}, s.startErr
}

func (s *stubOps) StopLearning() (api.LearningResponse, error) {
	return api.LearningResponse{}, s.stopErr
}

func do(t *testing.T, ops Ops, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	New("127.0.0.1:0", ops).Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	ops := &stubOps{status: api.StatusResponse{
		State:               "monitoring",
		Interface:           "eth0",
		CurrentRateMbps:     241.9,
		LearningProgressPct: 25,
	}}

	rec := do(t, ops, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp api.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "monitoring", resp.State)
	assert.Equal(t, 241.9, resp.CurrentRateMbps)

	rec = do(t, ops, http.MethodPost, "/v1/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "method not allowed")
}

func TestCalibrateForwardsResult(t *testing.T) {
	t.Parallel()

	var gotResult json.RawMessage
	ops := &stubOps{
		calibrate: func(_ context.Context, result json.RawMessage) (api.CalibrateResponse, error) {
			gotResult = result
			return api.CalibrateResponse{EffectiveRateMbps: 246.38, Applied: true}, nil
		},
	}

	rec := do(t, ops, http.MethodPost, "/v1/calibrate", `{"result":{"type":"result"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"result"}`, string(gotResult))

	var resp api.CalibrateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 246.38, resp.EffectiveRateMbps)
	assert.True(t, resp.Applied)
}

func TestCalibrateEmptyBodyRunsProbe(t *testing.T) {
	t.Parallel()

	called := false
	ops := &stubOps{
		calibrate: func(_ context.Context, result json.RawMessage) (api.CalibrateResponse, error) {
			called = true
			assert.Empty(t, result)
			return api.CalibrateResponse{}, nil
		},
	}

	rec := do(t, ops, http.MethodPost, "/v1/calibrate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestCalibrateRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	rec := do(t, &stubOps{}, http.MethodPost, "/v1/calibrate", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bogus")
}

func TestAdjustErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"state conflict", &engine.StateError{Op: "adjust rate", State: engine.StateUnconfigured}, http.StatusConflict},
		{"probe unavailable", errors.Wrap(probe.ErrUnavailable, "ping 192.0.2.1"), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ops := &stubOps{
				adjust: func(context.Context, *float64) (api.AdjustResponse, error) {
					return api.AdjustResponse{}, tc.err
				},
			}
			rec := do(t, ops, http.MethodPost, "/v1/adjust", `{}`)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestAdjustForwardsLatency(t *testing.T) {
	t.Parallel()

	ops := &stubOps{
		adjust: func(_ context.Context, latencyMs *float64) (api.AdjustResponse, error) {
			require.NotNil(t, latencyMs)
			return api.AdjustResponse{LatencyMs: *latencyMs, NewRateMbps: 241.9, Branch: "high-latency"}, nil
		},
	}

	rec := do(t, ops, http.MethodPost, "/v1/adjust", `{"latency_ms":22.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AdjustResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 22.5, resp.LatencyMs)
	assert.Equal(t, "high-latency", resp.Branch)
}

func TestLearningEndpoints(t *testing.T) {
	t.Parallel()

	rec := do(t, &stubOps{}, http.MethodPost, "/v1/learning/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.LearningResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.LearningMode)

	stopConflict := &stubOps{stopErr: &engine.StateError{Op: "stop learning mode", State: engine.StateMonitoring}}
	rec = do(t, stopConflict, http.MethodPost, "/v1/learning/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, &stubOps{}, http.MethodGet, "/v1/learning/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsExposition(t *testing.T) {
	t.Parallel()

	ops := &stubOps{status: api.StatusResponse{
		CurrentRateMbps:     241.9,
		LastLatencyMs:       22.5,
		LearningProgressPct: 50,
		LearningMode:        true,
		CurrentHour:         &api.HourBaseline{Day: 2, Hour: 20, MedianMbps: 250},
		Counters:            api.Counters{AdjustCycles: 12, SkippedCycles: 3},
	}}

	rec := do(t, ops, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "# TYPE shaperctl_current_rate_mbps gauge")
	assert.Contains(t, body, "shaperctl_current_rate_mbps 241.9")
	assert.Contains(t, body, "shaperctl_last_latency_ms 22.5")
	assert.Contains(t, body, "shaperctl_learning_mode 1")
	assert.Contains(t, body, "shaperctl_hour_baseline_mbps 250")
	assert.Contains(t, body, "# TYPE shaperctl_adjust_cycles_total counter")
	assert.Contains(t, body, "shaperctl_adjust_cycles_total 12")
	assert.Contains(t, body, "shaperctl_skipped_cycles_total 3")
}

func TestMetricsOmitsUnknownHour(t *testing.T) {
	t.Parallel()

	rec := do(t, &stubOps{}, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "shaperctl_hour_baseline_mbps")
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := do(t, &stubOps{}, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
