// Package server exposes the daemon's local HTTP API. Handlers are a
// thin translation layer; all decisions live behind the Ops interface.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"shaperctl/internal/api"
	"shaperctl/internal/engine"
	"shaperctl/internal/logging"
	"shaperctl/internal/probe"
)

// Ops is the daemon surface the API needs. One method per endpoint.
type Ops interface {
	Status() api.StatusResponse
	Baseline() api.BaselineResponse
	Calibrate(ctx context.Context, result json.RawMessage) (api.CalibrateResponse, error)
	Adjust(ctx context.Context, latencyMs *float64) (api.AdjustResponse, error)
	StartLearning() (api.LearningResponse, error)
	StopLearning() (api.LearningResponse, error)
}

// Server provides the daemon HTTP API.
type Server struct {
	addr string
	ops  Ops
	log  zerolog.Logger
}

// New constructs a server for the given listen address.
func New(addr string, ops Ops) *Server {
	return &Server{
		addr: addr,
		ops:  ops,
		log:  logging.Named("api"),
	}
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/baseline", s.handleBaseline)
	mux.HandleFunc("/v1/calibrate", s.handleCalibrate)
	mux.HandleFunc("/v1/adjust", s.handleAdjust)
	mux.HandleFunc("/v1/learning/start", s.handleLearningStart)
	mux.HandleFunc("/v1/learning/stop", s.handleLearningStop)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// ListenAndServe runs the HTTP server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		errC <- server.ListenAndServe()
	}()
	s.log.Info().Str("listen", s.addr).Msg("api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errC:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.ops.Status())
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.ops.Baseline())
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// An empty body means "run the probe yourself".
	var req api.CalibrateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.ops.Calibrate(r.Context(), req.Result)
	if err != nil {
		s.log.Warn().Err(err).Msg("calibrate failed")
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.AdjustRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.ops.Adjust(r.Context(), req.LatencyMs)
	if err != nil {
		s.log.Warn().Err(err).Msg("adjust failed")
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLearningStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.ops.StartLearning()
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLearningStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.ops.StopLearning()
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics renders a small Prometheus text exposition by hand.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := s.ops.Status()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	writeGauge(w, "shaperctl_current_rate_mbps", "Download ceiling currently enforced.", st.CurrentRateMbps)
	writeGauge(w, "shaperctl_last_latency_ms", "Most recent latency reading.", st.LastLatencyMs)
	writeGauge(w, "shaperctl_last_calibration_mbps", "Effective rate from the last calibration.", st.LastCalibrationMbps)
	writeGauge(w, "shaperctl_learning_progress_pct", "Share of weekly slots with measured samples.", st.LearningProgressPct)
	writeGauge(w, "shaperctl_learning_mode", "1 while learning mode is active.", boolGauge(st.LearningMode))
	if st.CurrentHour != nil {
		writeGauge(w, "shaperctl_hour_baseline_mbps", "Learned median for the current weekly slot.", st.CurrentHour.MedianMbps)
	}
	writeCounter(w, "shaperctl_adjust_cycles_total", "Completed control-law cycles.", float64(st.Counters.AdjustCycles))
	writeCounter(w, "shaperctl_calibrate_cycles_total", "Completed calibration cycles.", float64(st.Counters.CalibrateCycles))
	writeCounter(w, "shaperctl_skipped_cycles_total", "Cycles skipped because no probe result was available.", float64(st.Counters.SkippedCycles))
	writeCounter(w, "shaperctl_apply_failures_total", "Failed qdisc applies.", float64(st.Counters.ApplyFailures))
}

func writeGauge(w io.Writer, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %g\n", name, value)
}

func writeCounter(w io.Writer, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %g\n", name, value)
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// statusFor maps daemon errors onto HTTP statuses: lifecycle conflicts
// are 409, missing probes are 503, anything else is the caller's fault.
func statusFor(err error) int {
	var serr *engine.StateError
	switch {
	case errors.As(err, &serr):
		return http.StatusConflict
	case errors.Is(err, probe.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
