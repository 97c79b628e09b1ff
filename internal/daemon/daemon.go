// Package daemon runs the shaping loop for one uplink: periodic latency
// adjustments, periodic calibrations, qdisc application and persistence.
// It owns the engine instance and implements the HTTP API surface, so
// manual operator calls and the ticker loop go through the same paths.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/getlantern/ema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"shaperctl/internal/api"
	"shaperctl/internal/config"
	"shaperctl/internal/engine"
	"shaperctl/internal/history"
	"shaperctl/internal/logging"
	"shaperctl/internal/model"
	"shaperctl/internal/probe"
	"shaperctl/internal/profile"
	"shaperctl/internal/ratectl"
	"shaperctl/internal/shaper"
	"shaperctl/internal/store"
)

// latencyFunc measures the link's round-trip stats.
type latencyFunc func(ctx context.Context) (probe.Latency, error)

// speedFunc runs a bandwidth test and returns a speedtest-style JSON
// report.
type speedFunc func(ctx context.Context) ([]byte, error)

// applier installs shaped rates. Satisfied by shaper.Manager.
type applier interface {
	Apply(s shaper.Settings) error
}

// Daemon drives one uplink's engine on the configured cadences.
type Daemon struct {
	cfg config.Config
	eng *engine.Orchestrator
	log zerolog.Logger
	tc  applier

	measureLatency latencyFunc
	runSpeedtest   speedFunc

	// trend smooths raw latency for the logs; control decisions always
	// use the raw reading.
	trend *ema.EMA

	// opMu serializes whole probe->engine->apply cycles so a manual API
	// call cannot interleave with the ticker loop mid-cycle.
	opMu sync.Mutex

	// statMu guards the counters and the probe failure streak.
	statMu        sync.Mutex
	counters      api.Counters
	probeFailures int
}

// New builds a daemon from a full config: the engine is configured, the
// profile weights applied, and persisted baseline and state restored.
func New(cfg config.Config) (*Daemon, error) {
	if cfg.Shaping == nil {
		return nil, errors.New("shaping section is required")
	}
	if cfg.Daemon == nil {
		return nil, errors.New("daemon section is required")
	}

	eng := engine.New()
	if err := eng.Configure(*cfg.Shaping); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:   cfg,
		eng:   eng,
		log:   logging.Named("daemon"),
		tc:    shaper.DefaultManager(),
		trend: ema.New(0, 0.2),
	}

	if cfg.Daemon.Category != "" {
		cat, err := profile.Parse(cfg.Daemon.Category)
		if err != nil {
			return nil, err
		}
		if err := eng.UseProfile(cat); err != nil {
			return nil, err
		}
	}

	latency, err := buildLatencyProber(cfg)
	if err != nil {
		return nil, err
	}
	d.measureLatency = latency
	d.runSpeedtest = d.buildSpeedProber()

	if err := d.restore(); err != nil {
		return nil, err
	}
	return d, nil
}

func buildLatencyProber(cfg config.Config) (latencyFunc, error) {
	dc := cfg.Daemon
	if dc.ProbeMode == "udp" {
		addr, err := probe.NormalizeReflector(dc.ReflectorAddr, 0)
		if err != nil {
			return nil, err
		}
		u := &probe.UDPProber{
			ReflectorAddr: addr,
			Count:         dc.PingCount,
			Timeout:       dc.ProbeTimeout(),
		}
		return u.Measure, nil
	}

	p := &probe.PingProber{
		Target:  cfg.Shaping.PingTarget,
		Count:   dc.PingCount,
		Timeout: dc.ProbeTimeout(),
	}
	return func(context.Context) (probe.Latency, error) {
		return p.Measure()
	}, nil
}

func (d *Daemon) buildSpeedProber() speedFunc {
	dc := d.cfg.Daemon
	if dc.SpeedtestMode == "http" {
		dl := &probe.HTTPDownloader{URL: dc.HTTPProbeURL, Seconds: dc.HTTPProbeSeconds}
		return func(ctx context.Context) ([]byte, error) {
			res, err := dl.Measure(ctx)
			if err != nil {
				return nil, err
			}
			lat, err := d.measureLatency(ctx)
			if err != nil {
				return nil, err
			}
			return syntheticReport(res, lat)
		}
	}

	cli := &probe.SpeedtestCLI{Command: dc.SpeedtestCommand}
	return func(context.Context) ([]byte, error) {
		return cli.Run()
	}
}

// restore loads the persisted baseline and runtime state. An empty
// baseline falls back to the profile seed when a category is configured.
func (d *Daemon) restore() error {
	dc := d.cfg.Daemon

	bf, err := store.LoadBaseline(dc.BaselinePath)
	if err != nil {
		return err
	}
	if len(bf.Slots) > 0 {
		if err := d.eng.ImportBaseline(bf.Slots); err != nil {
			return err
		}
		d.log.Info().Int("slots", len(bf.Slots)).Msg("baseline restored")
	} else if dc.Category != "" && dc.NominalDownMbps > 0 {
		cat, err := profile.Parse(dc.Category)
		if err != nil {
			return err
		}
		if err := d.eng.SeedFromProfile(cat, dc.NominalDownMbps); err != nil {
			return err
		}
		d.log.Info().
			Str("category", dc.Category).
			Float64("nominal_down_mbps", dc.NominalDownMbps).
			Msg("baseline seeded from profile")
	}

	st, err := store.LoadState(dc.StatePath)
	if err != nil {
		return err
	}
	if st.UpdatedAt.IsZero() {
		return nil
	}
	if err := d.eng.Restore(engine.Status{
		CurrentRateMbps:     st.CurrentRateMbps,
		LastCalibrationMbps: st.LastCalibrationMbps,
		LastCalibrationAt:   st.LastCalibrationAt,
		LastLatencyMs:       st.LastLatencyMs,
		LearningMode:        st.LearningMode,
		LearningSince:       st.LearningSince,
		LastAdjustAt:        st.LastAdjustAt,
		LastAdjustBranch:    st.LastAdjustBranch,
		LastAdjustReason:    st.LastAdjustReason,
	}); err != nil {
		return err
	}
	// The persisted learning flag wins over the config file's.
	if !st.LearningMode && d.eng.Status().State == engine.StateLearning {
		if err := d.eng.StopLearningMode(); err != nil {
			return err
		}
	}
	d.log.Info().
		Float64("rate_mbps", st.CurrentRateMbps).
		Time("updated_at", st.UpdatedAt).
		Msg("state restored")
	return nil
}

// Run starts the shaping loop and blocks until ctx is canceled. The
// qdisc keeps its last rate after shutdown; only the CLI clears it.
func (d *Daemon) Run(ctx context.Context) error {
	shaping := d.eng.Shaping()

	if d.cfg.Daemon.ApplyRates {
		d.opMu.Lock()
		d.applyRate(d.eng.CurrentRate())
		d.opMu.Unlock()
	}

	adjustTicker := time.NewTicker(shaping.AdjustInterval())
	defer adjustTicker.Stop()
	calibrationTicker := time.NewTicker(shaping.CalibrationInterval())
	defer calibrationTicker.Stop()
	persistTicker := time.NewTicker(d.cfg.Daemon.PersistInterval())
	defer persistTicker.Stop()

	d.log.Info().
		Str("interface", shaping.Interface).
		Dur("adjust_every", shaping.AdjustInterval()).
		Dur("calibrate_every", shaping.CalibrationInterval()).
		Bool("apply_rates", d.cfg.Daemon.ApplyRates).
		Msg("shaping loop started")

	for {
		select {
		case <-ctx.Done():
			if err := d.persist(); err != nil {
				d.log.Warn().Err(err).Msg("final persist failed")
			}
			return ctx.Err()
		case <-adjustTicker.C:
			// Probe skips were already logged with their streak.
			if _, err := d.Adjust(ctx, nil); err != nil && !errors.Is(err, probe.ErrUnavailable) {
				d.log.Warn().Err(err).Msg("adjust cycle failed")
			}
		case <-calibrationTicker.C:
			if _, err := d.Calibrate(ctx, nil); err != nil && !errors.Is(err, probe.ErrUnavailable) {
				d.log.Warn().Err(err).Msg("calibration cycle failed")
			}
		case <-persistTicker.C:
			if err := d.persist(); err != nil {
				d.log.Warn().Err(err).Msg("persist failed")
			}
		}
	}
}

// applyRate installs the rate when apply_rates is on. Callers hold opMu.
func (d *Daemon) applyRate(rate float64) bool {
	if !d.cfg.Daemon.ApplyRates {
		return false
	}
	settings := shaper.Settings{
		Interface:  d.cfg.Shaping.Interface,
		Discipline: d.cfg.Daemon.Discipline,
		RateMbps:   ratectl.Round1(rate),
	}
	if err := d.tc.Apply(settings); err != nil {
		d.log.Error().Err(err).Float64("rate_mbps", settings.RateMbps).Msg("qdisc apply failed")
		d.statMu.Lock()
		d.counters.ApplyFailures++
		d.statMu.Unlock()
		return false
	}
	d.log.Debug().Float64("rate_mbps", settings.RateMbps).Msg("qdisc applied")
	return true
}

// persist writes the baseline and runtime state files.
func (d *Daemon) persist() error {
	dc := d.cfg.Daemon
	st := d.eng.Status()

	if err := store.SaveBaseline(dc.BaselinePath, &store.BaselineFile{
		Category: dc.Category,
		Slots:    d.eng.ExportBaseline(),
	}); err != nil {
		return errors.Wrap(err, "save baseline")
	}

	if err := store.SaveState(dc.StatePath, &store.StateFile{
		CurrentRateMbps:     st.CurrentRateMbps,
		LastCalibrationMbps: st.LastCalibrationMbps,
		LastCalibrationAt:   st.LastCalibrationAt,
		LastLatencyMs:       st.LastLatencyMs,
		LearningMode:        st.LearningMode,
		LearningSince:       st.LearningSince,
		LastAdjustAt:        st.LastAdjustAt,
		LastAdjustBranch:    st.LastAdjustBranch,
		LastAdjustReason:    st.LastAdjustReason,
	}); err != nil {
		return errors.Wrap(err, "save state")
	}
	return nil
}

func (d *Daemon) appendHistory(rec model.HistoryRecord) {
	if d.cfg.Daemon.HistoryPath == "" {
		return
	}
	// opMu serializes callers, so CSV appends cannot interleave.
	if err := history.Append(d.cfg.Daemon.HistoryPath, rec); err != nil {
		d.log.Warn().Err(err).Msg("append history failed")
	}
}
