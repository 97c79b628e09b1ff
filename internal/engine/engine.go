// Package engine wires the baseline model, calibration pipeline and rate
// controller into one stateful orchestrator per uplink. All methods are
// serialized by an internal mutex; none perform I/O. Probes, persistence
// and the queue discipline live with the callers.
package engine

import (
	"fmt"
	"sync"
	"time"

	"shaperctl/internal/baseline"
	"shaperctl/internal/calibration"
	"shaperctl/internal/config"
	"shaperctl/internal/profile"
	"shaperctl/internal/ratectl"
)

// State is the orchestrator lifecycle position.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateMonitoring   State = "monitoring"
	StateLearning     State = "learning"
)

// StateError reports an operation invoked in the wrong lifecycle state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

// Status is a point-in-time snapshot of the engine. Callers get a copy;
// mutating it has no effect on the engine.
type Status struct {
	State               State
	CurrentRateMbps     float64
	LastCalibrationMbps float64
	LastCalibrationAt   time.Time
	LastLatencyMs       float64
	LatencyKnown        bool
	CurrentHourBaseline *baseline.HourlyBaseline
	LearningMode        bool
	LearningSince       time.Time
	LearningProgressPct float64
	LastAdjustAt        time.Time
	LastAdjustBranch    string
	LastAdjustReason    string
}

// Orchestrator owns exactly one uplink's configuration, baseline table
// and status. Instances never share state.
type Orchestrator struct {
	mu     sync.Mutex
	state  State
	cfg    config.Shaping
	within baseline.Weights
	below  baseline.Weights
	table  *baseline.Table
	ctl    *ratectl.Controller
	status Status
}

// New returns an unconfigured orchestrator.
func New() *Orchestrator {
	return &Orchestrator{
		state:  StateUnconfigured,
		within: baseline.DefaultWithin,
		below:  baseline.DefaultBelow,
		table:  baseline.New(),
		status: Status{State: StateUnconfigured},
	}
}

// Configure validates and adopts the shaping parameters, moving from
// Unconfigured to Monitoring (or Learning when the config says so).
// Every violated constraint is reported in the returned error.
func (o *Orchestrator) Configure(cfg config.Shaping) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateUnconfigured {
		return &StateError{Op: "configure", State: o.state}
	}
	return o.adopt(cfg)
}

// Reconfigure replaces the active configuration. The baseline table and
// status survive; only the parameters change.
func (o *Orchestrator) Reconfigure(cfg config.Shaping) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateUnconfigured {
		return &StateError{Op: "reconfigure", State: o.state}
	}
	return o.adopt(cfg)
}

func (o *Orchestrator) adopt(cfg config.Shaping) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.ctl = ratectl.New(cfg)
	if cfg.LearningMode {
		o.state = StateLearning
		o.status.LearningMode = true
		o.status.LearningSince = cfg.LearningSince
	} else if o.state == StateUnconfigured {
		o.state = StateMonitoring
	}
	if o.status.CurrentRateMbps == 0 {
		// Until the first calibration lands, shape at the configured
		// ceiling rather than guessing low.
		o.status.CurrentRateMbps = cfg.MaxRateMbps
	}
	return nil
}

// UseProfile adopts a category's blending weights.
func (o *Orchestrator) UseProfile(cat profile.Category) error {
	within, err := profile.BlendingRatios(cat, true)
	if err != nil {
		return err
	}
	below, _ := profile.BlendingRatios(cat, false)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.within = within
	o.below = below
	return nil
}

// SeedFromProfile replaces an unlearned baseline table with the
// category's seeded shape. Refused once measured samples exist.
func (o *Orchestrator) SeedFromProfile(cat profile.Category, nominalDown float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateUnconfigured {
		return &StateError{Op: "seed baseline", State: o.state}
	}
	if o.table.LearningProgress() > 0 {
		return fmt.Errorf("seed baseline: table already has measured samples")
	}
	tbl, err := profile.SeedBaseline(cat, nominalDown)
	if err != nil {
		return err
	}
	o.table = tbl
	return nil
}

// ProcessCalibration runs parse -> validate -> blend -> commit as one
// atomic step and returns the effective rate. A parse or validation
// failure leaves the baseline table and status untouched.
func (o *Orchestrator) ProcessCalibration(raw []byte) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	out, err := o.process(raw)
	if err != nil {
		return 0, err
	}
	return out.EffectiveRate, nil
}

// ProcessOutcome is ProcessCalibration plus the full blending detail,
// for callers that log or persist the intermediate numbers.
func (o *Orchestrator) ProcessOutcome(raw []byte) (*calibration.Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.process(raw)
}

// process holds the lock. Nothing after the Process call can fail, so
// a rejected report never leaves a half-committed state behind.
func (o *Orchestrator) process(raw []byte) (*calibration.Outcome, error) {
	if o.state == StateUnconfigured {
		return nil, &StateError{Op: "process calibration", State: o.state}
	}

	report, err := calibration.Parse(raw)
	if err != nil {
		return nil, err
	}
	out, err := calibration.Process(report, o.table, o.within, o.below, o.cfg)
	if err != nil {
		return nil, err
	}

	o.table.AddSample(out.Sample)
	o.status.CurrentRateMbps = out.EffectiveRate
	o.status.LastCalibrationMbps = out.EffectiveRate
	o.status.LastCalibrationAt = out.Sample.Timestamp
	o.status.LastLatencyMs = out.Sample.LatencyMs
	o.status.LatencyKnown = true
	return out, nil
}

// AdjustRate runs the control law for one live latency reading. Callers
// that could not obtain latency must skip the cycle instead of calling
// with a placeholder.
func (o *Orchestrator) AdjustRate(latencyMs, currentRate float64) (float64, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateUnconfigured {
		return 0, "", &StateError{Op: "adjust rate", State: o.state}
	}

	decision := o.ctl.Adjust(latencyMs, currentRate)
	reason := decision.Reason
	if hb, ok := o.table.Lookup(time.Now()); ok {
		reason = fmt.Sprintf("%s; hour baseline %.1f Mbps", reason, hb.Median)
	}

	o.status.CurrentRateMbps = decision.NewRate
	o.status.LastLatencyMs = latencyMs
	o.status.LatencyKnown = true
	o.status.LastAdjustAt = time.Now()
	o.status.LastAdjustBranch = string(decision.Branch)
	o.status.LastAdjustReason = reason
	return decision.NewRate, reason, nil
}

// Restore re-applies persisted runtime state after a restart. Zero
// fields are left untouched, so a partial state file restores only
// what it holds.
func (o *Orchestrator) Restore(st Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateUnconfigured {
		return &StateError{Op: "restore", State: o.state}
	}
	if st.CurrentRateMbps > 0 {
		o.status.CurrentRateMbps = st.CurrentRateMbps
	}
	if st.LastCalibrationMbps > 0 {
		o.status.LastCalibrationMbps = st.LastCalibrationMbps
	}
	if !st.LastCalibrationAt.IsZero() {
		o.status.LastCalibrationAt = st.LastCalibrationAt
	}
	if st.LastLatencyMs > 0 {
		o.status.LastLatencyMs = st.LastLatencyMs
		o.status.LatencyKnown = true
	}
	if !st.LastAdjustAt.IsZero() {
		o.status.LastAdjustAt = st.LastAdjustAt
		o.status.LastAdjustBranch = st.LastAdjustBranch
		o.status.LastAdjustReason = st.LastAdjustReason
	}
	if st.LearningMode {
		o.state = StateLearning
		o.status.LearningMode = true
		o.status.LearningSince = st.LearningSince
	}
	return nil
}

// Status returns a snapshot copy of the engine state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.status
	st.State = o.state
	st.LearningProgressPct = o.table.LearningProgress()
	if hb, ok := o.table.Lookup(time.Now()); ok {
		cp := hb
		st.CurrentHourBaseline = &cp
	} else {
		st.CurrentHourBaseline = nil
	}
	return st
}

// CurrentRate returns the rate the engine last settled on.
func (o *Orchestrator) CurrentRate() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status.CurrentRateMbps
}

// Shaping returns a copy of the active configuration.
func (o *Orchestrator) Shaping() config.Shaping {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// StartLearningMode flags the engine as learning. The baseline table is
// not touched.
func (o *Orchestrator) StartLearningMode() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateMonitoring {
		return &StateError{Op: "start learning mode", State: o.state}
	}
	o.state = StateLearning
	o.status.LearningMode = true
	o.status.LearningSince = time.Now()
	return nil
}

// StopLearningMode returns to plain monitoring. The baseline table is
// not touched.
func (o *Orchestrator) StopLearningMode() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateLearning {
		return &StateError{Op: "stop learning mode", State: o.state}
	}
	o.state = StateMonitoring
	o.status.LearningMode = false
	o.status.LearningSince = time.Time{}
	return nil
}

// ExportBaseline hands the flat baseline map to the persistence layer.
func (o *Orchestrator) ExportBaseline() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.table.ExportFlat()
}

// ImportBaseline restores persisted medians into the table.
func (o *Orchestrator) ImportBaseline(flat map[string]float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateUnconfigured {
		return &StateError{Op: "import baseline", State: o.state}
	}
	return o.table.ImportFlat(flat)
}

// Baseline returns the slots known to the table, for display.
func (o *Orchestrator) Baseline() []baseline.BucketView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.table.Known()
}
