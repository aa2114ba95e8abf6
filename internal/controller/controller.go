// Package controller runs the perception cycle: one setup, then
// frame -> invoke -> decode -> label -> report, with a fixed idle between
// cycles.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"perception_loop/internal/detect"
	"perception_loop/internal/engine"
	"perception_loop/internal/frame"
	"perception_loop/internal/inference"
	"perception_loop/internal/labels"
	"perception_loop/internal/sink"
)

var (
	// ErrHalted marks every setup failure. A halted controller runs no cycles.
	ErrHalted   = errors.New("controller: halted")
	ErrNotSetUp = errors.New("controller: setup has not run")
)

// State is the controller's lifecycle state.
type State int

const (
	Uninitialized State = iota
	Prepared
	Running
	Idle
	Halted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Prepared:
		return "prepared"
	case Running:
		return "running"
	case Idle:
		return "idle"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Phase is the last step a cycle completed.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseLoaded
	PhaseInvoked
	PhaseDecoded
	PhaseReported
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseLoaded:
		return "loaded"
	case PhaseInvoked:
		return "invoked"
	case PhaseDecoded:
		return "decoded"
	case PhaseReported:
		return "reported"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// FramePolicy decides when the frame buffer is refilled.
type FramePolicy int

const (
	// FrameOnce loads the frame during setup and reuses it every cycle.
	FrameOnce FramePolicy = iota
	// FrameEveryCycle re-reads the source at the start of each cycle.
	FrameEveryCycle
)

func (p FramePolicy) String() string {
	if p == FrameEveryCycle {
		return "every_cycle"
	}
	return "once"
}

// ParseFramePolicy accepts "once" and "every_cycle".
func ParseFramePolicy(s string) (FramePolicy, error) {
	switch s {
	case "", "once":
		return FrameOnce, nil
	case "every_cycle":
		return FrameEveryCycle, nil
	}
	return 0, errors.Newf("controller: unknown frame policy %q", s)
}

// Runner is the inference step. *inference.Adapter implements it.
type Runner interface {
	Prepare(model []byte) error
	// InputSize is the frame size in bytes the prepared model accepts.
	InputSize() int
	Run(input []byte) (*engine.View, error)
}

// Deps are the collaborators a controller drives.
type Deps struct {
	// LoadModel returns the model artifact. It is called once during setup.
	LoadModel func() ([]byte, error)
	Runner    Runner
	Frames    frame.Source
	Labels    *labels.Table
	Sink      sink.Sink
	Sleeper   Sleeper
	Now       func() time.Time
	Log       *logrus.Entry
}

// Options are the loop's operating parameters.
type Options struct {
	Format      frame.Format
	Threshold   float32
	Interval    time.Duration
	FramePolicy FramePolicy
	// MaxCycles stops Run after that many cycles. Zero runs until the
	// context ends.
	MaxCycles uint64
}

// Report summarizes one cycle.
type Report struct {
	Cycle      uint64
	Phase      Phase
	Candidates int
	Batch      sink.Batch
	Err        error
}

// Controller owns the frame buffer and drives every component in sequence
// from a single goroutine.
type Controller struct {
	deps    Deps
	opts    Options
	decoder detect.Decoder
	runID   string

	state State
	frame []byte
	cycle uint64
}

// New builds a controller. Nothing is touched until Setup.
func New(deps Deps, opts Options) *Controller {
	if deps.Sleeper == nil {
		deps.Sleeper = TimerSleeper{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	runID := uuid.NewString()
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	deps.Log = deps.Log.WithField("run_id", runID)

	return &Controller{
		deps:    deps,
		opts:    opts,
		decoder: detect.NewDecoder(opts.Threshold),
		runID:   runID,
		state:   Uninitialized,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// RunID identifies this controller's run in every batch it writes.
func (c *Controller) RunID() string { return c.runID }

// Setup performs the one-shot initialization. Any failure moves the
// controller to Halted and returns an error marked ErrHalted.
func (c *Controller) Setup() error {
	if c.state != Uninitialized {
		if c.state == Halted {
			return ErrHalted
		}
		return nil
	}
	if err := c.setup(); err != nil {
		c.state = Halted
		c.deps.Log.WithError(err).Error("Setup failed, controller halted")
		if hints := errors.GetAllHints(err); len(hints) > 0 {
			c.deps.Log.WithField("hints", hints).Error("Setup hints")
		}
		return errors.Mark(err, ErrHalted)
	}
	c.state = Prepared
	c.deps.Log.WithFields(logrus.Fields{
		"frame_bytes": len(c.frame),
		"labels":      c.deps.Labels.Len(),
		"policy":      c.opts.FramePolicy.String(),
	}).Info("Setup complete")
	return nil
}

func (c *Controller) setup() error {
	model, err := c.deps.LoadModel()
	if err != nil {
		return errors.Wrap(err, "load model artifact")
	}
	if err := c.deps.Runner.Prepare(model); err != nil {
		return errors.Wrap(err, "prepare inference")
	}
	if got, want := c.opts.Format.Size(), c.deps.Runner.InputSize(); got != want {
		return errors.WithHint(
			errors.Wrapf(inference.ErrInputSize, "frame %dx%dx%d is %d bytes, model input holds %d",
				c.opts.Format.Side, c.opts.Format.Side, c.opts.Format.Channels, got, want),
			"set frame.side and frame.channels to the model's input geometry")
	}
	if c.deps.Labels == nil || c.deps.Labels.Len() == 0 {
		return errors.New("controller: label table is empty")
	}
	if err := c.deps.Frames.Open(); err != nil {
		return errors.Wrap(err, "open frame source")
	}
	c.frame = c.opts.Format.NewBuffer()
	if err := c.deps.Frames.Read(c.frame); err != nil {
		return errors.Wrap(err, "load initial frame")
	}
	return nil
}

// Cycle runs one iteration. Report.Err carries the cycle's failure, if any;
// the controller stays usable either way.
func (c *Controller) Cycle(ctx context.Context) Report {
	c.cycle++
	rep := Report{Cycle: c.cycle}
	switch c.state {
	case Uninitialized:
		rep.Err = ErrNotSetUp
		return rep
	case Halted:
		rep.Err = ErrHalted
		return rep
	}
	c.state = Running

	if c.opts.FramePolicy == FrameEveryCycle {
		if err := c.deps.Frames.Read(c.frame); err != nil {
			rep.Err = errors.Wrap(err, "read frame")
			return rep
		}
	}
	rep.Phase = PhaseLoaded

	out, err := c.deps.Runner.Run(c.frame)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Phase = PhaseInvoked

	if n, err := detect.Records(out.Shape); err == nil {
		rep.Candidates = n
	}
	dets, err := c.decoder.Decode(out)
	if err != nil {
		rep.Err = errors.Wrap(err, "decode")
		return rep
	}
	rep.Phase = PhaseDecoded

	records := make([]sink.Record, len(dets))
	for i, d := range dets {
		records[i] = sink.Record{Label: c.deps.Labels.Resolve(d.ClassID), Detection: d}
	}
	rep.Batch = sink.Batch{RunID: c.runID, Cycle: c.cycle, Time: c.deps.Now(), Records: records}

	if err := c.deps.Sink.Write(ctx, rep.Batch); err != nil {
		rep.Err = err
		return rep
	}
	rep.Phase = PhaseReported
	return rep
}

// Run sets up, then cycles until the context ends or MaxCycles is reached.
// It returns a non-nil error only when setup fails.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Setup(); err != nil {
		return err
	}

	for {
		rep := c.Cycle(ctx)
		c.logReport(rep)
		c.state = Idle

		if c.opts.MaxCycles > 0 && rep.Cycle >= c.opts.MaxCycles {
			return nil
		}
		if err := c.deps.Sleeper.Sleep(ctx, c.opts.Interval); err != nil {
			c.deps.Log.WithField("cycles", c.cycle).Info("Loop stopped")
			return nil
		}
	}
}

func (c *Controller) logReport(rep Report) {
	log := c.deps.Log.WithFields(logrus.Fields{
		"cycle":      rep.Cycle,
		"phase":      rep.Phase.String(),
		"candidates": rep.Candidates,
	})
	if rep.Err != nil {
		log.WithError(rep.Err).Warn("Cycle skipped")
		return
	}
	log.WithField("detections", len(rep.Batch.Records)).Info("Cycle complete")
}

// IsTransient reports whether err is a per-cycle failure that the loop
// skips over.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrHalted) {
		return false
	}
	return errors.IsAny(err,
		inference.ErrInvokeFailed,
		inference.ErrBusy,
		inference.ErrInputSize,
		detect.ErrTensorTooShort,
		detect.ErrMalformedShape,
		detect.ErrNotFloat,
		sink.ErrWrite,
		frame.ErrIncompleteRead,
		frame.ErrUnavailable,
	)
}
