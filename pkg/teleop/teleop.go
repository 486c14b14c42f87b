// Package teleop runs the solve loop: it reads the latest poses, solves the
// arm and head, and publishes servo angles to the command table that the
// transport link sends.
package teleop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/vrteleop/pkg/kinematics"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/servo"
	"github.com/gwillem/vrteleop/pkg/transport"
)

// DefaultHz is the solve rate, matching common headset frame rates.
const DefaultHz = 90

// State represents the current state of teleoperation.
type State struct {
	Values servo.Values
	// Arm and Head are nil when their pose was not available this step.
	Arm       *kinematics.ArmSolution
	Head      *kinematics.HeadSolution
	Link      transport.Stats
	Timestamp time.Time
}

// Config holds configuration for the controller.
type Config struct {
	Source pose.Source
	Arm    kinematics.ArmGeometry
	Head   kinematics.HeadConfig
	Hz     float64
	// Aggregator receives the solved angles; a new one is created when nil.
	Aggregator *servo.Aggregator
	// Link, when set, is run alongside the solve loop and closed with the
	// controller. It must read from Aggregator.
	Link   *transport.Link
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// Controller manages the teleoperation control loop.
type Controller struct {
	source pose.Source
	arm    *kinematics.ArmSolver
	head   *kinematics.HeadSolver
	agg    *servo.Aggregator
	link   *transport.Link
	clock  clock.Clock
	logger *zap.SugaredLogger
	hz     float64

	recalibrate atomic.Bool

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewController creates a new teleoperation controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, errors.New("no pose source")
	}
	if err := cfg.Arm.Validate(); err != nil {
		return nil, errors.Wrap(err, "arm geometry")
	}
	if err := cfg.Head.Validate(); err != nil {
		return nil, errors.Wrap(err, "head config")
	}
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = servo.NewAggregator()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	return &Controller{
		source:  cfg.Source,
		arm:     kinematics.NewArmSolver(cfg.Arm),
		head:    kinematics.NewHeadSolver(cfg.Head),
		agg:     cfg.Aggregator,
		link:    cfg.Link,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		hz:      cfg.Hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// Close closes the link, if any.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	var err error
	if c.link != nil {
		err = multierr.Append(err, c.link.Close())
	}
	return err
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() float64 {
	return c.hz
}

// Aggregator returns the command table the controller writes.
func (c *Controller) Aggregator() *servo.Aggregator {
	return c.agg
}

// Recalibrate re-anchors the head on the next head pose and centers pan and
// tilt. Safe to call from any goroutine.
func (c *Controller) Recalibrate() {
	c.recalibrate.Store(true)
	c.log("Recalibration requested")
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)
	msg := fmt.Sprintf("[%s] %s", c.clock.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the solve loop, and the link if configured, until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("already running")
	}
	c.running = true
	c.mu.Unlock()

	var wg sync.WaitGroup
	if c.link != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Errorw("link exited", "error", err)
			}
		}()
		c.log("Sending frames every %s", c.link.Interval())
	}

	c.log("Teleoperation started at %.0f Hz", c.hz)

	ticker := c.clock.Ticker(time.Duration(float64(time.Second) / c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step()
		}
	}
}

// step solves whatever poses are available. A missing pose skips that solver
// and leaves its channels at their last value.
func (c *Controller) step() {
	st := State{Timestamp: c.clock.Now()}

	if hand, ok := c.source.Latest(pose.RightHand); ok {
		sol := c.arm.Solve(hand.Pose, hand.Grip)
		c.agg.SetArm(sol.Servo)
		st.Arm = &sol
	}

	if head, ok := c.source.Latest(pose.Head); ok {
		if c.recalibrate.CompareAndSwap(true, false) {
			c.head.Recalibrate(head.Pose)
			c.log("Head recalibrated")
		}
		sol := c.head.Solve(head.Pose)
		c.agg.SetHead(sol.Servo)
		st.Head = &sol
		c.logger.Debugw("head",
			"pan", sol.Servo.Pan, "tilt", sol.Servo.Tilt,
			"raw_pan", sol.RawPan, "raw_tilt", sol.RawTilt)
	}

	st.Values = c.agg.Snapshot().Values
	if c.link != nil {
		st.Link = c.link.Stats()
	}
	c.sendState(st)
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.link != nil {
		if st := c.link.Stats(); st.Enabled {
			c.log("Link stopped: %d sent, %d failed", st.Sent, st.Failed)
		}
	}
	c.log("Teleoperation stopped")
}
