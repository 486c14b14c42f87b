package teleop

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/kinematics"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/servo"
	"github.com/gwillem/vrteleop/pkg/transport"
)

func newController(t *testing.T, src pose.Source, mock *clock.Mock) *Controller {
	t.Helper()
	c, err := NewController(Config{
		Source: src,
		Arm:    kinematics.DefaultArmGeometry(),
		Head:   kinematics.DefaultHeadConfig(),
		Clock:  mock,
		Logger: zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return c
}

func headLooking(yawDeg float64) pose.Sample {
	return pose.Sample{Pose: pose.Pose{
		Position:    mgl64.Vec3{0, 1.6, 0},
		Orientation: mgl64.QuatRotate(angle.Radians(yawDeg), pose.Up),
	}}
}

func TestController_StepWithoutPosesKeepsNeutral(t *testing.T) {
	c := newController(t, pose.Static{}, clock.NewMock())
	c.step()

	st := <-c.States()
	assert.Nil(t, st.Arm)
	assert.Nil(t, st.Head)
	assert.Equal(t, servo.NeutralValues(), st.Values)
	assert.True(t, c.Aggregator().Snapshot().ArmUpdated.IsZero())
}

func TestController_StepSolvesArmAndHead(t *testing.T) {
	src := pose.Static{
		pose.RightHand: {Pose: pose.Identity(mgl64.Vec3{0.23, 1.2, 0.05}), Grip: 0.5},
		pose.Head:      headLooking(0),
	}
	c := newController(t, src, clock.NewMock())
	c.step()

	st := <-c.States()
	require.NotNil(t, st.Arm)
	require.NotNil(t, st.Head)

	want := kinematics.NewArmSolver(kinematics.DefaultArmGeometry()).
		Solve(src[pose.RightHand].Pose, 0.5).Servo
	assert.Equal(t, want, st.Arm.Servo)
	assert.Equal(t, servo.Values{
		want.ShoulderYaw, want.ShoulderPitch, want.ShoulderRoll,
		want.Elbow, want.Wrist, want.Grip,
		90, 90,
	}, st.Values)
	for i, v := range st.Values {
		assert.GreaterOrEqual(t, v, 0.0, "channel %s", servo.Channel(i))
		assert.LessOrEqual(t, v, 180.0, "channel %s", servo.Channel(i))
	}
}

func TestController_HeadOnlyLeavesArmAtLastValue(t *testing.T) {
	src := pose.Static{pose.Head: headLooking(0)}
	c := newController(t, src, clock.NewMock())
	c.step()
	src[pose.Head] = headLooking(30)
	c.step()

	vals := c.Aggregator().Snapshot().Values
	for _, ch := range servo.ArmChannels() {
		assert.Equal(t, servo.Neutral, vals[ch], ch.String())
	}
	assert.Less(t, vals[servo.HeadPan], 90.0)
}

func TestController_Recalibrate(t *testing.T) {
	src := pose.Static{pose.Head: headLooking(0)}
	c := newController(t, src, clock.NewMock())

	// First pose anchors.
	c.step()
	src[pose.Head] = headLooking(40)
	for i := 0; i < 5; i++ {
		c.step()
	}
	require.Less(t, c.Aggregator().Snapshot().Values[servo.HeadPan], 60.0)

	c.Recalibrate()
	c.step()
	vals := c.Aggregator().Snapshot().Values
	assert.InDelta(t, 90, vals[servo.HeadPan], 1e-9)
	assert.InDelta(t, 90, vals[servo.HeadTilt], 1e-9)

	// Applied once.
	src[pose.Head] = headLooking(70)
	c.step()
	assert.Less(t, c.Aggregator().Snapshot().Values[servo.HeadPan], 90.0)

	var logs []string
	for len(c.Logs()) > 0 {
		logs = append(logs, <-c.Logs())
	}
	assert.True(t, containsSuffix(logs, "Head recalibrated"), "logs: %v", logs)
}

func TestController_RecalibrateWaitsForHeadPose(t *testing.T) {
	src := pose.Static{}
	c := newController(t, src, clock.NewMock())
	c.Recalibrate()
	c.step()

	src[pose.Head] = headLooking(25)
	c.step()
	assert.True(t, c.head.State().Anchored)
	assert.Equal(t, src[pose.Head].Pose, c.head.State().Anchor)
	assert.False(t, c.recalibrate.Load())
}

func TestController_StartRunsLoopAndLink(t *testing.T) {
	mock := clock.NewMock()
	agg := servo.NewAggregator()
	rec := &recordingSender{}
	link := transport.NewLink(agg, rec, transport.LinkConfig{
		Interval: 50 * time.Millisecond,
		Enabled:  true,
		Clock:    mock,
	})

	src := pose.Static{pose.RightHand: {Pose: pose.Identity(mgl64.Vec3{0.23, 1.2, 0.05}), Grip: 1}}
	c, err := NewController(Config{
		Source:     src,
		Arm:        kinematics.DefaultArmGeometry(),
		Head:       kinematics.DefaultHeadConfig(),
		Hz:         100,
		Aggregator: agg,
		Link:       link,
		Clock:      mock,
		Logger:     zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	// Probe goes out with the neutral table.
	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "90,90,90,90,90,90,90,90", rec.frame(0))

	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		return rec.count() >= 3
	}, time.Second, time.Millisecond)
	assert.NotEqual(t, "90,90,90,90,90,90,90,90", rec.frame(rec.count()-1))

	// A second Start is rejected while running.
	assert.Error(t, c.Start(context.Background()))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	require.NoError(t, c.Close())
	assert.True(t, rec.closed)
}

func TestController_StartLogsLinkDeadline(t *testing.T) {
	agg := servo.NewAggregator()
	link := transport.NewLink(agg, &recordingSender{}, transport.LinkConfig{
		Interval: 50 * time.Millisecond,
		Enabled:  true,
		Clock:    clock.NewMock(),
	})
	core, logs := observer.New(zap.InfoLevel)
	c, err := NewController(Config{
		Source:     pose.Static{},
		Arm:        kinematics.DefaultArmGeometry(),
		Head:       kinematics.DefaultHeadConfig(),
		Aggregator: agg,
		Link:       link,
		Clock:      clock.NewMock(),
		Logger:     zap.New(core).Sugar(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	assert.ErrorIs(t, c.Start(ctx), context.DeadlineExceeded)

	exited := logs.FilterMessage("link exited").All()
	require.Len(t, exited, 1)
	assert.Equal(t, "context deadline exceeded", exited[0].ContextMap()["error"])
	require.NoError(t, c.Close())
}

func TestNewController_Errors(t *testing.T) {
	_, err := NewController(Config{Arm: kinematics.DefaultArmGeometry(), Head: kinematics.DefaultHeadConfig()})
	assert.Error(t, err, "missing source")

	geom := kinematics.DefaultArmGeometry()
	geom.Forearm = 0
	_, err = NewController(Config{Source: pose.Static{}, Arm: geom, Head: kinematics.DefaultHeadConfig()})
	assert.Error(t, err)

	c, err := NewController(Config{Source: pose.Static{}, Arm: kinematics.DefaultArmGeometry(), Head: kinematics.DefaultHeadConfig()})
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultHz), c.Hz())
}

func containsSuffix(lines []string, suffix string) bool {
	for _, l := range lines {
		if strings.HasSuffix(l, suffix) {
			return true
		}
	}
	return false
}

type recordingSender struct {
	mu     sync.Mutex
	frames []string
	closed bool
}

func (r *recordingSender) Send(frame []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, string(frame))
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recordingSender) frame(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[i]
}
