package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/kinematics"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/robot"
	"github.com/gwillem/vrteleop/pkg/servo"
)

type SolveCommand struct {
	Hand    string  `long:"hand" default:"0.23,1.2,0.05" description:"Hand position x,y,z in meters"`
	HandRot string  `long:"hand-rot" default:"0,0,0" description:"Hand yaw,pitch,roll in degrees"`
	Grip    float64 `long:"grip" default:"0" description:"Grip axis in [0, 1]"`
	HeadRot string  `long:"head-rot" default:"0,0,0" description:"Head yaw,pitch,roll in degrees; relative mode anchors at 0,0,0"`
	Steps   int     `long:"steps" default:"100" description:"Head solves to run so smoothing settles"`
}

type solveResult struct {
	Arm    kinematics.ArmSolution
	Head   kinematics.HeadSolution
	Values servo.Values
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) (mgl64.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("%q: want three comma separated numbers", s)
	}
	var v mgl64.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("%q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}

// orientation builds a rotation from yaw about Up, then pitch about Right,
// then roll about Forward, all in degrees.
func orientation(ypr mgl64.Vec3) mgl64.Quat {
	return mgl64.QuatRotate(angle.Radians(ypr[0]), pose.Up).
		Mul(mgl64.QuatRotate(angle.Radians(ypr[1]), pose.Right)).
		Mul(mgl64.QuatRotate(angle.Radians(ypr[2]), pose.Forward))
}

func solve(cfg *robot.Config, hand pose.Pose, grip float64, head pose.Pose, steps int) solveResult {
	arm := kinematics.NewArmSolver(cfg.Arm).Solve(hand, grip)

	hs := kinematics.NewHeadSolver(cfg.Head)
	if cfg.Head.Mode == kinematics.HeadRelative {
		hs.Recalibrate(pose.Identity(head.Position))
	}
	var hsol kinematics.HeadSolution
	for i := 0; i < max(steps, 1); i++ {
		hsol = hs.Solve(head)
	}

	agg := servo.NewAggregator()
	agg.SetArm(arm.Servo)
	agg.SetHead(hsol.Servo)
	return solveResult{Arm: arm, Head: hsol, Values: agg.Snapshot().Values}
}

func (c *SolveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pos, err := parseVec3(c.Hand)
	if err != nil {
		return fmt.Errorf("--hand %w", err)
	}
	handRot, err := parseVec3(c.HandRot)
	if err != nil {
		return fmt.Errorf("--hand-rot %w", err)
	}
	headRot, err := parseVec3(c.HeadRot)
	if err != nil {
		return fmt.Errorf("--head-rot %w", err)
	}

	res := solve(cfg,
		pose.Pose{Position: pos, Orientation: orientation(handRot)},
		angle.Clamp(c.Grip, 0, 1),
		pose.Pose{Position: mgl64.Vec3{0, 1.6, 0}, Orientation: orientation(headRot)},
		c.Steps)

	fmt.Println(renderSolveTable(res))
	fmt.Printf("frame: %s\n", servo.Encode(res.Values))
	return nil
}

func renderSolveTable(res solveResult) string {
	raw := map[servo.Channel]float64{
		servo.ShoulderYaw:   res.Arm.Raw.ShoulderYaw,
		servo.ShoulderPitch: res.Arm.Raw.ShoulderPitch,
		servo.ShoulderRoll:  res.Arm.Raw.ShoulderRoll,
		servo.Elbow:         res.Arm.Raw.Elbow,
		servo.Wrist:         res.Arm.Raw.Wrist,
		servo.Grip:          res.Arm.Raw.Grip,
		servo.HeadPan:       res.Head.RawPan,
		servo.HeadTilt:      res.Head.RawTilt,
	}

	rows := make([][]string, 0, servo.NumChannels)
	for _, ch := range servo.AllChannels() {
		rows = append(rows, []string{
			ch.String(),
			strconv.FormatFloat(raw[ch], 'f', 2, 64),
			strconv.FormatFloat(res.Values[ch], 'f', 2, 64),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Channel", "Raw", "Servo").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}
