// Package vrteleop drives a small robot (one arm plus a pan/tilt head) from a
// VR headset.
//
// The operator's right hand pose is solved into six arm servo angles and the
// headset orientation into head pan and tilt. The eight angles are streamed
// as comma separated text frames over UDP to the robot, where a receiver
// applies them to a PCA9685 PWM board or Feetech bus servos.
//
// # Installation
//
//	go install github.com/gwillem/vrteleop/cmd/vrteleop@latest
//
// # Usage
//
// Write a configuration file with the robot's address and driver:
//
//	vrteleop setup
//
// On the robot:
//
//	vrteleop receive
//
// On the machine the headset streams poses to:
//
//	vrteleop teleoperate
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/vrteleop: CLI with setup, teleoperate, receive and solve commands
//   - pkg/angle: Degree helpers shared by the solvers
//   - pkg/pose: Tracked poses and the websocket and MQTT pose sources
//   - pkg/kinematics: Arm and head solvers
//   - pkg/servo: The eight-channel command table and its frame format
//   - pkg/transport: Frame senders and the periodic send link
//   - pkg/receiver: Robot-side frame receiver
//   - pkg/robot: Configuration, calibration and servo drivers
//   - pkg/teleop: Teleoperation controller
package vrteleop
