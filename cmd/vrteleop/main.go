package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/gwillem/vrteleop/internal/logging"
	"github.com/gwillem/vrteleop/pkg/robot"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"vrteleop.json" description:"Configuration file"`
	LogLevel string `long:"log-level" description:"Override log.level (debug, info, warn, error)"`

	Setup       SetupCommand       `command:"setup" description:"Write a configuration file, optionally scanning for bus servos"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Track the headset and stream servo frames to the robot"`
	Receive     ReceiveCommand     `command:"receive" description:"Run on the robot: apply received frames to the servos"`
	Solve       SolveCommand       `command:"solve" description:"Solve one pose and print the servo angles"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "vrteleop - drive a robot arm and pan/tilt head from a VR headset"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config and applies global overrides.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, nil
}

// newLogger logs to cfg.Log.File when toFile is set, otherwise to stderr.
func newLogger(cfg *robot.Config, toFile bool) (*zap.SugaredLogger, func() error, error) {
	lc := logging.Config{Level: cfg.Log.Level, Color: true}
	if toFile {
		lc.File = cfg.Log.File
	}
	return logging.New(lc)
}
