package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/vrteleop/pkg/receiver"
	"github.com/gwillem/vrteleop/pkg/robot"
)

type ReceiveCommand struct {
	Listen string  `long:"listen" description:"UDP listen address (overrides receiver.listen)"`
	Driver string  `long:"driver" choice:"pca9685" choice:"feetech" choice:"log" description:"Servo driver (overrides receiver.driver)"`
	DryRun bool    `long:"dry-run" description:"Log frames instead of moving servos"`
	Settle float64 `long:"settle" default:"1.5" description:"Seconds to wait after parking the servos on shutdown"`
}

// openDriver builds the driver named by cfg.Receiver.Driver.
func openDriver(ctx context.Context, cfg *robot.Config, logger *zap.SugaredLogger) (robot.Driver, error) {
	rest := cfg.Receiver.Outputs.RestValues()

	switch cfg.Receiver.Driver {
	case robot.DriverPCA9685:
		return robot.NewPWMDriver(cfg.Receiver.PWM, cfg.Receiver.Outputs)

	case robot.DriverFeetech:
		cal := cfg.Receiver.Calibration
		if !cfg.Receiver.IsCalibrated() {
			logger.Warnw("no calibration in config, using defaults", "ids", robot.DefaultCalibration().MotorIDs())
			cal = robot.DefaultCalibration()
		}
		d, err := robot.NewFeetechDriver(cfg.Receiver.Port, cal, rest)
		if err != nil {
			return nil, err
		}
		if err := d.Enable(ctx); err != nil {
			return nil, multierr.Append(err, d.Close())
		}
		return d, nil

	default:
		return robot.NewLogDriver(logger.Named("driver"), rest), nil
	}
}

func (c *ReceiveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Receiver.Listen = c.Listen
	}
	if c.Driver != "" {
		cfg.Receiver.Driver = c.Driver
	}
	if c.DryRun {
		cfg.Receiver.Driver = robot.DriverLog
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := openDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	r, err := receiver.Listen(receiver.Config{
		Listen: cfg.Receiver.Listen,
		Settle: time.Duration(c.Settle * float64(time.Second)),
		Logger: logger.Named("receiver"),
	}, driver)
	if err != nil {
		return multierr.Append(err, driver.Close())
	}
	logger.Infow("listening for frames", "addr", r.Addr(), "driver", cfg.Receiver.Driver)

	err = ignoreCanceled(r.Run(ctx))
	st := r.Stats()
	logger.Infow("receiver stopped",
		"received", st.Received, "applied", st.Applied,
		"malformed", st.Malformed, "failed", st.Failed)
	return multierr.Append(err, r.Close())
}
