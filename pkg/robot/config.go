package robot

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/gwillem/vrteleop/pkg/kinematics"
)

const DefaultConfigFile = "vrteleop.json"

// Receiver driver names.
const (
	DriverLog     = "log"
	DriverPCA9685 = "pca9685"
	DriverFeetech = "feetech"
)

// Config holds the configuration for both ends of the link.
type Config struct {
	Network  NetworkConfig          `json:"network"`
	Teleop   TeleopConfig           `json:"teleop"`
	Arm      kinematics.ArmGeometry `json:"arm"`
	Head     kinematics.HeadConfig  `json:"head"`
	Pose     PoseConfig             `json:"pose"`
	Receiver ReceiverConfig         `json:"receiver"`
	Log      LogConfig              `json:"log"`
}

// NetworkConfig configures the outbound frame link.
type NetworkConfig struct {
	Enabled bool   `json:"enabled"`
	Peer    string `json:"peer"`
	Port    int    `json:"port"`
	// SendInterval is the time between frames in seconds.
	SendInterval float64 `json:"send_interval"`
	// MQTTTopic, when set with Pose.MQTTBroker, mirrors every frame to the broker.
	MQTTTopic string `json:"mqtt_topic,omitempty"`
}

// Interval returns SendInterval as a duration.
func (n NetworkConfig) Interval() time.Duration {
	return time.Duration(n.SendInterval * float64(time.Second))
}

// TeleopConfig configures the solver loop.
type TeleopConfig struct {
	UpdateHz float64 `json:"update_hz"`
}

// PoseConfig configures where poses come from.
type PoseConfig struct {
	// WebSocketAddr is the listen address of the pose websocket; empty disables it.
	WebSocketAddr string `json:"websocket_addr"`
	MQTTBroker    string `json:"mqtt_broker,omitempty"`
	MQTTPrefix    string `json:"mqtt_prefix"`
	// MaxAge in seconds after which a pose counts as missing; 0 disables.
	MaxAge float64 `json:"max_age"`
}

// ReceiverConfig configures the robot-side receiver.
type ReceiverConfig struct {
	Listen      string      `json:"listen"`
	Driver      string      `json:"driver"`
	PWM         PWMConfig   `json:"pwm"`
	Port        string      `json:"port,omitempty"`
	Calibration Calibration `json:"calibration,omitempty"`
	Outputs     Outputs     `json:"outputs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level"`
	// File receives logs while the dashboard owns the terminal.
	File string `json:"file"`
}

// DefaultConfig returns the configuration of the reference build.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Enabled:      true,
			Peer:         "192.168.0.210",
			Port:         6000,
			SendInterval: 0.05,
		},
		Teleop: TeleopConfig{UpdateHz: 90},
		Arm:    kinematics.DefaultArmGeometry(),
		Head:   kinematics.DefaultHeadConfig(),
		Pose: PoseConfig{
			WebSocketAddr: ":8765",
			MQTTPrefix:    "vrteleop/pose",
		},
		Receiver: ReceiverConfig{
			Listen:  ":6000",
			Driver:  DriverPCA9685,
			PWM:     DefaultPWMConfig(),
			Outputs: DefaultOutputs(),
		},
		Log: LogConfig{
			Level: "info",
			File:  "vrteleop.log",
		},
	}
}

// IsCalibrated returns true if the receiver has bus servo calibration data.
func (r *ReceiverConfig) IsCalibrated() bool {
	return len(r.Calibration) > 0
}

// Validate checks every section and returns the first problem found. The peer
// address is not checked here: a peer that cannot be dialed disables
// networking for the run instead of stopping it.
func (c *Config) Validate() error {
	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		return errors.Errorf("network.port %d out of range", c.Network.Port)
	}
	if c.Network.SendInterval <= 0 {
		return errors.Errorf("network.send_interval must be positive, got %v", c.Network.SendInterval)
	}
	if c.Teleop.UpdateHz <= 0 {
		return errors.Errorf("teleop.update_hz must be positive, got %v", c.Teleop.UpdateHz)
	}
	if err := c.Arm.Validate(); err != nil {
		return errors.Wrap(err, "arm")
	}
	if err := c.Head.Validate(); err != nil {
		return errors.Wrap(err, "head")
	}
	if c.Pose.MaxAge < 0 {
		return errors.Errorf("pose.max_age must not be negative, got %v", c.Pose.MaxAge)
	}
	switch c.Receiver.Driver {
	case DriverLog, DriverPCA9685:
	case DriverFeetech:
		if c.Receiver.Port == "" {
			return errors.New("receiver.port is required for the feetech driver")
		}
	default:
		return errors.Errorf("unknown receiver.driver %q", c.Receiver.Driver)
	}
	if c.Receiver.PWM.Frequency <= 0 || c.Receiver.PWM.PulseMax <= c.Receiver.PWM.PulseMin {
		return errors.New("receiver.pwm needs a positive frequency and pulse_max above pulse_min")
	}
	if err := c.Receiver.Outputs.Validate(); err != nil {
		return errors.Wrap(err, "receiver.outputs")
	}
	return nil
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Fields missing from
// the file keep their defaults; a missing file yields the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
