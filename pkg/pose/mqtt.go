package pose

import (
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTopicPrefix is the MQTT topic root for pose messages.
const DefaultTopicPrefix = "vrteleop/pose"

// MQTTConfig configures an MQTTSource.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Timeout     time.Duration
}

// MQTTSource subscribes to <prefix>/right_hand, <prefix>/head and
// <prefix>/recalibrate and feeds a Store.
type MQTTSource struct {
	client    mqtt.Client
	store     *Store
	logger    *zap.SugaredLogger
	onCommand CommandFunc
	prefix    string
}

// NewMQTTSource connects to the broker and subscribes to the pose topics.
func NewMQTTSource(cfg MQTTConfig, store *Store, logger *zap.SugaredLogger, onCommand CommandFunc) (*MQTTSource, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "vrteleop-pose-" + uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)

	s := &MQTTSource{
		store:     store,
		logger:    logger,
		onCommand: onCommand,
		prefix:    strings.TrimSuffix(cfg.TopicPrefix, "/"),
	}

	// Resubscribe after every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := s.subscribe(c, cfg.Timeout); err != nil {
			logger.Errorw("mqtt subscribe failed", "error", err)
		}
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errors.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", cfg.Broker)
	}
	logger.Infow("subscribed to pose topics", "broker", cfg.Broker, "prefix", s.prefix)
	return s, nil
}

func (s *MQTTSource) subscribe(c mqtt.Client, timeout time.Duration) error {
	filters := map[string]byte{s.prefix + "/#": 0}
	token := c.SubscribeMultiple(filters, s.handle)
	if !token.WaitTimeout(timeout) {
		return errors.New("subscribe timed out")
	}
	return token.Error()
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	leaf := strings.TrimPrefix(msg.Topic(), s.prefix+"/")
	if leaf == CommandRecalibrate {
		if s.onCommand != nil {
			s.onCommand(CommandRecalibrate)
		}
		return
	}

	m, err := DecodeMessage(msg.Payload())
	if err != nil {
		s.logger.Debugw("dropping mqtt pose message", "topic", msg.Topic(), "error", err)
		return
	}
	dispatch(s.store, s.logger, s.onCommand, Device(leaf), m)
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	s.client.Disconnect(250)
	return nil
}
