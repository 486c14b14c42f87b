// Package transport delivers servo frames from the command table to the robot.
package transport

import (
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	DefaultPort         = 6000
	DefaultWriteTimeout = 10 * time.Millisecond
)

// Sender delivers one encoded frame. Implementations never retry.
type Sender interface {
	Send(frame []byte) error
	Close() error
}

// UDPConfig configures a UDPSender.
type UDPConfig struct {
	// Peer is an IPv4 literal.
	Peer         string
	Port         int
	WriteTimeout time.Duration
}

// UDPSender sends each frame as one datagram to a fixed peer.
type UDPSender struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// Dial validates the peer and opens a connected UDP socket. An error here is a
// configuration problem; callers fall back to Disabled.
func Dial(cfg UDPConfig) (*UDPSender, error) {
	ip := net.ParseIP(cfg.Peer)
	if ip == nil || ip.To4() == nil {
		return nil, errors.Errorf("peer %q is not an IPv4 address", cfg.Peer)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: ip.To4(), Port: cfg.Port})
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", net.JoinHostPort(cfg.Peer, strconv.Itoa(cfg.Port)))
	}
	return &UDPSender{conn: conn, timeout: cfg.WriteTimeout}, nil
}

// Send writes frame as a single datagram, bounded by the write timeout.
func (s *UDPSender) Send(frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	_, err := s.conn.Write(frame)
	return errors.Wrap(err, "udp write")
}

// RemoteAddr returns the peer address.
func (s *UDPSender) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}

// MQTTConfig configures an MQTTSender.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Timeout  time.Duration
}

// MQTTSender publishes each frame to a broker topic with QoS 0.
type MQTTSender struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMQTTSender connects to the broker.
func NewMQTTSender(cfg MQTTConfig) (*MQTTSender, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "vrteleop-link-" + uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 50 * time.Millisecond
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", cfg.Broker)
	}
	return &MQTTSender{client: client, topic: cfg.Topic, timeout: cfg.Timeout}, nil
}

// Send publishes frame, not retained. It waits at most the configured timeout.
func (s *MQTTSender) Send(frame []byte) error {
	token := s.client.Publish(s.topic, 0, false, frame)
	if !token.WaitTimeout(s.timeout) {
		return errors.Errorf("publish to %s timed out", s.topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", s.topic)
}

func (s *MQTTSender) Close() error {
	s.client.Disconnect(250)
	return nil
}

// Disabled is the Sender used when networking is off.
type Disabled struct{}

func (Disabled) Send([]byte) error { return nil }
func (Disabled) Close() error      { return nil }

// Tee sends every frame to all senders, in order. One failing sender does not
// stop the others.
type Tee []Sender

func (t Tee) Send(frame []byte) error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, s.Send(frame))
	}
	return err
}

func (t Tee) Close() error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, s.Close())
	}
	return err
}
