// Package receiver is the robot side of the link: it reads servo frames from
// UDP and drives the servos.
package receiver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/vrteleop/pkg/robot"
	"github.com/gwillem/vrteleop/pkg/servo"
)

// maxDatagram is larger than any valid frame.
const maxDatagram = 1024

// Config configures a Receiver.
type Config struct {
	// Listen is the UDP listen address, e.g. ":6000".
	Listen string
	// Settle is how long to wait after parking the servos before returning.
	Settle time.Duration
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// Stats are the receiver counters.
type Stats struct {
	Received  uint64
	Applied   uint64
	Malformed uint64
	Failed    uint64
	Last      servo.Values
	LastFrom  string
}

// Receiver applies every well-formed frame it receives to a driver.
type Receiver struct {
	conn   *net.UDPConn
	driver robot.Driver
	cfg    Config
	logger *zap.SugaredLogger

	mu    sync.Mutex
	stats Stats
}

// Listen binds the UDP socket.
func Listen(cfg Config, driver robot.Driver) (*Receiver, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	addr, err := net.ResolveUDPAddr("udp4", cfg.Listen)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "resolve %s", cfg.Listen)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "listen %s", cfg.Listen)
	}

	return &Receiver{
		conn:   conn,
		driver: driver,
		cfg:    cfg,
		logger: cfg.Logger,
		stats:  Stats{Last: servo.NeutralValues()},
	}, nil
}

// Addr returns the bound address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Run reads frames until ctx is done, then parks the servos at rest.
func (r *Receiver) Run(ctx context.Context) error {
	r.logger.Infow("listening for frames", "addr", r.Addr().String())
	r.logPositions(ctx, "start")

	stop := context.AfterFunc(ctx, func() {
		// Unblock the pending read.
		r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			r.logger.Warnw("read failed", "error", err)
			continue
		}
		r.handle(ctx, string(buf[:n]), from)
	}

	return multierr.Append(ctx.Err(), r.rest())
}

func (r *Receiver) handle(ctx context.Context, frame string, from *net.UDPAddr) {
	v, err := servo.Parse(frame)

	r.mu.Lock()
	r.stats.Received++
	r.stats.LastFrom = from.String()
	if err != nil {
		r.stats.Malformed++
	} else {
		r.stats.Last = v
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warnw("dropping malformed frame", "from", from.String(), "frame", frame, "error", err)
		return
	}
	r.logger.Debugw("received", "from", from.String(), "frame", frame)

	if err := r.driver.Apply(ctx, v); err != nil {
		r.mu.Lock()
		r.stats.Failed++
		r.mu.Unlock()
		r.logger.Warnw("driver apply failed", "error", err)
		return
	}

	r.mu.Lock()
	r.stats.Applied++
	r.mu.Unlock()
}

func (r *Receiver) rest() error {
	r.logger.Infow("stopping servos")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.driver.Rest(ctx); err != nil {
		return pkgerrors.Wrap(err, "rest pose")
	}
	if r.cfg.Settle > 0 {
		r.cfg.Clock.Sleep(r.cfg.Settle)
	}
	r.logPositions(ctx, "rest")
	return nil
}

// logPositions logs the measured angles when the driver can read them back.
func (r *Receiver) logPositions(ctx context.Context, when string) {
	reader, ok := r.driver.(robot.PositionReader)
	if !ok {
		return
	}
	positions, err := reader.ReadPositions(ctx)
	if err != nil {
		r.logger.Warnw("read positions failed", "when", when, "error", err)
		return
	}
	fields := []any{"when", when}
	for _, ch := range servo.AllChannels() {
		if deg, ok := positions[ch]; ok {
			fields = append(fields, ch.String(), deg)
		}
	}
	r.logger.Infow("servo positions", fields...)
}

// Stats returns a copy of the counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close closes the socket and the driver.
func (r *Receiver) Close() error {
	return multierr.Combine(r.conn.Close(), r.driver.Close())
}
