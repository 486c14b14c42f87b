package transport

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/vrteleop/pkg/servo"
)

// heartbeatTicks is how often (in ticks) the link logs its counters.
const heartbeatTicks = 100

// LinkConfig configures a Link.
type LinkConfig struct {
	Interval time.Duration
	// Enabled false replaces the sender with Disabled.
	Enabled bool
	Clock   clock.Clock
	Logger  *zap.SugaredLogger
	// ErrorLogInterval is the minimum time between two logged send errors.
	ErrorLogInterval time.Duration
}

// DefaultLinkConfig sends every 50ms.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Interval:         50 * time.Millisecond,
		Enabled:          true,
		ErrorLogInterval: 5 * time.Second,
	}
}

// Stats are the link counters.
type Stats struct {
	Enabled bool
	// Ticks counts send attempts, including the startup probe.
	Ticks     uint64
	// Sent counts frames that left the machine; it stays zero while disabled.
	Sent      uint64
	Failed    uint64
	LastFrame string
	LastSent  time.Time
	LastError string
}

// Link samples the command table on a fixed interval and sends one frame per
// tick. A failed send is counted and dropped; the next tick sends whatever the
// table holds then.
type Link struct {
	agg    *servo.Aggregator
	sender Sender
	cfg    LinkConfig
	clock  clock.Clock
	logger *zap.SugaredLogger

	mu         sync.Mutex
	stats      Stats
	lastErrLog time.Time
}

// NewLink creates a link reading from agg.
func NewLink(agg *servo.Aggregator, sender Sender, cfg LinkConfig) *Link {
	def := DefaultLinkConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ErrorLogInterval <= 0 {
		cfg.ErrorLogInterval = def.ErrorLogInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if !cfg.Enabled || sender == nil {
		cfg.Enabled = false
		sender = Disabled{}
	}

	return &Link{
		agg:    agg,
		sender: sender,
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		stats:  Stats{Enabled: cfg.Enabled},
	}
}

// Interval returns the send interval.
func (l *Link) Interval() time.Duration {
	return l.cfg.Interval
}

// Run sends the current table once as a probe, then one frame per interval
// until ctx is done.
func (l *Link) Run(ctx context.Context) error {
	ticker := l.clock.Ticker(l.cfg.Interval)
	defer ticker.Stop()

	l.probe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick sends the current table once and returns the send error, if any.
func (l *Link) Tick() error {
	frame := l.agg.Snapshot().Values.Frame()
	err := l.send(frame)

	l.mu.Lock()
	ticks := l.stats.Ticks
	sent, failed := l.stats.Sent, l.stats.Failed
	l.mu.Unlock()
	if ticks%heartbeatTicks == 0 {
		l.logger.Debugw("link heartbeat", "ticks", ticks, "sent", sent, "failed", failed)
	}
	return err
}

// Stats returns a copy of the counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close closes the sender.
func (l *Link) Close() error {
	return l.sender.Close()
}

func (l *Link) probe() {
	frame := l.agg.Snapshot().Values.Frame()
	if !l.cfg.Enabled {
		l.logger.Infow("networking disabled, frames are only logged", "frame", string(frame))
		return
	}
	if err := l.send(frame); err != nil {
		l.logger.Warnw("connectivity probe failed", "frame", string(frame), "error", err)
		return
	}
	l.logger.Infow("connectivity probe sent", "frame", string(frame))
}

func (l *Link) send(frame []byte) error {
	err := l.sender.Send(frame)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Ticks++
	l.stats.LastFrame = string(frame)
	if err == nil {
		if !l.cfg.Enabled {
			l.logger.Debugw("would send", "frame", l.stats.LastFrame)
			return nil
		}
		l.stats.Sent++
		l.stats.LastSent = now
		l.logger.Debugw("sent", "frame", l.stats.LastFrame)
		return nil
	}

	l.stats.Failed++
	l.stats.LastError = err.Error()
	if l.lastErrLog.IsZero() || now.Sub(l.lastErrLog) >= l.cfg.ErrorLogInterval {
		l.logger.Warnw("send failed", "error", err, "failed", l.stats.Failed)
		l.lastErrLog = now
	}
	return err
}
