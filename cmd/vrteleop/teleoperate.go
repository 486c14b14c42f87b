package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/vrteleop/pkg/kinematics"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/robot"
	"github.com/gwillem/vrteleop/pkg/servo"
	"github.com/gwillem/vrteleop/pkg/teleop"
	"github.com/gwillem/vrteleop/pkg/transport"
)

type TeleoperateCommand struct {
	Peer     string  `long:"peer" description:"Receiver IPv4 address (overrides network.peer)"`
	Port     int     `long:"port" description:"Receiver UDP port (overrides network.port)"`
	Hz       float64 `long:"hz" description:"Solve rate in Hz (overrides teleop.update_hz)"`
	Interval float64 `long:"interval" description:"Seconds between frames (overrides network.send_interval)"`
	HeadMode string  `long:"head-mode" choice:"relative" choice:"absolute" description:"Head tracking mode (overrides head.mode)"`
	DryRun   bool    `long:"dry-run" description:"Log frames instead of sending them"`
	Headless bool    `long:"headless" description:"Log to stderr instead of showing the dashboard"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Channel colors - arm warm, head cool
var channelColors = map[servo.Channel]string{
	servo.ShoulderYaw:   "196", // red
	servo.ShoulderPitch: "208", // orange
	servo.ShoulderRoll:  "226", // yellow
	servo.Elbow:         "46",  // green
	servo.Wrist:         "201", // magenta
	servo.Grip:          "255", // white
	servo.HeadPan:       "51",  // cyan
	servo.HeadTilt:      "33",  // blue
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

type teleopModel struct {
	ctrl       *teleop.Controller
	chart      *streamlinechart.Model
	peer       string
	width      int
	height     int
	logs       []string
	quitting   bool
	lastValues *servo.Values
	last       teleop.State
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any channel changed since the last state
func (m *teleopModel) hasMovement(v servo.Values) bool {
	return m.lastValues == nil || *m.lastValues != v
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctrl *teleop.Controller, peer string) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 180),
	)

	for _, ch := range servo.AllChannels() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch]))
		chart.SetDataSetStyles(ch.String(), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:  ctrl,
		chart: &chart,
		peer:  peer,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.ctrl.Recalibrate()
		}

	case stateMsg:
		state := teleop.State(msg)
		m.last = state
		// Freeze the chart while idle
		if m.hasMovement(state.Values) {
			for _, ch := range servo.AllChannels() {
				m.chart.PushDataSet(ch.String(), state.Values[ch])
			}
			m.chart.DrawAll()
			v := state.Values
			m.lastValues = &v
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("VR Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - %.0f Hz", m.ctrl.Hz()))
	sb.WriteString(renderLink(m.last.Link, m.peer))
	if m.last.Head == nil && m.last.Arm == nil {
		sb.WriteString(warnStyle.Render("  waiting for poses"))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.last.Values))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'r' to recalibrate the head, 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLink(st transport.Stats, peer string) string {
	if !st.Enabled {
		return statusStyle.Render("  [networking off]")
	}
	s := fmt.Sprintf("  [%s  sent %d", peer, st.Sent)
	if st.Failed > 0 {
		s += fmt.Sprintf("  failed %d", st.Failed)
	}
	return statusStyle.Render(s + "]")
}

func renderLegend(v servo.Values) string {
	var items []string
	for _, ch := range servo.AllChannels() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch])).Bold(true)
		item := colorStyle.Render("━━") + fmt.Sprintf(" %s %.0f", ch, v[ch])
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

// apply copies the command line overrides into cfg.
func (c *TeleoperateCommand) apply(cfg *robot.Config) {
	if c.Peer != "" {
		cfg.Network.Peer = c.Peer
	}
	if c.Port != 0 {
		cfg.Network.Port = c.Port
	}
	if c.Hz != 0 {
		cfg.Teleop.UpdateHz = c.Hz
	}
	if c.Interval != 0 {
		cfg.Network.SendInterval = c.Interval
	}
	if c.HeadMode != "" {
		cfg.Head.Mode = kinematics.HeadMode(c.HeadMode)
	}
	if c.DryRun {
		cfg.Network.Enabled = false
	}
}

// openSender dials the receiver, mirroring frames to MQTT when configured.
// A failed dial leaves networking disabled instead of aborting.
func openSender(cfg *robot.Config, logger *zap.SugaredLogger) (transport.Sender, bool) {
	if !cfg.Network.Enabled {
		return nil, false
	}

	udp, err := transport.Dial(transport.UDPConfig{Peer: cfg.Network.Peer, Port: cfg.Network.Port})
	if err != nil {
		logger.Warnw("networking disabled", "error", err)
		return nil, false
	}
	if cfg.Network.MQTTTopic == "" || cfg.Pose.MQTTBroker == "" {
		return udp, true
	}

	mirror, err := transport.NewMQTTSender(transport.MQTTConfig{
		Broker: cfg.Pose.MQTTBroker,
		Topic:  cfg.Network.MQTTTopic,
	})
	if err != nil {
		logger.Warnw("frame mirror disabled", "error", err)
		return udp, true
	}
	return transport.Tee{udp, mirror}, true
}

// startPoseSources starts the websocket server and the MQTT subscriber that
// feed store. The returned function stops the MQTT subscriber.
func startPoseSources(ctx context.Context, cfg *robot.Config, store *pose.Store, logger *zap.SugaredLogger, onCommand pose.CommandFunc) (func() error, error) {
	if addr := cfg.Pose.WebSocketAddr; addr != "" {
		ws := pose.NewWebSocketServer(store, logger, onCommand)
		go func() {
			if err := ws.ListenAndServe(ctx, addr); err != nil {
				logger.Errorw("pose websocket stopped", "error", err)
			}
		}()
		logger.Infow("pose websocket listening", "addr", addr, "path", pose.DefaultWebSocketPath)
	}

	if cfg.Pose.MQTTBroker == "" {
		return func() error { return nil }, nil
	}
	src, err := pose.NewMQTTSource(pose.MQTTConfig{
		Broker:      cfg.Pose.MQTTBroker,
		TopicPrefix: cfg.Pose.MQTTPrefix,
	}, store, logger, onCommand)
	if err != nil {
		return nil, err
	}
	return src.Close, nil
}

// newTeleop wires the pose sources, the sender, the link and the controller.
// A peer that cannot be dialed leaves the link disabled; solving still runs.
// The returned function closes everything newTeleop opened.
func newTeleop(ctx context.Context, cfg *robot.Config, logger *zap.SugaredLogger) (*teleop.Controller, func() error, error) {
	store := pose.NewStore(pose.WithMaxAge(time.Duration(cfg.Pose.MaxAge * float64(time.Second))))
	agg := servo.NewAggregator()
	sender, enabled := openSender(cfg, logger.Named("link"))
	link := transport.NewLink(agg, sender, transport.LinkConfig{
		Interval: cfg.Network.Interval(),
		Enabled:  enabled,
		Logger:   logger.Named("link"),
	})

	ctrl, err := teleop.NewController(teleop.Config{
		Source:     store,
		Arm:        cfg.Arm,
		Head:       cfg.Head,
		Hz:         cfg.Teleop.UpdateHz,
		Aggregator: agg,
		Link:       link,
		Logger:     logger.Named("teleop"),
	})
	if err != nil {
		return nil, nil, multierr.Append(err, link.Close())
	}

	onCommand := func(command string) {
		if command == pose.CommandRecalibrate {
			ctrl.Recalibrate()
		}
	}
	closeSources, err := startPoseSources(ctx, cfg, store, logger.Named("pose"), onCommand)
	if err != nil {
		return nil, nil, multierr.Append(err, ctrl.Close())
	}

	return ctrl, func() error {
		return multierr.Combine(closeSources(), ctrl.Close())
	}, nil
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, !c.Headless)
	if err != nil {
		return err
	}
	defer closeLog()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, cleanup, err := newTeleop(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	done := make(chan error, 1)
	go func() { done <- ctrl.Start(ctx) }()

	if c.Headless {
		<-ctx.Done()
		return ignoreCanceled(<-done)
	}

	p := tea.NewProgram(initialTeleopModel(ctrl, cfg.Network.Peer), tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	stop()
	return ignoreCanceled(<-done)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
