package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/vrteleop/pkg/kinematics"
	"github.com/gwillem/vrteleop/pkg/robot"
	"github.com/gwillem/vrteleop/pkg/servo"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Scan bool `long:"scan" description:"Scan serial ports for bus servos and record their range of motion"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("VR Teleop Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := askNetwork(cfg); err != nil {
		return err
	}

	if c.Scan || cfg.Receiver.Driver == robot.DriverFeetech {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Bus Servos ━━━"))
		fmt.Println()
		if err := setupBus(cfg); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(renderConfigTable(cfg))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("On the robot run:    " + headerStyle.Render("vrteleop receive"))
	fmt.Println("On this machine run: " + headerStyle.Render("vrteleop teleoperate"))

	return nil
}

// askNetwork fills the link, head and driver settings from a form.
func askNetwork(cfg *robot.Config) error {
	port := strconv.Itoa(cfg.Network.Port)
	mode := string(cfg.Head.Mode)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Robot address").
				Description("IPv4 address of the machine running 'vrteleop receive'").
				Value(&cfg.Network.Peer).
				Validate(validateIPv4),
			huh.NewInput().
				Title("UDP port").
				Value(&port).
				Validate(validatePort),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Head tracking").
				Options(
					huh.NewOption("Relative (recalibrate to look ahead)", string(kinematics.HeadRelative)),
					huh.NewOption("Absolute (world forward)", string(kinematics.HeadAbsolute)),
				).
				Value(&mode),
			huh.NewSelect[string]().
				Title("Servo driver on the robot").
				Options(
					huh.NewOption("PCA9685 PWM board", robot.DriverPCA9685),
					huh.NewOption("Feetech bus servos", robot.DriverFeetech),
					huh.NewOption("Log only (no hardware)", robot.DriverLog),
				).
				Value(&cfg.Receiver.Driver),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Network.Port, _ = strconv.Atoi(port)
	cfg.Head.Mode = kinematics.HeadMode(mode)
	return nil
}

func validateIPv4(s string) error {
	if ip := net.ParseIP(s); ip == nil || ip.To4() == nil {
		return fmt.Errorf("not an IPv4 address")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}

// setupBus picks the serial port with the servos and records their range.
func setupBus(cfg *robot.Config) error {
	fmt.Println("Scanning for bus servos...")
	fmt.Println()

	buses := findBuses()
	if len(buses) == 0 {
		fmt.Println("No bus servos found. Check power and cabling.")
		return nil
	}

	chosen := buses[0]
	if len(buses) > 1 {
		var options []huh.Option[int]
		for i, b := range buses {
			options = append(options, huh.NewOption(fmt.Sprintf("%s (%d servos)", b.port, len(b.servos)), i))
		}
		var idx int
		err := huh.NewSelect[int]().
			Title("Which port drives the robot?").
			Options(options...).
			Value(&idx).
			Run()
		if err != nil {
			closeBuses(buses)
			return err
		}
		chosen = buses[idx]
	}
	for _, b := range buses {
		if b.port != chosen.port {
			b.bus.Close()
		}
	}
	defer chosen.bus.Close()

	cfg.Receiver.Driver = robot.DriverFeetech
	cfg.Receiver.Port = chosen.port

	cal, err := calibrateBus(chosen)
	if err != nil {
		return err
	}
	cfg.Receiver.Calibration = cal
	return nil
}

type busInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func findBuses() []busInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var buses []busInfo

	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, servo.NumChannels)
		cancel()

		if err != nil || len(servos) == 0 {
			bus.Close()
			continue
		}

		fmt.Printf("  Found %d servo(s) on %s\n", len(servos), port)
		buses = append(buses, busInfo{port: port, servos: servos, bus: bus})
	}

	return buses
}

func closeBuses(buses []busInfo) {
	for _, b := range buses {
		b.bus.Close()
	}
}

// calibrateBus maps found servo IDs onto channels in wire order and records
// each one's range while the user moves the joints by hand.
func calibrateBus(b busInfo) (robot.Calibration, error) {
	ctx := context.Background()

	servoMap := make(map[servo.Channel]*feetech.Servo)
	for _, s := range b.servos {
		ch := servo.Channel(s.ID - 1)
		if ch < 0 || int(ch) >= servo.NumChannels {
			continue
		}
		servoMap[ch] = feetech.NewServo(b.bus, s.ID, s.Model)
	}

	// Disable torque so the joints move freely
	for _, s := range servoMap {
		s.Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	model := newCalibrationModel(servoMap)
	for ch, s := range servoMap {
		pos, err := s.Position(ctx)
		if err != nil {
			continue
		}
		model.cur[ch], model.min[ch], model.max[ch] = pos, pos, pos
	}

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	cm := final.(calibrationModel)

	cal := make(robot.Calibration, len(servoMap))
	for _, s := range b.servos {
		ch := servo.Channel(s.ID - 1)
		if _, ok := servoMap[ch]; !ok {
			continue
		}
		cal[ch] = robot.MotorCalibration{
			ID:       s.ID,
			RangeMin: cm.min[ch],
			RangeMax: cm.max[ch],
		}
	}
	return cal, nil
}

func renderConfigTable(cfg *robot.Config) string {
	rows := [][]string{
		{"peer", fmt.Sprintf("%s:%d", cfg.Network.Peer, cfg.Network.Port)},
		{"send interval", fmt.Sprintf("%gs", cfg.Network.SendInterval)},
		{"head mode", string(cfg.Head.Mode)},
		{"driver", cfg.Receiver.Driver},
	}
	if cfg.Receiver.Driver == robot.DriverFeetech {
		rows = append(rows, []string{"serial port", cfg.Receiver.Port})
		for _, ch := range servo.AllChannels() {
			if c, ok := cfg.Receiver.Calibration[ch]; ok {
				rows = append(rows, []string{ch.String(), fmt.Sprintf("id %d  %d-%d", c.ID, c.RangeMin, c.RangeMax)})
			}
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

// Calibration TUI model
type calibrationModel struct {
	servoMap map[servo.Channel]*feetech.Servo
	cur      map[servo.Channel]int
	min      map[servo.Channel]int
	max      map[servo.Channel]int
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(servoMap map[servo.Channel]*feetech.Servo) calibrationModel {
	return calibrationModel{
		servoMap: servoMap,
		cur:      make(map[servo.Channel]int),
		min:      make(map[servo.Channel]int),
		max:      make(map[servo.Channel]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for ch, s := range m.servoMap {
			pos, err := s.Position(ctx)
			if err != nil {
				continue
			}
			m.cur[ch] = pos
			if pos < m.min[ch] {
				m.min[ch] = pos
			}
			if pos > m.max[ch] {
				m.max[ch] = pos
			}
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableChannelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	var rows [][]string
	var ranges []int
	for _, ch := range servo.AllChannels() {
		if _, ok := m.servoMap[ch]; !ok {
			continue
		}
		rangeSize := m.max[ch] - m.min[ch]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			ch.String(),
			strconv.Itoa(m.cur[ch]),
			strconv.Itoa(m.min[ch]),
			strconv.Itoa(m.max[ch]),
			strconv.Itoa(rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Channel", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableChannelStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
