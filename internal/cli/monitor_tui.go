package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arloliu/go-sbus/coordinator"
	"github.com/arloliu/go-sbus/pcd"
)

// Messages
type (
	snapshotMsg struct{ snap *coordinator.Snapshot }
	tickErrMsg  struct{ err error }
	infoMsg     struct{ info pcd.DeviceInfo }
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle   = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))
)

// monitorModel is the bubbletea model behind sbusctl monitor.
type monitorModel struct {
	device   string
	endpoint string

	info    *pcd.DeviceInfo
	table   table.Model
	last    time.Time
	lastErr error

	updates  int
	failures int
}

func newMonitorModel(device, endpoint string) monitorModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Object", Width: 8},
			{Title: "Address", Width: 8},
			{Title: "Value", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return monitorModel{device: device, endpoint: endpoint, table: t}
}

func (m monitorModel) Init() tea.Cmd {
	return nil
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		// title, info, status, help and the box borders
		m.table.SetHeight(max(3, msg.Height-9))

	case infoMsg:
		info := msg.info
		m.info = &info

		return m, nil

	case snapshotMsg:
		rows := snapshotRows(msg.snap)
		tableRows := make([]table.Row, len(rows))
		for i, r := range rows {
			tableRows[i] = table.Row{r.object, strconv.Itoa(r.address), r.value}
		}
		m.table.SetRows(tableRows)
		m.last = msg.snap.Time
		m.lastErr = nil
		m.updates++

		return m, nil

	case tickErrMsg:
		m.lastErr = msg.err
		m.failures++

		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sbusctl monitor: " + m.device))
	b.WriteString(" " + helpStyle.Render(m.endpoint) + "\n")

	if m.info != nil {
		fmt.Fprintf(&b, "%s %s  %s %s  %s %s\n",
			labelStyle.Render("Product"), valueStyle.Render(m.info.ProductType),
			labelStyle.Render("Firmware"), valueStyle.Render(m.info.FirmwareVersionString),
			labelStyle.Render("Serial"), valueStyle.Render(m.info.SerialNumber))
	} else {
		b.WriteString(helpStyle.Render("reading device info...") + "\n")
	}

	b.WriteString(boxStyle.Render(m.table.View()) + "\n")

	status := "waiting for first poll"
	if !m.last.IsZero() {
		status = fmt.Sprintf("last update %s, %d updates, %d failures",
			m.last.Format("15:04:05"), m.updates, m.failures)
	}
	b.WriteString(labelStyle.Render("Status") + " " + status + "\n")
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("Error: "+m.lastErr.Error()) + "\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ scroll • q quit"))

	return b.String()
}
