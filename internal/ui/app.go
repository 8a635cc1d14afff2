package ui

import (
	"context"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/engine"
	"github.com/gabrielcapilla/sdrtune/internal/ports"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	MIN_WIDTH  = 60
	MIN_HEIGHT = 20

	callTimeout = 5 * time.Second
)

// Engine is what the UI needs from the engine. The UI never holds core
// state; it renders snapshots and sends messages.
type Engine interface {
	Call(ctx context.Context, msg engine.Msg) error
	Snapshot() engine.Snapshot
	RefreshDevices(ctx context.Context) error
}

type AppModel struct {
	width, height int
	eng           Engine
	snaps         <-chan engine.Snapshot
	snap          engine.Snapshot
	focus         focusState
	tabs          TabModel
	tune          TuneModel
	stations      StationsModel
	status        StatusModel
	styles        Styles
}

func InitialModel(eng Engine, store ports.StationStore, snaps <-chan engine.Snapshot) AppModel {
	styles := DefaultStyles()
	m := AppModel{
		eng:      eng,
		snaps:    snaps,
		snap:     eng.Snapshot(),
		tabs:     NewTabModel(),
		tune:     NewTuneModel(styles),
		stations: NewStationsModel(store, styles),
		status:   NewStatusModel(styles),
		styles:   styles,
	}
	m.applySnapshot(m.snap)
	return m
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.stations.Init(), m.status.Init(), waitForSnapshot(m.snaps))
}

func waitForSnapshot(snaps <-chan engine.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-snaps
		if !ok {
			return nil
		}
		return snapshotMsg{snap: snap}
	}
}

// send hands msg to the engine. Rejections come back as actionErrorMsg; the
// outcome itself arrives with the next snapshot.
func send(eng Engine, msg engine.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if err := eng.Call(ctx, msg); err != nil {
			return actionErrorMsg{err}
		}
		return nil
	}
}

func refreshDevices(eng Engine) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if err := eng.RefreshDevices(ctx); err != nil {
			return actionErrorMsg{err}
		}
		return nil
	}
}

func (m *AppModel) applySnapshot(snap engine.Snapshot) {
	m.snap = snap
	m.tabs.Sync(snap.Tab, snap.DeferredTab)
	m.tune.SetKind(snap.Tab)
	m.status.SetSnapshot(snap)
}

func (m *AppModel) setFocus(f focusState) tea.Cmd {
	m.focus = f
	m.tune.Blur()
	m.stations.Blur()
	switch f {
	case tuneFocus:
		return m.tune.Focus()
	case stationsFocus:
		m.stations.Focus()
	}
	return nil
}

// nextDevice is the serial after the selected one, wrapping around.
func (m AppModel) nextDevice() (string, bool) {
	devices := m.snap.Devices
	if len(devices) == 0 {
		return "", false
	}
	for i, d := range devices {
		if d.Serial == m.snap.Selected {
			return devices[(i+1)%len(devices)].Serial, true
		}
	}
	return devices[0].Serial, true
}

func (m AppModel) toggleConnection() tea.Cmd {
	for _, d := range m.snap.Devices {
		if d.Serial == m.snap.Selected {
			return send(m.eng, engine.ConnectDeviceMsg{Serial: d.Serial, Connect: d.State == domain.Available})
		}
	}
	return nil
}

func (m AppModel) saveActive() tea.Cmd {
	s, ok := m.snap.Active()
	if !ok || s.Active == nil {
		return nil
	}
	title := s.Metadata["station"]
	if title == "" {
		title = s.Active.String()
	}
	return m.stations.Save(domain.SavedStation{Target: *s.Active, Title: title})
}

func (m AppModel) handleGlobalKey(key tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch key.String() {
	case "q":
		return m, tea.Quit, true
	case "left", "h":
		return m, send(m.eng, engine.TabClickMsg{Kind: m.tabs.Prev()}), true
	case "right", "l":
		return m, send(m.eng, engine.TabClickMsg{Kind: m.tabs.Next()}), true
	case "i":
		cmd := m.setFocus(tuneFocus)
		return m, cmd, true
	case "tab":
		cmd := m.setFocus(stationsFocus)
		return m, cmd, true
	case "s":
		return m, send(m.eng, engine.RequestMsg{Target: nil}), true
	case "a":
		return m, m.saveActive(), true
	case "n":
		if serial, ok := m.nextDevice(); ok {
			return m, send(m.eng, engine.SelectDeviceMsg{Serial: serial}), true
		}
		return m, nil, true
	case "c":
		return m, m.toggleConnection(), true
	case "r":
		return m, refreshDevices(m.eng), true
	}
	return m, nil, false
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case snapshotMsg:
		m.applySnapshot(msg.snap)
		return m, waitForSnapshot(m.snaps)
	case actionErrorMsg:
		m.status.SetError(msg.err)
		return m, nil
	case tuneMsg:
		target := msg.target
		return m, send(m.eng, engine.RequestMsg{Target: &target, Strict: msg.strict})
	case changeFocusMsg:
		cmd = m.setFocus(msg.newFocus)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.focus {
		case globalFocus:
			if model, cmd, handled := m.handleGlobalKey(msg); handled {
				return model, cmd
			}
			return m, nil
		case tuneFocus:
			if msg.String() == "tab" {
				cmd = m.setFocus(stationsFocus)
				return m, cmd
			}
			m.tune, cmd = m.tune.Update(msg)
			return m, cmd
		case stationsFocus:
			m.stations, cmd = m.stations.Update(msg)
			return m, cmd
		}
	}

	m.stations, cmd = m.stations.Update(msg)
	cmds = append(cmds, cmd)
	m.status, cmd = m.status.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m AppModel) helpText() string {
	switch m.focus {
	case tuneFocus:
		return "[enter] tune | [tab] stations | [esc] back"
	case stationsFocus:
		return "[enter] play | [/] filter | [f] favourite | [x] mark [d] delete | [o] sort | [esc] back"
	}
	return "[←/→] band | [i] frequency | [tab] stations | [s] stop | [a] save | [n] next device | [c] connect | [r] rescan | [q] quit"
}

func (m AppModel) box(focused bool) lipgloss.Style {
	if focused {
		return m.styles.FocusedBox
	}
	return m.styles.Box
}

func (m AppModel) View() string {
	if m.width < MIN_WIDTH || m.height < MIN_HEIGHT {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, "Terminal too small")
	}

	availableWidth := m.width - m.styles.App.GetHorizontalFrameSize()
	innerWidth := availableWidth - 2

	tabsView := m.tabs.View()
	tabsHeight := lipgloss.Height(tabsView)
	tuneHeight := 1
	statusHeight := 8
	helpHeight := 1

	stationsHeight := m.height - tabsHeight - (tuneHeight + 2) - (statusHeight + 2) - helpHeight - m.styles.App.GetVerticalFrameSize() - 2
	stationsHeight = max(stationsHeight, 3)

	m.tune.SetWidth(innerWidth)
	m.stations.SetSize(innerWidth, stationsHeight)
	m.status.SetSize(innerWidth, statusHeight)

	tunePanel := m.box(m.focus == tuneFocus).Width(innerWidth).Render(m.tune.View())
	stationsPanel := m.box(m.focus == stationsFocus).Width(innerWidth).Height(stationsHeight).Render(m.stations.View())
	statusPanel := m.styles.Box.Width(innerWidth).Height(statusHeight).Render(m.status.View())
	helpView := m.styles.Help.Width(availableWidth).Render(truncate(m.helpText(), availableWidth))

	return m.styles.App.Render(lipgloss.JoinVertical(lipgloss.Left,
		tabsView,
		tunePanel,
		stationsPanel,
		statusPanel,
		helpView,
	))
}
