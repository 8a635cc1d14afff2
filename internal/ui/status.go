package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/engine"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// metadataOrder lists the keys shown first; anything else follows sorted.
var metadataOrder = []string{"station", "title", "artist", "slogan", "sync", "bitrate", "ber", "signal", "aircraft", "frames"}

type StatusModel struct {
	width, height int
	snap          engine.Snapshot
	spinner       spinner.Model
	actionErr     error
	styles        Styles
}

func NewStatusModel(styles Styles) StatusModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = styles.Spinner
	return StatusModel{spinner: s, styles: styles}
}

func (m StatusModel) Init() tea.Cmd { return m.spinner.Tick }

func (m StatusModel) Update(msg tea.Msg) (StatusModel, tea.Cmd) {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m *StatusModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *StatusModel) SetSnapshot(snap engine.Snapshot) {
	m.snap = snap
	m.actionErr = nil
}

func (m *StatusModel) SetError(err error) { m.actionErr = err }

func (m StatusModel) stateLine() string {
	snap := m.snap
	if s, ok := snap.Active(); ok {
		style := m.styles.StateRunning
		state := s.State.String()
		if s.State == domain.Starting {
			style = m.styles.StateBusy
			state = m.spinner.View() + " " + state
		}
		target := ""
		if s.Active != nil {
			target = s.Active.String()
		}
		return lipgloss.JoinHorizontal(lipgloss.Left, style.Render(state), "  ", target)
	}
	for _, s := range snap.Sessions {
		if s.State == domain.Stopping {
			return m.styles.StateBusy.Render(m.spinner.View()+" Stopping") + "  " + s.Kind.Label()
		}
	}
	switch {
	case snap.Requested != nil && snap.Blocked:
		return m.styles.ErrorText.Render("Blocked") + "  " + snap.Requested.String()
	case snap.Requested != nil:
		return m.styles.StateBusy.Render(m.spinner.View()+" Tuning") + "  " + snap.Requested.String()
	}
	return m.styles.Muted.Render("Idle")
}

func (m StatusModel) deviceLine() string {
	if m.snap.Selected == "" {
		return m.styles.Muted.Render("No device")
	}
	for _, d := range m.snap.Devices {
		if d.Serial == m.snap.Selected {
			return fmt.Sprintf("%s %s (%s) · %s", m.styles.Label.Render("Device"), d.Label, d.Serial, d.State)
		}
	}
	return m.snap.Selected
}

func (m StatusModel) metadataLines() []string {
	s, ok := m.snap.Active()
	if !ok || len(s.Metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ia, ib := slices.Index(metadataOrder, a), slices.Index(metadataOrder, b)
		switch {
		case ia >= 0 && ib >= 0:
			return ia - ib
		case ia >= 0:
			return -1
		case ib >= 0:
			return 1
		}
		return strings.Compare(a, b)
	})

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		value := s.Metadata[k]
		if m.width > 0 {
			value = truncate(value, m.width-len(k)-2)
		}
		lines = append(lines, fmt.Sprintf("%s %s", m.styles.Label.Render(k+":"), value))
	}
	return lines
}

func (m StatusModel) View() string {
	lines := []string{m.stateLine(), m.deviceLine()}
	lines = append(lines, m.metadataLines()...)

	switch {
	case m.actionErr != nil:
		lines = append(lines, m.styles.ErrorText.Render("Error: "+m.actionErr.Error()))
	case m.snap.Error != "":
		lines = append(lines, m.styles.ErrorText.Render("Error: "+m.snap.Error))
	}

	lines = append(lines, m.styles.Muted.Render("Listened "+m.snap.ListeningTime.Truncate(time.Second).String()))

	if m.height > 0 && len(lines) > m.height {
		lines = lines[:m.height]
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
