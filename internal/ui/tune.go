package ui

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabrielcapilla/sdrtune/internal/domain"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// frequencyInput accepts "88.5", "88.5-2", "88.5:2" and "88.5 HD2".
var frequencyInput = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:\s*[-:]?\s*(?:hd)?\s*(\d))?$`)

// parseTarget turns what the user typed on a tab into a target for that
// tab's kind. ADS-B ignores the input.
func parseTarget(kind domain.Kind, input string) (domain.StationTarget, error) {
	if kind == domain.KindADSB {
		return domain.ADSBTarget(), nil
	}

	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return domain.StationTarget{}, fmt.Errorf("enter a frequency")
	}

	m := frequencyInput.FindStringSubmatch(input)
	if m == nil {
		return domain.StationTarget{}, fmt.Errorf("%q is not a frequency", input)
	}
	freq, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.StationTarget{}, err
	}

	target := domain.StationTarget{Kind: kind, Frequency: freq}
	if m[2] != "" {
		target.Subchannel, _ = strconv.Atoi(m[2])
	}
	if err := target.Validate(); err != nil {
		return domain.StationTarget{}, err
	}
	return target, nil
}

// TuneModel is the frequency entry for the visible tab. Typing does not
// change what is playing; only enter submits.
type TuneModel struct {
	kind      domain.Kind
	textInput textinput.Model
	err       error
	styles    Styles
}

func NewTuneModel(styles Styles) TuneModel {
	ti := textinput.New()
	ti.Prompt = "Freq: "
	ti.CharLimit = 16
	ti.Width = 20

	m := TuneModel{textInput: ti, styles: styles}
	m.SetKind(domain.KindHDRadio)
	return m
}

func (m *TuneModel) SetKind(kind domain.Kind) {
	if m.kind == kind && m.textInput.Placeholder != "" {
		return
	}
	m.kind = kind
	m.err = nil
	m.textInput.SetValue("")
	switch kind {
	case domain.KindHDRadio:
		m.textInput.Placeholder = "88.5 HD1"
	case domain.KindAM:
		m.textInput.Placeholder = "740 (kHz)"
	case domain.KindADSB:
		m.textInput.Placeholder = "enter to start the decoder"
	default:
		m.textInput.Placeholder = "101.1 (MHz)"
	}
}

func (m *TuneModel) Focus() tea.Cmd { return m.textInput.Focus() }
func (m *TuneModel) Blur()          { m.textInput.Blur() }

func (m *TuneModel) SetWidth(w int) {
	m.textInput.Width = max(w-lipgloss.Width(m.textInput.Prompt)-2, 8)
}

func (m TuneModel) Update(msg tea.Msg) (TuneModel, tea.Cmd) {
	if !m.textInput.Focused() {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			return m, func() tea.Msg { return changeFocusMsg{newFocus: globalFocus} }
		case "enter":
			target, err := parseTarget(m.kind, m.textInput.Value())
			m.err = err
			if err != nil {
				return m, nil
			}
			return m, func() tea.Msg { return tuneMsg{target: target} }
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m TuneModel) View() string {
	if m.err != nil {
		return lipgloss.JoinHorizontal(lipgloss.Center, m.textInput.View(), "  ", m.styles.ErrorText.Render(m.err.Error()))
	}
	return m.textInput.View()
}
