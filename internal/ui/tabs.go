package ui

import (
	"github.com/gabrielcapilla/sdrtune/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

func tabBorderWithBottom(left, middle, right string) lipgloss.Border {
	border := lipgloss.RoundedBorder()
	border.BottomLeft = left
	border.Bottom = middle
	border.BottomRight = right
	return border
}

var (
	inactiveTabBorder = tabBorderWithBottom("┴", "─", "┴")
	activeTabBorder   = tabBorderWithBottom("┘", " ", "└")
	inactiveTabStyle  = lipgloss.NewStyle().Border(inactiveTabBorder, true).BorderForeground(highlightColor).Padding(0, 1)
	activeTabStyle    = inactiveTabStyle.Border(activeTabBorder, true)
	pendingTabStyle   = inactiveTabStyle.Italic(true)
)

// TabModel mirrors the engine's tab state. Clicks are only requests; the
// visible tab changes when a snapshot says so.
type TabModel struct {
	Kinds    []domain.Kind
	Active   domain.Kind
	Deferred *domain.Kind
}

func NewTabModel() TabModel {
	return TabModel{Kinds: domain.Kinds, Active: domain.KindHDRadio}
}

func (m *TabModel) Sync(active domain.Kind, deferred *domain.Kind) {
	m.Active = active
	m.Deferred = deferred
}

func (m TabModel) index() int {
	for i, k := range m.Kinds {
		if k == m.Active {
			return i
		}
	}
	return 0
}

// Next is the kind to the right of the visible tab, wrapping around.
func (m TabModel) Next() domain.Kind {
	return m.Kinds[(m.index()+1)%len(m.Kinds)]
}

func (m TabModel) Prev() domain.Kind {
	i := m.index() - 1
	if i < 0 {
		i = len(m.Kinds) - 1
	}
	return m.Kinds[i]
}

func (m TabModel) View() string {
	var renderedTabs []string

	for _, k := range m.Kinds {
		label := k.Label()
		var style lipgloss.Style
		switch {
		case k == m.Active:
			style = activeTabStyle
		case m.Deferred != nil && *m.Deferred == k:
			style = pendingTabStyle
			label += " …"
		default:
			style = inactiveTabStyle
		}
		renderedTabs = append(renderedTabs, style.Render(label))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}
