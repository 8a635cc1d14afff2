package ui

import "github.com/charmbracelet/lipgloss"

var (
	highlightColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	mutedColor     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	errorColor     = lipgloss.Color("#FF5F87")
	okColor        = lipgloss.Color("#5FD787")
)

type Styles struct {
	App          lipgloss.Style
	Box          lipgloss.Style
	FocusedBox   lipgloss.Style
	Help         lipgloss.Style
	ErrorText    lipgloss.Style
	Muted        lipgloss.Style
	Label        lipgloss.Style
	StateRunning lipgloss.Style
	StateBusy    lipgloss.Style
	ListNormal   lipgloss.Style
	ListSelected lipgloss.Style
	ListPointer  lipgloss.Style
	Favorite     lipgloss.Style
	Spinner      lipgloss.Style
}

func DefaultStyles() Styles {
	s := Styles{}
	s.App = lipgloss.NewStyle().Padding(0, 1)
	s.Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder(), true).
		BorderForeground(mutedColor)
	s.FocusedBox = s.Box.BorderForeground(highlightColor)
	s.Help = lipgloss.NewStyle().Foreground(mutedColor)
	s.ErrorText = lipgloss.NewStyle().Foreground(errorColor)
	s.Muted = lipgloss.NewStyle().Foreground(mutedColor)
	s.Label = lipgloss.NewStyle().Bold(true).Foreground(highlightColor)
	s.StateRunning = lipgloss.NewStyle().Bold(true).Foreground(okColor)
	s.StateBusy = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD75F"))
	s.ListNormal = lipgloss.NewStyle()
	s.ListSelected = lipgloss.NewStyle().Foreground(highlightColor).Bold(true)
	s.ListPointer = lipgloss.NewStyle().Foreground(highlightColor).SetString("> ")
	s.Favorite = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F")).SetString("★ ")
	s.Spinner = lipgloss.NewStyle().Foreground(highlightColor)
	return s
}
