package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var sortOrder = []domain.SortOption{
	domain.SortFavorites,
	domain.SortAlphaAsc,
	domain.SortAlphaDesc,
	domain.SortFreqAsc,
	domain.SortFreqDesc,
	domain.SortStationType,
}

type componentFocus int

const (
	filterFocus componentFocus = iota
	listFocus
)

type stationItem struct{ station domain.SavedStation }

func (i stationItem) FilterValue() string { return i.station.Title + " " + i.station.Target.String() }
func (i stationItem) ID() string          { return i.station.Target.String() }

type stationDelegate struct {
	styles            Styles
	markedForDeletion map[string]struct{}
}

func (d stationDelegate) Height() int                               { return 1 }
func (d stationDelegate) Spacing() int                              { return 0 }
func (d stationDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d stationDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	si, ok := item.(stationItem)
	if !ok {
		return
	}

	itemStyle := d.styles.ListNormal
	pointer := "  "
	if index == m.Index() {
		itemStyle = d.styles.ListSelected
		pointer = d.styles.ListPointer.String()
	}

	var line strings.Builder
	if _, isMarked := d.markedForDeletion[si.ID()]; isMarked {
		line.WriteString("x ")
		itemStyle = itemStyle.Strikethrough(true).Faint(true)
	} else if si.station.IsFavorite {
		line.WriteString(d.styles.Favorite.String())
	}
	line.WriteString(fmt.Sprintf("%s  %s", si.station.Title, d.styles.Muted.Render(si.station.Target.String())))

	text := line.String()
	if m.Width() > 0 {
		text = truncate(text, m.Width()-lipgloss.Width(pointer))
	}
	fmt.Fprint(w, itemStyle.Render(pointer+text))
}

// StationsModel lists saved stations with a filter box. Enter replays the
// selected station, x marks for deletion, d deletes the marked ones, f
// toggles favourite and o cycles the sort order.
type StationsModel struct {
	store             ports.StationStore
	styles            Styles
	focus             componentFocus
	textInput         textinput.Model
	resultsList       list.Model
	spinner           spinner.Model
	isLoading         bool
	err               error
	sort              int
	fullList          []list.Item
	markedForDeletion map[string]struct{}
}

func NewStationsModel(store ports.StationStore, styles Styles) StationsModel {
	m := StationsModel{
		store:             store,
		styles:            styles,
		focus:             listFocus,
		isLoading:         true,
		markedForDeletion: make(map[string]struct{}),
	}

	ti := textinput.New()
	ti.Placeholder = "Filter stations..."
	ti.Prompt = "/ "
	m.textInput = ti

	delegate := stationDelegate{
		styles:            styles,
		markedForDeletion: m.markedForDeletion,
	}
	li := list.New([]list.Item{}, delegate, 0, 0)
	li.SetShowTitle(false)
	li.SetShowStatusBar(false)
	li.SetShowPagination(false)
	li.SetShowHelp(false)
	li.SetFilteringEnabled(false)
	m.resultsList = li

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner
	m.spinner = s

	return m
}

func (m StationsModel) sortOption() domain.SortOption { return sortOrder[m.sort] }

func (m StationsModel) fetch() tea.Msg {
	stations, err := m.store.List(m.sortOption())
	if err != nil {
		return stationsErrorMsg{err}
	}
	return stationsLoadedMsg{stations}
}

func (m StationsModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m *StationsModel) Focus() {
	m.focus = listFocus
}

func (m *StationsModel) Blur() {
	m.focus = listFocus
	m.textInput.Blur()
}

func (m *StationsModel) SetSize(w, h int) {
	m.textInput.Width = w - 4
	m.resultsList.SetSize(w, max(h-2, 1))
}

// Save stores the given station and reloads the list.
func (m StationsModel) Save(station domain.SavedStation) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.Save(station); err != nil {
			return stationsErrorMsg{err}
		}
		return m.fetch()
	}
}

func (m StationsModel) applyFilter() tea.Cmd {
	term := strings.ToLower(m.textInput.Value())
	if term == "" {
		return m.resultsList.SetItems(m.fullList)
	}
	var filtered []list.Item
	for _, item := range m.fullList {
		if strings.Contains(strings.ToLower(item.FilterValue()), term) {
			filtered = append(filtered, item)
		}
	}
	return m.resultsList.SetItems(filtered)
}

func (m StationsModel) deleteMarked() tea.Cmd {
	var doomed []domain.SavedStation
	for _, item := range m.fullList {
		si := item.(stationItem)
		if _, ok := m.markedForDeletion[si.ID()]; ok {
			doomed = append(doomed, si.station)
		}
	}
	return func() tea.Msg {
		for _, s := range doomed {
			if err := m.store.Remove(s); err != nil {
				return stationsErrorMsg{err}
			}
		}
		return m.fetch()
	}
}

func (m StationsModel) toggleFavorite(s domain.SavedStation) tea.Cmd {
	updated := s
	updated.IsFavorite = !s.IsFavorite
	return func() tea.Msg {
		if err := m.store.Update(s, updated); err != nil {
			return stationsErrorMsg{err}
		}
		return m.fetch()
	}
}

func (m StationsModel) Update(msg tea.Msg) (StationsModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case stationsLoadedMsg:
		m.isLoading = false
		m.err = nil
		clear(m.markedForDeletion)
		items := make([]list.Item, len(msg.stations))
		for i, s := range msg.stations {
			items[i] = stationItem{station: s}
		}
		m.fullList = items
		return m, m.applyFilter()
	case stationsErrorMsg:
		m.isLoading = false
		m.err = msg.err
		return m, nil
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.focus == filterFocus {
		switch key.String() {
		case "esc", "tab", "enter":
			m.focus = listFocus
			m.textInput.Blur()
			return m, nil
		}
		m.textInput, cmd = m.textInput.Update(msg)
		return m, tea.Batch(cmd, m.applyFilter())
	}

	switch key.String() {
	case "esc":
		return m, func() tea.Msg { return changeFocusMsg{newFocus: globalFocus} }
	case "/":
		m.focus = filterFocus
		return m, m.textInput.Focus()
	case "enter":
		if si, ok := m.resultsList.SelectedItem().(stationItem); ok {
			return m, func() tea.Msg { return tuneMsg{target: si.station.Target, strict: true} }
		}
		return m, nil
	case "x":
		if si, ok := m.resultsList.SelectedItem().(stationItem); ok {
			if _, isMarked := m.markedForDeletion[si.ID()]; isMarked {
				delete(m.markedForDeletion, si.ID())
			} else {
				m.markedForDeletion[si.ID()] = struct{}{}
			}
			return m, m.resultsList.SetItems(m.resultsList.Items())
		}
		return m, nil
	case "d":
		if len(m.markedForDeletion) > 0 {
			return m, m.deleteMarked()
		}
		return m, nil
	case "f":
		if si, ok := m.resultsList.SelectedItem().(stationItem); ok {
			return m, m.toggleFavorite(si.station)
		}
		return m, nil
	case "o":
		m.sort = (m.sort + 1) % len(sortOrder)
		return m, m.fetch
	}

	m.resultsList, cmd = m.resultsList.Update(msg)
	return m, cmd
}

func (m StationsModel) View() string {
	header := m.styles.Muted.Render(fmt.Sprintf("Saved stations · sort: %s", m.sortOption()))

	var body string
	switch {
	case m.isLoading:
		body = m.spinner.View() + " Loading..."
	case m.err != nil:
		body = m.styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err))
	case len(m.fullList) == 0:
		body = m.styles.Muted.Render("No saved stations. Press a while listening to save one.")
	default:
		body = m.resultsList.View()
	}

	if m.focus == filterFocus || m.textInput.Value() != "" {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.textInput.View(), body)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}
