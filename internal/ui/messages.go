package ui

import (
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/engine"
)

type focusState int

const (
	globalFocus focusState = iota
	tuneFocus
	stationsFocus
)

type changeFocusMsg struct{ newFocus focusState }

type snapshotMsg struct{ snap engine.Snapshot }

// actionErrorMsg reports an engine message that was rejected outright.
type actionErrorMsg struct{ err error }

type stationsLoadedMsg struct{ stations []domain.SavedStation }
type stationsErrorMsg struct{ err error }

// tuneMsg asks for a station. Saved stations replay strictly so a subchannel
// is never satisfied by its main program.
type tuneMsg struct {
	target domain.StationTarget
	strict bool
}
