package engine

import (
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
)

// Msg is anything the engine goroutine consumes from its queue.
type Msg interface{}

// RequestMsg asks for a station, or for silence when Target is nil. Strict
// requests, such as replaying a saved station, need an exact subchannel match.
type RequestMsg struct {
	Target *domain.StationTarget
	Strict bool
}

type TabClickMsg struct{ Kind domain.Kind }

type DevicesMsg struct{ Handles []domain.DeviceHandle }

type SelectDeviceMsg struct{ Serial string }

type ConnectDeviceMsg struct {
	Serial  string
	Connect bool
}

type BackendEventMsg struct{ Event ports.Event }

// TickMsg accounts listening time.
type TickMsg struct{ Elapsed time.Duration }

type call struct {
	msg   Msg
	reply chan error
}
