package ports

import "github.com/gabrielcapilla/sdrtune/internal/domain"

type EventType int

const (
	EventStatus EventType = iota
	EventError
	EventMetadata
	EventAck
)

func (t EventType) String() string {
	switch t {
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	case EventMetadata:
		return "metadata"
	case EventAck:
		return "ack"
	default:
		return "unknown"
	}
}

type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

type Verb string

const (
	VerbStart Verb = "start"
	VerbStop  Verb = "stop"
)

// Event is one message from the backend, always tagged with the stream kind
// it belongs to. Ack events are verb completions; Verb says which one. An
// error event with a Verb is the failed completion of that verb, without one
// it is an unsolicited failure.
type Event struct {
	Kind     domain.Kind
	Type     EventType
	Status   Status
	Verb     Verb
	Err      string
	Fatal    bool
	Metadata map[string]string
	// CommandID correlates a completion with the command that produced it.
	CommandID string
}

func StatusEvent(kind domain.Kind, status Status) Event {
	return Event{Kind: kind, Type: EventStatus, Status: status}
}

func MetadataEvent(kind domain.Kind, metadata map[string]string) Event {
	return Event{Kind: kind, Type: EventMetadata, Metadata: metadata}
}

func FatalEvent(kind domain.Kind, msg string) Event {
	return Event{Kind: kind, Type: EventError, Err: msg, Fatal: true}
}
