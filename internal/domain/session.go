package domain

import "fmt"

// LifecycleState of a stream session.
type LifecycleState int

const (
	Stopped LifecycleState = iota
	Starting
	Running
	Stopping
)

func (s LifecycleState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LifecycleState) UnmarshalText(b []byte) error {
	for _, st := range []LifecycleState{Stopped, Starting, Running, Stopping} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown lifecycle state %q", b)
}

// IsActive reports whether the session holds, or is about to hold, the device
// for streaming.
func (s LifecycleState) IsActive() bool {
	return s == Starting || s == Running
}

type SessionSnapshot struct {
	Kind      Kind              `json:"kind"`
	State     LifecycleState    `json:"state"`
	Active    *StationTarget    `json:"active,omitempty"`
	Confirmed bool              `json:"confirmed"`
	LastError string            `json:"lastError,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
