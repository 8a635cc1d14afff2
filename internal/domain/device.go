package domain

import "fmt"

type OwnershipState int

const (
	Available OwnershipState = iota
	Connected
	InUse
)

func (s OwnershipState) String() string {
	switch s {
	case Available:
		return "Available"
	case Connected:
		return "Connected"
	case InUse:
		return "InUse"
	default:
		return "Unknown"
	}
}

func (s OwnershipState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OwnershipState) UnmarshalText(b []byte) error {
	for _, st := range []OwnershipState{Available, Connected, InUse} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown ownership state %q", b)
}

type DeviceHandle struct {
	Serial string         `json:"serial"`
	Label  string         `json:"label"`
	State  OwnershipState `json:"state"`
}
