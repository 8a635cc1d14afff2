// Package arbiter owns the ownership state of every radio device and hands
// out exclusive leases. It is the only code allowed to change a
// DeviceHandle's State.
package arbiter

import (
	"fmt"
	"sync"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Arbiter struct {
	mu      sync.Mutex
	devices []*domain.DeviceHandle
	lease   *Lease
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Arbiter {
	return &Arbiter{log: log.With().Str("component", "arbiter").Logger()}
}

// Lease is the exclusive right to stream from one device. Release is
// idempotent.
type Lease struct {
	arb      *Arbiter
	id       string
	serial   string
	owner    domain.Kind
	released bool
}

func (l *Lease) ID() string         { return l.id }
func (l *Lease) Serial() string     { return l.serial }
func (l *Lease) Owner() domain.Kind { return l.owner }

func (l *Lease) Release() {
	if l == nil {
		return
	}
	a := l.arb
	a.mu.Lock()
	defer a.mu.Unlock()

	if l.released {
		return
	}
	l.released = true
	if a.lease == l {
		a.lease = nil
	}
	if d := a.find(l.serial); d != nil && d.State == domain.InUse {
		d.State = domain.Connected
	}
	a.log.Debug().Str("lease", l.id).Str("serial", l.serial).Stringer("owner", l.owner).Msg("Lease released")
	a.assertSingleOwner()
}

func (a *Arbiter) find(serial string) *domain.DeviceHandle {
	for _, d := range a.devices {
		if d.Serial == serial {
			return d
		}
	}
	return nil
}

func (a *Arbiter) snapshot() []domain.DeviceHandle {
	out := make([]domain.DeviceHandle, len(a.devices))
	for i, d := range a.devices {
		out[i] = *d
	}
	return out
}

// assertSingleOwner panics when more than one device is InUse. That can only
// happen through a bug in this package.
func (a *Arbiter) assertSingleOwner() {
	inUse := 0
	for _, d := range a.devices {
		if d.State == domain.InUse {
			inUse++
		}
	}
	if inUse > 1 {
		panic(fmt.Sprintf("arbiter: %d devices in use at once", inUse))
	}
	if inUse == 1 && a.lease == nil {
		panic("arbiter: device in use without a lease")
	}
}

// Refresh replaces the device set with a fresh enumeration. Devices that are
// still present keep their ownership state; new ones start Available. A
// device that disappears while leased is dropped and its lease becomes a
// no-op.
func (a *Arbiter) Refresh(handles []domain.DeviceHandle) []domain.DeviceHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := make([]*domain.DeviceHandle, 0, len(handles))
	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		if seen[h.Serial] {
			continue
		}
		seen[h.Serial] = true
		if existing := a.find(h.Serial); existing != nil {
			existing.Label = h.Label
			next = append(next, existing)
			continue
		}
		next = append(next, &domain.DeviceHandle{Serial: h.Serial, Label: h.Label, State: domain.Available})
	}

	if a.lease != nil && !seen[a.lease.serial] {
		a.log.Warn().Str("serial", a.lease.serial).Msg("Leased device disappeared")
		a.lease.released = true
		a.lease = nil
	}

	a.devices = next
	a.assertSingleOwner()
	return a.snapshot()
}

func (a *Arbiter) Devices() []domain.DeviceHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *Arbiter) Device(serial string) (domain.DeviceHandle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d := a.find(serial); d != nil {
		return *d, true
	}
	return domain.DeviceHandle{}, false
}

func (a *Arbiter) Connect(serial string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.find(serial)
	if d == nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDevice, serial)
	}
	switch d.State {
	case domain.InUse:
		return fmt.Errorf("%w: %s", domain.ErrDeviceBusy, d.Label)
	case domain.Available:
		d.State = domain.Connected
		a.log.Info().Str("serial", serial).Str("label", d.Label).Msg("Device connected")
	}
	return nil
}

func (a *Arbiter) Disconnect(serial string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.find(serial)
	if d == nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDevice, serial)
	}
	switch d.State {
	case domain.InUse:
		return fmt.Errorf("%w: can't disconnect %s while it is in use", domain.ErrDeviceBusy, d.Label)
	case domain.Connected:
		d.State = domain.Available
		a.log.Info().Str("serial", serial).Str("label", d.Label).Msg("Device disconnected")
	}
	return nil
}

// Acquire grants owner exclusive use of a Connected device.
func (a *Arbiter) Acquire(serial string, owner domain.Kind) (*Lease, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lease != nil {
		return nil, fmt.Errorf("%w: %s already holds %s", domain.ErrDeviceUnavailable, a.lease.owner.Label(), a.lease.serial)
	}
	d := a.find(serial)
	if d == nil {
		return nil, fmt.Errorf("%w: no device %q", domain.ErrDeviceUnavailable, serial)
	}
	if d.State != domain.Connected {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrDeviceUnavailable, d.Label, d.State)
	}

	d.State = domain.InUse
	l := &Lease{arb: a, id: uuid.NewString(), serial: serial, owner: owner}
	a.lease = l
	a.assertSingleOwner()

	a.log.Debug().Str("lease", l.id).Str("serial", serial).Stringer("owner", owner).Msg("Lease granted")
	return l, nil
}

// Owner returns the device currently in use and the kind holding it.
func (a *Arbiter) Owner() (domain.DeviceHandle, domain.Kind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lease == nil {
		return domain.DeviceHandle{}, 0, false
	}
	d := a.find(a.lease.serial)
	if d == nil {
		return domain.DeviceHandle{}, 0, false
	}
	return *d, a.lease.owner, true
}

// SelectDefault picks the handle the UI should preselect: the one in use,
// else the first connected, else the first available.
func SelectDefault(handles []domain.DeviceHandle) (domain.DeviceHandle, bool) {
	for _, want := range []domain.OwnershipState{domain.InUse, domain.Connected, domain.Available} {
		for _, h := range handles {
			if h.State == want {
				return h, true
			}
		}
	}
	return domain.DeviceHandle{}, false
}
