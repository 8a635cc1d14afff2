package engine

import (
	"errors"
	"fmt"

	"github.com/gabrielcapilla/sdrtune/internal/arbiter"
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/session"
	"github.com/rs/zerolog"
)

// maxStartFailures is how many consecutive transient start errors for the
// same target are tolerated before the request is dropped.
const maxStartFailures = 2

var errNoDevice = errors.New("no device selected")

// Controller converges the sessions on the requested target. It never
// starts one session before every other has stopped, and it never has more
// than one verb in flight.
type Controller struct {
	sessions map[domain.Kind]*session.Session
	arb      *arbiter.Arbiter
	log      zerolog.Logger

	requested *domain.StationTarget
	strict    bool
	pending   bool
	blocked   bool
	selected  string
	failures  int
	lastErr   string
}

func NewController(arb *arbiter.Arbiter, sessions map[domain.Kind]*session.Session, log zerolog.Logger) *Controller {
	return &Controller{
		sessions: sessions,
		arb:      arb,
		log:      log.With().Str("component", "controller").Logger(),
	}
}

func (c *Controller) Requested() *domain.StationTarget {
	if c.requested == nil {
		return nil
	}
	t := *c.requested
	return &t
}

func (c *Controller) Pending() bool    { return c.pending }
func (c *Controller) Blocked() bool    { return c.blocked }
func (c *Controller) Selected() string { return c.selected }
func (c *Controller) Err() string      { return c.lastErr }

// Request replaces the requested target. A nil target asks for silence.
// With strict set, a running station only satisfies the request when every
// field matches, so an HD Radio subchannel is never folded into its main
// program.
func (c *Controller) Request(target *domain.StationTarget, strict bool) error {
	if target != nil {
		if err := target.Validate(); err != nil {
			return err
		}
		t := *target
		target = &t
	}

	if !domain.Equal(c.requested, target, true) {
		c.failures = 0
	}
	c.requested = target
	c.strict = strict && target != nil
	c.blocked = false
	c.lastErr = ""
	c.log.Debug().Interface("requested", target).Msg("Request")

	c.Reconcile()
	return nil
}

// Select makes serial the device new sessions start on.
func (c *Controller) Select(serial string) error {
	if _, ok := c.arb.Device(serial); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDevice, serial)
	}
	c.selected = serial
	c.blocked = false
	c.Reconcile()
	return nil
}

// Retry clears a block after a device-level change and reconciles again.
func (c *Controller) Retry() {
	c.blocked = false
	c.Reconcile()
}

// DevicesRefreshed applies a new enumeration. The current selection is kept
// while its device is still present; otherwise the default policy picks one.
func (c *Controller) DevicesRefreshed(handles []domain.DeviceHandle) {
	handles = c.arb.Refresh(handles)

	keep := false
	for _, h := range handles {
		if h.Serial == c.selected {
			keep = true
			break
		}
	}
	if !keep {
		c.selected = ""
		if h, ok := arbiter.SelectDefault(handles); ok {
			c.selected = h.Serial
		}
	}

	c.blocked = false
	c.Reconcile()
}

// SessionChanged applies the retry and give-up policy for a session that
// stopped on its own or failed to start.
func (c *Controller) SessionChanged(kind domain.Kind, ch session.Change) {
	if !ch.Changed() {
		return
	}
	ours := ch.Target != nil && domain.Equal(c.requested, ch.Target, c.strict)

	switch {
	case ch.To == domain.Running:
		c.failures = 0

	case ch.Failure != nil && ch.From == domain.Starting:
		if !ours {
			break
		}
		if errors.Is(ch.Failure, domain.ErrBackendFatal) {
			c.log.Warn().Err(ch.Failure).Msg("Dropping request after fatal start error")
			c.requested = nil
			c.failures = 0
			break
		}
		c.failures++
		if c.failures >= maxStartFailures {
			c.log.Warn().Err(ch.Failure).Int("failures", c.failures).Msg("Dropping request after repeated start errors")
			c.sessions[kind].SetError(ch.Failure)
			c.requested = nil
			c.failures = 0
			break
		}
		c.log.Info().Err(ch.Failure).Msg("Retrying start")

	case ch.Unsolicited:
		if ours {
			c.log.Info().Stringer("kind", kind).Msg("Session ended on its own, clearing request")
			c.requested = nil
		}
	}
}

func (c *Controller) inFlight() bool {
	for _, s := range c.sessions {
		if s.State() == domain.Starting || s.State() == domain.Stopping {
			return true
		}
	}
	return false
}

func (c *Controller) running() *session.Session {
	for _, k := range domain.Kinds {
		if s, ok := c.sessions[k]; ok && s.State() == domain.Running {
			return s
		}
	}
	return nil
}

// Reconcile moves the sessions one step towards the requested target. It is
// level-triggered and is called after every request, transition, event and
// device refresh.
func (c *Controller) Reconcile() {
	c.pending = c.inFlight()
	if c.pending {
		return
	}

	var current *domain.StationTarget
	active := c.running()
	if active != nil {
		current = active.Target()
	}

	if domain.Equal(current, c.requested, c.strict) {
		return
	}

	if active != nil {
		if err := active.Stop(); err != nil {
			c.log.Error().Err(err).Stringer("kind", active.Kind()).Msg("Stop refused")
			return
		}
		c.pending = true
		return
	}

	if c.requested == nil || c.blocked {
		return
	}
	c.start(*c.requested)
}

func (c *Controller) start(target domain.StationTarget) {
	if c.selected == "" {
		c.block(errNoDevice)
		return
	}
	if d, ok := c.arb.Device(c.selected); ok && d.State == domain.Available {
		if err := c.arb.Connect(c.selected); err != nil {
			c.block(err)
			return
		}
	}

	s := c.sessions[target.Kind]
	err := s.Start(target, c.selected)
	switch {
	case err == nil:
		c.pending = true
	case errors.Is(err, domain.ErrDeviceUnavailable):
		c.block(err)
	default:
		c.log.Error().Err(err).Stringer("target", target).Msg("Start rejected")
		c.lastErr = err.Error()
		c.requested = nil
	}
}

func (c *Controller) block(err error) {
	c.blocked = true
	c.lastErr = err.Error()
	c.log.Warn().Err(err).Msg("Reconciliation blocked")
}
