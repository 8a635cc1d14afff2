// Package session holds the lifecycle of one stream kind. A Session is not
// safe for concurrent use; the engine goroutine owns all of them.
package session

import (
	"errors"
	"fmt"
	"maps"

	"github.com/gabrielcapilla/sdrtune/internal/arbiter"
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/rs/zerolog"
)

// ErrTransitionInFlight is returned by Stop while a start has not settled.
var ErrTransitionInFlight = errors.New("transition in flight")

// Commander sends verbs to the backend without waiting for them. The
// returned id comes back on the completion event.
type Commander interface {
	SendStart(kind domain.Kind, target domain.StationTarget, serial string) string
	SendStop(kind domain.Kind) string
}

type Acquirer interface {
	Acquire(serial string, owner domain.Kind) (*arbiter.Lease, error)
}

// Change describes what a call did to the session.
type Change struct {
	From domain.LifecycleState
	To   domain.LifecycleState
	// Target is the station the session held before the change.
	Target *domain.StationTarget
	// Failure is set when the session stopped because of an error. It wraps
	// domain.ErrBackendStart or domain.ErrBackendFatal.
	Failure error
	// Unsolicited is set when the session stopped without being asked to.
	Unsolicited bool
}

func (c Change) Changed() bool { return c.From != c.To }

type Session struct {
	kind       domain.Kind
	state      domain.LifecycleState
	target     *domain.StationTarget
	draining   *domain.StationTarget
	last       *domain.StationTarget
	confirmed  bool
	lease      *arbiter.Lease
	pendingCmd string
	lastErr    string
	metadata   map[string]string

	arb Acquirer
	cmd Commander
	log zerolog.Logger
}

func New(kind domain.Kind, arb Acquirer, cmd Commander, log zerolog.Logger) *Session {
	return &Session{
		kind:     kind,
		arb:      arb,
		cmd:      cmd,
		metadata: map[string]string{},
		log:      log.With().Stringer("kind", kind).Logger(),
	}
}

func (s *Session) Kind() domain.Kind            { return s.kind }
func (s *Session) State() domain.LifecycleState { return s.state }

// Confirmed reports whether the backend has acknowledged the current
// activity, either by a "starting" status or by reaching Running.
func (s *Session) Confirmed() bool { return s.confirmed }

// Target is the station being started or played. It is nil when Stopped and
// while Stopping.
func (s *Session) Target() *domain.StationTarget {
	if s.target == nil {
		return nil
	}
	t := *s.target
	return &t
}

// Draining is the station being stopped, set only while Stopping.
func (s *Session) Draining() *domain.StationTarget {
	if s.draining == nil {
		return nil
	}
	t := *s.draining
	return &t
}

// Start asks the backend to stream target from the device with the given
// serial. Starting the station that is already starting or playing does
// nothing.
func (s *Session) Start(target domain.StationTarget, serial string) error {
	if target.Kind != s.kind {
		return fmt.Errorf("%w: %s session can't play %s", domain.ErrInvalidTarget, s.kind.Label(), target.Kind.Label())
	}
	if err := target.Validate(); err != nil {
		return err
	}

	switch s.state {
	case domain.Starting, domain.Running:
		if domain.Equal(s.target, &target, false) {
			return nil
		}
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionBusy, s.kind.Label(), s.state)
	case domain.Stopping:
		return fmt.Errorf("%w: %s is stopping", domain.ErrSessionBusy, s.kind.Label())
	}

	lease, err := s.arb.Acquire(serial, s.kind)
	if err != nil {
		s.lastErr = err.Error()
		return err
	}

	if !domain.Equal(s.last, &target, false) {
		s.metadata = map[string]string{}
	}
	s.last = &target
	s.lease = lease
	s.state = domain.Starting
	s.target = &target
	s.draining = nil
	s.confirmed = false
	s.lastErr = ""
	s.pendingCmd = s.cmd.SendStart(s.kind, target, serial)

	s.log.Info().Stringer("target", target).Str("lease", lease.ID()).Msg("Session starting")
	return nil
}

// Stop asks the backend to stop a Running stream. It is a no-op when the
// session is already stopped or stopping.
func (s *Session) Stop() error {
	switch s.state {
	case domain.Stopped, domain.Stopping:
		return nil
	case domain.Starting:
		return fmt.Errorf("%w: %s start not settled", ErrTransitionInFlight, s.kind.Label())
	}

	s.state = domain.Stopping
	s.draining = s.target
	s.target = nil
	s.pendingCmd = s.cmd.SendStop(s.kind)

	s.log.Info().Msg("Session stopping")
	return nil
}

// SetError records an error to show the user without changing state.
func (s *Session) SetError(err error) {
	if err == nil {
		s.lastErr = ""
		return
	}
	s.lastErr = err.Error()
}

// HandleEvent applies one backend event. It returns false when the event was
// dropped, which happens for every event while Stopped, for metadata while
// Stopping and for completions of commands that are no longer pending.
func (s *Session) HandleEvent(ev ports.Event) (Change, bool) {
	ch := Change{From: s.state, To: s.state, Target: s.Target()}
	if ch.Target == nil {
		ch.Target = s.Draining()
	}
	if s.state == domain.Stopped {
		return ch, false
	}
	if s.state == domain.Stopping && ev.Type == ports.EventMetadata {
		return ch, false
	}
	if ev.Verb != "" && ev.CommandID != "" && ev.CommandID != s.pendingCmd {
		return ch, false
	}

	switch ev.Type {
	case ports.EventAck:
		s.handleAck(ev.Verb)
	case ports.EventStatus:
		ch.Unsolicited = s.handleStatus(ev.Status)
	case ports.EventError:
		ch.Unsolicited, ch.Failure = s.handleError(ev)
	case ports.EventMetadata:
		maps.Copy(s.metadata, ev.Metadata)
	}

	ch.To = s.state
	return ch, true
}

func (s *Session) handleAck(verb ports.Verb) {
	switch {
	case verb == ports.VerbStart && s.state == domain.Starting:
		s.running()
	case verb == ports.VerbStop && s.state == domain.Stopping:
		s.stopped()
	}
}

func (s *Session) handleStatus(status ports.Status) bool {
	switch status {
	case ports.StatusStarting:
		if s.state == domain.Starting {
			s.confirmed = true
		}
	case ports.StatusRunning:
		if s.state == domain.Starting {
			s.running()
		}
	case ports.StatusStopped:
		unsolicited := s.state != domain.Stopping
		if unsolicited {
			s.log.Warn().Stringer("state", s.state).Msg("Backend stopped on its own")
		}
		s.stopped()
		return unsolicited
	}
	return false
}

func (s *Session) handleError(ev ports.Event) (bool, error) {
	switch {
	case ev.Verb == ports.VerbStart && s.state == domain.Starting:
		sentinel := domain.ErrBackendStart
		if ev.Fatal {
			sentinel = domain.ErrBackendFatal
		}
		err := fmt.Errorf("%w: %s", sentinel, ev.Err)
		if ev.Fatal {
			s.lastErr = err.Error()
		}
		s.log.Warn().Err(err).Msg("Start failed")
		s.stopped()
		return false, err

	case ev.Verb == ports.VerbStop && s.state == domain.Stopping:
		// A failed stop still leaves no stream behind.
		s.log.Warn().Str("error", ev.Err).Msg("Stop failed")
		s.stopped()
		return false, nil

	case ev.Fatal:
		err := fmt.Errorf("%w: %s", domain.ErrBackendFatal, ev.Err)
		s.lastErr = err.Error()
		s.log.Error().Err(err).Stringer("state", s.state).Msg("Fatal backend error")
		solicited := s.state == domain.Stopping
		s.stopped()
		return !solicited, err
	}

	s.log.Warn().Str("error", ev.Err).Msg("Backend reported an error")
	return false, nil
}

func (s *Session) running() {
	s.state = domain.Running
	s.confirmed = true
	s.pendingCmd = ""
	s.log.Info().Stringer("target", s.target).Msg("Session running")
}

func (s *Session) stopped() {
	s.lease.Release()
	s.lease = nil
	s.state = domain.Stopped
	s.target = nil
	s.draining = nil
	s.confirmed = false
	s.pendingCmd = ""
	s.log.Info().Msg("Session stopped")
}

func (s *Session) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Kind:      s.kind,
		State:     s.state,
		Active:    s.Target(),
		Confirmed: s.confirmed,
		LastError: s.lastErr,
		Metadata:  maps.Clone(s.metadata),
	}
}
