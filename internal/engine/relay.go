package engine

import (
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/gabrielcapilla/sdrtune/internal/session"
	"github.com/rs/zerolog"
)

// Relay routes backend events to the session named by their kind tag.
type Relay struct {
	sessions   map[domain.Kind]*session.Session
	onMetadata func(kind domain.Kind, metadata map[string]string)
	log        zerolog.Logger
}

func NewRelay(sessions map[domain.Kind]*session.Session, log zerolog.Logger) *Relay {
	return &Relay{
		sessions: sessions,
		log:      log.With().Str("component", "relay").Logger(),
	}
}

// OnMetadata registers fn to receive accepted metadata events verbatim.
func (r *Relay) OnMetadata(fn func(kind domain.Kind, metadata map[string]string)) {
	r.onMetadata = fn
}

// Route delivers ev and reports what it did to the session. The second
// result is false when the event was dropped.
func (r *Relay) Route(ev ports.Event) (session.Change, bool) {
	s, ok := r.sessions[ev.Kind]
	if !ok {
		r.log.Warn().Int("kind", int(ev.Kind)).Stringer("type", ev.Type).Msg("Event for unknown kind")
		return session.Change{}, false
	}

	ch, ok := s.HandleEvent(ev)
	if !ok {
		r.log.Debug().
			Stringer("kind", ev.Kind).
			Stringer("type", ev.Type).
			Stringer("state", s.State()).
			Str("command", ev.CommandID).
			Msg("Dropped event")
		return ch, false
	}

	if ev.Type == ports.EventMetadata && r.onMetadata != nil {
		r.onMetadata(ev.Kind, ev.Metadata)
	}
	return ch, true
}
