package engine

import (
	"context"
	"errors"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// dispatcher runs backend verbs off the engine goroutine and posts each
// completion back as an event carrying the command id.
type dispatcher struct {
	ctx     context.Context
	backend ports.Backend
	params  func(domain.Kind) domain.TuningParams
	post    func(Msg)
	log     zerolog.Logger
}

func (d *dispatcher) SendStart(kind domain.Kind, target domain.StationTarget, serial string) string {
	id := uuid.NewString()
	params := d.params(kind)
	go func() {
		d.log.Debug().Str("command", id).Stringer("target", target).Str("serial", serial).Msg("Start")
		err := d.backend.Start(d.ctx, kind, target, params, serial)
		d.post(BackendEventMsg{Event: completion(kind, ports.VerbStart, id, err)})
	}()
	return id
}

func (d *dispatcher) SendStop(kind domain.Kind) string {
	id := uuid.NewString()
	go func() {
		d.log.Debug().Str("command", id).Stringer("kind", kind).Msg("Stop")
		err := d.backend.Stop(d.ctx, kind)
		d.post(BackendEventMsg{Event: completion(kind, ports.VerbStop, id, err)})
	}()
	return id
}

func completion(kind domain.Kind, verb ports.Verb, id string, err error) ports.Event {
	if err == nil {
		return ports.Event{Kind: kind, Type: ports.EventAck, Verb: verb, CommandID: id}
	}
	return ports.Event{
		Kind:      kind,
		Type:      ports.EventError,
		Verb:      verb,
		Err:       err.Error(),
		Fatal:     errors.Is(err, domain.ErrBackendFatal),
		CommandID: id,
	}
}
