package ports

import (
	"context"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
)

// Backend is the external signal-processing process. Start and Stop block
// until the backend acknowledges or fails; callers run them off the engine
// goroutine. Events carries unsolicited status, error and metadata pushes.
type Backend interface {
	Start(ctx context.Context, kind domain.Kind, target domain.StationTarget, params domain.TuningParams, serial string) error
	Stop(ctx context.Context, kind domain.Kind) error
	Events() <-chan Event
	Close() error
}
