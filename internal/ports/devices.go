package ports

import (
	"context"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
)

// DeviceSource enumerates radio devices. Returned handles are always
// Available; ownership is tracked by the arbiter, not the source.
type DeviceSource interface {
	Enumerate(ctx context.Context) ([]domain.DeviceHandle, error)
}
