package domain

import "errors"

var (
	// ErrDeviceUnavailable: no free device could be acquired. Recoverable.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrDeviceBusy: connect/disconnect attempted on a device that is in use.
	ErrDeviceBusy = errors.New("device busy")
	// ErrBackendStart is a transient tuning failure reported by the backend.
	ErrBackendStart = errors.New("backend start failed")
	// ErrBackendFatal means the hardware or the backend process went away.
	ErrBackendFatal = errors.New("backend fatal error")

	ErrSessionBusy   = errors.New("session busy")
	ErrUnknownDevice = errors.New("unknown device")
	ErrInvalidTarget = errors.New("invalid station target")
)
