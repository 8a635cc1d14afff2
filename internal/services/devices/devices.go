// Package devices enumerates the radio dongles the receiver can use.
package devices

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/logger"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
)

var _ ports.DeviceSource = (*Source)(nil)

var execCommand = exec.CommandContext

const probeTimeout = 5 * time.Second

// deviceLine matches the listing librtlsdr tools print before opening a
// device, e.g. "  0:  Realtek, RTL2838UHIDIR, SN: 00000001".
var deviceLine = regexp.MustCompile(`^\s*\d+:\s+(.+?),\s+(.+?),\s+SN:\s*(\S+)\s*$`)

// Source merges the devices listed in the config with the ones a probe
// command reports.
type Source struct {
	static []domain.DeviceHandle
	probe  []string
}

func NewSource(cfg domain.DevicesConfig) *Source {
	static := make([]domain.DeviceHandle, 0, len(cfg.Static))
	for _, d := range cfg.Static {
		if d.Serial == "" {
			continue
		}
		label := d.Label
		if label == "" {
			label = d.Serial
		}
		static = append(static, domain.DeviceHandle{Serial: d.Serial, Label: label})
	}
	return &Source{static: static, probe: cfg.ProbeCommand}
}

func (s *Source) Enumerate(ctx context.Context) ([]domain.DeviceHandle, error) {
	handles := append([]domain.DeviceHandle(nil), s.static...)
	if len(s.probe) == 0 {
		return handles, nil
	}

	found, err := s.runProbe(ctx)
	if err != nil {
		if len(handles) == 0 {
			return nil, err
		}
		logger.Log.Warn().Err(err).Msg("Device probe failed, using configured devices only")
		return handles, nil
	}

	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		seen[h.Serial] = true
	}
	for _, h := range found {
		if !seen[h.Serial] {
			seen[h.Serial] = true
			handles = append(handles, h)
		}
	}
	logger.Log.Debug().Int("count", len(handles)).Msg("Devices enumerated")
	return handles, nil
}

func (s *Source) runProbe(ctx context.Context) ([]domain.DeviceHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := execCommand(ctx, s.probe[0], s.probe[1:]...)
	out, err := cmd.CombinedOutput()
	handles := parseProbeOutput(string(out))

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Probe tools exit non-zero after listing when they can't run their
			// test, so the listing still counts.
			logger.Log.Debug().Err(err).Int("devices", len(handles)).Msg("Probe exited with an error")
			return handles, nil
		}
		return nil, fmt.Errorf("could not run %s: %w", s.probe[0], err)
	}
	return handles, nil
}

func parseProbeOutput(out string) []domain.DeviceHandle {
	var handles []domain.DeviceHandle
	for _, line := range strings.Split(out, "\n") {
		m := deviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		handles = append(handles, domain.DeviceHandle{
			Serial: m[3],
			Label:  m[1] + " " + m[2],
		})
	}
	return handles
}
