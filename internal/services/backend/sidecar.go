// Package backend runs the signal-processing sidecars that produce the
// streams and turns their output into engine events.
package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/logger"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
)

var _ ports.Backend = (*Sidecar)(nil)

var execCommand = exec.Command

const (
	defaultStopTimeout = 3 * time.Second
	eventBufferSize    = 64
)

type process struct {
	cmd      *exec.Cmd
	done     chan struct{}
	stopping atomic.Bool
}

// Sidecar runs one external process per stream kind.
type Sidecar struct {
	mu          sync.Mutex
	commands    map[string][]string
	stopTimeout time.Duration
	procs       map[domain.Kind]*process
	events      chan ports.Event
	closing     chan struct{}
	closeOnce   sync.Once
}

func NewSidecar(cfg domain.BackendConfig) *Sidecar {
	commands := maps.Clone(DefaultCommands)
	for k, argv := range cfg.Commands {
		if len(argv) > 0 {
			commands[strings.ToLower(k)] = argv
		}
	}

	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	return &Sidecar{
		commands:    commands,
		stopTimeout: stopTimeout,
		procs:       map[domain.Kind]*process{},
		events:      make(chan ports.Event, eventBufferSize),
		closing:     make(chan struct{}),
	}
}

func (s *Sidecar) Events() <-chan ports.Event { return s.events }

func (s *Sidecar) emit(ev ports.Event) {
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}

// Start launches the sidecar for kind and returns once it is running. A
// missing executable or template is fatal; any other launch failure is
// worth a retry.
func (s *Sidecar) Start(ctx context.Context, kind domain.Kind, target domain.StationTarget, params domain.TuningParams, serial string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendStart, err)
	}
	argv, err := expand(s.commands[kind.String()], target, params, serial)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendFatal, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closing:
		return fmt.Errorf("%w: backend closed", domain.ErrBackendFatal)
	default:
	}
	if _, ok := s.procs[kind]; ok {
		return fmt.Errorf("%w: %s sidecar is already running", domain.ErrBackendStart, kind.Label())
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendStart, err)
	}

	cmd := execCommand(argv[0], argv[1:]...)
	cmd.Stdout = w
	cmd.Stderr = w
	startGroup(cmd)

	logger.Log.Info().Stringer("kind", kind).Strs("argv", argv).Msg("Starting sidecar")
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", domain.ErrBackendFatal, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrBackendStart, err)
	}
	w.Close()

	p := &process{cmd: cmd, done: make(chan struct{})}
	s.procs[kind] = p
	go s.watch(kind, p, r)
	return nil
}

// watch parses the sidecar output until it exits and reports an exit nobody
// asked for.
func (s *Sidecar) watch(kind domain.Kind, p *process, out *os.File) {
	defer close(p.done)

	parser := newParser(kind)
	var last string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		last = line
		logger.Log.Debug().Stringer("kind", kind).Str("line", line).Msg("Sidecar output")
		if p.stopping.Load() {
			continue
		}
		for _, ev := range parser.Parse(line) {
			s.emit(ev)
		}
	}
	out.Close()
	err := p.cmd.Wait()

	s.mu.Lock()
	if s.procs[kind] == p {
		delete(s.procs, kind)
	}
	s.mu.Unlock()

	if p.stopping.Load() {
		logger.Log.Info().Stringer("kind", kind).Msg("Sidecar stopped")
		return
	}
	if err != nil {
		logger.Log.Error().Err(err).Stringer("kind", kind).Str("lastLine", last).Msg("Sidecar exited")
		msg := fmt.Sprintf("%s sidecar exited: %v", kind.Label(), err)
		if last != "" {
			msg += ": " + strings.TrimSpace(last)
		}
		s.emit(ports.FatalEvent(kind, msg))
		return
	}
	logger.Log.Info().Stringer("kind", kind).Msg("Sidecar finished")
	s.emit(ports.StatusEvent(kind, ports.StatusStopped))
}

// Stop terminates the sidecar for kind and returns once it is gone.
func (s *Sidecar) Stop(ctx context.Context, kind domain.Kind) error {
	s.mu.Lock()
	p, ok := s.procs[kind]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.stopProcess(ctx, kind, p)
	return nil
}

func (s *Sidecar) stopProcess(ctx context.Context, kind domain.Kind, p *process) {
	p.stopping.Store(true)
	if err := terminate(p.cmd); err != nil {
		logger.Log.Warn().Err(err).Stringer("kind", kind).Msg("Could not signal sidecar")
	}

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return
	case <-timer.C:
		logger.Log.Warn().Stringer("kind", kind).Dur("timeout", s.stopTimeout).Msg("Sidecar ignored SIGTERM, killing")
	case <-ctx.Done():
	}
	if err := kill(p.cmd); err != nil {
		logger.Log.Error().Err(err).Stringer("kind", kind).Msg("Could not kill sidecar")
	}
	<-p.done
}

// Close stops every sidecar. Events are no longer delivered afterwards.
func (s *Sidecar) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	procs := maps.Clone(s.procs)
	s.mu.Unlock()

	for kind, p := range procs {
		s.stopProcess(context.Background(), kind, p)
	}
	return nil
}
