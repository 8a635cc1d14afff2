package backend

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/logger"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
)

var _ ports.Backend = (*Sim)(nil)

const simMetadataEvery = 2 * time.Second

var simSongs = []struct{ title, artist string }{
	{"Blue in Green", "Miles Davis"},
	{"Teardrop", "Massive Attack"},
	{"Windowlicker", "Aphex Twin"},
	{"Hyperballad", "Björk"},
}

type simStream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Sim is a backend without hardware. Verbs complete after a fixed delay and
// running streams publish made-up metadata.
type Sim struct {
	mu       sync.Mutex
	delay    time.Duration
	streams  map[domain.Kind]*simStream
	failures map[domain.Kind][]error
	events   chan ports.Event
	closing  chan struct{}
	once     sync.Once
}

func NewSim(delay time.Duration) *Sim {
	return &Sim{
		delay:    delay,
		streams:  map[domain.Kind]*simStream{},
		failures: map[domain.Kind][]error{},
		events:   make(chan ports.Event, eventBufferSize),
		closing:  make(chan struct{}),
	}
}

func (s *Sim) Events() <-chan ports.Event { return s.events }

func (s *Sim) emit(ev ports.Event) {
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}

// FailNextStart makes the next Start for kind return err.
func (s *Sim) FailNextStart(kind domain.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = append(s.failures[kind], err)
}

func (s *Sim) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sim) Start(ctx context.Context, kind domain.Kind, target domain.StationTarget, params domain.TuningParams, serial string) error {
	if err := s.wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendStart, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if queued := s.failures[kind]; len(queued) > 0 {
		s.failures[kind] = queued[1:]
		return queued[0]
	}
	if _, ok := s.streams[kind]; ok {
		return fmt.Errorf("%w: %s already running", domain.ErrBackendStart, kind.Label())
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	st := &simStream{cancel: cancel, done: make(chan struct{})}
	s.streams[kind] = st
	go s.run(streamCtx, st, kind, target)

	logger.Log.Info().Stringer("kind", kind).Stringer("target", target).Str("serial", serial).Msg("Simulated stream started")
	return nil
}

func (s *Sim) run(ctx context.Context, st *simStream, kind domain.Kind, target domain.StationTarget) {
	defer close(st.done)

	s.emit(ports.StatusEvent(kind, ports.StatusStarting))

	ticker := time.NewTicker(simMetadataEvery)
	defer ticker.Stop()
	for i := 0; ; i++ {
		s.emit(ports.MetadataEvent(kind, simMetadata(kind, target, i)))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func simMetadata(kind domain.Kind, target domain.StationTarget, i int) map[string]string {
	switch kind {
	case domain.KindHDRadio:
		song := simSongs[i%len(simSongs)]
		return map[string]string{
			"sync":    "synced",
			"station": fmt.Sprintf("SIM-FM %s", formatFloat(target.Frequency)),
			"title":   song.title,
			"artist":  song.artist,
			"bitrate": "48.0 kbps",
		}
	case domain.KindADSB:
		return map[string]string{
			"aircraft": strconv.Itoa(3 + i%4),
			"frames":   strconv.Itoa(i * frameReportEvery),
		}
	default:
		return map[string]string{"signal": fmt.Sprintf("%d dB", 20+i%5)}
	}
}

func (s *Sim) take(kind domain.Kind) *simStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[kind]
	if !ok {
		return nil
	}
	delete(s.streams, kind)
	return st
}

func (s *Sim) Stop(ctx context.Context, kind domain.Kind) error {
	if err := s.wait(ctx); err != nil {
		logger.Log.Warn().Err(err).Stringer("kind", kind).Msg("Stop delay interrupted")
	}
	if st := s.take(kind); st != nil {
		st.cancel()
		<-st.done
	}
	return nil
}

// Crash ends a running stream as if the hardware had gone away.
func (s *Sim) Crash(kind domain.Kind, reason string) {
	st := s.take(kind)
	if st == nil {
		return
	}
	st.cancel()
	<-st.done
	s.emit(ports.FatalEvent(kind, reason))
}

func (s *Sim) Close() error {
	s.once.Do(func() { close(s.closing) })
	for _, k := range domain.Kinds {
		if st := s.take(k); st != nil {
			st.cancel()
			<-st.done
		}
	}
	return nil
}
