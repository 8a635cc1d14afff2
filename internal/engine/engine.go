// Package engine wires the arbiter, the sessions, the controller, the relay
// and the tab synchronizer behind a single goroutine. Everything that changes
// core state arrives as a message on one queue.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/arbiter"
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/gabrielcapilla/sdrtune/internal/session"
	"github.com/rs/zerolog"
)

const inboxSize = 64

// ErrStopped is returned when a message is sent after Run has returned.
var ErrStopped = errors.New("engine stopped")

// Snapshot is the read-only view of the engine published after every message.
type Snapshot struct {
	Version       uint64                   `json:"version"`
	Sessions      []domain.SessionSnapshot `json:"sessions"`
	Devices       []domain.DeviceHandle    `json:"devices"`
	Selected      string                   `json:"selected,omitempty"`
	Requested     *domain.StationTarget    `json:"requested,omitempty"`
	Pending       bool                     `json:"pending"`
	Blocked       bool                     `json:"blocked"`
	Tab           domain.Kind              `json:"tab"`
	DeferredTab   *domain.Kind             `json:"deferredTab,omitempty"`
	Error         string                   `json:"error,omitempty"`
	ListeningTime time.Duration            `json:"listeningTime"`
}

func (s Snapshot) Session(kind domain.Kind) domain.SessionSnapshot {
	for _, ss := range s.Sessions {
		if ss.Kind == kind {
			return ss
		}
	}
	return domain.SessionSnapshot{Kind: kind}
}

// Active returns the session that is starting or running, if any.
func (s Snapshot) Active() (domain.SessionSnapshot, bool) {
	for _, ss := range s.Sessions {
		if ss.State.IsActive() {
			return ss, true
		}
	}
	return domain.SessionSnapshot{}, false
}

type Deps struct {
	Backend ports.Backend
	Devices ports.DeviceSource
	Store   ports.StorageService
	Config  domain.Config
	Log     zerolog.Logger
}

type Engine struct {
	arb      *arbiter.Arbiter
	sessions map[domain.Kind]*session.Session
	ctrl     *Controller
	relay    *Relay
	tabs     *Tabs
	cmd      session.Commander

	backend ports.Backend
	devices ports.DeviceSource
	store   ports.StorageService
	cfg     domain.Config
	log     zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan call
	listening time.Duration
	version   uint64

	snap      atomic.Pointer[Snapshot]
	subMu     sync.Mutex
	subs      map[int]chan Snapshot
	nextSub   int
	observers []func(kind domain.Kind, metadata map[string]string)
}

func New(deps Deps) *Engine {
	return newEngine(deps, nil)
}

// newEngine lets tests swap the dispatcher for a recording commander.
func newEngine(deps Deps, cmd session.Commander) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		backend: deps.Backend,
		devices: deps.Devices,
		store:   deps.Store,
		cfg:     deps.Config,
		log:     deps.Log.With().Str("component", "engine").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan call, inboxSize),
		subs:    map[int]chan Snapshot{},
	}

	if cmd == nil {
		cmd = &dispatcher{
			ctx:     ctx,
			backend: deps.Backend,
			params:  e.Tuning,
			post:    e.post,
			log:     e.log,
		}
	}

	e.cmd = cmd
	e.arb = arbiter.New(deps.Log)
	e.sessions = make(map[domain.Kind]*session.Session, len(domain.Kinds))
	for _, k := range domain.Kinds {
		e.sessions[k] = session.New(k, e.arb, cmd, deps.Log)
	}
	e.ctrl = NewController(e.arb, e.sessions, deps.Log)
	e.relay = NewRelay(e.sessions, deps.Log)
	e.relay.OnMetadata(e.forwardMetadata)
	e.tabs = NewTabs(domain.KindHDRadio)

	if e.store != nil {
		if total, err := e.store.ListeningTime(); err == nil {
			e.listening = total
		} else {
			e.log.Warn().Err(err).Msg("Could not read listening time")
		}
	}

	e.publish()
	return e
}

// OnMetadata registers fn to receive every accepted metadata event as the
// backend sent it. Call it before Run.
func (e *Engine) OnMetadata(fn func(kind domain.Kind, metadata map[string]string)) {
	e.observers = append(e.observers, fn)
}

func (e *Engine) forwardMetadata(kind domain.Kind, metadata map[string]string) {
	for _, fn := range e.observers {
		fn(kind, metadata)
	}
}

// Tuning returns the params the next start of kind will use: stored ones
// first, then the configured defaults.
func (e *Engine) Tuning(kind domain.Kind) domain.TuningParams {
	if e.store != nil {
		params, ok, err := e.store.TuningParams(kind)
		if err != nil {
			e.log.Warn().Err(err).Stringer("kind", kind).Msg("Could not read tuning params")
		} else if ok {
			return params
		}
	}
	if params, ok := e.cfg.Tuning[kind.String()]; ok {
		return params
	}
	return domain.DefaultTuning(kind)
}

// Run owns the core state until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer e.cancel()

	if e.backend != nil {
		go e.pumpEvents(ctx, e.backend.Events())
	}
	if e.devices != nil {
		go e.watchDevices(ctx)
	}

	var tick <-chan time.Time
	if e.cfg.StatsInterval > 0 {
		ticker := time.NewTicker(e.cfg.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	e.log.Info().Msg("Engine running")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("Engine stopped")
			return ctx.Err()
		case c := <-e.inbox:
			err := e.Process(c.msg)
			if c.reply != nil {
				c.reply <- err
			}
		case <-tick:
			e.Process(TickMsg{Elapsed: e.cfg.StatsInterval})
		}
	}
}

func (e *Engine) pumpEvents(ctx context.Context, events <-chan ports.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.post(BackendEventMsg{Event: ev})
		}
	}
}

func (e *Engine) watchDevices(ctx context.Context) {
	if err := e.RefreshDevices(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Initial device enumeration failed")
	}
	every := e.cfg.Devices.RefreshEvery
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RefreshDevices(ctx); err != nil {
				e.log.Warn().Err(err).Msg("Device enumeration failed")
			}
		}
	}
}

// RefreshDevices enumerates devices and waits until the engine applied them.
func (e *Engine) RefreshDevices(ctx context.Context) error {
	if e.devices == nil {
		return nil
	}
	handles, err := e.devices.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("could not enumerate devices: %w", err)
	}
	return e.Call(ctx, DevicesMsg{Handles: handles})
}

func (e *Engine) post(msg Msg) {
	select {
	case e.inbox <- call{msg: msg}:
	case <-e.ctx.Done():
	}
}

// Submit queues msg without waiting for it to be applied.
func (e *Engine) Submit(ctx context.Context, msg Msg) error {
	select {
	case e.inbox <- call{msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrStopped
	}
}

// Call queues msg and waits for the engine's verdict on it.
func (e *Engine) Call(ctx context.Context, msg Msg) error {
	reply := make(chan error, 1)
	select {
	case e.inbox <- call{msg: msg, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrStopped
	}
}

// deviceLost fails the session whose device vanished from an enumeration and
// stops its stream. The stop's completion is dropped since the session is
// already Stopped by then.
func (e *Engine) deviceLost(kind domain.Kind) {
	ev := ports.FatalEvent(kind, "device disappeared")
	if ch, ok := e.relay.Route(ev); ok {
		e.ctrl.SessionChanged(kind, ch)
	}
	id := e.cmd.SendStop(kind)
	e.log.Warn().Stringer("kind", kind).Str("command", id).Msg("Stopping stream of vanished device")
	e.ctrl.Reconcile()
}

// Process applies one message. Only the goroutine running Run, or a test
// that never calls Run, may use it.
func (e *Engine) Process(msg Msg) error {
	var err error

	switch m := msg.(type) {
	case RequestMsg:
		if m.Target != nil {
			e.tabs.Cancel()
		}
		err = e.ctrl.Request(m.Target, m.Strict)

	case TabClickMsg:
		if !m.Kind.Valid() {
			err = fmt.Errorf("unknown tab %d", int(m.Kind))
			break
		}
		idle := allStopped(e.sessions)
		if e.tabs.Click(m.Kind, e.sessions) {
			err = e.ctrl.Request(nil, false)
			break
		}
		// A request still waiting on a device must not pull the tab back
		// once one shows up.
		if r := e.ctrl.Requested(); idle && r != nil && r.Kind != m.Kind {
			err = e.ctrl.Request(nil, false)
		}

	case DevicesMsg:
		_, owner, leased := e.arb.Owner()
		e.ctrl.DevicesRefreshed(m.Handles)
		if _, _, still := e.arb.Owner(); leased && !still {
			e.deviceLost(owner)
		}

	case SelectDeviceMsg:
		err = e.ctrl.Select(m.Serial)

	case ConnectDeviceMsg:
		if m.Connect {
			err = e.arb.Connect(m.Serial)
		} else {
			err = e.arb.Disconnect(m.Serial)
		}
		if err == nil {
			e.ctrl.Retry()
		}

	case BackendEventMsg:
		if ch, ok := e.relay.Route(m.Event); ok {
			e.ctrl.SessionChanged(m.Event.Kind, ch)
		}
		e.ctrl.Reconcile()

	case TickMsg:
		e.account(m.Elapsed)

	default:
		err = fmt.Errorf("unknown message %T", msg)
	}

	e.tabs.Sync(e.sessions)
	e.publish()
	return err
}

func (e *Engine) account(elapsed time.Duration) {
	if e.ctrl.running() == nil {
		return
	}
	if e.store == nil {
		e.listening += elapsed
		return
	}
	total, err := e.store.AddListeningTime(elapsed)
	if err != nil {
		e.log.Warn().Err(err).Msg("Could not record listening time")
		e.listening += elapsed
		return
	}
	e.listening = total
}

// Snapshot returns the state published after the last processed message. It
// is safe to call from any goroutine.
func (e *Engine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate ones.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- *e.snap.Load()
	e.subs[id] = ch

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) publish() {
	e.version++
	snap := &Snapshot{
		Version:       e.version,
		Sessions:      make([]domain.SessionSnapshot, 0, len(domain.Kinds)),
		Devices:       e.arb.Devices(),
		Selected:      e.ctrl.Selected(),
		Requested:     e.ctrl.Requested(),
		Pending:       e.ctrl.Pending(),
		Blocked:       e.ctrl.Blocked(),
		Tab:           e.tabs.Visible(),
		DeferredTab:   e.tabs.Deferred(),
		Error:         e.ctrl.Err(),
		ListeningTime: e.listening,
	}
	for _, k := range domain.Kinds {
		snap.Sessions = append(snap.Sessions, e.sessions[k].Snapshot())
	}
	e.snap.Store(snap)

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- *snap
	}
}
