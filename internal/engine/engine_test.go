package engine

import (
	"fmt"
	"testing"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type command struct {
	verb   ports.Verb
	kind   domain.Kind
	target domain.StationTarget
	serial string
	id     string
}

type recorder struct {
	sent []command
}

func (r *recorder) SendStart(kind domain.Kind, target domain.StationTarget, serial string) string {
	id := fmt.Sprintf("cmd-%d", len(r.sent)+1)
	r.sent = append(r.sent, command{verb: ports.VerbStart, kind: kind, target: target, serial: serial, id: id})
	return id
}

func (r *recorder) SendStop(kind domain.Kind) string {
	id := fmt.Sprintf("cmd-%d", len(r.sent)+1)
	r.sent = append(r.sent, command{verb: ports.VerbStop, kind: kind, id: id})
	return id
}

func (r *recorder) last() command { return r.sent[len(r.sent)-1] }

var (
	fm987   = domain.StationTarget{Kind: domain.KindFM, Frequency: 98.7}
	hd1015c = domain.StationTarget{Kind: domain.KindHDRadio, Frequency: 101.5, Subchannel: 2}
)

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := newEngine(Deps{Log: zerolog.Nop()}, rec)
	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{{Serial: "00000001", Label: "RTL2838UHIDIR"}}}))
	require.Equal(t, "00000001", e.Snapshot().Selected)
	return e, rec
}

func request(t *testing.T, e *Engine, target *domain.StationTarget) {
	t.Helper()
	require.NoError(t, e.Process(RequestMsg{Target: target}))
}

func strictRequest(t *testing.T, e *Engine, target *domain.StationTarget) {
	t.Helper()
	require.NoError(t, e.Process(RequestMsg{Target: target, Strict: true}))
}

func ackLast(t *testing.T, e *Engine, rec *recorder) {
	t.Helper()
	c := rec.last()
	require.NoError(t, e.Process(BackendEventMsg{Event: ports.Event{Kind: c.kind, Type: ports.EventAck, Verb: c.verb, CommandID: c.id}}))
}

func failLast(t *testing.T, e *Engine, rec *recorder, fatal bool) {
	t.Helper()
	c := rec.last()
	require.NoError(t, e.Process(BackendEventMsg{Event: ports.Event{
		Kind: c.kind, Type: ports.EventError, Verb: c.verb, Err: "tuning failed", Fatal: fatal, CommandID: c.id,
	}}))
}

// checkInvariants asserts single ownership across every published snapshot.
func checkInvariants(t *testing.T, snap Snapshot) {
	t.Helper()
	active := 0
	for _, s := range snap.Sessions {
		if s.State.IsActive() {
			active++
		}
		if s.State == domain.Stopping {
			assert.Nil(t, s.Active)
		}
	}
	inUse := 0
	for _, d := range snap.Devices {
		if d.State == domain.InUse {
			inUse++
		}
	}
	require.LessOrEqual(t, active, 1, "At most one session may be active")
	require.LessOrEqual(t, inUse, 1, "At most one device may be in use")
}

func TestEngine_AutoConnectAndStart(t *testing.T) {
	e, rec := newTestEngine(t)

	request(t, e, &fm987)
	require.Len(t, rec.sent, 1)
	require.Equal(t, ports.VerbStart, rec.last().verb)
	require.Equal(t, "00000001", rec.last().serial)

	snap := e.Snapshot()
	require.True(t, snap.Pending)
	require.Equal(t, domain.InUse, snap.Devices[0].State, "Starting must connect and lease the selected device")
	require.Equal(t, domain.Starting, snap.Session(domain.KindFM).State)

	ackLast(t, e, rec)
	snap = e.Snapshot()
	require.False(t, snap.Pending)
	require.Equal(t, domain.Running, snap.Session(domain.KindFM).State)
	require.Equal(t, domain.KindFM, snap.Tab)
	checkInvariants(t, snap)
}

func TestEngine_IdempotentRequest(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &hd1015c)
	ackLast(t, e, rec)

	loose := domain.StationTarget{Kind: domain.KindHDRadio, Frequency: 101.5}
	request(t, e, &loose)
	request(t, e, &hd1015c)
	require.Len(t, rec.sent, 1, "Re-requesting the playing station must not issue commands")
}

func TestEngine_StrictRequestSwitchesSubchannel(t *testing.T) {
	e, rec := newTestEngine(t)
	main := domain.StationTarget{Kind: domain.KindHDRadio, Frequency: 101.5}
	request(t, e, &main)
	ackLast(t, e, rec)

	request(t, e, &hd1015c)
	require.Len(t, rec.sent, 1, "A loose request accepts the playing program")

	strictRequest(t, e, &hd1015c)
	require.Len(t, rec.sent, 2)
	require.Equal(t, ports.VerbStop, rec.last().verb)
	require.Equal(t, domain.KindHDRadio, rec.last().kind)

	ackLast(t, e, rec)
	require.Len(t, rec.sent, 3)
	require.Equal(t, ports.VerbStart, rec.last().verb)
	require.Equal(t, hd1015c, rec.last().target)

	ackLast(t, e, rec)
	snap := e.Snapshot()
	require.Equal(t, domain.Running, snap.Session(domain.KindHDRadio).State)
	require.Equal(t, &hd1015c, snap.Session(domain.KindHDRadio).Active)

	strictRequest(t, e, &hd1015c)
	require.Len(t, rec.sent, 3, "An exact match is already converged")
	checkInvariants(t, e.Snapshot())
}

func TestEngine_SwitchFMToHDRadio(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	ackLast(t, e, rec)
	require.Equal(t, domain.KindFM, e.Snapshot().Tab)

	request(t, e, &hd1015c)
	require.Len(t, rec.sent, 2)
	require.Equal(t, ports.VerbStop, rec.last().verb)
	require.Equal(t, domain.KindFM, rec.last().kind)
	checkInvariants(t, e.Snapshot())
	require.Equal(t, domain.KindFM, e.Snapshot().Tab)

	// Still stopping: a second request must not start anything.
	request(t, e, &hd1015c)
	require.Len(t, rec.sent, 2)

	ackLast(t, e, rec)
	require.Len(t, rec.sent, 3)
	require.Equal(t, ports.VerbStart, rec.last().verb)
	require.Equal(t, hd1015c, rec.last().target)
	require.Equal(t, domain.Stopped, e.Snapshot().Session(domain.KindFM).State)
	require.Equal(t, domain.KindFM, e.Snapshot().Tab, "The tab waits for the HD Radio session")
	checkInvariants(t, e.Snapshot())

	ackLast(t, e, rec)
	snap := e.Snapshot()
	require.Equal(t, domain.Running, snap.Session(domain.KindHDRadio).State)
	require.Equal(t, domain.KindHDRadio, snap.Tab)
	checkInvariants(t, snap)
}

func TestEngine_StopBeforeStartOrdering(t *testing.T) {
	e, rec := newTestEngine(t)
	targets := []domain.StationTarget{
		fm987,
		{Kind: domain.KindAM, Frequency: 810},
		hd1015c,
		domain.ADSBTarget(),
	}

	for _, target := range targets {
		request(t, e, &target)
		for e.Snapshot().Pending {
			ackLast(t, e, rec)
			checkInvariants(t, e.Snapshot())
		}
	}

	stopped := map[domain.Kind]bool{}
	var running *domain.Kind
	for _, c := range rec.sent {
		switch c.verb {
		case ports.VerbStart:
			require.Nil(t, running, "start issued for %s while %v was not stopped", c.kind, running)
			k := c.kind
			running = &k
		case ports.VerbStop:
			require.NotNil(t, running)
			require.Equal(t, *running, c.kind)
			stopped[c.kind] = true
			running = nil
		}
	}
	require.Len(t, stopped, 3)
}

func TestEngine_ArbiterDenialBlocks(t *testing.T) {
	e, rec := newTestEngine(t)

	require.NoError(t, e.arb.Connect("00000001"))
	lease, err := e.arb.Acquire("00000001", domain.KindADSB)
	require.NoError(t, err)

	request(t, e, &fm987)
	snap := e.Snapshot()
	require.True(t, snap.Blocked)
	require.Equal(t, domain.Stopped, snap.Session(domain.KindFM).State)
	require.Empty(t, rec.sent)

	// Unrelated traffic must not retry.
	require.NoError(t, e.Process(BackendEventMsg{Event: ports.StatusEvent(domain.KindAM, ports.StatusRunning)}))
	require.NoError(t, e.Process(TickMsg{}))
	require.Empty(t, rec.sent)
	require.True(t, e.Snapshot().Blocked)

	lease.Release()
	require.Empty(t, rec.sent, "Releasing outside the engine is not a trigger")

	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{{Serial: "00000001", Label: "RTL2838UHIDIR"}}}))
	require.Len(t, rec.sent, 1, "A device refresh retries the blocked request")
	require.False(t, e.Snapshot().Blocked)
}

func TestEngine_NoDeviceBlocks(t *testing.T) {
	rec := &recorder{}
	e := newEngine(Deps{Log: zerolog.Nop()}, rec)

	request(t, e, &fm987)
	require.True(t, e.Snapshot().Blocked)
	require.NotEmpty(t, e.Snapshot().Error)
	require.Empty(t, rec.sent)
}

func TestEngine_LateEventDropped(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	ackLast(t, e, rec)
	request(t, e, nil)
	stop := rec.last()
	ackLast(t, e, rec)

	before := e.Snapshot()
	for _, ev := range []ports.Event{
		ports.StatusEvent(domain.KindFM, ports.StatusRunning),
		ports.MetadataEvent(domain.KindFM, map[string]string{"title": "ghost"}),
		ports.FatalEvent(domain.KindFM, "late"),
		{Kind: domain.KindFM, Type: ports.EventAck, Verb: ports.VerbStop, CommandID: stop.id},
	} {
		require.NoError(t, e.Process(BackendEventMsg{Event: ev}))
	}
	after := e.Snapshot()

	require.Equal(t, before.Sessions, after.Sessions)
	require.Equal(t, before.Devices, after.Devices)
	require.Len(t, rec.sent, 2)
}

func TestEngine_TwoStartErrorsClearRequest(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &hd1015c)

	failLast(t, e, rec, false)
	require.Len(t, rec.sent, 2, "The first transient failure is retried once")
	require.NotNil(t, e.Snapshot().Requested)
	require.Empty(t, e.Snapshot().Session(domain.KindHDRadio).LastError)

	failLast(t, e, rec, false)
	snap := e.Snapshot()
	require.Nil(t, snap.Requested)
	require.Contains(t, snap.Session(domain.KindHDRadio).LastError, "tuning failed")
	require.Len(t, rec.sent, 2, "No third attempt")
	require.Equal(t, domain.Connected, snap.Devices[0].State)
}

func TestEngine_FatalStartErrorClearsRequest(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)

	failLast(t, e, rec, true)
	snap := e.Snapshot()
	require.Nil(t, snap.Requested)
	require.NotEmpty(t, snap.Session(domain.KindFM).LastError)
	require.Len(t, rec.sent, 1)
}

func TestEngine_NilRequestDuringStart(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	request(t, e, nil)
	require.Len(t, rec.sent, 1, "No cancel is sent for an in-flight start")

	ackLast(t, e, rec)
	require.Len(t, rec.sent, 2)
	require.Equal(t, ports.VerbStop, rec.last().verb)

	ackLast(t, e, rec)
	snap := e.Snapshot()
	require.Equal(t, domain.Stopped, snap.Session(domain.KindFM).State)
	require.False(t, snap.Pending)
}

func TestEngine_UnsolicitedFatalClearsRequest(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	ackLast(t, e, rec)

	require.NoError(t, e.Process(BackendEventMsg{Event: ports.FatalEvent(domain.KindFM, "device lost")}))
	snap := e.Snapshot()
	require.Nil(t, snap.Requested)
	require.Equal(t, domain.Stopped, snap.Session(domain.KindFM).State)
	require.Len(t, rec.sent, 1, "A lost stream is not restarted behind the user's back")
}

func TestEngine_TabClickDefersUntilStopped(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	ackLast(t, e, rec)

	require.NoError(t, e.Process(TabClickMsg{Kind: domain.KindAM}))
	snap := e.Snapshot()
	require.Equal(t, domain.KindFM, snap.Tab)
	require.NotNil(t, snap.DeferredTab)
	require.Nil(t, snap.Requested)
	require.Equal(t, ports.VerbStop, rec.last().verb, "The stop is requested before the switch")

	ackLast(t, e, rec)
	snap = e.Snapshot()
	require.Equal(t, domain.KindAM, snap.Tab)
	require.Nil(t, snap.DeferredTab)
}

func TestEngine_TabClickWhileIdle(t *testing.T) {
	e, rec := newTestEngine(t)

	require.NoError(t, e.Process(TabClickMsg{Kind: domain.KindADSB}))
	require.Equal(t, domain.KindADSB, e.Snapshot().Tab)
	require.Empty(t, rec.sent)

	require.Error(t, e.Process(TabClickMsg{Kind: domain.Kind(42)}))
}

func TestEngine_TabClickDropsBlockedRequest(t *testing.T) {
	rec := &recorder{}
	e := newEngine(Deps{Log: zerolog.Nop()}, rec)

	request(t, e, &fm987)
	require.True(t, e.Snapshot().Blocked)

	require.NoError(t, e.Process(TabClickMsg{Kind: domain.KindAM}))
	snap := e.Snapshot()
	require.Equal(t, domain.KindAM, snap.Tab)
	require.Nil(t, snap.Requested)

	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{{Serial: "00000001", Label: "RTL2838UHIDIR"}}}))
	snap = e.Snapshot()
	require.Empty(t, rec.sent, "The abandoned station is not started once a device appears")
	require.Equal(t, domain.KindAM, snap.Tab)
	require.Equal(t, domain.Stopped, snap.Session(domain.KindFM).State)
}

func TestEngine_TabClickKeepsBlockedRequestOfSameKind(t *testing.T) {
	rec := &recorder{}
	e := newEngine(Deps{Log: zerolog.Nop()}, rec)

	request(t, e, &fm987)
	require.NoError(t, e.Process(TabClickMsg{Kind: domain.KindFM}))
	require.Equal(t, &fm987, e.Snapshot().Requested)

	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{{Serial: "00000001", Label: "RTL2838UHIDIR"}}}))
	require.Len(t, rec.sent, 1)
	require.Equal(t, ports.VerbStart, rec.last().verb)
}

func TestEngine_ClickOnCurrentTabKeepsSwitch(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	ackLast(t, e, rec)
	request(t, e, &hd1015c)
	require.Equal(t, domain.Stopping, e.Snapshot().Session(domain.KindFM).State)

	require.NoError(t, e.Process(TabClickMsg{Kind: domain.KindFM}))
	require.Equal(t, &hd1015c, e.Snapshot().Requested)

	ackLast(t, e, rec)
	require.Equal(t, ports.VerbStart, rec.last().verb)
	require.Equal(t, hd1015c, rec.last().target)
}

func TestEngine_LeasedDeviceDisappears(t *testing.T) {
	e, rec := newTestEngine(t)
	request(t, e, &fm987)
	ackLast(t, e, rec)
	require.Equal(t, domain.InUse, e.Snapshot().Devices[0].State)

	require.NoError(t, e.Process(DevicesMsg{Handles: nil}))
	snap := e.Snapshot()
	fm := snap.Session(domain.KindFM)
	require.Equal(t, domain.Stopped, fm.State)
	require.Contains(t, fm.LastError, "device disappeared")
	require.Nil(t, snap.Requested)
	require.Empty(t, snap.Devices)
	require.Len(t, rec.sent, 2)
	require.Equal(t, ports.VerbStop, rec.last().verb, "The orphaned stream is stopped")

	ackLast(t, e, rec)
	require.Equal(t, domain.Stopped, e.Snapshot().Session(domain.KindFM).State)

	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{{Serial: "00000001", Label: "RTL2838UHIDIR"}}}))
	require.Len(t, rec.sent, 2, "Nothing restarts when the device comes back")
	checkInvariants(t, e.Snapshot())
}

func TestEngine_ConfirmedStartingPullsTab(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Process(TabClickMsg{Kind: domain.KindAM}))
	require.Equal(t, domain.KindAM, e.Snapshot().Tab)

	request(t, e, &hd1015c)
	require.Equal(t, domain.KindAM, e.Snapshot().Tab, "An unconfirmed start does not move the tab")

	require.NoError(t, e.Process(BackendEventMsg{Event: ports.StatusEvent(domain.KindHDRadio, ports.StatusStarting)}))
	snap := e.Snapshot()
	require.Equal(t, domain.Starting, snap.Session(domain.KindHDRadio).State)
	require.True(t, snap.Session(domain.KindHDRadio).Confirmed)
	require.Equal(t, domain.KindHDRadio, snap.Tab)
}

func TestEngine_DeviceSelection(t *testing.T) {
	e, rec := newTestEngine(t)
	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{
		{Serial: "00000001", Label: "first"},
		{Serial: "00000002", Label: "second"},
	}}))
	require.Equal(t, "00000001", e.Snapshot().Selected)

	require.NoError(t, e.Process(SelectDeviceMsg{Serial: "00000002"}))
	require.ErrorIs(t, e.Process(SelectDeviceMsg{Serial: "nope"}), domain.ErrUnknownDevice)

	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{
		{Serial: "00000002", Label: "second"},
		{Serial: "00000003", Label: "third"},
	}}))
	require.Equal(t, "00000002", e.Snapshot().Selected, "Selection survives a refresh while present")

	require.NoError(t, e.Process(ConnectDeviceMsg{Serial: "00000003", Connect: true}))
	require.NoError(t, e.Process(DevicesMsg{Handles: []domain.DeviceHandle{{Serial: "00000003"}}}))
	require.Equal(t, "00000003", e.Snapshot().Selected)

	request(t, e, &fm987)
	require.Equal(t, "00000003", rec.last().serial)
	require.ErrorIs(t, e.Process(ConnectDeviceMsg{Serial: "00000003", Connect: false}), domain.ErrDeviceBusy)
}

func TestEngine_MetadataForwarded(t *testing.T) {
	e, rec := newTestEngine(t)
	var got []map[string]string
	e.OnMetadata(func(kind domain.Kind, metadata map[string]string) {
		require.Equal(t, domain.KindHDRadio, kind)
		got = append(got, metadata)
	})

	request(t, e, &hd1015c)
	ackLast(t, e, rec)
	md := map[string]string{"title": "Song", "artist": "Band"}
	require.NoError(t, e.Process(BackendEventMsg{Event: ports.MetadataEvent(domain.KindHDRadio, md)}))

	require.Equal(t, []map[string]string{md}, got)
	require.Equal(t, "Band", e.Snapshot().Session(domain.KindHDRadio).Metadata["artist"])
}

func TestEngine_Subscribe(t *testing.T) {
	e, rec := newTestEngine(t)
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	first := <-ch
	request(t, e, &fm987)
	ackLast(t, e, rec)

	latest := <-ch
	require.Greater(t, latest.Version, first.Version)
	require.Equal(t, domain.Running, latest.Session(domain.KindFM).State)
}

func TestEngine_ListeningTime(t *testing.T) {
	e, rec := newTestEngine(t)
	require.NoError(t, e.Process(TickMsg{Elapsed: 5}))
	require.Zero(t, e.Snapshot().ListeningTime)

	request(t, e, &fm987)
	ackLast(t, e, rec)
	require.NoError(t, e.Process(TickMsg{Elapsed: 5}))
	require.NoError(t, e.Process(TickMsg{Elapsed: 5}))
	require.EqualValues(t, 10, e.Snapshot().ListeningTime)
}
