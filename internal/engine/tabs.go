package engine

import (
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/session"
)

// Tabs keeps the visible tab in line with the device. The backend wins over
// the user: confirmed activity always pulls the tab to its kind, and a click
// away from an active stream first asks for silence.
type Tabs struct {
	visible  domain.Kind
	deferred *domain.Kind
}

func NewTabs(initial domain.Kind) *Tabs {
	return &Tabs{visible: initial}
}

func (t *Tabs) Visible() domain.Kind { return t.visible }

// Deferred is the tab the user clicked that waits for every session to stop.
func (t *Tabs) Deferred() *domain.Kind {
	if t.deferred == nil {
		return nil
	}
	k := *t.deferred
	return &k
}

// Click applies a tab click. It returns true when the controller must be
// asked to stop everything before the switch can happen.
func (t *Tabs) Click(kind domain.Kind, sessions map[domain.Kind]*session.Session) bool {
	if allStopped(sessions) {
		t.visible = kind
		t.deferred = nil
		return false
	}
	if kind == t.visible && t.deferred == nil {
		return false
	}
	t.deferred = &kind
	return true
}

// Cancel drops a deferred switch; a fresh request supersedes it.
func (t *Tabs) Cancel() { t.deferred = nil }

// Sync follows the sessions after any change.
func (t *Tabs) Sync(sessions map[domain.Kind]*session.Session) {
	for _, k := range domain.Kinds {
		s, ok := sessions[k]
		if !ok {
			continue
		}
		if s.State() == domain.Running || (s.State() == domain.Starting && s.Confirmed()) {
			t.visible = k
			return
		}
	}
	if t.deferred != nil && allStopped(sessions) {
		t.visible = *t.deferred
		t.deferred = nil
	}
}

func allStopped(sessions map[domain.Kind]*session.Session) bool {
	for _, s := range sessions {
		if s.State() != domain.Stopped {
			return false
		}
	}
	return true
}
