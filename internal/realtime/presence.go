package realtime

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/google/uuid"
)

// Member is an ephemeral presence record. Never persisted; its
// lifecycle is bound to the join/leave pair that announced it.
type Member struct {
	UserID   string
	FullName string
	OnlineAt int64
}

// Sync is the authoritative full-state snapshot broadcast on every
// membership change. Consumers rebuild their online set from it
// instead of accumulating joins and leaves.
type Sync struct {
	Scope   string
	Members []Member
}

// Presence is the presence channel hub. Each join is tracked by an
// opaque ref so one user open in two views registers twice and stays
// online until the last ref leaves.
type Presence struct {
	bus    *bus.Bus
	mu     sync.Mutex
	scopes map[string]map[string]Member // scope -> ref -> member
}

// NewPresence creates a presence hub over the given bus.
func NewPresence(b *bus.Bus) *Presence {
	return &Presence{
		bus:    b,
		scopes: make(map[string]map[string]Member),
	}
}

// Join announces a member on a scope and returns the tracking ref to
// leave with. A sync snapshot is broadcast immediately.
func (p *Presence) Join(scope string, m Member) string {
	ref := uuid.NewString()
	p.mu.Lock()
	refs, ok := p.scopes[scope]
	if !ok {
		refs = make(map[string]Member)
		p.scopes[scope] = refs
	}
	refs[ref] = m
	snapshot := p.snapshotLocked(scope)
	p.mu.Unlock()

	p.broadcast(scope, snapshot)
	return ref
}

// Leave removes a ref from a scope and broadcasts the new snapshot.
// Unknown refs and scopes are ignored, so teardown paths can call it
// unconditionally.
func (p *Presence) Leave(scope, ref string) {
	p.mu.Lock()
	refs, ok := p.scopes[scope]
	if ok {
		delete(refs, ref)
		if len(refs) == 0 {
			delete(p.scopes, scope)
		}
	}
	snapshot := p.snapshotLocked(scope)
	p.mu.Unlock()

	if ok {
		p.broadcast(scope, snapshot)
	}
}

// Snapshot returns the current members of a scope, one entry per user.
func (p *Presence) Snapshot(scope string) []Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(scope)
}

// SubscribeSync streams full-state snapshots for a scope. The current
// snapshot is delivered once on subscribe so a late joiner does not
// wait for the next membership change.
func (p *Presence) SubscribeSync(scope string, fn func(Sync)) (func(), error) {
	if p.bus == nil {
		return nil, &chaterr.SubscriptionError{Channel: bus.PresenceTopic(scope), Err: errors.New("no realtime channel")}
	}
	ch, unsub := p.bus.Subscribe(bus.PresenceTopic(scope), subscribeBuf)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-ch:
				if s, ok := evt.Payload.(Sync); ok {
					fn(s)
				}
			case <-done:
				return
			}
		}
	}()

	fn(Sync{Scope: scope, Members: p.Snapshot(scope)})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}, nil
}

// snapshotLocked collapses refs into one member per user id, keeping
// the earliest online-at. Caller holds p.mu.
func (p *Presence) snapshotLocked(scope string) []Member {
	byUser := make(map[string]Member)
	for _, m := range p.scopes[scope] {
		if prev, ok := byUser[m.UserID]; !ok || m.OnlineAt < prev.OnlineAt {
			byUser[m.UserID] = m
		}
	}
	members := make([]Member, 0, len(byUser))
	for _, m := range byUser {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

func (p *Presence) broadcast(scope string, members []Member) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(bus.Event{
		Topic:     bus.PresenceTopic(scope),
		Timestamp: time.Now(),
		Payload:   Sync{Scope: scope, Members: members},
	})
}
