// Package presence maintains the local user's online announcement and
// the derived set of users currently online in a scope.
package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CandidSocials/candidWebApp/internal/identity"
	"github.com/CandidSocials/candidWebApp/internal/profile"
	"github.com/CandidSocials/candidWebApp/internal/realtime"
)

// Tracker joins one presence scope on behalf of the current user and
// keeps an online-user set rebuilt from every sync snapshot. The set is
// never updated incrementally; missed events cannot leave a ghost
// entry behind.
type Tracker struct {
	hub      *realtime.Presence
	ident    identity.Provider
	resolver *profile.Resolver
	logger   *zap.Logger
	scope    string

	mu       sync.Mutex
	online   map[string]realtime.Member
	ref      string
	cancel   func()
	started  bool
	changeCh chan struct{}
}

// NewTracker creates a tracker for the given scope. Start must be
// called before the online set is populated.
func NewTracker(hub *realtime.Presence, ident identity.Provider, resolver *profile.Resolver, scope string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		hub:      hub,
		ident:    ident,
		resolver: resolver,
		logger:   logger,
		scope:    scope,
		online:   make(map[string]realtime.Member),
		changeCh: make(chan struct{}, 1),
	}
}

// Start subscribes to the scope's sync stream and, when a user is
// authenticated, announces them. Calling Start twice is a no-op.
func (t *Tracker) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	cancel, err := t.hub.SubscribeSync(t.scope, t.apply)
	if err != nil {
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	u, ok := t.ident.CurrentUser()
	if !ok {
		// Anonymous sessions observe presence without announcing.
		t.logger.Debug("presence tracking without announcement", zap.String("scope", t.scope))
		return nil
	}

	ref := t.hub.Join(t.scope, realtime.Member{
		UserID:   u.ID,
		FullName: t.resolver.DisplayName(u.ID),
		OnlineAt: time.Now().UnixMilli(),
	})
	t.mu.Lock()
	t.ref = ref
	t.mu.Unlock()
	return nil
}

// Stop withdraws the announcement and stops tracking. Safe to call
// more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	ref := t.ref
	cancel := t.cancel
	t.ref = ""
	t.cancel = nil
	t.started = false
	t.mu.Unlock()

	if ref != "" {
		t.hub.Leave(t.scope, ref)
	}
	if cancel != nil {
		cancel()
	}
}

// Online reports whether the given user is currently announced.
func (t *Tracker) Online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineUsers returns the current set, one member per user.
func (t *Tracker) OnlineUsers() []realtime.Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	members := make([]realtime.Member, 0, len(t.online))
	for _, m := range t.online {
		members = append(members, m)
	}
	return members
}

// Changes returns a signal channel with one slot. A pending signal
// means the set changed at least once since the last receive.
func (t *Tracker) Changes() <-chan struct{} {
	return t.changeCh
}

// apply replaces the whole online set with the snapshot's contents.
func (t *Tracker) apply(s realtime.Sync) {
	next := make(map[string]realtime.Member, len(s.Members))
	for _, m := range s.Members {
		next[m.UserID] = m
	}

	t.mu.Lock()
	t.online = next
	t.mu.Unlock()

	select {
	case t.changeCh <- struct{}{}:
	default:
	}
}
