package binding

import (
	"sort"
	"sync"

	"github.com/CandidSocials/candidWebApp/internal/presence"
	"github.com/CandidSocials/candidWebApp/internal/realtime"
)

// OnlineUsers mirrors a presence tracker's online set for display,
// sorted by user id, and forwards its change signal.
type OnlineUsers struct {
	tracker *presence.Tracker

	mu   sync.RWMutex
	stop chan struct{}
	done chan struct{}

	refreshCh chan struct{}
}

// NewOnlineUsers creates an unbound binding over the tracker.
func NewOnlineUsers(tracker *presence.Tracker) *OnlineUsers {
	return &OnlineUsers{
		tracker:   tracker,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a changed set.
func (ou *OnlineUsers) RefreshCh() <-chan struct{} {
	return ou.refreshCh
}

// Bind starts forwarding the tracker's change signal. Calling Bind on
// an already bound instance is a no-op.
func (ou *OnlineUsers) Bind() {
	ou.mu.Lock()
	defer ou.mu.Unlock()
	if ou.stop != nil {
		return
	}
	ou.stop = make(chan struct{})
	ou.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ou.tracker.Changes():
				signal(ou.refreshCh)
			case <-stop:
				return
			}
		}
	}(ou.stop, ou.done)
	signal(ou.refreshCh)
}

// Unbind stops forwarding. Safe to call without Bind.
func (ou *OnlineUsers) Unbind() {
	ou.mu.Lock()
	stop, done := ou.stop, ou.done
	ou.stop, ou.done = nil, nil
	ou.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// Users returns the online members sorted by user id.
func (ou *OnlineUsers) Users() []realtime.Member {
	members := ou.tracker.OnlineUsers()
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

// IsOnline reports whether the given user is announced.
func (ou *OnlineUsers) IsOnline(userID string) bool {
	return ou.tracker.Online(userID)
}
