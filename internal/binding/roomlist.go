package binding

import (
	"context"
	"sync"

	"github.com/CandidSocials/candidWebApp/internal/chat"
	"github.com/CandidSocials/candidWebApp/internal/store"
)

// RoomList holds one user's room list, newest activity first, and
// keeps it current by reloading on every room change event.
type RoomList struct {
	svc    *chat.Service
	userID string

	mu     sync.RWMutex
	rooms  []store.Room
	err    error
	cancel func()

	refreshCh chan struct{}
}

// NewRoomList creates an unbound room list for the given user.
func NewRoomList(svc *chat.Service, userID string) *RoomList {
	return &RoomList{
		svc:       svc,
		userID:    userID,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a changed snapshot.
func (rl *RoomList) RefreshCh() <-chan struct{} {
	return rl.refreshCh
}

// Bind loads the list and subscribes to the user's room changes. Rooms
// created or touched by any participant after this point show up
// without another Bind.
func (rl *RoomList) Bind(ctx context.Context) error {
	if err := rl.Load(ctx); err != nil {
		return err
	}
	cancel, err := rl.svc.SubscribeToRooms(rl.userID, func(store.RoomChange) {
		// The event only says something changed; the reload carries
		// the actual ordering, unread counts and previews.
		rl.reload(ctx)
	})
	if err != nil {
		return err
	}
	rl.mu.Lock()
	rl.cancel = cancel
	rl.mu.Unlock()
	return nil
}

// Unbind cancels the subscription. Safe to call without Bind.
func (rl *RoomList) Unbind() {
	rl.mu.Lock()
	cancel := rl.cancel
	rl.cancel = nil
	rl.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Load fetches the first page of rooms.
func (rl *RoomList) Load(ctx context.Context) error {
	rooms, err := rl.svc.GetRooms(ctx, rl.userID, 0, 0)
	if err != nil {
		return err
	}
	rl.mu.Lock()
	rl.rooms = rooms
	rl.err = nil
	rl.mu.Unlock()
	signal(rl.refreshCh)
	return nil
}

func (rl *RoomList) reload(ctx context.Context) {
	if err := rl.Load(ctx); err != nil {
		rl.mu.Lock()
		rl.err = err
		rl.mu.Unlock()
		signal(rl.refreshCh)
	}
}

// Rooms returns the current snapshot.
func (rl *RoomList) Rooms() []store.Room {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.rooms
}

// Err returns the last background reload error, if any.
func (rl *RoomList) Err() error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.err
}

// TotalUnread sums unread counts across the snapshot.
func (rl *RoomList) TotalUnread() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	total := 0
	for i := range rl.rooms {
		total += rl.rooms[i].UnreadCount
	}
	return total
}
