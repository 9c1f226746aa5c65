package binding

import (
	"context"
	"sync"

	"github.com/CandidSocials/candidWebApp/internal/chat"
	"github.com/CandidSocials/candidWebApp/internal/store"
)

// MessageThread holds one room's visible messages, ascending in time,
// with live inserts and edits applied as they arrive. Opening a thread
// acknowledges delivery of the peer's pending messages.
type MessageThread struct {
	svc    *chat.Service
	roomID string
	userID string
	limit  int

	mu      sync.RWMutex
	msgs    []store.Message
	hasMore bool
	err     error
	cancel  func()

	refreshCh chan struct{}
}

// NewMessageThread creates an unbound thread for one room viewed by
// one user. limit bounds each history page; zero uses the service
// default. The limit is resolved here so a full page can always be
// told apart from the end of history.
func NewMessageThread(svc *chat.Service, roomID, userID string, limit int) *MessageThread {
	if limit <= 0 {
		limit = svc.PageSize()
	}
	return &MessageThread{
		svc:       svc,
		roomID:    roomID,
		userID:    userID,
		limit:     limit,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a changed snapshot.
func (mt *MessageThread) RefreshCh() <-chan struct{} {
	return mt.refreshCh
}

// Bind loads the newest page, subscribes to the room's change feed and
// marks the viewer's pending messages delivered.
func (mt *MessageThread) Bind(ctx context.Context) error {
	page, err := mt.svc.GetMessages(ctx, mt.roomID, mt.userID, store.Page{Limit: mt.limit})
	if err != nil {
		return err
	}
	mt.mu.Lock()
	mt.msgs = page
	mt.hasMore = len(page) == mt.limit
	mt.mu.Unlock()

	cancel, err := mt.svc.SubscribeToRoom(mt.roomID, mt.userID, mt.apply)
	if err != nil {
		return err
	}
	mt.mu.Lock()
	mt.cancel = cancel
	mt.mu.Unlock()

	// The sender sees "delivered" as soon as the peer's thread opens.
	if err := mt.svc.MarkDelivered(ctx, mt.roomID, mt.userID); err != nil {
		mt.mu.Lock()
		mt.err = err
		mt.mu.Unlock()
	}
	signal(mt.refreshCh)
	return nil
}

// Unbind cancels the subscription. Safe to call without Bind.
func (mt *MessageThread) Unbind() {
	mt.mu.Lock()
	cancel := mt.cancel
	mt.cancel = nil
	mt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// LoadOlder prepends the page preceding the oldest visible message.
// It reports whether still older history may exist.
func (mt *MessageThread) LoadOlder(ctx context.Context) (bool, error) {
	mt.mu.RLock()
	var before *store.Cursor
	if len(mt.msgs) > 0 {
		before = &store.Cursor{At: mt.msgs[0].CreatedAt, ID: mt.msgs[0].ID}
	}
	mt.mu.RUnlock()

	page, err := mt.svc.GetMessages(ctx, mt.roomID, mt.userID, store.Page{Limit: mt.limit, Before: before})
	if err != nil {
		return false, err
	}

	mt.mu.Lock()
	mt.msgs = append(append([]store.Message{}, page...), mt.msgs...)
	mt.hasMore = len(page) == mt.limit
	more := mt.hasMore
	mt.mu.Unlock()
	signal(mt.refreshCh)
	return more, nil
}

// Send posts a message to the bound room as the viewing user.
func (mt *MessageThread) Send(ctx context.Context, content string) (*store.Message, error) {
	return mt.svc.SendMessage(ctx, mt.roomID, mt.userID, content)
}

// MarkRead acknowledges everything currently visible.
func (mt *MessageThread) MarkRead(ctx context.Context) error {
	mt.mu.RLock()
	var upTo int64
	if n := len(mt.msgs); n > 0 {
		upTo = mt.msgs[n-1].CreatedAt
	}
	mt.mu.RUnlock()
	if upTo == 0 {
		return nil
	}
	return mt.svc.MarkRead(ctx, mt.roomID, mt.userID, upTo)
}

// Messages returns the current snapshot.
func (mt *MessageThread) Messages() []store.Message {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.msgs
}

// HasMore reports whether the last history page was full, meaning
// older rows may exist.
func (mt *MessageThread) HasMore() bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.hasMore
}

// Err returns the last background error, if any.
func (mt *MessageThread) Err() error {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.err
}

// apply folds one change event into the snapshot. Inserts append;
// updates (edits, tombstones, status advances) replace in place.
func (mt *MessageThread) apply(c store.MessageChange) {
	mt.mu.Lock()
	replaced := false
	for i := range mt.msgs {
		if mt.msgs[i].ID == c.Message.ID {
			mt.msgs[i] = c.Message
			replaced = true
			break
		}
	}
	if !replaced && c.Op == "insert" {
		mt.msgs = append(mt.msgs, c.Message)
	}
	mt.mu.Unlock()
	signal(mt.refreshCh)
}
