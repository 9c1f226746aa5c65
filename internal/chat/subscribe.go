package chat

import (
	"errors"

	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/CandidSocials/candidWebApp/internal/store"
)

var errClosed = errors.New("service closed")

// sub wraps a feed cancel so a stale caller-held cancel can be told
// apart from the live one.
type sub struct {
	cancel func()
}

// SubscribeToRoom opens the room's live message feed. Inserts are
// pushed into the cached page with the same dedupe-by-id rule as the
// fetch path, then forwarded to onEvent. At most one underlying feed
// subscription exists per room; subscribing again replaces the
// previous one. The returned cancel is idempotent and safe from any
// teardown path.
func (s *Service) SubscribeToRoom(roomID, userID string, onEvent func(store.MessageChange)) (func(), error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(roomID, userID); err != nil {
		return nil, err
	}

	cancelFeed, err := s.feed.SubscribeMessages(roomID, func(change store.MessageChange) {
		// The service alone writes cache state; the feed callback runs
		// in the adapter's goroutine but the mutation happens here.
		s.cache.AppendMessage(roomID, change.Message)
		onEvent(change)
	})
	if err != nil {
		return nil, err
	}

	handle := &sub{cancel: cancelFeed}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancelFeed()
		return nil, &chaterr.SubscriptionError{Channel: roomID, Err: errClosed}
	}
	if prev, ok := s.roomSubs[roomID]; ok {
		prev.cancel()
	}
	s.roomSubs[roomID] = handle
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		// A stale cancel must not unhook a replacement subscription.
		if s.roomSubs[roomID] == handle {
			delete(s.roomSubs, roomID)
		}
		s.mu.Unlock()
		cancelFeed()
	}, nil
}

// SubscribeToRooms opens the user's room-list feed. A room-list change
// can touch attributes the caller has no local copy of (another
// participant's read state), so the handler invalidates rather than
// appends, and the next GetRooms re-fetches.
func (s *Service) SubscribeToRooms(userID string, onEvent func(store.RoomChange)) (func(), error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}

	cancelFeed, err := s.feed.SubscribeRooms(userID, func(change store.RoomChange) {
		s.cache.InvalidateUser(userID)
		onEvent(change)
	})
	if err != nil {
		return nil, err
	}

	handle := &sub{cancel: cancelFeed}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancelFeed()
		return nil, &chaterr.SubscriptionError{Channel: userID, Err: errClosed}
	}
	if prev, ok := s.roomListSubs[userID]; ok {
		prev.cancel()
	}
	s.roomListSubs[userID] = handle
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.roomListSubs[userID] == handle {
			delete(s.roomListSubs, userID)
		}
		s.mu.Unlock()
		cancelFeed()
	}, nil
}

// Close cancels every open subscription and clears the cache. Safe to
// call twice.
func (s *Service) Close() {
	s.mu.Lock()
	subs := make([]*sub, 0, len(s.roomSubs)+len(s.roomListSubs))
	for _, h := range s.roomSubs {
		subs = append(subs, h)
	}
	for _, h := range s.roomListSubs {
		subs = append(subs, h)
	}
	s.roomSubs = make(map[string]*sub)
	s.roomListSubs = make(map[string]*sub)
	s.closed = true
	s.mu.Unlock()

	for _, h := range subs {
		h.cancel()
	}
	s.cache.Clear()
}
