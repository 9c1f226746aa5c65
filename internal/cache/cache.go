// Package cache is the time-boxed store of message pages and room
// lists. An entry past its TTL is absent, not stale-but-served: expiry
// is checked lazily on read and expired reads fall through to the
// persistence adapter. Only the chat service writes here.
package cache

import (
	"sync"
	"time"

	"github.com/CandidSocials/candidWebApp/internal/store"
)

type entry[T any] struct {
	data      []T
	timestamp time.Time
}

// Cache holds the initial message page per room and the room list per
// user. Paged historical fetches bypass it entirely, so it stays
// bounded without an eviction policy beyond the TTL.
type Cache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	messages map[string]*entry[store.Message]
	rooms    map[string]*entry[store.Room]
}

// DefaultTTL is the freshness window used when the config does not
// set one.
const DefaultTTL = 5 * time.Minute

// New creates a cache with the given TTL; ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:      ttl,
		now:      time.Now,
		messages: make(map[string]*entry[store.Message]),
		rooms:    make(map[string]*entry[store.Room]),
	}
}

func (c *Cache) expired(e time.Time) bool {
	return c.now().Sub(e) > c.ttl
}

// Messages returns the cached initial page for a room, or nil when
// absent or expired.
func (c *Cache) Messages(roomID string) []store.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.messages[roomID]
	if !ok || c.expired(e.timestamp) {
		return nil
	}
	out := make([]store.Message, len(e.data))
	copy(out, e.data)
	return out
}

// SetMessages stores the initial page for a room.
func (c *Cache) SetMessages(roomID string, msgs []store.Message) {
	data := make([]store.Message, len(msgs))
	copy(data, msgs)
	c.mu.Lock()
	c.messages[roomID] = &entry[store.Message]{data: data, timestamp: c.now()}
	c.mu.Unlock()
}

// AppendMessage adds one message to a room's cached page, deduplicating
// by id: a message already present is replaced in place, so overlapping
// delivery paths (own send, change feed) converge on one entry. Appends
// to an absent or expired entry are no-ops; resurrecting a page the
// store no longer backs would serve an incomplete history.
func (c *Cache) AppendMessage(roomID string, m store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[roomID]
	if !ok || c.expired(e.timestamp) {
		return
	}
	for i := range e.data {
		if e.data[i].ID == m.ID {
			e.data[i] = m
			e.timestamp = c.now()
			return
		}
	}
	e.data = append(e.data, m)
	e.timestamp = c.now()
}

// Rooms returns the cached room list for a user, or nil when absent or
// expired.
func (c *Cache) Rooms(userID string) []store.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rooms[userID]
	if !ok || c.expired(e.timestamp) {
		return nil
	}
	out := make([]store.Room, len(e.data))
	copy(out, e.data)
	return out
}

// SetRooms stores the room list for a user.
func (c *Cache) SetRooms(userID string, rooms []store.Room) {
	data := make([]store.Room, len(rooms))
	copy(data, rooms)
	c.mu.Lock()
	c.rooms[userID] = &entry[store.Room]{data: data, timestamp: c.now()}
	c.mu.Unlock()
}

// InvalidateRoom drops a room's cached message page.
func (c *Cache) InvalidateRoom(roomID string) {
	c.mu.Lock()
	delete(c.messages, roomID)
	c.mu.Unlock()
}

// InvalidateUser drops a user's cached room list.
func (c *Cache) InvalidateUser(userID string) {
	c.mu.Lock()
	delete(c.rooms, userID)
	c.mu.Unlock()
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.messages = make(map[string]*entry[store.Message])
	c.rooms = make(map[string]*entry[store.Room])
	c.mu.Unlock()
}

// SetClock overrides the cache's time source. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
