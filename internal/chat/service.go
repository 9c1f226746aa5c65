// Package chat is the orchestration core: room creation, message
// send/fetch, read state, and subscription management. The service is
// the only component that writes cache entries; the adapters below it
// never touch the cache.
package chat

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/CandidSocials/candidWebApp/internal/cache"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/CandidSocials/candidWebApp/internal/identity"
	"github.com/CandidSocials/candidWebApp/internal/realtime"
	"github.com/CandidSocials/candidWebApp/internal/store"
)

// DefaultPageSize caps a message fetch when the caller does not.
const DefaultPageSize = 50

// Service exposes the chat operations to the view-binding layer.
// Construct exactly one per workspace and share it.
type Service struct {
	db       *store.DB
	cache    *cache.Cache
	feed     *realtime.Feed
	ident    identity.Provider
	logger   *zap.Logger
	pageSize int

	mu           sync.Mutex
	roomSubs     map[string]*sub // room id -> live subscription
	roomListSubs map[string]*sub // user id -> live subscription
	closed       bool
}

// NewService wires the service over its adapters. logger may be nil;
// pageSize <= 0 selects DefaultPageSize.
func NewService(db *store.DB, c *cache.Cache, feed *realtime.Feed, ident identity.Provider, pageSize int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		db:           db,
		cache:        c,
		feed:         feed,
		ident:        ident,
		logger:       logger,
		pageSize:     pageSize,
		roomSubs:     make(map[string]*sub),
		roomListSubs: make(map[string]*sub),
	}
}

// PageSize returns the effective page limit applied when a caller
// does not set one.
func (s *Service) PageSize() int {
	return s.pageSize
}

// requireUser refuses operations when the host has no authenticated
// user.
func (s *Service) requireUser() (identity.User, error) {
	u, ok := s.ident.CurrentUser()
	if !ok {
		return identity.User{}, &chaterr.ValidationError{Field: "user", Reason: "no authenticated user"}
	}
	return u, nil
}

// requireParticipant conflates missing rooms and rooms the user cannot
// see into one NotFound.
func (s *Service) requireParticipant(roomID, userID string) error {
	ok, err := s.db.IsParticipant(roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &chaterr.NotFoundError{Kind: "room", ID: roomID}
	}
	return nil
}

// CreateRoom returns the direct room for the pair, creating it when
// absent. Idempotent: a second call, or a concurrent call losing the
// insert race, lands on the same room.
func (s *Service) CreateRoom(_ context.Context, applicationRef, userA, userB string) (*store.Room, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	if existing, err := s.db.FindDirectRoom(userA, userB); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	r, err := s.db.CreateDirectRoom(applicationRef, userA, userB)
	if chaterr.IsConflict(err) {
		// Lost the race; the room exists now. Recover by re-fetching
		// instead of surfacing the constraint violation.
		r, err = s.db.FindDirectRoom(userA, userB)
		if err == nil && r == nil {
			return nil, &chaterr.NotFoundError{Kind: "room", ID: store.PairKey(userA, userB)}
		}
	}
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateUser(userA)
	s.cache.InvalidateUser(userB)
	return r, nil
}

// SendMessage validates, persists and returns one message. On success
// the new row is appended to the room's cached page directly; the
// sender already knows the full message, so a re-fetch would be
// wasted. The room's updated_at/last_message touch is bookkeeping: if
// it fails after the insert succeeded, the send still counts and the
// failure is only logged.
func (s *Service) SendMessage(_ context.Context, roomID, senderID, content string) (*store.Message, error) {
	u, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if senderID == "" {
		senderID = u.ID
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &chaterr.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if roomID == "" {
		return nil, &chaterr.ValidationError{Field: "room_id", Reason: "must not be empty"}
	}
	if err := s.requireParticipant(roomID, senderID); err != nil {
		return nil, err
	}

	m := &store.Message{RoomID: roomID, SenderID: senderID, Content: content}
	if err := s.db.InsertMessage(m); err != nil {
		// Surface with the content preserved so the caller can retry
		// without retyping.
		return m, err
	}

	if err := s.db.TouchRoom(roomID, store.LastMessage{
		ID: m.ID, Content: m.Content, At: m.CreatedAt, SenderID: m.SenderID,
	}); err != nil {
		s.logger.Warn("room touch failed after send",
			zap.String("room_id", roomID),
			zap.String("message_id", m.ID),
			zap.Error(err))
	}

	s.cache.AppendMessage(roomID, *m)
	return m, nil
}

// GetMessages returns a page of a room's messages ascending in
// (created_at, id). Cursorless calls are served from a fresh cache
// entry when one exists; cursor-bounded history fetches always bypass
// the cache. A page of exactly Limit rows means older rows may exist.
func (s *Service) GetMessages(_ context.Context, roomID, userID string, p store.Page) ([]store.Message, error) {
	if err := s.requireParticipant(roomID, userID); err != nil {
		return nil, err
	}
	if p.Limit <= 0 || p.Limit > s.pageSize {
		p.Limit = s.pageSize
	}

	initial := p.Before == nil && p.After == nil
	if initial {
		if cached := s.cache.Messages(roomID); cached != nil {
			return cached, nil
		}
	}

	msgs, err := s.db.ListMessages(roomID, p)
	if err != nil {
		return nil, err
	}
	if initial {
		s.cache.SetMessages(roomID, msgs)
	}
	return msgs, nil
}

// GetRooms returns the user's rooms, newest activity first,
// cache-first for the initial page.
func (s *Service) GetRooms(_ context.Context, userID string, limit, offset int) ([]store.Room, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	initial := offset == 0
	if initial {
		if cached := s.cache.Rooms(userID); cached != nil {
			return cached, nil
		}
	}

	rooms, err := s.db.ListRooms(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if initial {
		s.cache.SetRooms(userID, rooms)
	}
	return rooms, nil
}

// GetRoom returns one room visible to userID, participants and unread
// count hydrated.
func (s *Service) GetRoom(_ context.Context, roomID, userID string) (*store.Room, error) {
	return s.db.GetRoom(roomID, userID)
}

// MarkRead advances userID's read watermark and flips the covered
// messages to read. The room's cached page is invalidated so the next
// fetch reflects the new statuses.
func (s *Service) MarkRead(_ context.Context, roomID, userID string, upTo int64) error {
	if err := s.requireParticipant(roomID, userID); err != nil {
		return err
	}
	if err := s.db.MarkReadUpTo(roomID, userID, upTo); err != nil {
		return err
	}
	s.cache.InvalidateRoom(roomID)
	s.cache.InvalidateUser(userID)
	return nil
}

// MarkDelivered acknowledges receipt of the room's pending messages
// for userID. Called by the view layer when a live subscription first
// renders them.
func (s *Service) MarkDelivered(_ context.Context, roomID, userID string) error {
	if err := s.requireParticipant(roomID, userID); err != nil {
		return err
	}
	if err := s.db.MarkDelivered(roomID, userID); err != nil {
		return err
	}
	s.cache.InvalidateRoom(roomID)
	return nil
}

// EditMessage replaces a message's content; sender-only.
func (s *Service) EditMessage(_ context.Context, roomID, msgID, senderID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &chaterr.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	m, err := s.db.EditMessage(roomID, msgID, senderID, content)
	if err != nil {
		return nil, err
	}
	// Replaces in place when the page is cached; no-op otherwise.
	s.cache.AppendMessage(roomID, *m)
	return m, nil
}

// DeleteMessage tombstones a message; sender-only. The row survives so
// ordering and cursors stay stable.
func (s *Service) DeleteMessage(_ context.Context, roomID, msgID, senderID string) error {
	if err := s.db.DeleteMessage(roomID, msgID, senderID); err != nil {
		return err
	}
	s.cache.InvalidateRoom(roomID)
	return nil
}

// SetRoomStatus archives, closes, or reactivates a room. Explicit
// action is the only path out of active.
func (s *Service) SetRoomStatus(_ context.Context, roomID, userID string, rs store.RoomStatus) error {
	if err := s.requireParticipant(roomID, userID); err != nil {
		return err
	}
	return s.db.SetRoomStatus(roomID, rs)
}
