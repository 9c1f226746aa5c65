package store

import "github.com/CandidSocials/candidWebApp/internal/status"

// RoomType distinguishes pairwise conversations from group scopes.
type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// RoomStatus is a room lifecycle state. Rooms leave "active" only by
// explicit action, never silently.
type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomArchived RoomStatus = "archived"
	RoomClosed   RoomStatus = "closed"
)

// Room is the canonical conversation shape. Every query result is
// normalized into it, whatever shape the row came back in.
type Room struct {
	ID             string
	Name           string
	Type           RoomType
	Status         RoomStatus
	ApplicationRef string
	CreatedAt      int64 // unix ms
	UpdatedAt      int64
	LastMessage    *LastMessage
	Participants   []Participant
	UnreadCount    int
}

// LastMessage is the denormalized snapshot kept on the room row so
// list rendering never joins against chat_messages.
type LastMessage struct {
	ID       string
	Content  string
	At       int64
	SenderID string
}

// Participant is a membership record. (RoomID, UserID) is unique.
type Participant struct {
	RoomID     string
	UserID     string
	JoinedAt   int64
	LastReadAt int64
	Role       string
	FullName   string
}

// Message is the canonical message shape. Rows are append-only; edits
// set IsEdited, deletes are tombstones so ordering and cursors stay
// stable.
type Message struct {
	ID            string
	RoomID        string
	SenderID      string
	SenderName    string
	Content       string
	Type          string // "text" in the base case
	Status        status.Status
	CreatedAt     int64 // unix ms
	UpdatedAt     int64
	IsEdited      bool
	IsDeleted     bool
	AttachmentRef string
}

// Cursor is a keyset pagination position. Messages in a room are
// totally ordered by (CreatedAt, ID); the id breaks ties between
// messages sharing a millisecond.
type Cursor struct {
	At int64
	ID string
}

// Page bounds a message fetch. A nil Before/After means unbounded on
// that side. Results come back ascending regardless of which bound
// was used.
type Page struct {
	Before *Cursor
	After  *Cursor
	Limit  int
}

// MessageChange is the payload of a chat_messages change-feed event.
type MessageChange struct {
	Op      string // "insert" or "update"
	Message Message
}

// RoomChange is the payload of a rooms change-feed event, addressed to
// one participant.
type RoomChange struct {
	Op     string // "insert" or "update"
	RoomID string
	UserID string
}
