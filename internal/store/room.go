package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PairKey returns the canonical identity of a direct room: the two
// user ids sorted and joined, so the pair is unordered.
func PairKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

const roomCols = `id, name, type, status, application_ref, created_at, updated_at,
	last_message_id, last_message_content, last_message_at, last_message_sender`

// scanRoom normalizes a rooms row into the canonical Room shape. This
// is the single translation point for room-shaped query results.
func scanRoom(row interface{ Scan(...any) error }) (*Room, error) {
	var r Room
	var lmID, lmContent, lmSender string
	var lmAt int64
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.Status, &r.ApplicationRef,
		&r.CreatedAt, &r.UpdatedAt, &lmID, &lmContent, &lmAt, &lmSender)
	if err != nil {
		return nil, err
	}
	if lmID != "" {
		r.LastMessage = &LastMessage{ID: lmID, Content: lmContent, At: lmAt, SenderID: lmSender}
	}
	return &r, nil
}

// CreateDirectRoom inserts a direct room for the unordered pair plus
// both membership rows, in one transaction. A concurrent insert for
// the same pair surfaces as a conflict PersistenceError; the service
// recovers by re-fetching.
func (db *DB) CreateDirectRoom(applicationRef, userA, userB string) (*Room, error) {
	if userA == userB {
		return nil, &chaterr.ValidationError{Field: "participants", Reason: "must be two distinct users"}
	}
	now := nowMilli()
	r := &Room{
		ID:             uuid.NewString(),
		Type:           RoomDirect,
		Status:         RoomActive,
		ApplicationRef: applicationRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, wrapErr("create room", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO rooms (id, name, type, status, application_ref, pair_key, created_at, updated_at)
		VALUES (?, '', ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.Status, r.ApplicationRef, PairKey(userA, userB), now, now)
	if err != nil {
		return nil, wrapErr("create room", err)
	}
	for _, userID := range []string{userA, userB} {
		if _, err := tx.Exec(`
			INSERT INTO room_participants (room_id, user_id, joined_at)
			VALUES (?, ?, ?)`, r.ID, userID, now); err != nil {
			return nil, wrapErr("create room participant", err)
		}
		r.Participants = append(r.Participants, Participant{RoomID: r.ID, UserID: userID, JoinedAt: now, Role: "member"})
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr("create room", err)
	}

	for _, userID := range []string{userA, userB} {
		db.publish(bus.RoomChangeTopic(userID), RoomChange{Op: "insert", RoomID: r.ID, UserID: userID})
	}
	return r, nil
}

// FindDirectRoom looks up the direct room for an unordered pair.
// Returns nil, nil when no such room exists.
func (db *DB) FindDirectRoom(userA, userB string) (*Room, error) {
	row := db.QueryRow(`SELECT `+roomCols+` FROM rooms WHERE pair_key = ?`, PairKey(userA, userB))
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find direct room", err)
	}
	if err := db.hydrateParticipants(r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRoom returns a room visible to viewerID. A missing room and a
// room the viewer is not a participant of are both NotFound; a
// non-participant cannot tell the two apart.
func (db *DB) GetRoom(roomID, viewerID string) (*Room, error) {
	row := db.QueryRow(`
		SELECT `+prefixCols("r.", roomCols)+`
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id AND p.user_id = ?
		WHERE r.id = ?`, viewerID, roomID)
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, &chaterr.NotFoundError{Kind: "room", ID: roomID}
	}
	if err != nil {
		return nil, wrapErr("get room", err)
	}
	if err := db.hydrateParticipants(r); err != nil {
		return nil, err
	}
	r.UnreadCount, err = db.unreadCount(roomID, viewerID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRooms returns userID's rooms ordered by most recent activity.
// Participants and unread counts are hydrated concurrently.
func (db *DB) ListRooms(userID string, limit, offset int) ([]Room, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+prefixCols("r.", roomCols)+`
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id AND p.user_id = ?
		ORDER BY r.updated_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, wrapErr("list rooms", err)
	}
	defer func() { _ = rows.Close() }()

	var list []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, wrapErr("list rooms", err)
		}
		list = append(list, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list rooms", err)
	}

	var g errgroup.Group
	for i := range list {
		r := &list[i]
		g.Go(func() error { return db.hydrateParticipants(r) })
		g.Go(func() error {
			n, err := db.unreadCount(r.ID, userID)
			if err == nil {
				r.UnreadCount = n
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

// TouchRoom bumps updated_at and refreshes the last_message snapshot.
func (db *DB) TouchRoom(roomID string, lm LastMessage) error {
	res, err := db.Exec(`
		UPDATE rooms
		SET updated_at = ?, last_message_id = ?, last_message_content = ?,
			last_message_at = ?, last_message_sender = ?
		WHERE id = ?`,
		nowMilli(), lm.ID, lm.Content, lm.At, lm.SenderID, roomID)
	if err != nil {
		return wrapErr("touch room", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &chaterr.NotFoundError{Kind: "room", ID: roomID}
	}
	db.publishRoomChange(roomID, "update")
	return nil
}

// SetRoomStatus moves a room to archived or closed, or back to active.
// This is the only way a room leaves the active state.
func (db *DB) SetRoomStatus(roomID string, s RoomStatus) error {
	switch s {
	case RoomActive, RoomArchived, RoomClosed:
	default:
		return &chaterr.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown room status %q", s)}
	}
	res, err := db.Exec(`UPDATE rooms SET status = ?, updated_at = ? WHERE id = ?`, s, nowMilli(), roomID)
	if err != nil {
		return wrapErr("set room status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &chaterr.NotFoundError{Kind: "room", ID: roomID}
	}
	db.publishRoomChange(roomID, "update")
	return nil
}

func (db *DB) hydrateParticipants(r *Room) error {
	rows, err := db.Query(`
		SELECT p.room_id, p.user_id, p.joined_at, p.last_read_at, p.role,
			COALESCE(pr.full_name, '')
		FROM room_participants p
		LEFT JOIN profiles pr ON pr.user_id = p.user_id
		WHERE p.room_id = ?
		ORDER BY p.joined_at, p.user_id`, r.ID)
	if err != nil {
		return wrapErr("load participants", err)
	}
	defer func() { _ = rows.Close() }()

	r.Participants = r.Participants[:0]
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.JoinedAt, &p.LastReadAt, &p.Role, &p.FullName); err != nil {
			return wrapErr("load participants", err)
		}
		r.Participants = append(r.Participants, p)
	}
	return wrapErr("load participants", rows.Err())
}

// participantIDs returns the user ids of a room's members.
func (db *DB) participantIDs(roomID string) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM room_participants WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, wrapErr("load participant ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("load participant ids", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr("load participant ids", rows.Err())
}

// publishRoomChange fans a room update out to every participant's
// room-list feed.
func (db *DB) publishRoomChange(roomID, op string) {
	ids, err := db.participantIDs(roomID)
	if err != nil {
		return
	}
	for _, userID := range ids {
		db.publish(bus.RoomChangeTopic(userID), RoomChange{Op: op, RoomID: roomID, UserID: userID})
	}
}

// prefixCols qualifies a comma-separated column list with a table
// alias for join queries.
func prefixCols(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
