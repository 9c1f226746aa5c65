package store

import (
	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/status"
)

// IsParticipant reports whether userID is a member of roomID.
func (db *DB) IsParticipant(roomID, userID string) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM room_participants
		WHERE room_id = ? AND user_id = ?`, roomID, userID).Scan(&n)
	if err != nil {
		return false, wrapErr("check participant", err)
	}
	return n > 0, nil
}

// unreadCount counts messages from other senders newer than the
// member's read watermark. A missing membership row counts as zero.
func (db *DB) unreadCount(roomID, userID string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM chat_messages
		WHERE room_id = ? AND sender_id != ? AND is_deleted = 0
			AND created_at > (
				SELECT last_read_at FROM room_participants
				WHERE room_id = ? AND user_id = ?)`,
		roomID, userID, roomID, userID).Scan(&n)
	if err != nil {
		return 0, wrapErr("unread count", err)
	}
	return n, nil
}

// MarkDelivered advances sent messages from other senders to
// delivered. Called when a recipient's live subscription first renders
// them. The sent→delivered move is monotonic: already-read messages
// are untouched.
func (db *DB) MarkDelivered(roomID, userID string) error {
	return db.advanceStatuses(roomID, userID, 0, status.Delivered, []status.Status{status.Sent})
}

// MarkReadUpTo advances the member's read watermark to upTo and flips
// other senders' messages at or before it to read.
func (db *DB) MarkReadUpTo(roomID, userID string, upTo int64) error {
	res, err := db.Exec(`
		UPDATE room_participants SET last_read_at = MAX(last_read_at, ?)
		WHERE room_id = ? AND user_id = ?`, upTo, roomID, userID)
	if err != nil {
		return wrapErr("mark read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Not a participant; indistinguishable from a missing room.
		return notFoundRoom(roomID)
	}

	if err := db.advanceStatuses(roomID, userID, upTo, status.Read, []status.Status{status.Sent, status.Delivered}); err != nil {
		return err
	}

	// Read state shows up in other participants' room lists.
	db.publishRoomChange(roomID, "update")
	return nil
}

// advanceStatuses moves messages from other senders through the
// delivery lifecycle. The from-set encodes the monotonic guard: a
// status never moves backward.
func (db *DB) advanceStatuses(roomID, userID string, upTo int64, to status.Status, from []status.Status) error {
	query := `
		SELECT ` + msgCols + ` ` + msgFrom + `
		WHERE m.room_id = ? AND m.sender_id != ? AND m.status IN (?` + repeatPlaceholder(len(from)-1) + `)`
	args := []any{roomID, userID}
	for _, s := range from {
		args = append(args, s)
	}
	if upTo > 0 {
		query += ` AND m.created_at <= ?`
		args = append(args, upTo)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return wrapErr("advance statuses", err)
	}
	var affected []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			_ = rows.Close()
			return wrapErr("advance statuses", err)
		}
		affected = append(affected, *m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return wrapErr("advance statuses", err)
	}
	_ = rows.Close()

	now := nowMilli()
	for i := range affected {
		m := &affected[i]
		next, err := status.Advance(m.Status, to)
		if err != nil {
			continue
		}
		if _, err := db.Exec(`
			UPDATE chat_messages SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`, next, now, m.ID, m.Status); err != nil {
			return wrapErr("advance statuses", err)
		}
		m.Status = next
		m.UpdatedAt = now
		db.publish(bus.MessageChangeTopic(roomID), MessageChange{Op: "update", Message: *m})
	}
	return nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
