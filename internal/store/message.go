package store

import (
	"database/sql"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/CandidSocials/candidWebApp/internal/status"
	"github.com/google/uuid"
)

const msgCols = `m.id, m.room_id, m.sender_id, COALESCE(pr.full_name, ''), m.content,
	m.msg_type, m.status, m.created_at, m.updated_at, m.is_edited, m.is_deleted, m.attachment_ref`

const msgFrom = `FROM chat_messages m LEFT JOIN profiles pr ON pr.user_id = m.sender_id`

// scanMessage normalizes a chat_messages row into the canonical
// Message shape.
func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content,
		&m.Type, &m.Status, &m.CreatedAt, &m.UpdatedAt, &m.IsEdited, &m.IsDeleted, &m.AttachmentRef)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage appends one message row. ID, timestamps, type and
// status are filled in when unset. The insert is announced on the
// room's change feed after commit.
func (db *DB) InsertMessage(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = nowMilli()
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Type == "" {
		m.Type = "text"
	}
	if m.Status == "" {
		m.Status = status.Sent
	}

	_, err := db.Exec(`
		INSERT INTO chat_messages (id, room_id, sender_id, content, msg_type, status,
			created_at, updated_at, is_edited, is_deleted, attachment_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.SenderID, m.Content, m.Type, m.Status,
		m.CreatedAt, m.UpdatedAt, m.IsEdited, m.IsDeleted, m.AttachmentRef)
	if err != nil {
		return wrapErr("insert message", err)
	}

	db.publish(bus.MessageChangeTopic(m.RoomID), MessageChange{Op: "insert", Message: *m})
	return nil
}

// GetMessage returns one message by room and id.
func (db *DB) GetMessage(roomID, msgID string) (*Message, error) {
	row := db.QueryRow(`SELECT `+msgCols+` `+msgFrom+` WHERE m.room_id = ? AND m.id = ?`, roomID, msgID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, &chaterr.NotFoundError{Kind: "message", ID: msgID}
	}
	if err != nil {
		return nil, wrapErr("get message", err)
	}
	return m, nil
}

// ListMessages returns a page of a room's messages in ascending
// (created_at, id) order. With a Before cursor (or no cursor at all)
// the page holds the newest rows under the bound; with an After cursor
// it holds the oldest rows above it. A full page tells the caller more
// may exist.
func (db *DB) ListMessages(roomID string, p Page) ([]Message, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}

	where := `WHERE m.room_id = ?`
	args := []any{roomID}
	if p.Before != nil {
		if p.Before.ID != "" {
			where += ` AND (m.created_at < ? OR (m.created_at = ? AND m.id < ?))`
			args = append(args, p.Before.At, p.Before.At, p.Before.ID)
		} else {
			where += ` AND m.created_at < ?`
			args = append(args, p.Before.At)
		}
	}
	if p.After != nil {
		if p.After.ID != "" {
			where += ` AND (m.created_at > ? OR (m.created_at = ? AND m.id > ?))`
			args = append(args, p.After.At, p.After.At, p.After.ID)
		} else {
			where += ` AND m.created_at > ?`
			args = append(args, p.After.At)
		}
	}

	// Walking forward from a cursor takes the oldest matching rows;
	// everything else takes the newest and reverses into ascending
	// order.
	descending := p.After == nil
	order := `ORDER BY m.created_at DESC, m.id DESC`
	if !descending {
		order = `ORDER BY m.created_at ASC, m.id ASC`
	}
	args = append(args, p.Limit)

	rows, err := db.Query(`SELECT `+msgCols+` `+msgFrom+` `+where+` `+order+` LIMIT ?`, args...)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, wrapErr("list messages", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list messages", err)
	}

	if descending {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// EditMessage replaces a message's content. Only the sender may edit;
// anyone else gets NotFound, same as a missing message.
func (db *DB) EditMessage(roomID, msgID, senderID, content string) (*Message, error) {
	res, err := db.Exec(`
		UPDATE chat_messages
		SET content = ?, is_edited = 1, updated_at = ?
		WHERE room_id = ? AND id = ? AND sender_id = ? AND is_deleted = 0`,
		content, nowMilli(), roomID, msgID, senderID)
	if err != nil {
		return nil, wrapErr("edit message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &chaterr.NotFoundError{Kind: "message", ID: msgID}
	}
	m, err := db.GetMessage(roomID, msgID)
	if err != nil {
		return nil, err
	}
	db.publish(bus.MessageChangeTopic(roomID), MessageChange{Op: "update", Message: *m})
	return m, nil
}

// DeleteMessage tombstones a message: the row stays so ordering and
// pagination cursors remain stable, but content is cleared. Only the
// sender may delete.
func (db *DB) DeleteMessage(roomID, msgID, senderID string) error {
	res, err := db.Exec(`
		UPDATE chat_messages
		SET content = '', is_deleted = 1, updated_at = ?
		WHERE room_id = ? AND id = ? AND sender_id = ?`,
		nowMilli(), roomID, msgID, senderID)
	if err != nil {
		return wrapErr("delete message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &chaterr.NotFoundError{Kind: "message", ID: msgID}
	}
	m, err := db.GetMessage(roomID, msgID)
	if err != nil {
		return err
	}
	db.publish(bus.MessageChangeTopic(roomID), MessageChange{Op: "update", Message: *m})
	return nil
}
