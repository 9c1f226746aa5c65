package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/CandidSocials/candidWebApp/internal/status"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	return testDBWithFeed(t, nil)
}

func testDBWithFeed(t *testing.T, feed *bus.Bus) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, feed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + profiles)", result.Version)
	}
}

func TestCreateDirectRoomIdempotentPair(t *testing.T) {
	db := testDB(t)

	r1, err := db.CreateDirectRoom("app-1", "userX", "userY")
	if err != nil {
		t.Fatal(err)
	}
	if len(r1.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(r1.Participants))
	}

	// Second insert for the same pair, either order, must conflict.
	if _, err := db.CreateDirectRoom("app-1", "userY", "userX"); !chaterr.IsConflict(err) {
		t.Fatalf("second create error = %v, want conflict", err)
	}

	// The pair resolves back to the original room.
	found, err := db.FindDirectRoom("userY", "userX")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != r1.ID {
		t.Errorf("FindDirectRoom = %+v, want room %s", found, r1.ID)
	}
}

func TestCreateDirectRoomConcurrent(t *testing.T) {
	db := testDB(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = db.CreateDirectRoom("app-1", "a", "b")
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if chaterr.IsConflict(err) {
			conflicts++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if conflicts != 1 {
		t.Errorf("conflicts = %d, want exactly 1", conflicts)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rooms`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rooms = %d, want 1", n)
	}
}

func TestCreateDirectRoomRejectsSelfPair(t *testing.T) {
	db := testDB(t)
	if _, err := db.CreateDirectRoom("app-1", "a", "a"); !chaterr.IsValidation(err) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestGetRoomConflatesMissingAndForbidden(t *testing.T) {
	db := testDB(t)

	r, err := db.CreateDirectRoom("app-1", "a", "b")
	if err != nil {
		t.Fatal(err)
	}

	// Outsider sees the same NotFound as for a room that doesn't exist.
	if _, err := db.GetRoom(r.ID, "outsider"); !chaterr.IsNotFound(err) {
		t.Errorf("outsider error = %v, want NotFound", err)
	}
	if _, err := db.GetRoom("no-such-room", "a"); !chaterr.IsNotFound(err) {
		t.Errorf("missing room error = %v, want NotFound", err)
	}

	got, err := db.GetRoom(r.ID, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID || len(got.Participants) != 2 {
		t.Errorf("got %+v, want room %s with 2 participants", got, r.ID)
	}
}

func TestListRoomsOrderAndUnread(t *testing.T) {
	db := testDB(t)

	r1, _ := db.CreateDirectRoom("app-1", "a", "b")
	r2, _ := db.CreateDirectRoom("app-2", "a", "c")

	// Activity in r1 after r2 was created moves it to the top.
	msg := &Message{RoomID: r1.ID, SenderID: "b", Content: "hi"}
	if err := db.InsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := db.TouchRoom(r1.ID, LastMessage{ID: msg.ID, Content: msg.Content, At: msg.CreatedAt, SenderID: "b"}); err != nil {
		t.Fatal(err)
	}

	rooms, err := db.ListRooms("a", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Fatalf("rooms = %d, want 2", len(rooms))
	}
	if rooms[0].ID != r1.ID {
		t.Errorf("first room = %s, want most recently active %s", rooms[0].ID, r1.ID)
	}
	if rooms[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", rooms[0].UnreadCount)
	}
	if rooms[0].LastMessage == nil || rooms[0].LastMessage.Content != "hi" {
		t.Errorf("last message snapshot = %+v, want content hi", rooms[0].LastMessage)
	}
	if rooms[1].ID != r2.ID || rooms[1].UnreadCount != 0 {
		t.Errorf("second room = %+v, want %s with 0 unread", rooms[1], r2.ID)
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	for _, ts := range []int64{1000, 2000, 3000} {
		m := &Message{RoomID: r.ID, SenderID: "a", Content: "m", CreatedAt: ts}
		if err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	// No cursor: newest page, ascending.
	page, err := db.ListMessages(r.ID, Page{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].CreatedAt != 3000 {
		t.Fatalf("initial page = %+v, want single newest row", page)
	}

	// Before the newest row: next older, never repeating.
	older, err := db.ListMessages(r.ID, Page{Limit: 1, Before: &Cursor{At: page[0].CreatedAt, ID: page[0].ID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].CreatedAt != 2000 {
		t.Fatalf("before page = %+v, want the 2000 row", older)
	}
	if older[0].ID == page[0].ID {
		t.Error("pagination repeated a row")
	}

	// After cursor walks forward.
	newer, err := db.ListMessages(r.ID, Page{Limit: 10, After: &Cursor{At: 1000}})
	if err != nil {
		t.Fatal(err)
	}
	if len(newer) != 2 || newer[0].CreatedAt != 2000 || newer[1].CreatedAt != 3000 {
		t.Fatalf("after page = %+v, want rows 2000,3000 ascending", newer)
	}
}

func TestListMessagesTiebreakByID(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	// Two messages in the same millisecond; order must still be total
	// and stable across paged fetches.
	m1 := &Message{ID: "id-a", RoomID: r.ID, SenderID: "a", Content: "1", CreatedAt: 5000}
	m2 := &Message{ID: "id-b", RoomID: r.ID, SenderID: "a", Content: "2", CreatedAt: 5000}
	if err := db.InsertMessage(m2); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMessage(m1); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListMessages(r.ID, Page{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "id-a" || all[1].ID != "id-b" {
		t.Fatalf("order = %+v, want id-a then id-b", all)
	}

	// Page of one, then cursor past it: the tiebreak id keeps the
	// second same-timestamp row reachable.
	first, _ := db.ListMessages(r.ID, Page{Limit: 1, Before: &Cursor{At: 5000, ID: "id-b"}})
	if len(first) != 1 || first[0].ID != "id-a" {
		t.Fatalf("cursor page = %+v, want id-a", first)
	}
}

func TestDeleteMessageKeepsOrdering(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	var ids []string
	for _, ts := range []int64{1000, 2000, 3000} {
		m := &Message{RoomID: r.ID, SenderID: "a", Content: "x", CreatedAt: ts}
		if err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	if err := db.DeleteMessage(r.ID, ids[1], "a"); err != nil {
		t.Fatal(err)
	}

	// Tombstone stays in place: same row count, cleared content.
	all, err := db.ListMessages(r.ID, Page{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("rows = %d, want 3 (tombstone, not physical delete)", len(all))
	}
	if !all[1].IsDeleted || all[1].Content != "" {
		t.Errorf("tombstone = %+v, want is_deleted with empty content", all[1])
	}

	// A cursor at the tombstone still pages correctly.
	older, _ := db.ListMessages(r.ID, Page{Limit: 1, Before: &Cursor{At: 2000, ID: ids[1]}})
	if len(older) != 1 || older[0].ID != ids[0] {
		t.Errorf("cursor past tombstone = %+v, want first row", older)
	}
}

func TestEditMessageSenderOnly(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	m := &Message{RoomID: r.ID, SenderID: "a", Content: "draft"}
	if err := db.InsertMessage(m); err != nil {
		t.Fatal(err)
	}

	if _, err := db.EditMessage(r.ID, m.ID, "b", "hijack"); !chaterr.IsNotFound(err) {
		t.Errorf("non-sender edit error = %v, want NotFound", err)
	}

	edited, err := db.EditMessage(r.ID, m.ID, "a", "final")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Content != "final" || !edited.IsEdited {
		t.Errorf("edited = %+v, want final content with is_edited", edited)
	}
}

func TestMarkReadAdvancesStatuses(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	m := &Message{RoomID: r.ID, SenderID: "a", Content: "hi", CreatedAt: 1000}
	if err := db.InsertMessage(m); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkReadUpTo(r.ID, "b", 1000); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetMessage(r.ID, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != status.Read {
		t.Errorf("status = %s, want read", got.Status)
	}

	// Delivered must not regress a read message.
	if err := db.MarkDelivered(r.ID, "b"); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetMessage(r.ID, m.ID)
	if got.Status != status.Read {
		t.Errorf("status after MarkDelivered = %s, want read (no regression)", got.Status)
	}

	// Own messages are never advanced by the reader.
	own := &Message{RoomID: r.ID, SenderID: "b", Content: "mine", CreatedAt: 900}
	if err := db.InsertMessage(own); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkReadUpTo(r.ID, "b", 2000); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetMessage(r.ID, own.ID)
	if got.Status != status.Sent {
		t.Errorf("own message status = %s, want sent", got.Status)
	}
}

func TestMarkReadUpdatesUnread(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	for _, ts := range []int64{1000, 2000} {
		if err := db.InsertMessage(&Message{RoomID: r.ID, SenderID: "a", Content: "x", CreatedAt: ts}); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := db.GetRoom(r.ID, "b")
	if got.UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", got.UnreadCount)
	}

	if err := db.MarkReadUpTo(r.ID, "b", 1000); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetRoom(r.ID, "b")
	if got.UnreadCount != 1 {
		t.Errorf("unread after partial read = %d, want 1", got.UnreadCount)
	}
}

func TestSetRoomStatusExplicitOnly(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	if err := db.SetRoomStatus(r.ID, RoomArchived); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetRoom(r.ID, "a")
	if got.Status != RoomArchived {
		t.Errorf("status = %s, want archived", got.Status)
	}

	if err := db.SetRoomStatus(r.ID, RoomStatus("paused")); !chaterr.IsValidation(err) {
		t.Errorf("bogus status error = %v, want ValidationError", err)
	}
	if err := db.SetRoomStatus("missing", RoomClosed); !chaterr.IsNotFound(err) {
		t.Errorf("missing room error = %v, want NotFound", err)
	}
}

func TestInsertPublishesToRoomFeedOnly(t *testing.T) {
	feed := bus.New()
	db := testDBWithFeed(t, feed)

	r1, _ := db.CreateDirectRoom("app-1", "a", "b")
	r2, _ := db.CreateDirectRoom("app-2", "a", "c")

	ch, unsub := feed.Subscribe(bus.MessageChangeTopic(r1.ID), 8)
	defer unsub()

	// A write in another room must never reach this subscription.
	if err := db.InsertMessage(&Message{RoomID: r2.ID, SenderID: "a", Content: "other"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMessage(&Message{RoomID: r1.ID, SenderID: "a", Content: "mine"}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(MessageChange)
		if !ok || change.Message.Content != "mine" {
			t.Errorf("payload = %+v, want insert of 'mine'", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for insert event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %q (cross-room leak)", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSenderNameFromProfiles(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateDirectRoom("app-1", "a", "b")

	if err := db.UpsertProfile("a", "Ada Lovelace"); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMessage(&Message{RoomID: r.ID, SenderID: "a", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMessage(&Message{RoomID: r.ID, SenderID: "b", Content: "yo"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(r.ID, Page{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if msgs[0].SenderName != "Ada Lovelace" {
		t.Errorf("sender name = %q, want Ada Lovelace", msgs[0].SenderName)
	}
	// Unknown profile resolves to empty, not an error.
	if msgs[1].SenderName != "" {
		t.Errorf("unknown sender name = %q, want empty", msgs[1].SenderName)
	}
}
