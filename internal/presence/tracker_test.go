package presence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/identity"
	"github.com/CandidSocials/candidWebApp/internal/profile"
	"github.com/CandidSocials/candidWebApp/internal/realtime"
	"github.com/CandidSocials/candidWebApp/internal/store"
)

func testTracker(t *testing.T, hub *realtime.Presence, userID string) *Tracker {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if userID != "" {
		if err := db.UpsertProfile(userID, "Name of "+userID); err != nil {
			t.Fatal(err)
		}
	}

	tr := NewTracker(hub, identity.NewStatic(userID), profile.NewResolver(db, nil), "global", nil)
	t.Cleanup(tr.Stop)
	return tr
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTrackerAnnouncesSelf(t *testing.T) {
	hub := realtime.NewPresence(bus.New())
	tr := testTracker(t, hub, "userA")
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return tr.Online("userA") }, "self should be online after Start")

	users := tr.OnlineUsers()
	if len(users) != 1 || users[0].FullName != "Name of userA" {
		t.Errorf("online = %+v, want self with resolved name", users)
	}
}

func TestTrackerRebuildsFromSync(t *testing.T) {
	hub := realtime.NewPresence(bus.New())
	trA := testTracker(t, hub, "userA")
	trB := testTracker(t, hub, "userB")
	if err := trA.Start(); err != nil {
		t.Fatal(err)
	}
	if err := trB.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return trB.Online("userA") && trB.Online("userB") }, "both users should be online")

	// A drops out; B's set after the next sync is exactly {B}, not an
	// accumulation that still carries A.
	trA.Stop()
	waitFor(t, func() bool { return !trB.Online("userA") }, "departed user should disappear")
	if !trB.Online("userB") {
		t.Error("remaining user should stay online")
	}
	if users := trB.OnlineUsers(); len(users) != 1 {
		t.Errorf("online = %+v, want exactly one user", users)
	}
}

func TestTrackerAnonymousObserves(t *testing.T) {
	hub := realtime.NewPresence(bus.New())
	trA := testTracker(t, hub, "userA")
	anon := testTracker(t, hub, "")
	if err := anon.Start(); err != nil {
		t.Fatal(err)
	}
	if err := trA.Start(); err != nil {
		t.Fatal(err)
	}

	// The anonymous session sees A but never announces anything.
	waitFor(t, func() bool { return anon.Online("userA") }, "observer should see the announced user")
	if users := anon.OnlineUsers(); len(users) != 1 {
		t.Errorf("online = %+v, want only the announced user", users)
	}
}

func TestTrackerStopIdempotent(t *testing.T) {
	hub := realtime.NewPresence(bus.New())
	tr := testTracker(t, hub, "userA")
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.Stop()
	tr.Stop()

	if len(hub.Snapshot("global")) != 0 {
		t.Error("announcement should be withdrawn")
	}
}

func TestTrackerStartTwice(t *testing.T) {
	hub := realtime.NewPresence(bus.New())
	tr := testTracker(t, hub, "userA")
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return tr.Online("userA") }, "self should be online")
	if members := hub.Snapshot("global"); len(members) != 1 {
		t.Errorf("hub members = %+v, want a single announcement", members)
	}
}

func TestTrackerChangeSignal(t *testing.T) {
	hub := realtime.NewPresence(bus.New())
	trA := testTracker(t, hub, "userA")
	trB := testTracker(t, hub, "userB")
	if err := trA.Start(); err != nil {
		t.Fatal(err)
	}

	// Drain whatever Start produced, then a new join must re-signal.
	waitFor(t, func() bool { return trA.Online("userA") }, "self should be online")
	select {
	case <-trA.Changes():
	default:
	}

	if err := trB.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-trA.Changes():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change signal")
	}
}
