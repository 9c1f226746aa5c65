package bus

import (
	"testing"
	"time"
)

func TestPublishReachesMatchingPrefix(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("change.chat_messages.r1", 4)
	defer unsub()

	b.Publish(Event{Topic: "change.chat_messages.r1.insert", Timestamp: time.Now(), Payload: "hello"})

	select {
	case evt := <-ch:
		if evt.Payload != "hello" {
			t.Errorf("payload = %v, want hello", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishSkipsOtherRooms(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("change.chat_messages.r1", 4)
	defer unsub()

	// An event for a different room must not leak across.
	b.Publish(Event{Topic: "change.chat_messages.r2.insert", Timestamp: time.Now()})

	select {
	case evt := <-ch:
		t.Errorf("received cross-room event %q", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTopicKeysDoNotBleedAcrossSharedPrefixes(t *testing.T) {
	b := New()

	// User ids and presence scopes are host-supplied strings, so one
	// key being a prefix of another must not join their feeds.
	bobCh, unsubBob := b.Subscribe(RoomChangeTopic("bob"), 4)
	defer unsubBob()
	globalCh, unsubGlobal := b.Subscribe(PresenceTopic("global"), 4)
	defer unsubGlobal()

	b.Publish(Event{Topic: RoomChangeTopic("bobby"), Timestamp: time.Now(), Payload: "bobby-only"})
	b.Publish(Event{Topic: PresenceTopic("global2"), Timestamp: time.Now(), Payload: "global2-only"})

	select {
	case evt := <-bobCh:
		t.Errorf("bob's subscription received %q addressed to bobby", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case evt := <-globalCh:
		t.Errorf("scope global received %q addressed to global2", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}

	// The exact keys still deliver.
	b.Publish(Event{Topic: RoomChangeTopic("bob"), Timestamp: time.Now(), Payload: "bob"})
	select {
	case <-bobCh:
	case <-time.After(time.Second):
		t.Fatal("bob's own event not delivered")
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("change.", 1)
	defer unsub()

	// Second publish must not block even though nobody drains.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Topic: "change.rooms.u1"})
		b.Publish(Event{Topic: "change.rooms.u1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on full subscriber")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("presence.", 1)

	unsub()
	unsub() // second call must be a no-op

	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe("presence.global", 1)
	defer unsub1()
	ch2, unsub2 := b.Subscribe("presence.global", 1)
	defer unsub2()

	b.Publish(Event{Topic: "presence.global.sync"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i+1)
		}
	}
}
