// Package realtime wraps the broadcast primitive behind the two
// contracts the chat core consumes: per-room/per-user change-feed
// subscriptions and a presence channel. Subscription filters are part
// of the topic, enforced at the source; a room subscriber can never
// observe another room's rows.
package realtime

import (
	"errors"
	"sync"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/CandidSocials/candidWebApp/internal/store"
)

// Feed delivers row-change events to callbacks.
type Feed struct {
	bus *bus.Bus
}

// NewFeed creates a feed over the given bus.
func NewFeed(b *bus.Bus) *Feed {
	return &Feed{bus: b}
}

const subscribeBuf = 256

// SubscribeMessages streams insert/update events for one room's
// messages. The returned cancel function is idempotent and safe to
// call from a teardown path at any time.
func (f *Feed) SubscribeMessages(roomID string, fn func(store.MessageChange)) (func(), error) {
	if f.bus == nil {
		return nil, &chaterr.SubscriptionError{Channel: bus.MessageChangeTopic(roomID), Err: errors.New("no realtime channel")}
	}
	return f.run(bus.MessageChangeTopic(roomID), func(evt bus.Event) {
		if change, ok := evt.Payload.(store.MessageChange); ok {
			fn(change)
		}
	}), nil
}

// SubscribeRooms streams room-list change events addressed to one
// user.
func (f *Feed) SubscribeRooms(userID string, fn func(store.RoomChange)) (func(), error) {
	if f.bus == nil {
		return nil, &chaterr.SubscriptionError{Channel: bus.RoomChangeTopic(userID), Err: errors.New("no realtime channel")}
	}
	return f.run(bus.RoomChangeTopic(userID), func(evt bus.Event) {
		if change, ok := evt.Payload.(store.RoomChange); ok {
			fn(change)
		}
	}), nil
}

func (f *Feed) run(topic string, deliver func(bus.Event)) func() {
	ch, unsub := f.bus.Subscribe(topic, subscribeBuf)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-ch:
				deliver(evt)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}
