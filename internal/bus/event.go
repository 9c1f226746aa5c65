package bus

import "time"

// Event is a single broadcast on the bus. Topic is a dot-separated
// path; the leading segments name the stream ("change.chat_messages",
// "change.rooms", "presence") and the trailing segments carry the
// filter key (room id, user id, scope).
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   any
}
