package bus

// Topic builders shared by publishers and subscribers. The filter key
// (room id, user id, scope) is part of the topic, which is what makes
// subscription filtering happen at the source instead of in the
// consumer. Each key is terminated with a dot so prefix matching
// cannot bleed across keys that share a prefix ("bob" vs "bobby").

// MessageChangeTopic addresses the change feed of one room's messages.
func MessageChangeTopic(roomID string) string {
	return "change.chat_messages." + roomID + "."
}

// RoomChangeTopic addresses the room-list change feed of one user.
func RoomChangeTopic(userID string) string {
	return "change.rooms." + userID + "."
}

// PresenceTopic addresses the presence channel of one scope.
func PresenceTopic(scope string) string {
	return "presence." + scope + "."
}
