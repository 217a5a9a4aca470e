package cleanup

import "encoding/json"

// Message describes storage objects to delete asynchronously, typically
// uploads orphaned by a cancelled or expired queue.
type Message struct {
	SessionID  string   `json:"sessionId"`
	StorageIDs []string `json:"storageIds"`
	Reason     string   `json:"reason"`
	EnqueuedAt string   `json:"enqueuedAt"`
	Version    int      `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
