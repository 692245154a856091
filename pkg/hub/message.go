// Package hub fans proctoring updates out to dashboard websocket clients.
// Every message carries a topic (the session it concerns); a client either
// follows one topic or, with an empty topic, all of them.
package hub

// Message is one JSON payload queued for delivery.
type Message struct {
	Topic string
	Data  []byte
}

// NewMessage creates a message for topic from pre-encoded JSON.
func NewMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data}
}

// wants reports whether a client following topic receives m.
func (m Message) wants(topic string) bool {
	return topic == "" || topic == m.Topic
}
