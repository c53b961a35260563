// Package hub fans perception messages out to websocket clients and routes
// their requests to a single handler.
package hub

// Message is one outbound text frame, tagged with its protocol type.
type Message struct {
	Topic string
	Data  []byte

	// Replaceable marks periodic state (the people list). A client whose
	// queue is full skips it and gets the next one; any other message
	// that does not fit disconnects the client.
	Replaceable bool
}

// NewMessage wraps an encoded reply or event.
func NewMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data}
}

// NewStateMessage wraps an encoded state update that a newer update
// supersedes.
func NewStateMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data, Replaceable: true}
}
