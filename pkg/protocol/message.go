// Package protocol defines the WebSocket messages exchanged on the
// perception stream.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → server
	TypeGetSettings  MessageType = "get_settings"
	TypeSetSettings  MessageType = "set_settings"
	TypeRegisterFace MessageType = "register_face"
	TypeDeleteFace   MessageType = "delete_face"
	TypeListFaces    MessageType = "list_faces"
	TypePing         MessageType = "ping"

	// Server → client
	TypeSettings       MessageType = "settings"
	TypePeople         MessageType = "people"
	TypeFaces          MessageType = "faces"
	TypeFaceRegistered MessageType = "face_registered"
	TypeFaceDeleted    MessageType = "face_deleted"
	TypePong           MessageType = "pong"
	TypeError          MessageType = "error"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// FaceRequest names the face to register or delete.
type FaceRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// FaceInfo is one known identity and how many encodings it has.
type FaceInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FaceResult answers register_face and delete_face.
type FaceResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	Error   string `json:"error,omitempty"`
}

// ErrorData reports a request the server could not handle.
type ErrorData struct {
	Message string `json:"message"`
}
