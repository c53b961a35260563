package protocol

import (
	"sort"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSettingsMessage wraps the current settings.
func NewSettingsMessage(settings interface{}) (*Message, error) {
	return NewMessage(TypeSettings, settings)
}

// NewPeopleMessage wraps a people update.
func NewPeopleMessage(people interface{}) (*Message, error) {
	return NewMessage(TypePeople, people)
}

// NewFacesMessage lists the known faces sorted by name.
func NewFacesMessage(counts map[string]int) (*Message, error) {
	return NewMessage(TypeFaces, FaceList(counts))
}

// NewFaceRegisteredMessage reports a registration outcome.
func NewFaceRegisteredMessage(name string, err error) (*Message, error) {
	return NewMessage(TypeFaceRegistered, faceResult(name, err))
}

// NewFaceDeletedMessage reports a deletion outcome.
func NewFaceDeletedMessage(name string, err error) (*Message, error) {
	return NewMessage(TypeFaceDeleted, faceResult(name, err))
}

// NewPongMessage creates a pong response message
func NewPongMessage() (*Message, error) {
	return NewMessage(TypePong, nil)
}

// NewErrorMessage creates an error message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// FaceList converts name counts into a list sorted by name.
func FaceList(counts map[string]int) []FaceInfo {
	out := make([]FaceInfo, 0, len(counts))
	for name, n := range counts {
		out = append(out, FaceInfo{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func faceResult(name string, err error) FaceResult {
	r := FaceResult{Success: err == nil, Name: name}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFaceRequest extracts the face name from a register or delete request.
func (m *Message) GetFaceRequest() (*FaceRequest, error) {
	var data FaceRequest
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSettingsUpdate extracts the partial settings of a set_settings
// request.
func (m *Message) GetSettingsUpdate() (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetFaceResult extracts a registration or deletion outcome.
func (m *Message) GetFaceResult() (*FaceResult, error) {
	var data FaceResult
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFaces extracts a face list.
func (m *Message) GetFaces() ([]FaceInfo, error) {
	var data []FaceInfo
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetErrorData extracts an error message.
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
