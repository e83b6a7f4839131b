package progress

import (
	"bytes"
	"encoding/json"

	"github.com/recipebox/recipebox/errors"
)

// Push-channel message types.
const (
	TypeRegister         = "register"
	TypeRegisterConfirm  = "register_confirm"
	TypeProcessingUpdate = "processing_update"
)

// Message is the envelope for every push-channel frame. Stage is kept raw
// because processing updates arrive in two shapes:
//
//	{"type":"processing_update","stage":{"id":"verifying","label":"...","status":"processing"}}
//	{"type":"processing_update","stage":"verifying","status":"processing"}
type Message struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId,omitempty"`
	Stage    json.RawMessage `json:"stage,omitempty"`
	Status   Status          `json:"status,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// StageInfo is the nested stage object of a processing update.
type StageInfo struct {
	ID      Stage  `json:"id"`
	Label   string `json:"label"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// EncodeRegister builds the client's registration frame.
func EncodeRegister(clientID string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeRegister, ClientID: clientID})
}

// EncodeRegisterConfirm builds the server's registration acknowledgement.
func EncodeRegisterConfirm(clientID string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeRegisterConfirm, ClientID: clientID})
}

// EncodeUpdate builds a processing update in the nested shape.
func EncodeUpdate(u Update) ([]byte, error) {
	stage, err := json.Marshal(StageInfo{
		ID:      u.Stage,
		Label:   Label(u.Stage),
		Status:  u.Status,
		Message: u.Message,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode stage")
	}
	return json.Marshal(Message{Type: TypeProcessingUpdate, Stage: stage})
}

// Decode parses a push-channel frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, "decode push message")
	}
	if m.Type == "" {
		return Message{}, errors.NewInvalidRequestError("push message has no type")
	}
	return m, nil
}

// Update normalizes a processing_update frame of either shape.
func (m Message) Update() (Update, error) {
	if m.Type != TypeProcessingUpdate {
		return Update{}, errors.NewInvalidRequestError("message type %q is not %s", m.Type, TypeProcessingUpdate)
	}
	raw := bytes.TrimSpace(m.Stage)
	if len(raw) == 0 {
		return Update{}, errors.NewInvalidRequestError("processing update has no stage")
	}

	var u Update
	if raw[0] == '{' {
		var info StageInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return Update{}, errors.Wrap(err, "decode nested stage")
		}
		u = Update{Stage: info.ID, Status: info.Status, Message: info.Message}
	} else {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return Update{}, errors.Wrap(err, "decode flat stage")
		}
		u = Update{Stage: Stage(name), Status: m.Status, Message: m.Message}
	}

	if u.Stage == "" {
		return Update{}, errors.NewInvalidRequestError("processing update has empty stage id")
	}
	if !u.Status.Valid() {
		return Update{}, errors.NewInvalidRequestError("processing update has unknown status %q", u.Status)
	}
	return u, nil
}
