package socket

import (
	"encoding/json"

	"github.com/pkg/errors"

	"workchat/tools/decode"
)

// Event names are an external contract shared with the web clients; do not
// rename them.
const (
	EventSetup      = "setup"
	EventConnected  = "connected"
	EventJoinRoom   = "join room"
	EventLeaveRoom  = "leave room"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
	EventTest       = "test"
	EventTestAck    = "test:received"

	EventChatsChange     = "chats change"
	EventChatsDelete     = "chats delete"
	EventMessagesChange  = "messages change"
	EventMessagesDelete  = "messages delete"
	EventMessageReceived = "message received"
	EventUsersChange     = "users change"
	EventUsersDelete     = "users delete"
)

// Frame is the JSON envelope of every socket message, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, errors.Wrap(err, "unmarshal frame")
	}
	if frame.Event == "" {
		return nil, errors.New("frame missing event")
	}
	return frame, nil
}

func BuildFrame(event string, payload any) ([]byte, error) {
	f := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %q payload", event)
		}
		f.Data = data
	}
	out, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %q frame", event)
	}
	return out, nil
}

// SetupPayload is the identity the client asserts on handshake. Token is
// only honored when the node is configured with a verification secret.
type SetupPayload struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfilePic string `json:"profilePic"`
	Token      string `json:"token,omitempty"`
}

func ExtractSetup(raw json.RawMessage) (*SetupPayload, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty setup payload")
	}
	return decode.JSON[SetupPayload](raw)
}

// ExtractRoomID accepts either a raw string id or an object carrying _id,
// since clients send both shapes.
func ExtractRoomID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("empty room payload")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty room id")
		}
		return s, nil
	}
	ref, err := decode.JSON[struct {
		ID string `json:"_id"`
	}](raw)
	if err != nil {
		return "", errors.Wrap(err, "room payload")
	}
	if ref.ID == "" {
		return "", errors.New("room payload missing _id")
	}
	return ref.ID, nil
}

type testAckPayload struct {
	Message string `json:"message"`
}
