package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vango-dev/projectform/internal/errors"
)

// Type is the "type" field of every message.
type Type string

const (
	TypeHello   Type = "hello"
	TypeEvent   Type = "event"
	TypeReply   Type = "reply"
	TypeWelcome Type = "welcome"
	TypeOp      Type = "op"
	TypeError   Type = "error"
)

// ClientMessage is a decoded client message: *Hello, *Event or *Reply.
type ClientMessage interface {
	clientMessage()
	Validate() error
}

// ServerMessage is a message sent by the session: *Welcome, *Op or *ErrorMessage.
type ServerMessage interface {
	serverMessage()
}

type envelope struct {
	Type Type `json:"type"`
}

// DecodeClient parses one client message. Malformed or unknown messages
// return a P401 error.
func DecodeClient(data []byte) (ClientMessage, error) {
	if len(data) > MaxMessageSize {
		return nil, malformed("message exceeds %d bytes", MaxMessageSize)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.New("P401").Wrap(err).WithDetail(err.Error())
	}

	var msg ClientMessage
	switch env.Type {
	case TypeHello:
		msg = &Hello{}
	case TypeEvent:
		msg = &Event{}
	case TypeReply:
		msg = &Reply{}
	case "":
		return nil, malformed("missing message type")
	default:
		return nil, malformed("unknown message type %q", env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, errors.New("P401").Wrap(err).WithDetail(err.Error())
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode serializes a server message with its type field set.
func Encode(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case *Welcome:
		m.Type = TypeWelcome
	case *Op:
		m.Type = TypeOp
	case *ErrorMessage:
		m.Type = TypeError
	}
	return json.Marshal(msg)
}

func malformed(format string, args ...any) *errors.Error {
	return errors.New("P401").WithDetail(fmt.Sprintf(format, args...))
}
