package protocol

import (
	stderrors "errors"

	"github.com/vango-dev/projectform/internal/errors"
)

// ErrorMessage reports a protocol error to the client.
type ErrorMessage struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Fatal errors are followed by closing the connection.
	Fatal bool `json:"fatal,omitempty"`
}

func (*ErrorMessage) serverMessage() {}

// NewErrorMessage converts err to an ErrorMessage. Errors outside the
// registry are reported as P401.
func NewErrorMessage(err error, fatal bool) *ErrorMessage {
	var coded *errors.Error
	if !stderrors.As(err, &coded) {
		coded = errors.New("P401")
	}
	msg := coded.Message
	if coded.Detail != "" {
		msg += ": " + coded.Detail
	}
	return &ErrorMessage{Code: coded.Code, Message: msg, Fatal: fatal}
}
