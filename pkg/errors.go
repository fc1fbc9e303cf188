package nano

import (
	"fmt"
)

type ErrorCode string

const (
	BadRequest         ErrorCode = "bad-request"
	NotAvailable       ErrorCode = "not-available"
	NotFound           ErrorCode = "not-found"
	AlreadyExists      ErrorCode = "already-exists"
	TransportError     ErrorCode = "transport-error"      // network/HTTP failure talking to the node
	RemoteError        ErrorCode = "remote-error"         // node returned a structured error field
	NegativeBalance    ErrorCode = "negative-balance"     // attempted to spend more than the snapshot balance
	MissingKeyMaterial ErrorCode = "missing-key-material" // no private key for an adhoc account
	MalformedFrame     ErrorCode = "malformed-frame"      // unparsable stream payload
	UnknownError       ErrorCode = "unknown-error"
)

type ErrorInfo struct {
	Code    ErrorCode // machine-readble ErrorCode enumeration
	Message string    // human-readable debug message (in production, logged on the server only)
}

func (e *ErrorInfo) Error() string {
	return string(e.Message)
}

func NewErr(code ErrorCode, format string, args ...any) error {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsNotFoundError(err error) bool {
	return IsError(err, NotFound)
}

func IsAlreadyExistsError(err error) bool {
	return IsError(err, AlreadyExists)
}

func IsTransportError(err error) bool {
	return IsError(err, TransportError)
}

func IsRemoteError(err error) bool {
	return IsError(err, RemoteError)
}

func IsError(err error, ofType ErrorCode) bool {
	if e, ok := err.(*ErrorInfo); ok {
		return e.Code == ofType
	}
	return false
}
