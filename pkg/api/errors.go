package api

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressConflict is returned by Bind when the address already has a
	// handler. The existing handler stays active.
	ErrAddressConflict = errors.New("address already bound")

	// ErrTimeout resolves a call whose deadline elapsed before a reply
	// arrived. This is a client-side give-up; the remote handler may still
	// complete and its late reply is discarded.
	ErrTimeout = errors.New("rpc timeout")

	// ErrAborted is the terminal error of a transfer cancelled by its owner.
	ErrAborted = errors.New("transfer aborted")

	// ErrMissingIdentity is returned when an agreement lacks the provider or
	// requestor identity a document operation depends on.
	ErrMissingIdentity = errors.New("missing identity")
)

// Remote error codes with dedicated HTTP mappings.
const (
	CodeBadRequest = "BadRequest"
)

// TransportError means the request never reached a handler: no handler bound
// locally, the peer was unreachable, or encoding failed. Usually retryable.
type TransportError struct {
	Address string
	Reason  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %s", e.Address, e.Reason)
}

// RemoteError is the application error a remote handler declared and
// returned. It is never retried automatically.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote error: %s", e.Message)
	}
	return fmt.Sprintf("remote error [%s]: %s", e.Code, e.Message)
}

// IsTransport reports whether err resolves to a delivery failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBadRequest reports whether err is a remote BadRequest.
func IsBadRequest(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == CodeBadRequest
}
