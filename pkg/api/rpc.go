package api

import (
	"encoding/json"
	"errors"

	"github.com/fgrzl/json/polymorphic"
	"github.com/google/uuid"
)

// Fault kinds carried on the wire. Transport faults are raised by the bus
// itself (no handler, codec failure); remote faults are application errors
// returned by the handler.
const (
	FaultTransport = "transport"
	FaultRemote    = "remote"
)

// Request is the wire frame for one bus call. Body wraps the operation
// message in a polymorphic envelope so the receiving bus can dispatch on
// the operation id.
type Request struct {
	Caller  uuid.UUID             `json:"caller"`
	Address string                `json:"address"`
	Body    *polymorphic.Envelope `json:"body"`
}

// NewRequest wraps msg for delivery to address.
func NewRequest(caller uuid.UUID, address string, msg Message) *Request {
	return &Request{
		Caller:  caller,
		Address: address,
		Body:    polymorphic.NewEnvelope(msg),
	}
}

// Reply is the wire frame resolving one call: exactly one of Value or Fault
// is set.
type Reply struct {
	Value json.RawMessage `json:"value,omitempty"`
	Fault *Fault          `json:"fault,omitempty"`
}

type Fault struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Err converts a wire fault back into the caller-facing error taxonomy.
func (f *Fault) Err(address string) error {
	switch f.Kind {
	case FaultRemote:
		return &RemoteError{Code: f.Code, Message: f.Message}
	default:
		return &TransportError{Address: address, Reason: f.Message}
	}
}

// FaultFromError classifies a handler failure for the wire. A RemoteError
// (or any plain handler error) travels as a remote fault; transport errors
// keep their kind so the caller can tell delivery failures apart.
func FaultFromError(err error) *Fault {
	var te *TransportError
	if errors.As(err, &te) {
		return &Fault{Kind: FaultTransport, Message: te.Reason}
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return &Fault{Kind: FaultRemote, Code: re.Code, Message: re.Message}
	}
	return &Fault{Kind: FaultRemote, Message: err.Error()}
}
