package bus

import (
	"context"
	"encoding/json"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/google/uuid"
)

// Endpoint is a reference to a service address on a node. Creating an
// endpoint performs no I/O; resolution happens on first use, so endpoints
// for unreachable peers are cheap to hold.
type Endpoint struct {
	bus     *Bus
	node    uuid.UUID
	address string
}

func (b *Bus) Endpoint(node uuid.UUID, address string) *Endpoint {
	return &Endpoint{bus: b, node: node, address: address}
}

func (e *Endpoint) Address() string {
	return e.address
}

func (e *Endpoint) Call(ctx context.Context, msg api.Message) (json.RawMessage, error) {
	return e.bus.Call(ctx, e.node, e.address, msg)
}

func (e *Endpoint) Send(ctx context.Context, msg api.Message) {
	e.bus.Send(ctx, e.node, e.address, msg)
}

// Call invokes the endpoint and decodes the reply into T.
func Call[T any](ctx context.Context, e *Endpoint, msg api.Message) (T, error) {
	var value T

	raw, err := e.Call(ctx, msg)
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, &api.TransportError{Address: e.address, Reason: "decode reply: " + err.Error()}
	}
	return value, nil
}
