package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/google/uuid"
)

// Handler processes one message addressed to a bound service. The returned
// value is marshalled as the reply; a returned error travels to the caller
// as a remote fault.
type Handler func(ctx context.Context, caller uuid.UUID, msg api.Message) (any, error)

// Bus routes typed messages to service addresses. Addresses on the local
// node dispatch in process; anything else goes through the resolver.
type Bus struct {
	nodeID   uuid.UUID
	resolver Resolver

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a bus for the given node identity. resolver may be nil for a
// purely local bus; remote calls then fail with a transport error. Every bus
// answers ping, so peers can check liveness without extra setup.
func New(nodeID uuid.UUID, resolver Resolver) *Bus {
	b := &Bus{
		nodeID:   nodeID,
		resolver: resolver,
		handlers: make(map[string]Handler),
	}
	b.handlers[api.PingAddress] = func(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		return msg, nil
	}
	return b
}

func (b *Bus) NodeID() uuid.UUID {
	return b.nodeID
}

// Bind registers handler at address. Binding an occupied address returns
// ErrAddressConflict and leaves the existing handler active.
func (b *Bus) Bind(address string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[address]; exists {
		return api.ErrAddressConflict
	}
	b.handlers[address] = handler
	slog.Debug("bus: bound", slog.String("address", address))
	return nil
}

// Unbind removes the handler at address. Unbinding an unknown address is a
// no-op. In-flight handler invocations run to completion.
func (b *Bus) Unbind(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, address)
	slog.Debug("bus: unbound", slog.String("address", address))
}

// Call delivers msg to address on node and waits for the reply. A nil node
// id targets the local node. The context deadline bounds the whole exchange;
// on expiry the call resolves with ErrTimeout and any late reply is
// discarded.
func (b *Bus) Call(ctx context.Context, node uuid.UUID, address string, msg api.Message) (json.RawMessage, error) {
	if node == uuid.Nil || node == b.nodeID {
		return b.callLocal(ctx, b.nodeID, address, msg)
	}
	return b.callRemote(ctx, node, address, msg)
}

// Send delivers msg without waiting for the result. Delivery failures are
// logged, never returned.
func (b *Bus) Send(ctx context.Context, node uuid.UUID, address string, msg api.Message) {
	go func() {
		if _, err := b.Call(ctx, node, address, msg); err != nil {
			slog.Warn("bus: send failed",
				slog.String("address", address),
				slog.String("node", node.String()),
				slog.String("error", err.Error()))
		}
	}()
}

func (b *Bus) callLocal(ctx context.Context, caller uuid.UUID, address string, msg api.Message) (json.RawMessage, error) {
	b.mu.RLock()
	handler, bound := b.handlers[address]
	b.mu.RUnlock()

	if !bound {
		return nil, &api.TransportError{Address: address, Reason: "no handler bound"}
	}

	type outcome struct {
		value any
		err   error
	}

	// Buffered so a late handler result is dropped, not leaked as a
	// blocked goroutine.
	done := make(chan outcome, 1)
	go func() {
		value, err := handler(ctx, caller, msg)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		raw, err := json.Marshal(out.value)
		if err != nil {
			return nil, &api.TransportError{Address: address, Reason: "encode reply: " + err.Error()}
		}
		return raw, nil
	case <-ctx.Done():
		return nil, mapContextErr(ctx.Err())
	}
}

func (b *Bus) callRemote(ctx context.Context, node uuid.UUID, address string, msg api.Message) (json.RawMessage, error) {
	if b.resolver == nil {
		return nil, &api.TransportError{Address: address, Reason: "no resolver configured"}
	}

	link, err := b.resolver.Resolve(ctx, node)
	if err != nil {
		return nil, &api.TransportError{Address: address, Reason: "resolve " + node.String() + ": " + err.Error()}
	}

	channel, err := link.Open()
	if err != nil {
		return nil, &api.TransportError{Address: address, Reason: "open channel: " + err.Error()}
	}
	defer channel.Close(nil)

	if err := channel.Encode(api.NewRequest(b.nodeID, address, msg)); err != nil {
		return nil, &api.TransportError{Address: address, Reason: "send request: " + err.Error()}
	}

	var reply api.Reply
	if err := channel.Decode(ctx, &reply); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, api.ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &api.TransportError{Address: address, Reason: "receive reply: " + err.Error()}
	}

	if reply.Fault != nil {
		return nil, reply.Fault.Err(address)
	}
	return reply.Value, nil
}

// ServeRequest dispatches a request arriving from a transport and always
// produces a reply frame. Only public addresses are reachable this way.
func (b *Bus) ServeRequest(ctx context.Context, req *api.Request) *api.Reply {
	if !strings.HasPrefix(req.Address, api.PublicPrefix) {
		return faultReply(api.FaultTransport, "address not public: "+req.Address)
	}
	if req.Body == nil {
		return faultReply(api.FaultTransport, "empty request body")
	}

	msg, ok := req.Body.Content.(api.Message)
	if !ok {
		return faultReply(api.FaultTransport, "unsupported message type")
	}

	raw, err := b.callLocal(ctx, req.Caller, req.Address, msg)
	if err != nil {
		return &api.Reply{Fault: api.FaultFromError(err)}
	}
	return &api.Reply{Value: raw}
}

func faultReply(kind, message string) *api.Reply {
	return &api.Reply{Fault: &api.Fault{Kind: kind, Message: message}}
}

func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return api.ErrTimeout
	}
	return err
}
