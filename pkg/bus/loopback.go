package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/google/uuid"
)

// LoopbackResolver routes calls between buses hosted in the same process.
// Frames still round-trip through the wire encoding, so envelope and fault
// semantics match a networked transport.
type LoopbackResolver struct {
	mu    sync.RWMutex
	buses map[uuid.UUID]*Bus
}

func NewLoopbackResolver() *LoopbackResolver {
	return &LoopbackResolver{
		buses: make(map[uuid.UUID]*Bus),
	}
}

func (r *LoopbackResolver) Add(b *Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buses[b.NodeID()] = b
}

func (r *LoopbackResolver) Resolve(_ context.Context, node uuid.UUID) (Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target, ok := r.buses[node]
	if !ok {
		return nil, fmt.Errorf("unknown node: %s", node)
	}
	return &loopbackLink{target: target}, nil
}

type loopbackLink struct {
	target *Bus
}

func (l *loopbackLink) Open() (RpcChannel, error) {
	return &loopbackChannel{target: l.target}, nil
}

type loopbackChannel struct {
	target *Bus
	req    *api.Request
}

func (c *loopbackChannel) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req := &api.Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return err
	}
	c.req = req
	return nil
}

func (c *loopbackChannel) Decode(ctx context.Context, v any) error {
	if c.req == nil {
		return fmt.Errorf("no request encoded")
	}
	reply, ok := v.(*api.Reply)
	if !ok {
		return fmt.Errorf("unexpected decode target: %T", v)
	}
	*reply = *c.target.ServeRequest(ctx, c.req)
	return nil
}

func (c *loopbackChannel) Close(error) {}
