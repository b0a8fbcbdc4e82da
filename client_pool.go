package gridkit

import (
	"sync"

	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/google/uuid"
)

type NodeClientPool struct {
	mu      sync.RWMutex
	bus     *bus.Bus
	clients map[uuid.UUID]Client
}

func NewNodeClientPool(b *bus.Bus) *NodeClientPool {
	return &NodeClientPool{
		bus:     b,
		clients: make(map[uuid.UUID]Client),
	}
}

func (p *NodeClientPool) GetClient(node uuid.UUID) Client {
	p.mu.RLock()
	client, ok := p.clients[node]
	p.mu.RUnlock()
	if ok {
		return client
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check in case it was created between locks
	if client, ok := p.clients[node]; ok {
		return client
	}

	client = NewClient(p.bus, node)
	p.clients[node] = client
	return client
}
