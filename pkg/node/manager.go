package node

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Manager hosts multiple nodes in one process, created on first use.
type Manager interface {
	GetOrCreate(ctx context.Context, nodeID uuid.UUID) (*Node, error)
	Remove(ctx context.Context, nodeID uuid.UUID)
	Close()
}

type manager struct {
	mu      sync.RWMutex
	options *Options
	nodes   map[uuid.UUID]*Node
}

// NewManager creates a Manager. Each node gets the shared options with its
// own identity.
func NewManager(options *Options) Manager {
	return &manager{
		options: options,
		nodes:   make(map[uuid.UUID]*Node),
	}
}

func (m *manager) GetOrCreate(ctx context.Context, nodeID uuid.UUID) (*Node, error) {
	m.mu.RLock()
	n, ok := m.nodes[nodeID]
	m.mu.RUnlock()
	if ok {
		return n, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if n, ok := m.nodes[nodeID]; ok {
		return n, nil
	}

	options := *m.options
	options.NodeID = nodeID
	n, err := New(ctx, &options)
	if err != nil {
		return nil, err
	}

	m.nodes[nodeID] = n
	return n, nil
}

func (m *manager) Remove(_ context.Context, nodeID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.nodes[nodeID]; ok {
		n.Close()
		delete(m.nodes, nodeID)
	}
}

func (m *manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, n := range m.nodes {
		n.Close()
		delete(m.nodes, id)
	}
}
