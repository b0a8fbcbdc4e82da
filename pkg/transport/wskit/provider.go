package wskit

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// Directory maps node identities to dialable transport addresses.
type Directory interface {
	Lookup(node uuid.UUID) (string, error)
}

// StaticDirectory is a fixed node table, handy for tests and small meshes.
type StaticDirectory map[uuid.UUID]string

func (d StaticDirectory) Lookup(node uuid.UUID) (string, error) {
	addr, ok := d[node]
	if !ok {
		return "", fmt.Errorf("unknown node: %s", node)
	}
	return addr, nil
}

// WebSocketResolver maintains one muxed WebSocket connection per remote
// node, dialed lazily on first call and redialed after a drop.
type WebSocketResolver struct {
	directory Directory
	origin    string
	token     string

	mu    sync.Mutex
	links map[uuid.UUID]*WebSocketMuxer
}

// NewResolver creates a resolver that authenticates with the given bearer
// token.
func NewResolver(directory Directory, token string) *WebSocketResolver {
	return &WebSocketResolver{
		directory: directory,
		origin:    "http://localhost",
		token:     token,
		links:     make(map[uuid.UUID]*WebSocketMuxer),
	}
}

func (p *WebSocketResolver) Resolve(ctx context.Context, node uuid.UUID) (bus.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if link, ok := p.links[node]; ok && !link.Closed() {
		return link, nil
	}

	addr, err := p.directory.Lookup(node)
	if err != nil {
		return nil, err
	}

	conn, err := p.dial(addr)
	if err != nil {
		return nil, err
	}

	link := NewClientWebSocketMuxer(ctx, conn)
	p.links[node] = link
	return link, nil
}

func (p *WebSocketResolver) dial(addr string) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(addr, p.origin)
	if err != nil {
		return nil, err
	}

	cfg.Header = http.Header{}
	cfg.Header.Set("Authorization", "Bearer "+p.token)

	return websocket.DialConfig(cfg)
}
