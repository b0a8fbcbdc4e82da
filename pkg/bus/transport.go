package bus

import (
	"context"

	"github.com/google/uuid"
)

// Resolver locates a live link to a remote node. Implementations are free to
// pool connections; the bus resolves lazily on each remote call.
type Resolver interface {
	Resolve(ctx context.Context, node uuid.UUID) (Link, error)
}

// Link is a connection to one remote node capable of carrying many
// concurrent request channels.
type Link interface {
	Open() (RpcChannel, error)
}

// RpcChannel carries a single request/reply exchange over a link.
type RpcChannel interface {
	Encode(v any) error
	Decode(ctx context.Context, v any) error
	Close(err error)
}
