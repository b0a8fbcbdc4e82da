package transfer

import (
	"github.com/fgrzl/gridkit/pkg/bus"
)

const (
	// DefaultChunkSize is the byte range requested per chunk call.
	DefaultChunkSize uint32 = 64 * 1024

	// DefaultWindow bounds how many chunk fetches are in flight at once.
	DefaultWindow = 8
)

type Options struct {
	ChunkSize uint32
	Window    int
}

// Provider runs chunked transfers over a bus. Downloads prefetch with a
// bounded window; uploads are strictly sequential on the wire.
type Provider struct {
	bus       *bus.Bus
	chunkSize uint32
	window    int
}

// NewProvider creates a provider. opts may be nil for defaults.
func NewProvider(b *bus.Bus, opts *Options) *Provider {
	p := &Provider{
		bus:       b,
		chunkSize: DefaultChunkSize,
		window:    DefaultWindow,
	}
	if opts != nil {
		if opts.ChunkSize > 0 {
			p.chunkSize = opts.ChunkSize
		}
		if opts.Window > 0 {
			p.window = opts.Window
		}
	}
	return p
}
