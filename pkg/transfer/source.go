package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
)

// Open starts a chunked download of the resource behind rawURL. Metadata is
// fetched up front; chunk fetches then run on a dedicated worker with a
// bounded prefetch window, emitted strictly in offset order.
func (p *Provider) Open(ctx context.Context, rawURL string) (*ChunkStream, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	endpoint := p.bus.Endpoint(u.Node, api.TransferAddress(u.Token))

	meta, err := bus.Call[*api.Metadata](ctx, endpoint, &api.GetMetadata{})
	if err != nil {
		return nil, err
	}
	if meta.Size < 0 {
		return nil, &api.TransportError{Address: endpoint.Address(), Reason: fmt.Sprintf("invalid metadata size %d", meta.Size)}
	}

	stream := newChunkStream()
	go p.fetchWorker(ctx, stream, endpoint, meta.Size)
	return stream, nil
}

// Download copies the resource behind rawURL into w.
func (p *Provider) Download(ctx context.Context, rawURL string, w io.Writer) error {
	stream, err := p.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer stream.Abort()

	for stream.MoveNext() {
		chunk, err := stream.Current()
		if err != nil {
			return err
		}
		if _, err := w.Write(chunk.Content); err != nil {
			return err
		}
	}
	return nil
}

// fetchWorker pipelines chunk fetches through a queue of reply slots. The
// queue's capacity bounds how many calls are in flight; draining it in
// enqueue order keeps emission in offset order no matter which fetch
// completes first. The first failure cancels the rest of the transfer.
func (p *Provider) fetchWorker(parent context.Context, stream *ChunkStream, endpoint *bus.Endpoint, size int64) {
	defer close(stream.done)
	defer close(stream.items)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type slot chan streamItem
	// One below the window: the consumer always holds one popped slot whose
	// fetch may still be running, so queued slots plus that one never exceed
	// p.window calls in flight.
	slots := make(chan slot, p.window-1)

	go func() {
		defer close(slots)
		for offset := uint64(0); offset < uint64(size); offset += uint64(p.chunkSize) {
			length := p.chunkSize
			if remaining := uint64(size) - offset; remaining < uint64(length) {
				length = uint32(remaining)
			}

			s := make(slot, 1)
			select {
			case slots <- s:
			case <-ctx.Done():
				return
			}

			go func(offset uint64, length uint32) {
				chunk, err := bus.Call[*api.Chunk](ctx, endpoint, &api.GetChunk{Offset: offset, Size: length})
				s <- streamItem{chunk: chunk, err: err}
			}(offset, length)
		}
	}()

	for s := range slots {
		var item streamItem
		select {
		case item = <-s:
		case <-stream.abort:
			return
		}

		if item.err != nil {
			cancel()
			stream.emit(item)
			return
		}
		if !stream.emit(item) {
			return
		}
	}
}
