package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
)

// Sink pushes written bytes to a remote upload endpoint. Writes are
// re-chunked against a running offset that spans the whole transfer and
// uploaded strictly sequentially, so the peer reconstructs in send order.
// Not safe for concurrent writers.
type Sink struct {
	items     chan []byte
	abort     chan struct{}
	abortOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	cancel    context.CancelFunc

	resolveOnce sync.Once
	result      error
}

// NewSink opens an upload to the resource behind rawURL. No I/O happens
// until the first write.
func (p *Provider) NewSink(ctx context.Context, rawURL string) (*Sink, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	endpoint := p.bus.Endpoint(u.Node, api.TransferAddress(u.Token))

	ctx, cancel := context.WithCancel(ctx)
	s := &Sink{
		items:  make(chan []byte, p.window),
		abort:  make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.worker(ctx, endpoint, p.chunkSize)
	return s, nil
}

// Upload copies r to the resource behind rawURL.
func (p *Provider) Upload(ctx context.Context, rawURL string, r io.Reader) error {
	sink, err := p.NewSink(ctx, rawURL)
	if err != nil {
		return err
	}

	if _, err := io.Copy(sink, r); err != nil {
		sink.Abort()
		return err
	}
	return sink.Close()
}

// Write queues p for upload. The slice is copied, so the caller may reuse
// its buffer.
func (s *Sink) Write(p []byte) (int, error) {
	item := make([]byte, len(p))
	copy(item, p)

	select {
	case s.items <- item:
		return len(p), nil
	case <-s.done:
		if err := s.result; err != nil {
			return 0, err
		}
		return 0, io.ErrClosedPipe
	}
}

// Close signals end of input, waits for the trailing upload calls to drain,
// and returns the transfer result. Write must not be called after Close.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.items)
	})
	<-s.done
	return s.result
}

// Abort cancels the upload and blocks until the worker has exited.
// Idempotent and safe to race with natural completion; whichever outcome
// lands first is the one reported.
func (s *Sink) Abort() {
	s.abortOnce.Do(func() {
		close(s.abort)
		s.cancel()
	})
	<-s.done
}

func (s *Sink) resolve(err error) {
	s.resolveOnce.Do(func() {
		s.result = err
	})
}

// worker drains queued writes into sequential upload calls. Each chunk call
// must succeed before the next slice goes out. The closing message carries a
// digest of everything uploaded so the peer can verify what it assembled.
func (s *Sink) worker(ctx context.Context, endpoint *bus.Endpoint, chunkSize uint32) {
	defer close(s.done)
	defer s.cancel()

	offset := uint64(0)
	digest := sha256.New()
	for {
		select {
		case <-s.abort:
			s.resolve(api.ErrAborted)
			return
		case item, ok := <-s.items:
			if !ok {
				finished := &api.UploadFinished{Hash: hex.EncodeToString(digest.Sum(nil))}
				_, err := bus.Call[*api.Ack](ctx, endpoint, finished)
				s.resolve(s.classify(err))
				return
			}

			for len(item) > 0 {
				select {
				case <-s.abort:
					s.resolve(api.ErrAborted)
					return
				default:
				}

				n := len(item)
				if n > int(chunkSize) {
					n = int(chunkSize)
				}

				chunk := api.Chunk{Offset: offset, Content: item[:n]}
				if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.UploadChunk{Chunk: chunk}); err != nil {
					s.resolve(s.classify(err))
					return
				}
				digest.Write(item[:n])
				offset += uint64(n)
				item = item[n:]
			}
		}
	}
}

// classify folds cancellation caused by Abort into the abort result.
func (s *Sink) classify(err error) error {
	select {
	case <-s.abort:
		return api.ErrAborted
	default:
		return err
	}
}
