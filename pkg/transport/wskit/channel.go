package wskit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

type sendFunc func(kind string, payload []byte, errMsg string) error

// muxerChannel is one logical request channel on a multiplexed connection.
// The muxer read loop feeds inbound frames through deliver; Decode consumes
// them in order.
type muxerChannel struct {
	recv    chan []byte
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	send    sendFunc
	cleanup func()
}

func newMuxerChannel(send sendFunc, cleanup func()) *muxerChannel {
	return &muxerChannel{
		recv:    make(chan []byte, 1),
		closed:  make(chan struct{}),
		send:    send,
		cleanup: cleanup,
	}
}

func (c *muxerChannel) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(KindMsg, payload, "")
}

func (c *muxerChannel) Decode(ctx context.Context, v any) error {
	select {
	case payload := <-c.recv:
		return json.Unmarshal(payload, v)
	case <-c.closed:
		return c.closeError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver routes one inbound frame into the channel. Frames arriving after
// close are dropped.
func (c *muxerChannel) deliver(msg *MuxerMsg) {
	switch msg.Kind {
	case KindMsg:
		select {
		case c.recv <- msg.Payload:
		case <-c.closed:
		}
	case KindErr:
		c.shutdown(errors.New(msg.Error), false)
	default:
		c.shutdown(io.EOF, false)
	}
}

// Close ends the channel and notifies the peer. Idempotent.
func (c *muxerChannel) Close(err error) {
	c.shutdown(err, true)
}

func (c *muxerChannel) shutdown(err error, notifyPeer bool) {
	c.once.Do(func() {
		if err == nil {
			err = io.EOF
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()

		if notifyPeer {
			if errors.Is(err, io.EOF) {
				_ = c.send(KindEnd, nil, "")
			} else {
				_ = c.send(KindErr, nil, err.Error())
			}
		}
		close(c.closed)
		c.cleanup()
	})
}

func (c *muxerChannel) closeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
