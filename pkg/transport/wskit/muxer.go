package wskit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// Frame kinds carried on a muxed connection. A channel sees zero or more
// msg frames followed by exactly one end or err frame from each side.
const (
	KindMsg = "msg"
	KindEnd = "end"
	KindErr = "err"
)

// MuxerMsg is a framed message on the multiplexed WebSocket. Each frame is
// scoped to one logical channel by ChannelID; the channel id doubles as the
// request correlation token.
type MuxerMsg struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WebSocketMuxer multiplexes many request channels over a single WebSocket
// connection. The client side opens channels; the server side auto-registers
// them on first frame and dispatches to its bus.
type WebSocketMuxer struct {
	ctx        context.Context
	name       string
	conn       *websocket.Conn
	bus        *bus.Bus
	channels   map[uuid.UUID]*muxerChannel
	channelsMu sync.RWMutex
	writeMu    sync.Mutex
	done       chan struct{}
}

// NewClientWebSocketMuxer spawns the read loop as a goroutine and returns
// the muxer ready to open channels.
func NewClientWebSocketMuxer(ctx context.Context, conn *websocket.Conn) *WebSocketMuxer {
	m := &WebSocketMuxer{
		ctx:      ctx,
		name:     "client",
		conn:     conn,
		channels: make(map[uuid.UUID]*muxerChannel),
		done:     make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// NewServerWebSocketMuxer runs a blocking read loop that dispatches inbound
// requests to b. It returns when the connection closes.
func NewServerWebSocketMuxer(ctx context.Context, b *bus.Bus, conn *websocket.Conn) {
	m := &WebSocketMuxer{
		ctx:      ctx,
		name:     "server",
		conn:     conn,
		bus:      b,
		channels: make(map[uuid.UUID]*muxerChannel),
		done:     make(chan struct{}),
	}
	m.readLoop()
}

// Open registers a fresh channel for one request/reply exchange.
func (m *WebSocketMuxer) Open() (bus.RpcChannel, error) {
	select {
	case <-m.done:
		return nil, fmt.Errorf("connection closed")
	default:
	}
	return m.register(uuid.New()), nil
}

// Closed reports whether the underlying connection has gone away.
func (m *WebSocketMuxer) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *WebSocketMuxer) register(channelID uuid.UUID) *muxerChannel {
	send := func(kind string, payload []byte, errMsg string) error {
		m.writeMu.Lock()
		defer m.writeMu.Unlock()
		return websocket.JSON.Send(m.conn, &MuxerMsg{
			ChannelID: channelID,
			Kind:      kind,
			Payload:   payload,
			Error:     errMsg,
		})
	}

	cleanup := func() {
		m.channelsMu.Lock()
		defer m.channelsMu.Unlock()
		delete(m.channels, channelID)
		slog.Debug("muxer: channel unregistered", slog.String("channel_id", channelID.String()))
	}

	channel := newMuxerChannel(send, cleanup)

	m.channelsMu.Lock()
	m.channels[channelID] = channel
	m.channelsMu.Unlock()

	slog.Debug("muxer: channel registered", slog.String("channel_id", channelID.String()))
	return channel
}

// readLoop receives frames, routes them to their channel, and on the server
// side auto-registers a channel plus a dispatch goroutine per new request.
func (m *WebSocketMuxer) readLoop() {
	defer m.shutdown()

	for {
		var msg MuxerMsg
		if err := websocket.JSON.Receive(m.conn, &msg); err != nil {
			slog.Debug("muxer: websocket receive error",
				slog.String("name", m.name),
				slog.String("error", err.Error()))
			return
		}

		m.channelsMu.RLock()
		channel, exists := m.channels[msg.ChannelID]
		m.channelsMu.RUnlock()

		if !exists {
			// Peer-side close frames for channels we already dropped.
			if msg.Kind != KindMsg {
				continue
			}
			if m.bus == nil {
				slog.Warn("muxer: frame for unknown channel", slog.String("channel_id", msg.ChannelID.String()))
				continue
			}
			channel = m.register(msg.ChannelID)
			go m.dispatch(channel)
		}

		channel.deliver(&msg)
	}
}

// dispatch serves one inbound request channel on the server side.
func (m *WebSocketMuxer) dispatch(channel *muxerChannel) {
	defer func() {
		if r := recover(); r != nil {
			channel.Close(fmt.Errorf("panic: %v", r))
		}
	}()

	req := &api.Request{}
	if err := channel.Decode(m.ctx, req); err != nil {
		channel.Close(err)
		return
	}

	reply := m.bus.ServeRequest(m.ctx, req)
	if err := channel.Encode(reply); err != nil {
		channel.Close(err)
		return
	}
	channel.Close(nil)
}

// shutdown fails every open channel when the connection dies.
func (m *WebSocketMuxer) shutdown() {
	close(m.done)

	m.channelsMu.Lock()
	channels := make([]*muxerChannel, 0, len(m.channels))
	for _, channel := range m.channels {
		channels = append(channels, channel)
	}
	m.channelsMu.Unlock()

	for _, channel := range channels {
		channel.shutdown(fmt.Errorf("connection closed"), false)
	}
}
