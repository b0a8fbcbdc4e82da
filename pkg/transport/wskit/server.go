package wskit

import (
	"context"

	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/mux"
	"golang.org/x/net/websocket"
)

// ConfigureWebSocketServer exposes the bus at GET /rpc on the router.
func ConfigureWebSocketServer(router *mux.Router, b *bus.Bus) {
	server := &webSocketServer{
		bus: b,
	}
	router.GET("/rpc", server.connect)
}

type webSocketServer struct {
	bus *bus.Bus
}

func (s *webSocketServer) connect(c mux.RouteContext) {

	session, err := NewServerMuxerSession(c.User())
	if err != nil {
		c.Unauthorized()
		return
	}

	if !session.CanAccessNode(s.bus.NodeID()) {
		c.Forbidden("node access denied")
		return
	}

	handler := &webSocketHandler{
		ctx: c,
		bus: s.bus,
	}

	websocket.Handler(handler.handle).ServeHTTP(c.Response(), c.Request())
}

type webSocketHandler struct {
	ctx context.Context
	bus *bus.Bus
}

func (h *webSocketHandler) handle(conn *websocket.Conn) {
	NewServerWebSocketMuxer(h.ctx, h.bus, conn)
}
