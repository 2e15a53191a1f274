package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// maxMessageSize bounds a single OCPP frame (gorilla closes the
	// connection with ErrReadLimit when exceeded).
	maxMessageSize = 512 * 1024

	readTimeout   = 60 * time.Second
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendQueueSize = 64
)

// conn is one charge point connection: a gorilla socket with a buffered send
// queue, a write pump with keepalive pings, and a read pump that feeds frames
// to the endpoint.
type conn struct {
	clientID string
	protocol string
	ws       *websocket.Conn
	server   *Server
	send     chan []byte
	limiter  *rate.Limiter // nil when rate limiting is disabled

	// done is closed exactly once when the connection shuts down. The send
	// channel is never closed; enqueue and the write pump select on done
	// instead, so a blocked enqueue cannot hold up close.
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(clientID, protocol string, ws *websocket.Conn, server *Server, limiter *rate.Limiter) *conn {
	return &conn{
		clientID: clientID,
		protocol: protocol,
		ws:       ws,
		server:   server,
		send:     make(chan []byte, sendQueueSize),
		limiter:  limiter,
		done:     make(chan struct{}),
	}
}

// run services the connection until it closes.
func (c *conn) run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *conn) readPump(ctx context.Context) {
	defer c.server.connClosed(ctx, c)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.clientID, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		if c.limiter != nil && !c.limiter.Allow() {
			slog.Warn("closing connection: message rate limit exceeded", "client", c.clientID)
			c.close(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		c.server.endpoint.HandleFrame(ctx, c.clientID, data)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. It marks the conn closed on exit so queued senders are
// released even when the pump dies on a write error.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a frame for the write pump. It never blocks a closing
// connection: close releases every waiter through done.
func (c *conn) enqueue(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close shuts the connection down with a close frame. Idempotent.
func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		c.ws.Close()
	})
}
