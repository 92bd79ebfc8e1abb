package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/relay/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 64
)

// conn wraps one websocket connection. All writes go through the outbound
// channel so the write pump is the only goroutine touching the socket for
// writes; a subscriber too slow to drain its buffer is disconnected rather
// than allowed to stall the hub.
type conn struct {
	ws       *websocket.Conn
	hub      *Hub
	log      zerolog.Logger
	outbound chan wire.Envelope
	done     chan struct{}
}

func newConn(ws *websocket.Conn, hub *Hub, log zerolog.Logger) *conn {
	return &conn{
		ws:       ws,
		hub:      hub,
		log:      log,
		outbound: make(chan wire.Envelope, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// send queues an envelope for delivery. If the connection's buffer is full
// the frame is dropped; the feeds are at-least-once via reload, not a
// guaranteed stream.
func (c *conn) send(env wire.Envelope) {
	select {
	case <-c.done:
	case c.outbound <- env:
	default:
		c.log.Warn().Str("type", env.Type).Msg("outbound buffer full, dropping frame")
	}
}

// writePump drains the outbound channel onto the socket.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case env := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump processes inbound envelopes until the peer goes away, then drops
// the connection from the hub.
func (c *conn) readPump() {
	defer func() {
		close(c.done)
		c.hub.Drop(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			c.send(wire.Envelope{Type: wire.TypeError, Error: err.Error()})
			continue
		}
		c.handle(env)
	}
}

func (c *conn) handle(env wire.Envelope) {
	switch env.Type {
	case wire.TypeSubscribe:
		if _, _, err := wire.SplitTopic(env.Topic); err != nil {
			c.send(wire.Envelope{Type: wire.TypeError, Error: err.Error()})
			return
		}
		c.hub.Subscribe(c, env.Topic)
	case wire.TypeUnsubscribe:
		c.hub.Unsubscribe(c, env.Topic)
	case wire.TypePublish:
		prefix, _, err := wire.SplitTopic(env.Topic)
		if err != nil || prefix != wire.BcastPrefix || env.Message == nil {
			c.send(wire.Envelope{Type: wire.TypeError, Error: "publish requires a bcast topic and a message"})
			return
		}
		c.hub.Publish(env.Topic, wire.Envelope{Type: wire.TypeEvent, Topic: env.Topic, Message: env.Message})
	case wire.TypeTrack:
		if env.Entry == nil || env.Entry.UserID == "" {
			c.send(wire.Envelope{Type: wire.TypeError, Error: "track requires an entry with a userId"})
			return
		}
		c.hub.Track(c, *env.Entry)
	default:
		c.send(wire.Envelope{Type: wire.TypeError, Error: "unknown envelope type " + env.Type})
	}
}
