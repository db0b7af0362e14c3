package hub

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/picpipe/pkg/log"
)

// Options are the per-connection timing limits.
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Client is one websocket connection. ReadPump and WritePump are its only
// readers and writers; everything else reaches it through the Hub.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	opts Options
}

func NewClient(id string, conn *websocket.Conn, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, opts.SendBuffer),
		opts: opts,
	}
}

// ReadPump hands every text frame to handle, in order, until the
// connection fails. onClose runs once the loop exits.
func (c *Client) ReadPump(handle func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.conn.Close()
	}()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.L().Warn().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket read error")
			}
			return
		}
		handle(c, message)
	}
}

// WritePump drains the send queue to the socket and keeps it alive with
// pings. It exits when the queue is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.L().Debug().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket write failed")
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
