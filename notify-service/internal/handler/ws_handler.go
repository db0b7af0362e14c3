package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/notify-service/internal/hub"
	"github.com/weiawesome/picpipe/pkg/log"
)

var errInternal = errors.New("internal error")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connections is the subscription manager as seen by the transport.
type Connections interface {
	NewConnID() string
	Connect(client *hub.Client) string
	Disconnect(ctx context.Context, connID string) error
	Send(connID string, data []byte) error
}

// Commands runs client commands; the bus implements it.
type Commands interface {
	Handle(ctx context.Context, msgs ...domain.Message) error
}

type WSHandler struct {
	conns    Connections
	commands Commands
	opts     hub.Options
}

func NewWSHandler(conns Connections, commands Commands, opts hub.Options) *WSHandler {
	return &WSHandler{conns: conns, commands: commands, opts: opts}
}

func (h *WSHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. Frames from one connection are handled one at a time, in order.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.conns.NewConnID(), conn, h.opts)
	connID := h.conns.Connect(client)

	// The request context ends with the handler; the connection outlives it.
	ctx := log.WithFields(context.WithoutCancel(c.Request.Context()), log.FieldConnID, connID)
	l := log.Ctx(ctx)
	l.Info().Msg("websocket connected")

	go client.WritePump()
	go client.ReadPump(
		func(cl *hub.Client, data []byte) { h.handleMessage(ctx, cl, data) },
		func(cl *hub.Client) {
			if err := h.conns.Disconnect(ctx, cl.ID); err != nil {
				l.Error().Err(err).Msg("subscription cleanup failed")
			}
			l.Info().Msg("websocket disconnected")
		},
	)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, data []byte) {
	req, cmd, err := domain.ParseRequest(client.ID, data)
	if err == nil {
		err = h.commands.Handle(ctx, cmd)
	}
	if err != nil && !domain.IsClientError(err) {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldProjectID, req.ProjectID).Msg("command failed")
		err = errInternal
	}
	h.reply(ctx, client.ID, domain.NewAck(req, err))
}

func (h *WSHandler) reply(ctx context.Context, connID string, ack domain.Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := h.conns.Send(connID, data); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to send ack")
	}
}
