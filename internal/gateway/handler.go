// Package gateway is the session transport: it upgrades websocket
// connections, turns client actions into room operations and pushes
// room-scoped broadcasts back out.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
)

// RoomService is what the gateway needs from the room operations.
type RoomService interface {
	JoinRoom(ctx context.Context, roomID, connID string) models.Result
	SetName(ctx context.Context, roomID, connID, name string) models.Result
	StartGame(ctx context.Context, roomID string) models.Result
	SubmitAnswer(ctx context.Context, roomID string, roundID int, connID string, answer bool) models.Result
	GetState(ctx context.Context, roomID string) models.Result
	Disconnect(ctx context.Context, connID string)
}

// clientCommand is one action frame received from a client.
type clientCommand struct {
	Action  string `json:"action"`
	RoomID  string `json:"roomId"`
	RoundID int    `json:"roundId"`
	Name    string `json:"name"`
	Answer  bool   `json:"answer"`
}

// Handler serves the websocket hub endpoint.
type Handler struct {
	manager *ConnectionManager
	rooms   RoomService
}

// NewHandler wires the hub endpoint to its collaborators.
func NewHandler(manager *ConnectionManager, rooms RoomService) *Handler {
	return &Handler{manager: manager, rooms: rooms}
}

// ServeHub upgrades the request and runs the connection's read loop.
func (h *Handler) ServeHub(w http.ResponseWriter, r *http.Request) {
	conn, err := h.manager.Upgrade(w, r)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	// The request context dies the moment this handler returns; the pump
	// and every room operation it dispatches live for the connection.
	go h.readPump(context.WithoutCancel(r.Context()), conn)
}

func (h *Handler) readPump(ctx context.Context, conn *Connection) {
	defer func() {
		h.manager.Remove(conn)
		conn.conn.Close()
		h.rooms.Disconnect(ctx, conn.ID)
	}()

	conn.conn.SetReadLimit(h.manager.config.MaxMessageSize)
	conn.conn.SetReadDeadline(time.Now().Add(h.manager.config.ReadTimeout))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(h.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn_id", conn.ID).Msg("unexpected websocket close")
			}
			return
		}
		conn.conn.SetReadDeadline(time.Now().Add(h.manager.config.ReadTimeout))

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			conn.reply("result", models.Fail("malformed command"))
			continue
		}
		h.dispatch(ctx, conn, cmd)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Connection, cmd clientCommand) {
	switch cmd.Action {
	case "join":
		res := h.rooms.JoinRoom(ctx, cmd.RoomID, conn.ID)
		if res.Ok {
			h.manager.AddToRoom(conn, cmd.RoomID)
		}
		conn.reply("result", res)
	case "setName":
		conn.reply("result", h.rooms.SetName(ctx, cmd.RoomID, conn.ID, cmd.Name))
	case "start":
		conn.reply("result", h.rooms.StartGame(ctx, cmd.RoomID))
	case "answer":
		conn.reply("result", h.rooms.SubmitAnswer(ctx, cmd.RoomID, cmd.RoundID, conn.ID, cmd.Answer))
	case "state":
		conn.reply("state", h.rooms.GetState(ctx, cmd.RoomID))
	default:
		log.Debug().Str("conn_id", conn.ID).Str("action", cmd.Action).Msg("unknown client action")
		conn.reply("result", models.Fail("unknown action"))
	}
}
