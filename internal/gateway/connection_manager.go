package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks this process's websocket connections grouped by
// room, and fans broadcast payloads out to them.
type ConnectionManager struct {
	mu    sync.RWMutex
	rooms map[string]map[*Connection]bool

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan broadcastMessage
}

// Connection is one client's live websocket session. Its ID doubles as the
// player key in the shared store.
type Connection struct {
	ID      string
	conn    *websocket.Conn
	send    chan []byte
	manager *ConnectionManager

	mu     sync.Mutex
	roomID string
	closed bool
}

// trySend queues a frame without blocking. It reports false when the buffer
// is full or the connection is already closed; sending and closing are both
// guarded by mu, so a frame can never hit a closed channel.
func (c *Connection) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send side exactly once.
func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ConnectionConfig holds the websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

type broadcastMessage struct {
	roomID  string
	topic   string
	payload []byte
}

// envelope is the frame pushed to clients.
type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// DefaultConnectionConfig returns the production websocket settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager returns a manager with no connections.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case msg := <-cm.broadcastCh:
			cm.deliver(msg)
		}
	}
}

// Upgrade turns an HTTP request into a managed websocket connection. The
// returned connection is not in any room group until AddToRoom.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	wsConn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn := &Connection{
		ID:      uuid.NewString(),
		conn:    wsConn,
		send:    make(chan []byte, 256),
		manager: cm,
	}
	go conn.writePump()
	log.Info().Str("conn_id", conn.ID).Msg("websocket connection established")
	return conn, nil
}

// AddToRoom puts the connection into a room's broadcast group.
func (cm *ConnectionManager) AddToRoom(conn *Connection, roomID string) {
	cm.mu.Lock()
	if cm.rooms[roomID] == nil {
		cm.rooms[roomID] = make(map[*Connection]bool)
	}
	cm.rooms[roomID][conn] = true
	cm.mu.Unlock()

	conn.mu.Lock()
	conn.roomID = roomID
	conn.mu.Unlock()
	log.Debug().Str("conn_id", conn.ID).Str("room_id", roomID).Msg("connection joined room group")
}

// Remove drops the connection from its room group and closes its send side.
// Safe to call more than once.
func (cm *ConnectionManager) Remove(conn *Connection) {
	conn.mu.Lock()
	roomID := conn.roomID
	conn.mu.Unlock()

	cm.mu.Lock()
	if group, ok := cm.rooms[roomID]; ok {
		if _, ok := group[conn]; ok {
			delete(group, conn)
			if len(group) == 0 {
				delete(cm.rooms, roomID)
			}
			log.Info().Str("conn_id", conn.ID).Str("room_id", roomID).Msg("connection unregistered")
		}
	}
	cm.mu.Unlock()

	conn.closeSend()
}

// BroadcastToRoom queues a payload for every connection in the room's group
// on this process. Delivery is best effort; a full broadcast queue drops the
// message.
func (cm *ConnectionManager) BroadcastToRoom(roomID, topic string, payload []byte) {
	select {
	case cm.broadcastCh <- broadcastMessage{roomID: roomID, topic: topic, payload: payload}:
	default:
		log.Warn().Str("room_id", roomID).Str("topic", topic).Msg("broadcast queue full, dropping message")
	}
}

func (cm *ConnectionManager) deliver(msg broadcastMessage) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.rooms[msg.roomID]))
	for conn := range cm.rooms[msg.roomID] {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	frame, err := json.Marshal(envelope{Topic: msg.topic, Payload: msg.payload})
	if err != nil {
		log.Error().Err(err).Msg("marshalling broadcast frame")
		return
	}
	for _, conn := range targets {
		if !conn.trySend(frame) {
			log.Warn().Str("conn_id", conn.ID).Msg("connection not keeping up, closing")
			cm.Remove(conn)
			conn.conn.Close()
		}
	}
}

// Stats returns connection counts for diagnostics.
func (cm *ConnectionManager) Stats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	total := 0
	perRoom := make(map[string]int, len(cm.rooms))
	for roomID, group := range cm.rooms {
		total += len(group)
		perRoom[roomID] = len(group)
	}
	return map[string]any{
		"total_connections": total,
		"active_rooms":      len(cm.rooms),
		"room_connections":  perRoom,
	}
}

// writePump sends queued frames and pings until the connection dies.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply sends a single frame directly to this connection.
func (c *Connection) reply(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("conn_id", c.ID).Msg("marshalling reply")
		return
	}
	frame, err := json.Marshal(envelope{Topic: topic, Payload: raw})
	if err != nil {
		return
	}
	if !c.trySend(frame) {
		log.Warn().Str("conn_id", c.ID).Msg("reply dropped")
	}
}
