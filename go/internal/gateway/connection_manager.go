package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcurtis22/triviarena/go/internal/game"
)

// GameApp defines what the gateway needs from the game engine. Calls enqueue
// commands on the engine's serialized queue.
type GameApp interface {
	Join(identity, displayName, connID string)
	JoinRoom(identity, displayName, room, connID string)
	LeaveRoom(identity, room string)
	SubmitAnswer(identity, displayName string, round int64, answer string)
	Disconnect(identity, connID string)
}

// ConnectionManager manages WebSocket connections, pooled per room.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	game     GameApp

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	Identity string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time

	rooms map[string]bool // guarded by Manager.mu
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to deliver to connections in a room.
type BroadcastMessage struct {
	Room     string
	Message  *ServerMessage
	Identity string // Optional: if set, only send to this participant
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, gameApp GameApp) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		game:        gameApp,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it
// in the lobby room.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Identity:    identity,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		rooms:       make(map[string]bool),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("identity", identity).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the lobby pool.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.addToRoomLocked(conn, game.LobbyRoom)
}

func (cm *ConnectionManager) addToRoomLocked(conn *Connection, room string) {
	if cm.roomConnections[room] == nil {
		cm.roomConnections[room] = make(map[*Connection]bool)
	}
	cm.roomConnections[room][conn] = true
	conn.rooms[room] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room", room).
		Int("total_connections", len(cm.roomConnections[room])).
		Msg("connection registered in room")
}

// JoinRoom adds the connection to a room's pool.
func (cm *ConnectionManager) JoinRoom(conn *Connection, room string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.addToRoomLocked(conn, room)
}

// LeaveRoom removes the connection from a room's pool.
func (cm *ConnectionManager) LeaveRoom(conn *Connection, room string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if connections, exists := cm.roomConnections[room]; exists {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.roomConnections, room)
		}
	}
	delete(conn.rooms, room)
}

// unregisterConnection removes a connection from every room pool and notifies
// the engine so the grace-period removal can start.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	registered := false
	for room := range conn.rooms {
		if connections, exists := cm.roomConnections[room]; exists {
			if connections[conn] {
				registered = true
				delete(connections, conn)
				if len(connections) == 0 {
					delete(cm.roomConnections, room)
				}
			}
		}
	}
	conn.rooms = make(map[string]bool)
	if registered {
		close(conn.Send)
	}
	cm.mu.Unlock()

	if registered {
		log.Info().
			Str("connection_id", conn.ID).
			Str("identity", conn.Identity).
			Msg("connection unregistered")
		if cm.game != nil {
			cm.game.Disconnect(conn.Identity, conn.ID)
		}
	}
}

// BroadcastToRoom sends a message to all connections in a room.
func (cm *ConnectionManager) BroadcastToRoom(room string, message *ServerMessage) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Room: room, Message: message}:
	default:
		log.Warn().Str("room", room).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends a message to one participant's connections in a room.
func (cm *ConnectionManager) BroadcastToUser(room, identity string, message *ServerMessage) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Room: room, Message: message, Identity: identity}:
	default:
		log.Warn().
			Str("room", room).
			Str("identity", identity).
			Msg("broadcast channel full, dropping user message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.Room]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot to avoid holding the lock during writes.
	var targets []*Connection
	for conn := range connections {
		if message.Identity != "" && conn.Identity != message.Identity {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("identity", conn.Identity).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Message.Type)).
		Str("room", message.Room).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// ConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) ConnectionStats() (total int, rooms map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	rooms = make(map[string]int)
	seen := make(map[*Connection]bool)
	for room, connections := range cm.roomConnections {
		rooms[room] = len(connections)
		for conn := range connections {
			if !seen[conn] {
				seen[conn] = true
				total++
			}
		}
	}
	return total, rooms
}

// sendDirect writes a message to this connection only, bypassing the
// broadcast queue; used for validation errors.
func (c *Connection) sendDirect(message *ServerMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal direct message")
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
