package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletimer/go/internal/tables"
)

// ConnectionManager manages WebSocket connections of table displays and
// control panels
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	commands TableCommands

	broadcastCh chan tables.Snapshot
	registerCh  chan *Connection
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// lastVersion is the newest snapshot version queued to this connection.
	// Only touched by the manager loop.
	lastVersion uint64

	// closed is set by the pumps before they unregister, so a connection that
	// dies before the manager loop registers it is never added.
	closed atomic.Bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBufferSize   int
	ReportRejections bool
	CheckOrigin      func(r *http.Request) bool
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
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Displays are served from arbitrary kiosk hosts
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, commands TableCommands) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		commands:    commands,
		broadcastCh: make(chan tables.Snapshot, 64),
		registerCh:  make(chan *Connection, 64),
	}
}

// Start processes registrations and broadcasts until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case conn := <-cm.registerCh:
			cm.registerConnection(conn)
		case snapshot := <-cm.broadcastCh:
			cm.handleBroadcast(snapshot)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The new
// connection receives a full state message as soon as it is registered.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		RemoteAddr:  r.RemoteAddr,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}

	cm.registerCh <- connection

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", connection.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

// BroadcastState queues a snapshot for every connection. It never blocks;
// when the queue is full the snapshot is dropped and the next change or
// reconciler tick carries the state instead.
func (cm *ConnectionManager) BroadcastState(snapshot tables.Snapshot) {
	select {
	case cm.broadcastCh <- snapshot:
	default:
		log.Warn().Uint64("version", snapshot.Version).Msg("broadcast channel full, dropping state")
	}
}

// registerConnection adds a connection and queues the current state to it.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	snapshot := cm.commands.Snapshot()
	data, err := json.Marshal(NewStateMessage(snapshot))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal initial state")
		return
	}
	// Insert and queue under one lock so a client that has read its first
	// state is guaranteed to be registered. Send is empty at this point.
	cm.mu.Lock()
	if conn.closed.Load() {
		cm.mu.Unlock()
		// Never registered, so no one else closes Send; this stops writePump.
		close(conn.Send)
		log.Debug().Str("connection_id", conn.ID).Msg("connection closed before registration")
		return
	}
	cm.connections[conn] = true
	conn.Send <- data
	conn.lastVersion = snapshot.Version
	total := len(cm.connections)
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("remote_addr", conn.RemoteAddr).
			Msg("connection unregistered")
	}
}

// handleBroadcast marshals a snapshot once and hands it to every connection
// that has not already seen it.
func (cm *ConnectionManager) handleBroadcast(snapshot tables.Snapshot) {
	data, err := json.Marshal(NewStateMessage(snapshot))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal state for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	// Sends happen under the read lock so unregisterConnection cannot close
	// a Send channel mid-broadcast.
	cm.mu.RLock()
	for conn := range cm.connections {
		if snapshot.Version <= conn.lastVersion {
			continue
		}
		select {
		case conn.Send <- data:
			conn.lastVersion = snapshot.Version
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Uint64("version", snapshot.Version).
		Int("connections", delivered).
		Msg("state broadcasted")
}

// sendTo queues data for a single connection if it is still registered.
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.connections[conn] {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// ConnectionCount returns the number of registered connections.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	return map[string]interface{}{
		"total_connections": cm.ConnectionCount(),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.closed.Store(true)
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
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the connection fails
func (c *Connection) readPump() {
	defer func() {
		c.closed.Store(true)
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

// handleClientMessage decodes and applies one command. Malformed frames and
// commands that do not apply are dropped.
func (c *Connection) handleClientMessage(message []byte) {
	msg, err := DecodeClientMessage(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("dropping client message")
		return
	}

	if err := Dispatch(c.Manager.commands, msg); err != nil {
		ev := log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("command", string(msg.Type))
		if msg.TableID != nil {
			ev = ev.Int("table_id", int(*msg.TableID))
		}
		ev.Msg("command ignored")

		if c.Manager.config.ReportRejections && !errors.Is(err, ErrUnknownMessageType) {
			c.reject(msg, err)
		}
	}
}

func (c *Connection) reject(msg ClientMessage, reason error) {
	data, err := json.Marshal(NewRejectedMessage(msg, reason))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal rejection")
		return
	}
	if !c.Manager.sendTo(c, data) {
		log.Debug().Str("connection_id", c.ID).Msg("rejection not delivered")
	}
}
