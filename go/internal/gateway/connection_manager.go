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
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raidtimer/go/internal/events"
	"github.com/mcdev12/raidtimer/go/internal/timer"
)

// ConnectionManager manages WebSocket connections that follow a group
type ConnectionManager struct {
	registry *timer.Registry
	clock    clockwork.Clock

	// Connection pools organized by group ID
	groupConnections map[string]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	GroupID string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	// ResubscribeInterval bounds a single wait on a group. A group that was
	// evicted and recreated during a wait is picked up once it elapses.
	ResubscribeInterval time.Duration
	CheckOrigin         func(r *http.Request) bool
}

// ConnectionStats is a point-in-time view of the open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveGroups     int            `json:"active_groups"`
	GroupConnections map[string]int `json:"group_connections"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:        10 * time.Second,
		ReadTimeout:         60 * time.Second,
		PingInterval:        30 * time.Second,
		MaxMessageSize:      1024,
		ReadBufferSize:      1024,
		WriteBufferSize:     4096,
		SendBufferSize:      16,
		ResubscribeInterval: 55 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(registry *timer.Registry, config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		registry:         registry,
		clock:            clock,
		groupConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts
// pushing the group's state to it. The current state is sent first, then one
// message per change.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, groupID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	cm.registerConnection(connection)

	go connection.watchGroup()
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("group_id", groupID).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.groupConnections[conn.GroupID] == nil {
		cm.groupConnections[conn.GroupID] = make(map[*Connection]bool)
	}
	cm.groupConnections[conn.GroupID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("group_id", conn.GroupID).
		Int("total_connections", len(cm.groupConnections[conn.GroupID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.groupConnections[conn.GroupID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.groupConnections, conn.GroupID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("group_id", conn.GroupID).
		Dur("connected_for", cm.clock.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

// CloseAll closes every open connection. Used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.groupConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.close()
	}
	if len(all) > 0 {
		log.Info().Int("connections", len(all)).Msg("closed WebSocket connections")
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{GroupConnections: make(map[string]int, len(cm.groupConnections))}
	for groupID, connections := range cm.groupConnections {
		stats.TotalConnections += len(connections)
		stats.GroupConnections[groupID] = len(connections)
	}
	stats.ActiveGroups = len(cm.groupConnections)
	return stats
}

// close tears the connection down once; safe from any goroutine.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.Manager.unregisterConnection(c)
	})
}

// watchGroup waits on the group and queues a state message for every change.
// Before each wait it looks the id up again: after an eviction the id maps to
// a new instance whose versions restart from zero, so the old version number
// means nothing there.
func (c *Connection) watchGroup() {
	cm := c.Manager
	group := cm.registry.GetOrCreate(c.GroupID)
	snap := group.Snapshot()
	if !c.enqueue(snap) {
		return
	}

	for {
		if current, ok := cm.registry.Get(c.GroupID); ok && current != group {
			log.Debug().
				Str("connection_id", c.ID).
				Str("group_id", c.GroupID).
				Msg("group was recreated, following new instance")
			group = current
			snap = group.Snapshot()
			if !c.enqueue(snap) {
				return
			}
		}

		waitCtx, cancel := context.WithTimeout(c.ctx, cm.config.ResubscribeInterval)
		next, err := group.WaitForChange(waitCtx, snap.Version)
		cancel()
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			continue
		}
		snap = next
		if !c.enqueue(snap) {
			return
		}
	}
}

// enqueue hands a state message to the write pump. A client that cannot keep
// up is disconnected.
func (c *Connection) enqueue(snap timer.Snapshot) bool {
	data, err := json.Marshal(events.NewGroupState(snap, c.Manager.clock.Now()))
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal group state")
		return true
	}

	select {
	case c.Send <- data:
		return true
	case <-c.ctx.Done():
		return false
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("group_id", c.GroupID).
			Msg("connection send buffer full, closing connection")
		c.close()
		return false
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
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
		}
	}
}

// readPump drains the client side so control frames are processed and a
// closed socket is noticed.
func (c *Connection) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
