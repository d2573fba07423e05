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
)

// ConnectionManager manages WebSocket connections for live status push.
// Connections subscribe to one drive; the pusher broadcasts fresh
// status snapshots on a fixed interval. The socket is display-only, the
// server-side clock stays authoritative.
type ConnectionManager struct {
	driveConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection is one WebSocket client subscribed to a drive's status.
type Connection struct {
	ID      string
	DriveID uuid.UUID
	// StudentID is set for student clients, empty for operator dashboards.
	StudentID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a payload to fan out to a drive's connections.
type BroadcastMessage struct {
	DriveID uuid.UUID
	Payload any
	// StudentID, if set, targets only that student's connections.
	StudentID string
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		driveConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages.
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

// ActiveDrives returns the drives that currently have at least one
// subscriber; the pusher only projects status for these.
func (cm *ConnectionManager) ActiveDrives() []uuid.UUID {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	drives := make([]uuid.UUID, 0, len(cm.driveConnections))
	for driveID := range cm.driveConnections {
		drives = append(drives, driveID)
	}
	return drives
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and
// registers it under the drive.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, driveID uuid.UUID, studentID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		DriveID:     driveID,
		StudentID:   studentID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("drive_id", driveID.String()).
		Str("student_id", studentID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.driveConnections[conn.DriveID] == nil {
		cm.driveConnections[conn.DriveID] = make(map[*Connection]bool)
	}
	cm.driveConnections[conn.DriveID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("drive_id", conn.DriveID.String()).
		Int("total_connections", len(cm.driveConnections[conn.DriveID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.driveConnections[conn.DriveID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.driveConnections, conn.DriveID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("drive_id", conn.DriveID.String()).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToDrive sends a payload to every connection on a drive.
func (cm *ConnectionManager) BroadcastToDrive(driveID uuid.UUID, payload any) {
	select {
	case cm.broadcastCh <- BroadcastMessage{DriveID: driveID, Payload: payload}:
	default:
		log.Warn().Str("drive_id", driveID.String()).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToStudent sends a payload to one student's connections.
func (cm *ConnectionManager) BroadcastToStudent(driveID uuid.UUID, studentID string, payload any) {
	select {
	case cm.broadcastCh <- BroadcastMessage{DriveID: driveID, Payload: payload, StudentID: studentID}:
	default:
		log.Warn().
			Str("drive_id", driveID.String()).
			Str("student_id", studentID).
			Msg("broadcast channel full, dropping student message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.driveConnections[message.DriveID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	var targets []*Connection
	for conn := range connections {
		if message.StudentID != "" && conn.StudentID != message.StudentID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal payload for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

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
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		// Incoming client messages are ignored; the socket is push-only.
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleStatusSocket upgrades a client onto the status push socket.
// Operators connect with drive_id; students connect with their exam
// token and are keyed to their own drive.
func (g *Gateway) handleStatusSocket(w http.ResponseWriter, r *http.Request) {
	var driveID uuid.UUID
	var studentID string

	if token := bearerToken(r); token != "" {
		id, err := g.resolver.Resolve(r.Context(), token)
		if err != nil {
			respondError(w, err)
			return
		}
		driveID = id.DriveID
		studentID = id.StudentID.String()
	} else {
		parsed, err := uuid.Parse(r.URL.Query().Get("drive_id"))
		if err != nil {
			http.Error(w, "drive_id is required", http.StatusBadRequest)
			return
		}
		driveID = parsed
	}

	if err := g.connections.UpgradeConnection(w, r, driveID, studentID); err != nil {
		log.Error().
			Err(err).
			Str("drive_id", driveID.String()).
			Msg("failed to upgrade WebSocket connection")
	}
}
