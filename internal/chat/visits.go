package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// VisitManager tracks the open chat sockets of every client.
type VisitManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewVisitManager creates a new visit manager.
func NewVisitManager() *VisitManager {
	return &VisitManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Get returns the connection of a visit, or nil.
func (m *VisitManager) Get(clientID, visitID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if visits, ok := m.active[clientID]; ok {
		return visits[visitID]
	}
	return nil
}

// Count returns the number of open visits of a client.
func (m *VisitManager) Count(clientID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[clientID])
}

// Register adds the connection of a new visit.
func (m *VisitManager) Register(clientID, visitID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[clientID]; !exists {
		m.active[clientID] = make(map[string]*websocket.Conn)
	}
	m.active[clientID][visitID] = conn
	slog.Debug("Chat visit registered", "client_id", clientID, "visit_id", visitID)
}

// Unregister removes a visit if conn is still its connection.
func (m *VisitManager) Unregister(clientID, visitID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	visits, ok := m.active[clientID]
	if !ok {
		return
	}
	if current, exists := visits[visitID]; exists && current == conn {
		delete(visits, visitID)
		if len(visits) == 0 {
			delete(m.active, clientID)
		}
		slog.Debug("Chat visit unregistered", "client_id", clientID, "visit_id", visitID)
	}
}

// CloseClient closes every open visit of a client.
func (m *VisitManager) CloseClient(clientID string) {
	m.mu.Lock()
	visits := m.active[clientID]
	delete(m.active, clientID)
	m.mu.Unlock()

	for vid, conn := range visits {
		_ = conn.Close(websocket.StatusNormalClosure, "client state expired")
		slog.Info("Chat visit closed", "client_id", clientID, "visit_id", vid)
	}
}
