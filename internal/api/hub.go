package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"loadflow-server/internal/simulation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// Client is one websocket subscriber.
type Client struct {
	ID   uuid.UUID
	Conn *websocket.Conn

	Send chan []byte
	Done chan struct{}
}

// Hub fans snapshots out to websocket clients and feeds their commands to
// the controller.
type Hub struct {
	controller *simulation.Controller
	logger     *logrus.Logger
	upgrader   websocket.Upgrader

	mutex   sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewHub(controller *simulation.Controller, logger *logrus.Logger) *Hub {
	return &Hub{
		controller: controller,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[uuid.UUID]*Client),
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast is meant to be registered as a controller listener. Slow clients
// miss snapshots instead of blocking the controller.
func (h *Hub) Broadcast(snapshot simulation.Snapshot) {
	message, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Errorf("WebSocket: failed to encode snapshot: %v", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for id, client := range h.clients {
		select {
		case client.Send <- message:
		default:
			h.logger.Warnf("WebSocket: client %s is lagging, dropping snapshot", id)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New(),
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
		Done: make(chan struct{}),
	}

	// the current state first, so a new client never starts blank
	if message, err := json.Marshal(h.controller.Snapshot()); err == nil {
		client.Send <- message
	}

	h.mutex.Lock()
	h.clients[client.ID] = client
	h.mutex.Unlock()

	h.logger.Infof("WebSocket: client %s connected", client.ID)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.mutex.Lock()
		delete(h.clients, client.ID)
		h.mutex.Unlock()
		close(client.Done)
		client.Conn.Close()
		h.logger.Infof("WebSocket: client %s disconnected", client.ID)
	}()

	for {
		messageType, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Errorf("WebSocket: read error for %s: %v", client.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		h.logger.Debugf("WebSocket: received from %s: %s", client.ID, string(message))
		h.handleMessage(client, message)
	}
}

func (h *Hub) handleMessage(client *Client, message []byte) {
	cmd, err := simulation.ParseCommand(message)
	if err == nil {
		err = h.controller.Execute(context.Background(), cmd)
	}
	if err == nil {
		return
	}

	reply, _ := json.Marshal(map[string]string{"error": err.Error()})
	select {
	case client.Send <- reply:
	default:
	}
}

func (h *Hub) writePump(client *Client) {
	for {
		select {
		case <-client.Done:
			return
		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Errorf("WebSocket: write error for %s: %v", client.ID, err)
				client.Conn.Close()
				return
			}
		}
	}
}
