package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler processes one inbound event for a connection.
type Handler func(client *Client, data json.RawMessage)

// DisconnectHook is notified after a user's last socket detaches, with the
// rooms the user implicitly left.
type DisconnectHook func(userID uuid.UUID, leftRooms []uuid.UUID)

// Bus owns the websocket clients and routes events between them and the
// registered handlers. Outbound fan-out goes through the connection registry.
type Bus struct {
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*Client
	handlers map[string]Handler

	onDisconnect DisconnectHook
}

// NewBus creates a session bus on top of the connection registry.
func NewBus(registry *Registry, logger *slog.Logger) *Bus {
	return &Bus{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:  make(map[string]*Client),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for an inbound event name.
func (b *Bus) Handle(event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = h
}

// OnDisconnect sets the last-socket-detached hook.
func (b *Bus) OnDisconnect(hook DisconnectHook) {
	b.onDisconnect = hook
}

// Serve upgrades the request and runs the connection until it closes.
// The caller has already authenticated the user.
func (b *Bus) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := newClient(b, conn, userID, b.logger)

	b.mu.Lock()
	b.clients[client.ID] = client
	b.mu.Unlock()
	b.registry.Attach(client.ID, userID)

	b.logger.Info("ws connected", "connId", client.ID, "userId", userID)

	go client.writePump()
	client.readPump()
}

func (b *Bus) dispatch(client *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.ToConnection(client, EvtError, ErrorPayload{Message: "malformed message"})
		return
	}

	b.mu.RLock()
	handler, ok := b.handlers[msg.Event]
	b.mu.RUnlock()
	if !ok {
		b.logger.Warn("unknown event ignored", "event", msg.Event, "connId", client.ID)
		return
	}

	handler(client, msg.Data)
}

func (b *Bus) disconnect(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	b.mu.Unlock()

	client.close()
	client.conn.Close()

	userID, wasLast, leftRooms := b.registry.Detach(client.ID)
	b.logger.Info("ws disconnected", "connId", client.ID, "userId", userID, "lastSocket", wasLast)

	if wasLast && b.onDisconnect != nil {
		b.onDisconnect(userID, leftRooms)
	}
}

// ToConnection sends one event to a single connection.
func (b *Bus) ToConnection(client *Client, event string, data interface{}) {
	payload, err := b.marshal(event, data)
	if err != nil {
		return
	}
	client.enqueue(payload)
}

// ToUser sends one event to every socket of a user.
func (b *Bus) ToUser(userID uuid.UUID, event string, data interface{}) {
	payload, err := b.marshal(event, data)
	if err != nil {
		return
	}

	for _, connID := range b.registry.ConnsOfUser(userID) {
		b.mu.RLock()
		client, ok := b.clients[connID]
		b.mu.RUnlock()
		if ok {
			client.enqueue(payload)
		}
	}
}

// ToRoom sends one event to the whole room audience.
func (b *Bus) ToRoom(roomID uuid.UUID, event string, data interface{}) {
	for _, userID := range b.registry.UsersInRoom(roomID) {
		b.ToUser(userID, event, data)
	}
}

func (b *Bus) marshal(event string, data interface{}) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("ws marshal error", "event", event, "error", err)
		return nil, err
	}
	frame, err := json.Marshal(Message{Event: event, Data: body})
	if err != nil {
		b.logger.Error("ws marshal error", "event", event, "error", err)
		return nil, err
	}
	return frame, nil
}
