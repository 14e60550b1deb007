package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ikkim/delivery-tracker/internal/broker/kafka"
	"github.com/ikkim/delivery-tracker/pkg/logger"
)

const (
	// messages accepted from one client per second
	maxMessagesPerSecond = 10

	sendBufferSize = 256
)

// EventAttemptStatusChanged is the type of feed messages carrying a status change.
const EventAttemptStatusChanged = "attempt_status_changed"

// ClientMessage is sent by a client to narrow its feed.
type ClientMessage struct {
	Type     string `json:"type"` // watch
	StoreIDs []uint `json:"store_ids"`
}

// Event is the envelope written to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one feed connection. It only ever receives events for stores it
// is permitted to see.
type Client struct {
	Hub    *Hub
	Conn   *Conn
	UserID uint
	Send   chan []byte

	allStores bool
	permitted map[uint]bool
	watching  map[uint]bool // nil: every permitted store
	mu        sync.RWMutex

	messageCount  int
	lastResetTime time.Time
	rateMu        sync.Mutex
}

func NewClient(hub *Hub, conn *Conn, userID uint, allStores bool, storeIDs []uint) *Client {
	permitted := make(map[uint]bool, len(storeIDs))
	for _, id := range storeIDs {
		permitted[id] = true
	}
	return &Client{
		Hub:           hub,
		Conn:          conn,
		UserID:        userID,
		Send:          make(chan []byte, sendBufferSize),
		allStores:     allStores,
		permitted:     permitted,
		lastResetTime: time.Now(),
	}
}

func (c *Client) permits(storeID uint) bool {
	return c.allStores || c.permitted[storeID]
}

func (c *Client) wants(storeID uint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.watching != nil {
		return c.watching[storeID]
	}
	return c.permits(storeID)
}

// Watch narrows the feed to storeIDs, dropping stores the client may not
// see. An empty list restores the full feed. It returns the stores kept.
func (c *Client) Watch(storeIDs []uint) []uint {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(storeIDs) == 0 {
		c.watching = nil
		return nil
	}
	kept := []uint{}
	watching := make(map[uint]bool, len(storeIDs))
	for _, id := range storeIDs {
		if c.permits(id) && !watching[id] {
			watching[id] = true
			kept = append(kept, id)
		}
	}
	c.watching = watching
	return kept
}

// BroadcastMessage is a payload addressed to one store's watchers.
type BroadcastMessage struct {
	StoreID uint
	Message []byte
}

// Hub fans status changes out to connected feed clients.
type Hub struct {
	// UserID -> sessions; a user may be connected from several devices
	clients map[uint][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	quit       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 1024),
		quit:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			sessions := len(h.clients[client.UserID])
			h.mu.Unlock()
			logger.Info("Feed client registered", map[string]interface{}{
				"user_id":        client.UserID,
				"total_sessions": sessions,
			})

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.deliver(message)

		case <-h.quit:
			h.mu.Lock()
			for userID, list := range h.clients {
				for _, client := range list {
					close(client.Send)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			logger.Info("Feed hub stopped", nil)
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	remaining := make([]*Client, 0, len(list))
	found := false
	for _, c := range list {
		if c == client {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	if !found {
		return
	}
	if len(remaining) == 0 {
		delete(h.clients, client.UserID)
	} else {
		h.clients[client.UserID] = remaining
	}
	close(client.Send)

	logger.Info("Feed client unregistered", map[string]interface{}{
		"user_id":            client.UserID,
		"remaining_sessions": len(remaining),
	})
}

func (h *Hub) deliver(message *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, list := range h.clients {
		for _, client := range list {
			if !client.wants(message.StoreID) {
				continue
			}
			select {
			case client.Send <- message.Message:
			default:
				// slow reader; drop the session rather than stall the hub
				go h.Unregister(client)
				logger.Warn("Client send buffer full, disconnecting", map[string]interface{}{
					"user_id": userID,
				})
			}
		}
	}
}

// Stop ends Run and closes every client's send channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// Publish sends v to every client watching storeID. A full broadcast queue
// drops the message.
func (h *Hub) Publish(storeID uint, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to marshal feed message", err, nil)
		return err
	}

	select {
	case h.broadcast <- &BroadcastMessage{StoreID: storeID, Message: data}:
	default:
		logger.Warn("Broadcast channel full, message dropped", map[string]interface{}{
			"store_id": storeID,
		})
	}
	return nil
}

// StatusChanged publishes a committed status change to the order's store.
func (h *Hub) StatusChanged(event kafka.AttemptStatusChanged) {
	if err := h.Publish(event.StoreID, Event{Type: EventAttemptStatusChanged, Data: event}); err != nil {
		logger.Error("Failed to publish status change to feed", err, map[string]interface{}{
			"attempt_id": event.AttemptID,
		})
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ConnectedUsers counts users with at least one open feed session.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleClientMessage applies a watch request. Clients exceeding the message
// rate are ignored.
func (h *Hub) HandleClientMessage(client *Client, message []byte) {
	client.rateMu.Lock()
	now := time.Now()
	if now.Sub(client.lastResetTime) >= time.Second {
		client.messageCount = 0
		client.lastResetTime = now
	}
	client.messageCount++
	count := client.messageCount
	client.rateMu.Unlock()

	if count > maxMessagesPerSecond {
		logger.Warn("Rate limit exceeded", map[string]interface{}{
			"user_id": client.UserID,
			"count":   count,
		})
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warn("Failed to parse client message", map[string]interface{}{
			"user_id": client.UserID,
			"error":   err.Error(),
		})
		return
	}

	if msg.Type != "watch" {
		logger.Debug("Ignoring unknown client message", map[string]interface{}{
			"user_id": client.UserID,
			"type":    msg.Type,
		})
		return
	}

	kept := client.Watch(msg.StoreIDs)
	logger.Debug("Feed filter updated", map[string]interface{}{
		"user_id":   client.UserID,
		"requested": msg.StoreIDs,
		"watching":  kept,
	})
}
