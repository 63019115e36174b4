package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/landvest/landvest_backend/models"
)

// Notification types
const (
	NotificationTypeIncomeEarned    = "income_earned"
	NotificationTypeBookingApproved = "booking_approved"
	NotificationTypeBookingRejected = "booking_rejected"
)

// Notification represents a message sent over WebSocket
type Notification struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	UserID  string      `json:"userID,omitempty"`
}

// Client represents a connected WebSocket client
type Client struct {
	UserID string
	Conn   *websocket.Conn
}

// Hub maintains the set of active clients keyed by user id
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = client
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserID]; ok && current == client {
				delete(h.clients, client.UserID)
			}
			client.Conn.Close()
			h.mu.Unlock()
		}
	}
}

// SendToUser sends a message to a specific user
func (h *Hub) SendToUser(userID string, notification Notification) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user not connected")
	}

	return client.Conn.WriteJSON(notification)
}

// NotifyIncome tells a user they earned a commission. Delivery is best
// effort; the income record is already persisted.
func (h *Hub) NotifyIncome(userID string, record *models.IncomeRecord) {
	message := "You earned a commission"
	if record.IncomeType == models.IncomeTypeMatchingBonus {
		message = "You earned a matching bonus"
	}

	h.SendToUser(userID, Notification{
		Type:    NotificationTypeIncomeEarned,
		Message: message,
		Data:    record,
		UserID:  userID,
	})
}

// NotifyBookingStatus tells a buyer their booking was approved or rejected.
func (h *Hub) NotifyBookingStatus(userID string, approved bool, plot interface{}) {
	notificationType := NotificationTypeBookingApproved
	message := "Your plot booking has been approved"
	if !approved {
		notificationType = NotificationTypeBookingRejected
		message = "Your plot booking has been rejected"
	}

	h.SendToUser(userID, Notification{
		Type:    notificationType,
		Message: message,
		Data:    plot,
		UserID:  userID,
	})
}
