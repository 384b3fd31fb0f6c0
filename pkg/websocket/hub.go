package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub держит активные соединения, сгруппированные по пользователю.
type Hub struct {
	userClients map[string][]*Client
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	mu          sync.RWMutex
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		userClients: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run обслуживает подключения до отмены контекста, после чего закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Debug("WebSocket: клиент зарегистрирован", zap.String("userID", client.UserID))
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.logger.Debug("WebSocket: клиент отсоединён", zap.String("userID", client.UserID))
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.userClients {
				for _, c := range clients {
					close(c.Send)
				}
			}
			h.userClients = make(map[string][]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// remove вызывается под h.mu.
func (h *Hub) remove(client *Client) {
	clients := h.userClients[client.UserID]
	for i, c := range clients {
		if c == client {
			close(c.Send)
			h.userClients[client.UserID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.userClients[client.UserID]) == 0 {
		delete(h.userClients, client.UserID)
	}
}

// Connected - число активных соединений пользователя.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// SendMessageToUser кладёт сообщение в очереди всех соединений пользователя.
// Переполненная очередь не блокирует отправителя: сообщение для неё теряется.
func (h *Hub) SendMessageToUser(userID string, payload interface{}, messageType string) error {
	envelope := Envelope{
		Type:      messageType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	messageBytes, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.userClients[userID]
	if !ok {
		h.logger.Debug("WebSocket: нет активных соединений", zap.String("userID", userID))
		return nil
	}
	for _, client := range clients {
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("WebSocket: очередь клиента переполнена", zap.String("userID", userID))
		}
	}
	return nil
}
