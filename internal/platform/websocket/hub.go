// Package websocket pushes referral status and chat events to connected
// clients. Clients subscribe to topics; services publish events through the
// hub, which fans them out to every subscriber of the event's topic.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// ReferralTopic is the sender-side topic for a referral. Events for every
// target of the referral appear here.
func ReferralTopic(referralID uuid.UUID) string {
	return "referral:" + referralID.String()
}

// ReferralTargetTopic carries status and chat events for a single receiver's
// view of a referral.
func ReferralTargetTopic(referralID, targetID uuid.UUID) string {
	return fmt.Sprintf("referral:%s:target:%s", referralID, targetID)
}

// Event is the envelope pushed to subscribers.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// EventPublisher is what the domain services depend on.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// subscribeFrame is the only inbound message shape the hub understands.
type subscribeFrame struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// session is one connected client. Its topic set is owned by the hub and
// mutated only under the hub lock. outbox is buffered; a slow reader drops
// events rather than stalling the hub.
type session struct {
	id     string
	topics map[string]struct{}
	outbox chan []byte
}

// Hub tracks sessions and their topic subscriptions.
type Hub struct {
	mu       sync.RWMutex
	byTopic  map[string]map[*session]struct{}
	sessions map[*session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		byTopic:  make(map[string]map[*session]struct{}),
		sessions: make(map[*session]struct{}),
	}
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	for topic := range s.topics {
		h.index(topic, s)
	}
}

// detach removes the session everywhere and closes its outbox. Safe to call
// more than once.
func (h *Hub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	for topic := range s.topics {
		h.unindex(topic, s)
	}
	delete(h.sessions, s)
	close(s.outbox)
}

func (h *Hub) index(topic string, s *session) {
	set := h.byTopic[topic]
	if set == nil {
		set = make(map[*session]struct{})
		h.byTopic[topic] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) unindex(topic string, s *session) {
	set, ok := h.byTopic[topic]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.byTopic, topic)
	}
}

func (h *Hub) apply(s *session, frame subscribeFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	for _, topic := range frame.Topics {
		switch frame.Action {
		case "subscribe":
			s.topics[topic] = struct{}{}
			h.index(topic, s)
		case "unsubscribe":
			delete(s.topics, topic)
			h.unindex(topic, s)
		}
	}
}

// Publish fans the event out to every subscriber of event.Topic. A session
// whose outbox is full misses the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.byTopic[event.Topic] {
		select {
		case s.outbox <- payload:
		default:
		}
	}
	return nil
}

// SessionCount reports connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SubscriberCount reports sessions subscribed to a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are handled by the CORS layer in front of the API.
		return true
	},
}

// WebSocketHandler upgrades HTTP connections and shuttles frames between the
// socket and the hub.
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (wh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wh.handleConnect)
}

func (wh *WebSocketHandler) handleConnect(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s := &session{
		id:     uuid.NewString(),
		topics: make(map[string]struct{}),
		outbox: make(chan []byte, 256),
	}
	wh.hub.attach(s)

	go func() {
		defer conn.Close()
		for payload := range s.outbox {
			if err := conn.WriteMessage(gws.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			wh.hub.detach(s)
			conn.Close()
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame subscribeFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			wh.hub.apply(s, frame)
		}
	}()

	return nil
}
