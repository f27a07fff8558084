package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/services"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for MVP
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type     string      `json:"type"`
	Topic    string      `json:"topic,omitempty"`
	EventID  string      `json:"event_id,omitempty"`
	Replay   bool        `json:"replay,omitempty"`
	Degraded bool        `json:"degraded,omitempty"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

const (
	topicInterest = "interest"
	topicMatches  = "matches"
	topicChats    = "chats"
)

// WebSocketHandler bridges hub subscriptions onto WebSocket connections
type WebSocketHandler struct {
	hub             *services.Hub
	userService     *services.UserService
	interestService *services.InterestService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.Hub,
	userService *services.UserService,
	interestService *services.InterestService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:             hub,
		userService:     userService,
		interestService: interestService,
	}
}

// wsClient is one connection and everything it subscribed to
type wsClient struct {
	userID string
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	subs     map[string]*services.Subscription
	sessions map[string]*services.InterestSession
}

func (c *wsClient) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("user_id", c.userID).Msg("Failed to marshal message")
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("user_id", c.userID).Msg("Failed to write WebSocket message")
	}
}

func (c *wsClient) sendError(message string) {
	c.send(WSMessage{Type: "error", Message: message})
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	client := &wsClient{
		userID:   userID,
		conn:     conn,
		subs:     make(map[string]*services.Subscription),
		sessions: make(map[string]*services.InterestSession),
	}
	defer h.closeAll(client)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	ctx := r.Context()
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			client.sendError("Invalid message format")
			continue
		}
		h.handleMessage(ctx, client, msg)
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection closed")
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *wsClient, msg WSMessage) {
	switch msg.Type {
	case "subscribe":
		h.subscribe(c, msg.Topic, msg.EventID)
	case "unsubscribe":
		h.unsubscribe(c, msg.Topic, msg.EventID)
	case "toggle_interest":
		h.toggleInterest(ctx, c, msg.EventID)
	default:
		c.sendError("Unknown message type")
	}
}

func subscriptionName(topic, eventID string) string {
	if topic == topicInterest {
		return topic + "/" + eventID
	}
	return topic
}

func (h *WebSocketHandler) subscribe(c *wsClient, topic, eventID string) {
	name := subscriptionName(topic, eventID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[name]; ok {
		return
	}
	if _, ok := c.sessions[name]; ok {
		return
	}

	switch topic {
	case topicInterest:
		if eventID == "" {
			c.sendError("event_id is required")
			return
		}
		c.sessions[name] = services.NewInterestSession(h.hub, h.interestService, c.userID, eventID, func(state services.SessionState) {
			c.send(WSMessage{
				Type:     "snapshot",
				Topic:    topicInterest,
				EventID:  eventID,
				Degraded: state.Degraded,
				Data:     state,
			})
		})
	case topicMatches:
		c.subs[name] = h.hub.Subscribe(services.MatchesKey(c.userID), func(snap services.Snapshot) {
			matches := snap.Matches
			if matches == nil {
				matches = []*models.Match{}
			}
			c.send(WSMessage{Type: "snapshot", Topic: topicMatches, Replay: snap.Replay, Degraded: snap.Degraded, Data: matches})
		})
	case topicChats:
		c.subs[name] = h.hub.Subscribe(services.ChatsKey(c.userID), func(snap services.Snapshot) {
			chats := snap.Chats
			if chats == nil {
				chats = []*models.Chat{}
			}
			c.send(WSMessage{Type: "snapshot", Topic: topicChats, Replay: snap.Replay, Degraded: snap.Degraded, Data: chats})
		})
	default:
		c.sendError("Unknown topic")
		return
	}
	log.Debug().Str("user_id", c.userID).Str("topic", name).Msg("WebSocket subscribed")
}

func (h *WebSocketHandler) unsubscribe(c *wsClient, topic, eventID string) {
	name := subscriptionName(topic, eventID)

	c.mu.Lock()
	sub := c.subs[name]
	session := c.sessions[name]
	delete(c.subs, name)
	delete(c.sessions, name)
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if session != nil {
		session.Close()
	}
}

func (h *WebSocketHandler) toggleInterest(ctx context.Context, c *wsClient, eventID string) {
	c.mu.Lock()
	session := c.sessions[subscriptionName(topicInterest, eventID)]
	c.mu.Unlock()

	if session == nil {
		c.sendError("Subscribe to the event interest first")
		return
	}
	if err := session.Toggle(ctx); err != nil {
		if errors.Is(err, apperrors.ErrNotReady) {
			c.sendError("Interest is still loading")
			return
		}
		log.Error().Err(err).Str("user_id", c.userID).Str("event_id", eventID).Msg("Failed to toggle interest")
		c.sendError("Failed to toggle interest")
	}
}

func (h *WebSocketHandler) closeAll(c *wsClient) {
	c.mu.Lock()
	subs, sessions := c.subs, c.sessions
	c.subs = nil
	c.sessions = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	for _, session := range sessions {
		session.Close()
	}
}
