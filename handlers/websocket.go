package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"health-competition-system/models"
	"health-competition-system/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Frames queued per client before the hub drops the connection.
	clientSendBuffer = 64
)

// Client is one websocket subscriber to a competition room.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	userID        string
	competitionID string
}

// Hub fans leaderboard updates out to websocket subscribers. A single run
// loop owns the room maps, so every client in a room sees updates for that
// competition in the order they were published. Slow clients never block
// the loop; a client whose buffer is full is dropped.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	direct     chan directMessage

	leaderboard *services.LeaderboardService
}

type roomMessage struct {
	competitionID string
	payload       []byte
}

type directMessage struct {
	client  *Client
	payload []byte
}

func NewHub(leaderboard *services.LeaderboardService) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan roomMessage, 256),
		direct:      make(chan directMessage, 64),
		leaderboard: leaderboard,
	}
}

// Run owns all room state. Start it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			room := h.rooms[client.competitionID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.competitionID] = room
			}
			room[client] = true
			log.Printf("🔌 [WS] user %s joined room %s (%d subscribers)",
				client.userID, client.competitionID, len(room))

		case client := <-h.unregister:
			if room, ok := h.rooms[client.competitionID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.send)
					if len(room) == 0 {
						delete(h.rooms, client.competitionID)
					}
				}
			}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.competitionID] {
				select {
				case client.send <- msg.payload:
				default:
					// Buffer full: drop the client rather than stall the room.
					delete(h.rooms[msg.competitionID], client)
					close(client.send)
				}
			}

		case msg := <-h.direct:
			// Only the run loop closes send channels, so delivering here
			// cannot race a drop. A client dropped in the meantime is
			// silently skipped.
			if h.rooms[msg.client.competitionID][msg.client] {
				select {
				case msg.client.send <- msg.payload:
				default:
					delete(h.rooms[msg.client.competitionID], msg.client)
					close(msg.client.send)
				}
			}
		}
	}
}

// PublishScoreUpdate implements services.Notifier.
func (h *Hub) PublishScoreUpdate(competitionID string, update models.ScoreUpdate) {
	h.publish(competitionID, models.WSMessage{
		Type:      "score_update",
		Data:      update,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) publish(competitionID string, msg models.WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] marshal failed for room %s: %v", competitionID, err)
		return
	}
	select {
	case h.broadcast <- roomMessage{competitionID: competitionID, payload: payload}:
	default:
		log.Printf("[WS] broadcast queue full, dropping %s update for room %s", msg.Type, competitionID)
	}
}

// sendDirect queues a frame for one client via the run loop.
func (h *Hub) sendDirect(client *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: client, payload: payload}:
	default:
		log.Printf("[WS] direct queue full, dropping frame for user %s", client.userID)
	}
}

// UpgradeMiddleware rejects plain HTTP requests on the websocket route.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// ServeWS handles GET /ws/leaderboard/:competitionId. The auth middleware
// has already validated the token and set user_id.
func (h *Hub) ServeWS() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := &Client{
			hub:           h,
			conn:          conn,
			send:          make(chan []byte, clientSendBuffer),
			userID:        conn.Locals("user_id").(string),
			competitionID: conn.Params("competitionId"),
		}

		h.register <- client

		go client.writePump()

		// Initial snapshot so a new subscriber doesn't wait for the next
		// score change to see the board.
		if board, err := h.leaderboard.GetLeaderboard(context.Background(), client.competitionID, 50); err == nil {
			if payload, err := json.Marshal(models.WSMessage{
				Type:      "leaderboard_snapshot",
				Data:      board,
				Timestamp: time.Now().UTC(),
			}); err == nil {
				h.sendDirect(client, payload)
			}
		}

		client.readPump()
	})
}

// readPump drains inbound frames so pongs and close frames are processed.
// Clients don't send meaningful data; anything received is discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
