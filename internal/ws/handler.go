package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"landlord-service/internal/service/game"
	"landlord-service/internal/service/room"
	pkgAuth "landlord-service/pkg/auth"
	appErr "landlord-service/pkg/errors"
	"landlord-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	roomSvc *room.Service
	gameSvc *game.Service
	hub     *Hub
}

func NewHandler(roomSvc *room.Service, gameSvc *game.Service, hub *Hub) *Handler {
	return &Handler{roomSvc: roomSvc, gameSvc: gameSvc, hub: hub}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

func (h *Handler) HandleRoomWS(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	token, err := getTokenFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := pkgAuth.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := claims.UserID

	member, err := h.roomSvc.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		if errors.Is(err, appErr.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate room access"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "room access denied"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.String("roomID", roomID),
		zap.Int64("userID", userID),
	)

	client := newClient(conn, userID, roomID, h)
	client.run()
}

func getTokenFromRequest(c *gin.Context) (string, error) {
	token := strings.TrimSpace(c.Query("token"))
	if token != "" {
		return token, nil
	}
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
			if token != "" {
				return token, nil
			}
		}
	}
	return "", errors.New("missing token")
}

type client struct {
	conn      *websocket.Conn
	userID    int64
	roomID    string
	handler   *Handler
	outbound  <-chan game.Event
	done      chan struct{}
	pingEvery time.Duration
}

func newClient(conn *websocket.Conn, userID int64, roomID string, h *Handler) *client {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return &client{
		conn:      conn,
		userID:    userID,
		roomID:    roomID,
		handler:   h,
		outbound:  h.hub.Subscribe(roomID, userID),
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
}

func (c *client) run() {
	go c.writePump()
	// Replay the current state so a reconnect resumes mid-match.
	if err := c.handler.gameSvc.PushSnapshot(context.Background(), c.roomID, c.userID); err != nil && !errors.Is(err, appErr.ErrMatchNotFound) {
		logger.Log.Warn("push snapshot on connect", zap.Error(err), zap.String("roomID", c.roomID))
	}
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.handler.hub.Unsubscribe(c.roomID, c.userID, c.outbound)
		c.conn.Close()
	}()

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("userID", c.userID), zap.String("roomID", c.roomID))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var incoming struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.safeWrite(game.Event{Type: game.EventError, Data: gin.H{"message": "invalid payload"}})
			continue
		}
		if incoming.Type == "" {
			continue
		}

		if err := c.dispatch(incoming.Type, incoming.Data); err != nil {
			c.safeWrite(game.Event{Type: game.EventError, Data: gin.H{
				"action":  incoming.Type,
				"message": err.Error(),
			}})
		}
	}
}

// dispatch routes one inbound action to the match engine. Actions run on a
// fresh context; the socket's lifetime is not the action's lifetime.
func (c *client) dispatch(action string, data json.RawMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch action {
	case "bid":
		var payload struct {
			CallLandlord bool `json:"callLandlord"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return appErr.ErrEmptyAction
		}
		return c.handler.gameSvc.HandleBid(ctx, c.roomID, c.userID, payload.CallLandlord)
	case "play":
		var payload struct {
			Cards []string `json:"cards"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return appErr.ErrEmptyAction
		}
		return c.handler.gameSvc.HandlePlay(ctx, c.roomID, c.userID, payload.Cards)
	case "pass":
		return c.handler.gameSvc.HandlePass(ctx, c.roomID, c.userID)
	case "surrender":
		return c.handler.gameSvc.HandleSurrender(ctx, c.roomID, c.userID)
	case "heartbeat":
		return c.handler.gameSvc.HandleHeartbeat(ctx, c.roomID, c.userID)
	case "snapshot":
		return c.handler.gameSvc.PushSnapshot(ctx, c.roomID, c.userID)
	default:
		return appErr.ErrEmptyAction
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", c.userID), zap.String("roomID", c.roomID))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) safeWrite(event game.Event) {
	if err := c.conn.WriteJSON(event); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", c.userID), zap.String("roomID", c.roomID))
	}
}
