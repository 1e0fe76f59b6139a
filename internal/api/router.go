// Package api registers the REST surface: room directory, matchmaking and
// the realtime socket route.
package api

import (
	"errors"
	"net/http"
	"strings"

	"landlord-service/internal/middleware"
	"landlord-service/internal/service"
	"landlord-service/internal/ws"
	appErr "landlord-service/pkg/errors"
	"landlord-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Room, services.Game, services.Hub)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/landlord/v1")
	v1.Use(middleware.AuthRequired())
	{
		matchGroup := v1.Group("/match")
		{
			matchGroup.POST("/join", handler.MatchJoin)
			matchGroup.POST("/cancel", handler.MatchCancel)
			matchGroup.GET("/status", handler.MatchStatus)
		}

		roomGroup := v1.Group("/rooms")
		{
			roomGroup.POST("", handler.CreateRoom)
			roomGroup.POST("/join", handler.JoinRoom)
			roomGroup.POST("/leave", handler.LeaveRoom)
			roomGroup.GET("/my", handler.GetMyRoom)
			roomGroup.GET("/:roomId", handler.GetRoom)
			roomGroup.PUT("/:roomId/ready", handler.SetReady)
			roomGroup.POST("/:roomId/start", handler.StartRoom)
		}
	}

	r.GET("/ws/rooms/:roomId", wsHandler.HandleRoomWS)
}

type joinRoomBody struct {
	Code string `json:"code" binding:"required,len=6"`
}

type readyBody struct {
	Ready bool `json:"ready"`
}

// MatchJoin enqueues the caller in the random matchmaking pool. The
// response carries the room directly when the caller's join completed a
// table.
func (h *Handler) MatchJoin(c *gin.Context) {
	room, err := h.services.Room.JoinRandom(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if room == nil {
		response.SuccessWithMsg(c, gin.H{"matched": false}, "queued")
		return
	}
	response.Success(c, gin.H{"matched": true, "room": room})
}

func (h *Handler) MatchCancel(c *gin.Context) {
	if err := h.services.Room.CancelMatch(c.Request.Context(), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "canceled")
}

// MatchStatus reports whether the caller is queued or already seated.
func (h *Handler) MatchStatus(c *gin.Context) {
	userID := middleware.UserID(c)
	room, err := h.services.Room.GetMyRoom(c.Request.Context(), userID)
	if err == nil {
		response.Success(c, gin.H{"matched": true, "room": room})
		return
	}
	if !errors.Is(err, appErr.ErrRoomNotFound) {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"matched": false})
}

func (h *Handler) CreateRoom(c *gin.Context) {
	room, err := h.services.Room.CreateCustom(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, room)
}

func (h *Handler) JoinRoom(c *gin.Context) {
	var body joinRoomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	room, err := h.services.Room.JoinByCode(c.Request.Context(), middleware.UserID(c), strings.TrimSpace(body.Code))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, room)
}

func (h *Handler) LeaveRoom(c *gin.Context) {
	if err := h.services.Room.Leave(c.Request.Context(), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "left")
}

func (h *Handler) GetMyRoom(c *gin.Context) {
	room, err := h.services.Room.GetMyRoom(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, room)
}

func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.services.Room.GetRoom(c.Request.Context(), c.Param("roomId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, room)
}

func (h *Handler) SetReady(c *gin.Context) {
	var body readyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	room, err := h.services.Room.SetReady(c.Request.Context(), c.Param("roomId"), middleware.UserID(c), body.Ready)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, room)
}

func (h *Handler) StartRoom(c *gin.Context) {
	room, err := h.services.Room.Start(c.Request.Context(), c.Param("roomId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, room)
}

// respondError maps sentinel errors to HTTP statuses; everything else is a
// 500 with the raw message suppressed behind the envelope.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, appErr.ErrRoomNotFound), errors.Is(err, appErr.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appErr.ErrRoomFull),
		errors.Is(err, appErr.ErrAlreadyInRoom),
		errors.Is(err, appErr.ErrAlreadyMatching),
		errors.Is(err, appErr.ErrRoomNotReady),
		errors.Is(err, appErr.ErrWrongPhase),
		errors.Is(err, appErr.ErrNotInRoom):
		status = http.StatusConflict
	case errors.Is(err, appErr.ErrStartLockHeld):
		status = http.StatusLocked
	case errors.Is(err, appErr.ErrCreateRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, appErr.ErrRoomAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, appErr.ErrUnauthorized):
		status = http.StatusUnauthorized
	}
	response.Error(c, status, err.Error())
}
