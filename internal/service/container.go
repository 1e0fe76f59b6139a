package service

import (
	"context"

	"landlord-service/internal/config"
	"landlord-service/internal/service/game"
	"landlord-service/internal/service/room"
	"landlord-service/internal/store"
	"landlord-service/internal/ws"

	"gorm.io/gorm"
)

type Container struct {
	Room *room.Service
	Game *game.Service
	Hub  *ws.Hub
}

func NewContainer(db *gorm.DB, st store.Store, cfg config.GameConfig) *Container {
	hub := ws.NewHub()
	gameSvc := game.NewService(db, st, hub, cfg)
	return &Container{
		Room: room.NewService(st, gameSvc),
		Game: gameSvc,
		Hub:  hub,
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.Game.StartSweeper(ctx)
	return nil
}
