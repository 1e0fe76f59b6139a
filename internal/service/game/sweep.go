package game

import (
	"context"
	"encoding/json"
	"time"

	"landlord-service/internal/store"
	"landlord-service/pkg/logger"

	"go.uber.org/zap"
)

// StartSweeper runs the background liveness sweep until ctx is canceled.
// Each pass walks the active matches, escalates seats whose heartbeat key
// expired, and drops room bindings that point at rooms that no longer
// exist.
func (s *Service) StartSweeper(ctx context.Context) {
	interval := s.cfg.HeartbeatTTL()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

func (s *Service) sweepOnce(ctx context.Context) {
	s.sweepHeartbeats(ctx)
	s.sweepBindings(ctx)
}

// sweepHeartbeats finds active seats with no live heartbeat key and runs
// the offline escalation for each, once per heartbeat window.
func (s *Service) sweepHeartbeats(ctx context.Context) {
	keys, err := s.store.Scan(ctx, store.MatchStatePattern())
	if err != nil {
		logger.Log.Warn("sweep: scan match states", zap.Error(err))
		return
	}
	for _, key := range keys {
		raw, ok, err := s.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var state MatchState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			continue
		}
		if state.Phase != PhaseBid && state.Phase != PhasePlay {
			continue
		}
		// Seats get one full window after the deal before liveness counts.
		if time.Since(state.StartTime) < s.cfg.HeartbeatWindow() {
			continue
		}
		for _, player := range state.Players {
			if player.Surrendered || player.Escaped {
				continue
			}
			alive, err := s.store.Exists(ctx, store.HeartbeatKey(state.RoomID, player.UserID))
			if err != nil || alive {
				continue
			}
			// Re-plant the key so one outage escalates once per window.
			_ = s.store.Set(ctx, store.HeartbeatKey(state.RoomID, player.UserID), "0", s.cfg.HeartbeatWindow())
			if err := s.HandleOfflineTimeout(ctx, state.RoomID, player.UserID); err != nil {
				logger.Log.Warn("sweep: offline escalation",
					zap.String("roomID", state.RoomID),
					zap.Int64("userID", player.UserID),
					zap.Error(err),
				)
			}
		}
	}
}

// sweepBindings drops user-to-room bindings whose room record expired.
func (s *Service) sweepBindings(ctx context.Context) {
	keys, err := s.store.Scan(ctx, store.RoomUserPattern())
	if err != nil {
		logger.Log.Warn("sweep: scan room bindings", zap.Error(err))
		return
	}
	for _, key := range keys {
		roomID, ok, err := s.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		exists, err := s.store.Exists(ctx, store.RoomInfoKey(roomID))
		if err != nil || exists {
			continue
		}
		if err := s.store.Del(ctx, key); err == nil {
			logger.Log.Debug("sweep: dropped orphan binding", zap.String("key", key))
		}
	}
}
