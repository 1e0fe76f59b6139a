package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"landlord-service/internal/model"
	"landlord-service/internal/service/deck"
	"landlord-service/internal/store"
	"landlord-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ResultWin  = "WIN"
	ResultLose = "LOSE"

	SideLandlord = "LANDLORD"
	SideFarmer   = "FARMER"
)

// settle finishes the match won by winnerID's side: computes the final
// multiplier and score deltas, persists the match record in one
// transaction, and broadcasts the result. Caller holds the room lock.
func (s *Service) settle(ctx context.Context, state *MatchState, winnerID int64) error {
	s.bidTimers.cancel(state.RoomID)
	s.playTimers.cancel(state.RoomID)

	winner := state.FindPlayer(winnerID)
	winnerSide := SideFarmer
	if winner != nil && winner.Role == RoleLandlord {
		winnerSide = SideLandlord
	}

	multiplier := state.BidMultiplier
	bombsByUser := make(map[int64]int, len(state.Players))
	landlordPlays, farmerPlays := 0, 0
	for _, move := range state.Moves {
		if move.Pattern == PatternPass {
			continue
		}
		switch deck.ComboType(move.Pattern) {
		case deck.Bomb:
			multiplier *= 2
			bombsByUser[move.UserID]++
		case deck.JokerBomb:
			multiplier *= 4
			bombsByUser[move.UserID]++
		}
		if move.UserID == state.LandlordID {
			landlordPlays++
		} else {
			farmerPlays++
		}
	}

	spring := (winnerSide == SideLandlord && farmerPlays == 0) ||
		(winnerSide == SideFarmer && landlordPlays <= 1)
	if spring {
		multiplier *= 2
	}
	scoreUnit := baseScore * multiplier

	for _, player := range state.Players {
		delta := 0
		if player.Role == RoleLandlord {
			if winnerSide == SideLandlord {
				delta = 2 * scoreUnit
			} else {
				delta = -2 * scoreUnit
			}
		} else {
			if winnerSide == SideFarmer {
				delta = scoreUnit
			} else {
				delta = -scoreUnit
			}
		}
		if player.Surrendered {
			delta -= s.cfg.SurrenderPenalty
		}
		if player.Escaped {
			delta -= s.cfg.EscapePenalty
		}
		player.ScoreDelta = delta
	}

	now := time.Now()
	state.Phase = PhaseSettlement
	state.EndTime = &now
	state.CurrentTurnUserID = 0
	state.TurnDeadline = 0

	if err := s.persistResult(state, winnerSide, multiplier, spring, scoreUnit, bombsByUser); err != nil {
		return fmt.Errorf("persist settlement: %w", err)
	}

	state.Phase = PhaseFinished
	if err := s.storeSettled(ctx, state); err != nil {
		return err
	}
	s.broadcastResult(state, winnerID, winnerSide, multiplier, spring, scoreUnit)
	logger.Log.Info("match settled",
		zap.String("roomID", state.RoomID),
		zap.String("matchID", state.MatchID),
		zap.String("winnerSide", winnerSide),
		zap.Int("multiplier", multiplier),
		zap.Bool("spring", spring),
	)
	return nil
}

// persistResult writes the match, its players, the move log and the stats
// updates in a single transaction.
func (s *Service) persistResult(state *MatchState, winnerSide string, multiplier int, spring bool, scoreUnit int, bombsByUser map[int64]int) error {
	remark, err := json.Marshal(map[string]interface{}{
		"bidMultiplier": state.BidMultiplier,
		"multiplier":    multiplier,
		"spring":        spring,
		"scoreUnit":     scoreUnit,
	})
	if err != nil {
		return err
	}
	duration := int(state.EndTime.Sub(state.StartTime).Seconds())

	return s.db.Transaction(func(tx *gorm.DB) error {
		match := &model.GameMatch{
			RoomID:         state.RoomID,
			LandlordUserID: state.LandlordID,
			WinnerSide:     winnerSide,
			StartTime:      state.StartTime,
			EndTime:        *state.EndTime,
			Remark:         datatypes.JSON(remark),
		}
		if err := tx.Create(match).Error; err != nil {
			return err
		}

		for _, player := range state.Players {
			won := string(player.Role) == winnerSide
			result := ResultLose
			if won {
				result = ResultWin
			}
			record := &model.GameMatchPlayer{
				MatchID:     match.ID,
				UserID:      player.UserID,
				Seat:        state.SeatOf(player.UserID),
				Role:        string(player.Role),
				Result:      result,
				ScoreDelta:  player.ScoreDelta,
				Bombs:       bombsByUser[player.UserID],
				LeftCards:   len(player.HandCards),
				DurationSec: duration,
				Escaped:     player.Escaped,
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
			if err := applyStats(tx, player.UserID, won, player.ScoreDelta); err != nil {
				return err
			}
		}

		for _, move := range state.Moves {
			cards, err := json.Marshal(move.Cards)
			if err != nil {
				return err
			}
			row := &model.GameMove{
				MatchID:   match.ID,
				StepNo:    move.StepNo,
				PlayerID:  move.UserID,
				Seat:      state.SeatOf(move.UserID),
				Pattern:   move.Pattern,
				Cards:     datatypes.JSON(cards),
				BeatsPrev: move.BeatsPrev,
				CreatedAt: move.CreatedAt,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// applyStats folds one result into the user's cumulative stats row.
func applyStats(tx *gorm.DB, userID int64, won bool, delta int) error {
	var stats model.UserStats
	err := tx.Where("user_id = ?", userID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = model.UserStats{UserID: userID, Score: 1000, Level: 1}
	} else if err != nil {
		return err
	}
	stats.TotalGames++
	stats.Score += delta
	if stats.Score < 0 {
		stats.Score = 0
	}
	if won {
		stats.WinCount++
		stats.CurrentStreak++
		if stats.CurrentStreak > stats.MaxStreak {
			stats.MaxStreak = stats.CurrentStreak
		}
	} else {
		stats.LoseCount++
		stats.CurrentStreak = 0
	}
	stats.Level = levelFor(stats.Score)
	stats.UpdatedAt = time.Now()
	return tx.Save(&stats).Error
}

// levelFor maps a score onto a level with doubling thresholds: level 2 at
// 2000, level 3 at 4000, level 4 at 8000 and so on.
func levelFor(score int) int {
	level := 1
	threshold := 1000
	for score >= threshold*2 {
		threshold *= 2
		level++
	}
	return level
}

// storeSettled keeps the finished snapshot around briefly for late
// reconnects, or drops it immediately when retention is zero.
func (s *Service) storeSettled(ctx context.Context, state *MatchState) error {
	key := store.MatchStateKey(state.RoomID)
	retention := s.cfg.SettledRetention()
	if retention <= 0 {
		return s.store.Del(ctx, key)
	}
	state.Version++
	state.UpdatedAt = time.Now()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode match state: %w", err)
	}
	return s.store.Set(ctx, key, string(raw), retention)
}

func (s *Service) broadcastResult(state *MatchState, winnerID int64, winnerSide string, multiplier int, spring bool, scoreUnit int) {
	players := make([]map[string]interface{}, 0, len(state.Players))
	for _, p := range state.Players {
		result := ResultLose
		if string(p.Role) == winnerSide {
			result = ResultWin
		}
		players = append(players, map[string]interface{}{
			"userId":     p.UserID,
			"role":       p.Role,
			"result":     result,
			"scoreDelta": p.ScoreDelta,
			"leftCards":  len(p.HandCards),
			"escaped":    p.Escaped,
		})
	}
	s.events.Broadcast(state.RoomID, Event{Type: EventGameResult, Data: map[string]interface{}{
		"roomId":     state.RoomID,
		"matchId":    state.MatchID,
		"winnerId":   winnerID,
		"landlordId": state.LandlordID,
		"winnerSide": winnerSide,
		"multiplier": multiplier,
		"spring":     spring,
		"scoreUnit":  scoreUnit,
		"players":    players,
	}})
}
