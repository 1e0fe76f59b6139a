package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"landlord-service/internal/service/deck"
	appErr "landlord-service/pkg/errors"
	"landlord-service/pkg/logger"

	"go.uber.org/zap"
)

// timerGroup keys one pending deadline timer per room. Arming replaces any
// previous timer for the room, so a room never has two live deadlines of
// the same kind.
type timerGroup struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func (g *timerGroup) arm(roomID string, d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timers == nil {
		g.timers = make(map[string]*time.Timer)
	}
	if t, ok := g.timers[roomID]; ok {
		t.Stop()
	}
	g.timers[roomID] = time.AfterFunc(d, fn)
}

func (g *timerGroup) cancel(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[roomID]; ok {
		t.Stop()
		delete(g.timers, roomID)
	}
}

const timeoutGrace = 500 * time.Millisecond

// armBidTimeout schedules the default bid decline for the current holder.
// The callback re-reads state and verifies the turn before acting, so a
// timer that outlives its turn is a no-op.
func (s *Service) armBidTimeout(state *MatchState) {
	roomID := state.RoomID
	holder := state.CurrentTurnUserID
	deadline := state.TurnDeadline
	s.bidTimers.arm(roomID, s.cfg.TurnDuration()+timeoutGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		current, err := s.State(ctx, roomID)
		if err != nil {
			return
		}
		if current.Phase != PhaseBid || current.CurrentTurnUserID != holder || current.TurnDeadline != deadline {
			return
		}
		s.broadcastAutoPlay(roomID, holder, "TURN_TIMEOUT")
		if err := s.HandleBid(ctx, roomID, holder, false); err != nil && !isStaleTurn(err) {
			logger.Log.Warn("auto bid failed",
				zap.String("roomID", roomID),
				zap.Int64("userID", holder),
				zap.Error(err),
			)
		}
	})
}

// armPlayTimeout schedules the default play action: pass against a standing
// play, lowest single when leading.
func (s *Service) armPlayTimeout(state *MatchState) {
	roomID := state.RoomID
	holder := state.CurrentTurnUserID
	deadline := state.TurnDeadline
	s.playTimers.arm(roomID, s.cfg.TurnDuration()+timeoutGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		current, err := s.State(ctx, roomID)
		if err != nil {
			return
		}
		if current.Phase != PhasePlay || current.CurrentTurnUserID != holder || current.TurnDeadline != deadline {
			return
		}
		s.broadcastAutoPlay(roomID, holder, "TURN_TIMEOUT")
		if err := s.autoPlayTurn(ctx, current, holder); err != nil && !isStaleTurn(err) {
			logger.Log.Warn("auto play failed",
				zap.String("roomID", roomID),
				zap.Int64("userID", holder),
				zap.Error(err),
			)
		}
	})
}

// autoPlayTurn applies the default action for a seat whose turn expired.
func (s *Service) autoPlayTurn(ctx context.Context, state *MatchState, holder int64) error {
	if state.LastPlay != nil && state.LastPlay.UserID != holder {
		err := s.HandlePass(ctx, state.RoomID, holder)
		if !errors.Is(err, appErr.ErrCannotPassLead) {
			return err
		}
		// The trick reset between the read and the pass; lead instead.
	}
	player := state.FindPlayer(holder)
	if player == nil || len(player.HandCards) == 0 {
		return appErr.ErrPlayerNotInMatch
	}
	lowest := player.HandCards[0]
	for _, card := range player.HandCards[1:] {
		if deck.Weight(card) < deck.Weight(lowest) {
			lowest = card
		}
	}
	return s.HandlePlay(ctx, state.RoomID, holder, []string{lowest})
}

func (s *Service) broadcastAutoPlay(roomID string, userID int64, reason string) {
	s.events.Broadcast(roomID, Event{Type: EventAutoPlay, Data: map[string]interface{}{
		"roomId": roomID,
		"userId": userID,
		"reason": reason,
	}})
}

// isStaleTurn filters the errors a late timer is expected to hit when the
// player acted just before the deadline fired.
func isStaleTurn(err error) bool {
	return errors.Is(err, appErr.ErrNotYourTurn) ||
		errors.Is(err, appErr.ErrWrongPhase) ||
		errors.Is(err, appErr.ErrMatchNotFound)
}
