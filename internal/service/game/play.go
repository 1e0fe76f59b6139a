package game

import (
	"context"
	"time"

	"landlord-service/internal/service/deck"
	appErr "landlord-service/pkg/errors"
)

// HandlePlay validates and applies one card play. The player must hold the
// cards, the set must parse to a legal combination, and it must beat a
// standing play by another seat. Playing the last card in hand triggers
// settlement.
func (s *Service) HandlePlay(ctx context.Context, roomID string, userID int64, cards []string) error {
	return s.withRoom(roomID, func() error {
		state, err := s.State(ctx, roomID)
		if err != nil {
			return err
		}
		if err := s.requirePhase(state, PhasePlay); err != nil {
			return err
		}
		if err := s.requireTurn(state, userID); err != nil {
			return err
		}
		player := state.FindPlayer(userID)
		if player == nil {
			return appErr.ErrPlayerNotInMatch
		}
		if player.Surrendered {
			return appErr.ErrPlayerSurrendered
		}
		s.logAction("play", roomID, userID)

		combo, err := deck.Parse(cards)
		if err != nil {
			return err
		}
		beatsPrev := false
		if state.LastPlay != nil && state.LastPlay.UserID != userID {
			last, err := deck.Parse(state.LastPlay.Cards)
			if err != nil {
				return err
			}
			if !deck.CanBeat(combo, &last) {
				return appErr.ErrCannotBeat
			}
			beatsPrev = true
		}

		remaining, err := removeCards(player.HandCards, cards)
		if err != nil {
			return err
		}
		player.HandCards = remaining

		now := time.Now()
		played := append([]string(nil), cards...)
		deck.SortCards(played)
		state.LastPlay = &LastPlay{
			UserID:   userID,
			Cards:    played,
			Pattern:  string(combo.Type),
			PlayedAt: now.UnixMilli(),
		}
		s.recordMove(state, userID, string(combo.Type), played, beatsPrev)

		playEvent := Event{Type: EventPlayCard, Data: map[string]interface{}{
			"roomId":    roomID,
			"userId":    userID,
			"cards":     played,
			"pattern":   string(combo.Type),
			"handCount": len(player.HandCards),
			"beatsPrev": beatsPrev,
		}}

		if len(player.HandCards) == 0 {
			s.events.Broadcast(roomID, playEvent)
			return s.settle(ctx, state, userID)
		}

		state.CurrentTurnUserID = state.NextActiveUser(userID)
		state.TurnDeadline = s.nextDeadline()
		if err := s.persistState(ctx, state); err != nil {
			return err
		}
		s.events.Broadcast(roomID, playEvent)
		s.broadcastTurnStart(state)
		return nil
	})
}

// HandlePass records a pass. Passing is only legal against a standing play
// made by another seat; the trick leader must play.
func (s *Service) HandlePass(ctx context.Context, roomID string, userID int64) error {
	return s.withRoom(roomID, func() error {
		state, err := s.State(ctx, roomID)
		if err != nil {
			return err
		}
		if err := s.requirePhase(state, PhasePlay); err != nil {
			return err
		}
		if err := s.requireTurn(state, userID); err != nil {
			return err
		}
		if state.LastPlay == nil || state.LastPlay.UserID == userID {
			return appErr.ErrCannotPassLead
		}
		s.logAction("pass", roomID, userID)

		s.recordMove(state, userID, PatternPass, nil, false)
		s.events.Broadcast(roomID, Event{Type: EventPass, Data: map[string]interface{}{
			"roomId": roomID,
			"userId": userID,
		}})

		next := state.NextActiveUser(userID)
		if s.trickExhausted(state, next) {
			// Everyone able to answer has passed; the trick resets and
			// next leads fresh.
			state.LastPlay = nil
		}
		state.CurrentTurnUserID = next
		state.TurnDeadline = s.nextDeadline()
		if err := s.persistState(ctx, state); err != nil {
			return err
		}
		s.broadcastTurnStart(state)
		return nil
	})
}

// trickExhausted reports whether the standing play can no longer be
// answered: either the turn is back at its owner, or the owner surrendered
// and every other active seat has passed on it.
func (s *Service) trickExhausted(state *MatchState, next int64) bool {
	if state.LastPlay == nil {
		return false
	}
	if next == state.LastPlay.UserID {
		return true
	}
	owner := state.FindPlayer(state.LastPlay.UserID)
	if owner == nil || !owner.Surrendered {
		return false
	}
	active := 0
	for _, p := range state.Players {
		if !p.Surrendered {
			active++
		}
	}
	return trailingPasses(state) >= active
}

func trailingPasses(state *MatchState) int {
	n := 0
	for i := len(state.Moves) - 1; i >= 0; i-- {
		if state.Moves[i].Pattern != PatternPass {
			break
		}
		n++
	}
	return n
}

func (s *Service) recordMove(state *MatchState, userID int64, pattern string, cards []string, beatsPrev bool) {
	state.Moves = append(state.Moves, MoveRecord{
		StepNo:    state.NextStepNo,
		UserID:    userID,
		Pattern:   pattern,
		Cards:     cards,
		BeatsPrev: beatsPrev,
		CreatedAt: time.Now(),
	})
	state.NextStepNo++
}

// removeCards returns hand minus cards, failing when any requested card is
// not present the requested number of times.
func removeCards(hand []string, cards []string) ([]string, error) {
	wanted := make(map[string]int, len(cards))
	for _, card := range cards {
		wanted[card]++
	}
	remaining := make([]string, 0, len(hand))
	for _, card := range hand {
		if wanted[card] > 0 {
			wanted[card]--
			continue
		}
		remaining = append(remaining, card)
	}
	for _, left := range wanted {
		if left > 0 {
			return nil, appErr.ErrCardsNotInHand
		}
	}
	return remaining, nil
}
