package game

import (
	"context"
	mrand "math/rand"

	"landlord-service/internal/service/deck"

	"github.com/google/uuid"
)

// HandleBid processes one vote of the two-stage auction. During calling a
// true vote claims the landlord intent and opens robbing; during robbing
// each remaining seat votes exactly once, a rob doubling the multiplier.
func (s *Service) HandleBid(ctx context.Context, roomID string, userID int64, callLandlord bool) error {
	return s.withRoom(roomID, func() error {
		state, err := s.State(ctx, roomID)
		if err != nil {
			return err
		}
		if err := s.requirePhase(state, PhaseBid); err != nil {
			return err
		}
		if err := s.requireTurn(state, userID); err != nil {
			return err
		}
		s.logAction("bid", roomID, userID)

		if state.InitialCallerID == 0 {
			return s.handleCalling(ctx, state, userID, callLandlord)
		}
		return s.handleRobbing(ctx, state, userID, callLandlord)
	})
}

func (s *Service) handleCalling(ctx context.Context, state *MatchState, userID int64, call bool) error {
	state.BidVotes[userID] = call
	s.broadcastBidResult(state.RoomID, userID, call)

	if call {
		// First caller opens the robbing round immediately.
		state.InitialCallerID = userID
		state.HighestBidderID = userID
		state.ConsecutiveNoRob = 0
		state.RobVotes = make(map[int64]bool)
		next := state.nextRobCandidate(userID)
		if next == 0 {
			return s.assignLandlord(ctx, state, state.HighestBidderID)
		}
		state.CurrentTurnUserID = next
		state.TurnDeadline = s.nextDeadline()
		if err := s.persistState(ctx, state); err != nil {
			return err
		}
		s.broadcastTurnStart(state)
		return nil
	}

	// A full round of declines voids the deal and starts over.
	if len(state.BidVotes) >= len(state.SeatOrder) {
		s.redeal(state)
		if err := s.persistState(ctx, state); err != nil {
			return err
		}
		s.broadcastRoomStarted(state)
		s.pushHands(state)
		s.broadcastTurnStart(state)
		return nil
	}

	state.CurrentTurnUserID = state.NextActiveUser(userID)
	state.TurnDeadline = s.nextDeadline()
	if err := s.persistState(ctx, state); err != nil {
		return err
	}
	s.broadcastTurnStart(state)
	return nil
}

func (s *Service) handleRobbing(ctx context.Context, state *MatchState, userID int64, rob bool) error {
	if _, voted := state.RobVotes[userID]; voted {
		// Stale turn holder that already voted: move on without a new vote.
		return s.advanceRobTurn(ctx, state, userID)
	}
	state.RobVotes[userID] = rob
	s.broadcastBidResult(state.RoomID, userID, rob)

	if rob {
		state.HighestBidderID = userID
		state.BidMultiplier *= 2
		state.ConsecutiveNoRob = 0
	} else {
		state.ConsecutiveNoRob++
	}

	if state.ConsecutiveNoRob >= 2 {
		return s.assignLandlord(ctx, state, s.robWinner(state))
	}
	return s.advanceRobTurn(ctx, state, userID)
}

func (s *Service) advanceRobTurn(ctx context.Context, state *MatchState, userID int64) error {
	next := state.nextRobCandidate(userID)
	if next == 0 {
		return s.assignLandlord(ctx, state, s.robWinner(state))
	}
	state.CurrentTurnUserID = next
	state.TurnDeadline = s.nextDeadline()
	if err := s.persistState(ctx, state); err != nil {
		return err
	}
	s.broadcastTurnStart(state)
	return nil
}

func (s *Service) robWinner(state *MatchState) int64 {
	if state.HighestBidderID != 0 {
		return state.HighestBidderID
	}
	return state.InitialCallerID
}

// assignLandlord closes the auction: the landlord takes the reserved cards,
// the phase flips to PLAY and the landlord leads.
func (s *Service) assignLandlord(ctx context.Context, state *MatchState, landlordID int64) error {
	s.bidTimers.cancel(state.RoomID)
	state.LandlordID = landlordID
	state.Phase = PhasePlay
	state.InitialCallerID = 0
	state.HighestBidderID = 0
	for _, player := range state.Players {
		if player.UserID == landlordID {
			player.Role = RoleLandlord
			player.HandCards = append(player.HandCards, state.LandlordCards...)
			deck.SortCards(player.HandCards)
		} else {
			player.Role = RoleFarmer
		}
	}
	state.CurrentTurnUserID = landlordID
	state.TurnDeadline = s.nextDeadline()
	if err := s.persistState(ctx, state); err != nil {
		return err
	}
	s.broadcastTurnStart(state)
	return nil
}

// redeal resets the bid bookkeeping and hands out a fresh shuffle to the
// same seats, multiplier back to 1.
func (s *Service) redeal(state *MatchState) {
	state.MatchID = uuid.NewString()
	state.Phase = PhaseBid
	state.LandlordID = 0
	state.InitialCallerID = 0
	state.HighestBidderID = 0
	state.BidMultiplier = 1
	state.ConsecutiveNoRob = 0
	state.BidVotes = make(map[int64]bool)
	state.RobVotes = make(map[int64]bool)
	state.OfflineTimeouts = make(map[int64]int)
	state.LastPlay = nil
	for _, player := range state.Players {
		player.HandCards = nil
		player.Role = RoleUnknown
		player.AutoPlay = false
		player.Surrendered = false
		player.Escaped = false
	}
	s.deal(state)
	state.CurrentTurnUserID = state.SeatOrder[mrand.Intn(len(state.SeatOrder))]
	state.TurnDeadline = s.nextDeadline()
}

func (s *Service) broadcastBidResult(roomID string, userID int64, call bool) {
	s.events.Broadcast(roomID, Event{Type: EventBidResult, Data: map[string]interface{}{
		"roomId":       roomID,
		"userId":       userID,
		"callLandlord": call,
	}})
}
