// Package game owns the per-room match state machine: deal, bid/rob, play,
// settlement, turn deadlines and liveness handling.
package game

import (
	"context"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"strconv"
	"sync"
	"time"

	"landlord-service/internal/config"
	"landlord-service/internal/service/deck"
	"landlord-service/internal/store"
	appErr "landlord-service/pkg/errors"
	"landlord-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	baseScore    = 10
	handSize     = 17
	reservedSize = 3
)

type Service struct {
	db     *gorm.DB
	store  store.Store
	events Broadcaster
	cfg    config.GameConfig

	// One mutex per active room: every mutating command on a room runs
	// under it, so the load-mutate-save cycle is single-writer.
	rooms sync.Map

	bidTimers  timerGroup
	playTimers timerGroup
}

func NewService(db *gorm.DB, st store.Store, events Broadcaster, cfg config.GameConfig) *Service {
	return &Service{
		db:     db,
		store:  st,
		events: events,
		cfg:    cfg,
	}
}

// withRoom serializes fn against every other mutating command on the room.
func (s *Service) withRoom(roomID string, fn func() error) error {
	muAny, _ := s.rooms.LoadOrStore(roomID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// Initialize deals a fresh match for a room that just entered PLAYING and
// opens the bidding phase with a random first caller.
func (s *Service) Initialize(ctx context.Context, roomID string, members []int64) (*MatchState, error) {
	var state *MatchState
	err := s.withRoom(roomID, func() error {
		state = &MatchState{
			MatchID:         uuid.NewString(),
			RoomID:          roomID,
			Phase:           PhaseBid,
			SeatOrder:       append([]int64(nil), members...),
			BidMultiplier:   1,
			BidVotes:        make(map[int64]bool),
			RobVotes:        make(map[int64]bool),
			OfflineTimeouts: make(map[int64]int),
			NextStepNo:      1,
			StartTime:       time.Now(),
		}
		for _, userID := range members {
			state.Players = append(state.Players, &PlayerState{
				UserID: userID,
				Role:   RoleUnknown,
			})
		}
		s.deal(state)
		state.CurrentTurnUserID = members[mrand.Intn(len(members))]
		state.TurnDeadline = s.nextDeadline()

		if err := s.persistState(ctx, state); err != nil {
			return err
		}
		s.broadcastRoomStarted(state)
		s.pushHands(state)
		s.broadcastTurnStart(state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// deal shuffles a new deck into three sorted 17-card hands plus the three
// reserved landlord cards.
func (s *Service) deal(state *MatchState) {
	cards := deck.ShuffledDeck()
	for i, userID := range state.SeatOrder {
		hand := append([]string(nil), cards[i*handSize:(i+1)*handSize]...)
		deck.SortCards(hand)
		state.FindPlayer(userID).HandCards = hand
	}
	state.LandlordCards = append([]string(nil), cards[len(cards)-reservedSize:]...)
}

// GetSnapshot builds the requester's private view with opposing hands
// redacted to counts. It never mutates match state.
func (s *Service) GetSnapshot(ctx context.Context, roomID string, requesterID int64) (*Snapshot, error) {
	state, err := s.State(ctx, roomID)
	if err != nil {
		return nil, err
	}
	players := make(map[int64]PlayerSnapshot, len(state.Players))
	for _, p := range state.Players {
		view := PlayerSnapshot{
			UserID:      p.UserID,
			Role:        p.Role,
			HandCount:   len(p.HandCards),
			HandCards:   []string{},
			AutoPlay:    p.AutoPlay,
			Surrendered: p.Surrendered,
			ScoreDelta:  p.ScoreDelta,
		}
		if p.UserID == requesterID {
			view.HandCards = append([]string(nil), p.HandCards...)
		}
		players[p.UserID] = view
	}
	snapshot := &Snapshot{
		RoomID:            state.RoomID,
		MatchID:           state.MatchID,
		Phase:             state.Phase,
		LandlordID:        state.LandlordID,
		SeatOrder:         state.SeatOrder,
		Players:           players,
		LandlordCards:     state.LandlordCards,
		CurrentTurnUserID: state.CurrentTurnUserID,
		TurnDeadline:      state.TurnDeadline,
		Surrendering:      state.Surrendering,
	}
	if state.LastPlay != nil {
		snapshot.LastPlay = &LastPlaySnapshot{
			UserID:   state.LastPlay.UserID,
			Cards:    state.LastPlay.Cards,
			Pattern:  state.LastPlay.Pattern,
			PlayedAt: state.LastPlay.PlayedAt,
		}
	}
	return snapshot, nil
}

// PushSnapshot answers a private snapshot request over the event channel.
func (s *Service) PushSnapshot(ctx context.Context, roomID string, userID int64) error {
	snapshot, err := s.GetSnapshot(ctx, roomID, userID)
	if err != nil {
		return err
	}
	s.events.Push(roomID, userID, Event{Type: EventSnapshot, Data: snapshot})
	return nil
}

// HandleHeartbeat refreshes the liveness key for (room, seat). It never
// touches the match snapshot.
func (s *Service) HandleHeartbeat(ctx context.Context, roomID string, userID int64) error {
	now := time.Now().UnixMilli()
	key := store.HeartbeatKey(roomID, userID)
	if err := s.store.Set(ctx, key, strconv.FormatInt(now, 10), s.cfg.HeartbeatWindow()); err != nil {
		return err
	}
	s.events.Push(roomID, userID, Event{Type: EventHeartbeatAck, Data: map[string]interface{}{
		"roomId":     roomID,
		"serverTime": now,
	}})
	return nil
}

// HandleSurrender marks a seat surrendered and on auto-play. The seat stays
// in the hand-count bookkeeping but is skipped by turn advancement.
func (s *Service) HandleSurrender(ctx context.Context, roomID string, userID int64) error {
	return s.withRoom(roomID, func() error {
		state, err := s.State(ctx, roomID)
		if err != nil {
			return err
		}
		player := state.FindPlayer(userID)
		if player == nil {
			return appErr.ErrPlayerNotInMatch
		}
		if player.Surrendered {
			return nil
		}
		player.Surrendered = true
		player.AutoPlay = true
		state.Surrendering = true
		s.events.Broadcast(roomID, Event{Type: EventSurrender, Data: map[string]interface{}{
			"roomId":       roomID,
			"matchId":      state.MatchID,
			"userId":       userID,
			"penaltyScore": s.cfg.SurrenderPenalty,
		}})

		// A whole side giving up ends the match for the other side.
		if state.Phase == PhasePlay {
			if winnerID := s.sideCollapseWinner(state); winnerID != 0 {
				return s.settle(ctx, state, winnerID)
			}
			if state.CurrentTurnUserID == userID {
				state.CurrentTurnUserID = state.NextActiveUser(userID)
				state.TurnDeadline = s.nextDeadline()
				if err := s.persistState(ctx, state); err != nil {
					return err
				}
				s.broadcastTurnStart(state)
				return nil
			}
		}
		return s.persistState(ctx, state)
	})
}

// HandleOfflineTimeout escalates one missed heartbeat cycle: auto-play
// below the configured threshold, a forced escape surrender at it.
func (s *Service) HandleOfflineTimeout(ctx context.Context, roomID string, userID int64) error {
	var escaped bool
	err := s.withRoom(roomID, func() error {
		state, err := s.State(ctx, roomID)
		if err != nil {
			return err
		}
		player := state.FindPlayer(userID)
		if player == nil {
			return appErr.ErrPlayerNotInMatch
		}
		count := state.OfflineTimeouts[userID] + 1
		state.OfflineTimeouts[userID] = count
		if count >= s.cfg.MaxOfflineTimeouts {
			player.Escaped = true
			escaped = true
			return s.persistState(ctx, state)
		}
		player.AutoPlay = true
		if err := s.persistState(ctx, state); err != nil {
			return err
		}
		s.events.Broadcast(roomID, Event{Type: EventAutoPlay, Data: map[string]interface{}{
			"roomId": roomID,
			"userId": userID,
			"reason": "OFFLINE_TIMEOUT",
		}})
		return nil
	})
	if err != nil {
		return err
	}
	if escaped {
		return s.HandleSurrender(ctx, roomID, userID)
	}
	return nil
}

// sideCollapseWinner returns a seat on the side that wins because the whole
// opposing side surrendered, or 0 while both sides still have live seats.
func (s *Service) sideCollapseWinner(state *MatchState) int64 {
	landlordAlive, farmerAlive := int64(0), int64(0)
	for _, p := range state.Players {
		if p.Surrendered {
			continue
		}
		if p.Role == RoleLandlord {
			landlordAlive = p.UserID
		} else {
			farmerAlive = p.UserID
		}
	}
	if landlordAlive == 0 && farmerAlive != 0 {
		return farmerAlive
	}
	if farmerAlive == 0 && landlordAlive != 0 {
		return landlordAlive
	}
	return 0
}

// State loads the current snapshot, or ErrMatchNotFound when the room has
// no active match.
func (s *Service) State(ctx context.Context, roomID string) (*MatchState, error) {
	raw, ok, err := s.store.Get(ctx, store.MatchStateKey(roomID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrMatchNotFound
	}
	var state MatchState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode match state: %w", err)
	}
	return &state, nil
}

func (s *Service) persistState(ctx context.Context, state *MatchState) error {
	state.Version++
	state.UpdatedAt = time.Now()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode match state: %w", err)
	}
	return s.store.Set(ctx, store.MatchStateKey(state.RoomID), string(raw), s.cfg.ActiveStateTTL())
}

func (s *Service) nextDeadline() int64 {
	return time.Now().Add(s.cfg.TurnDuration()).UnixMilli()
}

func (s *Service) broadcastRoomStarted(state *MatchState) {
	s.events.Broadcast(state.RoomID, Event{Type: EventRoomStarted, Data: map[string]interface{}{
		"roomId":  state.RoomID,
		"matchId": state.MatchID,
		"phase":   state.Phase,
	}})
}

func (s *Service) pushHands(state *MatchState) {
	for _, player := range state.Players {
		s.events.Push(state.RoomID, player.UserID, Event{Type: EventCardsDealt, Data: CardsDealtPayload{
			RoomID:        state.RoomID,
			MatchID:       state.MatchID,
			Role:          player.Role,
			HandCards:     player.HandCards,
			LandlordCards: state.LandlordCards,
		}})
	}
}

// broadcastTurnStart announces the new turn holder and (re)arms the
// deadline timer guarding the current phase.
func (s *Service) broadcastTurnStart(state *MatchState) {
	s.events.Broadcast(state.RoomID, Event{Type: EventTurnStart, Data: map[string]interface{}{
		"roomId":       state.RoomID,
		"userId":       state.CurrentTurnUserID,
		"turnDeadline": state.TurnDeadline,
	}})
	if state.Phase == PhaseBid {
		s.playTimers.cancel(state.RoomID)
		s.armBidTimeout(state)
	} else {
		s.bidTimers.cancel(state.RoomID)
		s.armPlayTimeout(state)
	}
}

func (s *Service) requirePhase(state *MatchState, expected Phase) error {
	if state.Phase != expected {
		return appErr.ErrWrongPhase
	}
	return nil
}

func (s *Service) requireTurn(state *MatchState, userID int64) error {
	if state.CurrentTurnUserID != userID {
		return appErr.ErrNotYourTurn
	}
	return nil
}

func (s *Service) logAction(action, roomID string, userID int64) {
	logger.Log.Debug("game action",
		zap.String("action", action),
		zap.String("roomID", roomID),
		zap.Int64("userID", userID),
	)
}
