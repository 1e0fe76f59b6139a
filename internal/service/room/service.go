package room

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"landlord-service/internal/service/game"
	"landlord-service/internal/store"
	appErr "landlord-service/pkg/errors"
	"landlord-service/pkg/logger"
	"landlord-service/pkg/utils/random"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MatchStarter hands a freshly started room over to the match engine.
type MatchStarter interface {
	Initialize(ctx context.Context, roomID string, members []int64) (*game.MatchState, error)
}

type Service struct {
	store   store.Store
	starter MatchStarter

	// One mutex per room id, same single-writer discipline as the match
	// engine.
	rooms sync.Map
}

func NewService(st store.Store, starter MatchStarter) *Service {
	return &Service{store: st, starter: starter}
}

func (s *Service) withRoom(roomID string, fn func() error) error {
	muAny, _ := s.rooms.LoadOrStore(roomID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// JoinRandom enqueues the user in the matchmaking pool. When the pool holds
// a full table the caller forms it immediately; the returned room is nil
// while the user is still queued.
func (s *Service) JoinRandom(ctx context.Context, userID int64) (*Info, error) {
	if err := s.ensureNotInRoom(ctx, userID); err != nil {
		return nil, err
	}
	ok, err := s.store.SetNX(ctx, store.MatchTicketKey(userID), "1", store.MatchWaitTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrAlreadyMatching
	}
	if err := s.store.SAdd(ctx, store.MatchPoolKey, strconv.FormatInt(userID, 10)); err != nil {
		return nil, err
	}
	return s.tryFormRooms(ctx, userID)
}

// CancelMatch withdraws a queued user from the pool.
func (s *Service) CancelMatch(ctx context.Context, userID int64) error {
	ticket := store.MatchTicketKey(userID)
	exists, err := s.store.Exists(ctx, ticket)
	if err != nil {
		return err
	}
	if !exists {
		return appErr.ErrMatchNotFound
	}
	if err := s.store.SRem(ctx, store.MatchPoolKey, strconv.FormatInt(userID, 10)); err != nil {
		return err
	}
	return s.store.Del(ctx, ticket)
}

// tryFormRooms drains the pool in table-sized groups under the pool lock.
// Stale entries whose ticket already expired are discarded. Returns the
// formed room containing callerID, if any.
func (s *Service) tryFormRooms(ctx context.Context, callerID int64) (*Info, error) {
	locked, err := s.store.SetNX(ctx, store.MatchLockKey, "1", store.MatchLockTTL)
	if err != nil || !locked {
		return nil, err
	}
	defer func() { _ = s.store.Del(ctx, store.MatchLockKey) }()

	var callerRoom *Info
	for {
		n, err := s.store.SCard(ctx, store.MatchPoolKey)
		if err != nil {
			return callerRoom, err
		}
		if n < Seats {
			return callerRoom, nil
		}
		users, err := s.popTable(ctx)
		if err != nil {
			return callerRoom, err
		}
		if users == nil {
			return callerRoom, nil
		}
		formed, err := s.formRoom(ctx, users)
		if err != nil {
			return callerRoom, err
		}
		for _, uid := range users {
			if uid == callerID {
				callerRoom = formed
			}
		}
	}
}

// popTable pops up to Seats live pool entries. Entries without a ticket are
// dropped; a short pop goes back into the pool.
func (s *Service) popTable(ctx context.Context) ([]int64, error) {
	users := make([]int64, 0, Seats)
	for len(users) < Seats {
		raw, ok, err := s.store.SPop(ctx, store.MatchPoolKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		alive, err := s.store.Exists(ctx, store.MatchTicketKey(uid))
		if err != nil {
			return nil, err
		}
		if alive {
			users = append(users, uid)
		}
	}
	if len(users) < Seats {
		for _, uid := range users {
			_ = s.store.SAdd(ctx, store.MatchPoolKey, strconv.FormatInt(uid, 10))
		}
		return nil, nil
	}
	return users, nil
}

// formRoom creates a random-mode room for a matched table and starts the
// match immediately.
func (s *Service) formRoom(ctx context.Context, users []int64) (*Info, error) {
	room := &Info{
		ID:        uuid.NewString(),
		Mode:      ModeRandom,
		Status:    StatusPlaying,
		OwnerID:   users[0],
		CreatedAt: time.Now(),
	}
	for _, uid := range users {
		room.Members = append(room.Members, &Member{UserID: uid, Ready: true, JoinedAt: room.CreatedAt})
	}
	if err := s.saveRoom(ctx, room); err != nil {
		return nil, err
	}
	for _, uid := range users {
		if err := s.store.Set(ctx, store.RoomUserKey(uid), room.ID, store.RoomTTL); err != nil {
			return nil, err
		}
		_ = s.store.Del(ctx, store.MatchTicketKey(uid))
	}
	if _, err := s.starter.Initialize(ctx, room.ID, users); err != nil {
		logger.Log.Error("start matched room", zap.String("roomID", room.ID), zap.Error(err))
		room.Status = StatusReady
		_ = s.saveRoom(ctx, room)
		return room, err
	}
	logger.Log.Info("room formed from pool", zap.String("roomID", room.ID), zap.Int64s("users", users))
	return room, nil
}

// CreateCustom creates a joinable room with a share code, rate limited per
// user.
func (s *Service) CreateCustom(ctx context.Context, userID int64) (*Info, error) {
	if err := s.ensureNotInRoom(ctx, userID); err != nil {
		return nil, err
	}
	limitKey := store.RoomCreateLimitKey(userID)
	count, err := s.store.Incr(ctx, limitKey)
	if err != nil {
		return nil, err
	}
	if count == 1 {
		_ = s.store.Expire(ctx, limitKey, store.CreateLimitWindow)
	}
	if count > store.CreateLimitMax {
		return nil, appErr.ErrCreateRateLimited
	}

	room := &Info{
		ID:        uuid.NewString(),
		Mode:      ModeCustom,
		Status:    StatusWaiting,
		OwnerID:   userID,
		Members:   []*Member{{UserID: userID, JoinedAt: time.Now()}},
		CreatedAt: time.Now(),
	}
	code, err := s.reserveCode(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	room.Code = code
	if err := s.saveRoom(ctx, room); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, store.RoomUserKey(userID), room.ID, store.RoomTTL); err != nil {
		return nil, err
	}
	return room, nil
}

// reserveCode claims an unused six-digit join code for the room.
func (s *Service) reserveCode(ctx context.Context, roomID string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code := random.Numeric(6)
		ok, err := s.store.SetNX(ctx, store.RoomCodeKey(code), roomID, store.RoomTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after 10 attempts")
}

// JoinByCode seats the user in the custom room behind the code.
func (s *Service) JoinByCode(ctx context.Context, userID int64, code string) (*Info, error) {
	roomID, ok, err := s.store.Get(ctx, store.RoomCodeKey(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrRoomNotFound
	}
	if err := s.ensureNotInRoom(ctx, userID); err != nil {
		return nil, err
	}

	var room *Info
	err = s.withRoom(roomID, func() error {
		var err error
		room, err = s.loadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status == StatusPlaying {
			return appErr.ErrWrongPhase
		}
		if room.Full() {
			return appErr.ErrRoomFull
		}
		room.Members = append(room.Members, &Member{UserID: userID, JoinedAt: time.Now()})
		s.recomputeStatus(room)
		if err := s.saveRoom(ctx, room); err != nil {
			return err
		}
		return s.store.Set(ctx, store.RoomUserKey(userID), roomID, store.RoomTTL)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// SetReady flips the member's ready flag and recomputes the room status.
func (s *Service) SetReady(ctx context.Context, roomID string, userID int64, ready bool) (*Info, error) {
	var room *Info
	err := s.withRoom(roomID, func() error {
		var err error
		room, err = s.loadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		member := room.Member(userID)
		if member == nil {
			return appErr.ErrNotInRoom
		}
		if room.Status == StatusPlaying {
			return appErr.ErrWrongPhase
		}
		member.Ready = ready
		s.recomputeStatus(room)
		return s.saveRoom(ctx, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// Leave removes the user from their current room. The owner seat passes to
// the longest-seated remaining member; an emptied room is deleted together
// with its join code.
func (s *Service) Leave(ctx context.Context, userID int64) error {
	roomID, ok, err := s.store.Get(ctx, store.RoomUserKey(userID))
	if err != nil {
		return err
	}
	if !ok {
		return appErr.ErrNotInRoom
	}
	// A finished match may not have flipped the room back yet; refresh
	// first so leaving after settlement is not rejected as in-play.
	if room, err := s.loadRoom(ctx, roomID); err == nil && room.Status == StatusPlaying {
		if _, err := s.refreshAfterMatch(ctx, room); err != nil {
			return err
		}
	}
	return s.withRoom(roomID, func() error {
		room, err := s.loadRoom(ctx, roomID)
		if err != nil {
			// Room already expired; drop the stale binding.
			_ = s.store.Del(ctx, store.RoomUserKey(userID))
			return nil
		}
		if room.Status == StatusPlaying {
			return appErr.ErrWrongPhase
		}
		if room.Member(userID) == nil {
			_ = s.store.Del(ctx, store.RoomUserKey(userID))
			return appErr.ErrNotInRoom
		}
		kept := room.Members[:0]
		for _, m := range room.Members {
			if m.UserID != userID {
				kept = append(kept, m)
			}
		}
		room.Members = kept
		if err := s.store.Del(ctx, store.RoomUserKey(userID)); err != nil {
			return err
		}
		if len(room.Members) == 0 {
			keys := []string{store.RoomInfoKey(room.ID)}
			if room.Code != "" {
				keys = append(keys, store.RoomCodeKey(room.Code))
			}
			return s.store.Del(ctx, keys...)
		}
		if room.OwnerID == userID {
			room.OwnerID = room.Members[0].UserID
		}
		s.recomputeStatus(room)
		return s.saveRoom(ctx, room)
	})
}

// Start begins the match in a custom room. Only the owner may start, every
// seat must be filled and ready, and the start lock makes the transition
// race free across instances.
func (s *Service) Start(ctx context.Context, roomID string, userID int64) (*Info, error) {
	var room *Info
	err := s.withRoom(roomID, func() error {
		var err error
		room, err = s.loadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.OwnerID != userID {
			return appErr.ErrRoomAccessDenied
		}
		if room.Status == StatusPlaying {
			return appErr.ErrWrongPhase
		}
		if !room.AllReady() {
			return appErr.ErrRoomNotReady
		}
		locked, err := s.store.SetNX(ctx, store.RoomStartLockKey(roomID), "1", store.StartLockTTL)
		if err != nil {
			return err
		}
		if !locked {
			return appErr.ErrStartLockHeld
		}
		room.Status = StatusPlaying
		if err := s.saveRoom(ctx, room); err != nil {
			_ = s.store.Del(ctx, store.RoomStartLockKey(roomID))
			return err
		}
		if _, err := s.starter.Initialize(ctx, roomID, room.MemberIDs()); err != nil {
			room.Status = StatusReady
			_ = s.saveRoom(ctx, room)
			_ = s.store.Del(ctx, store.RoomStartLockKey(roomID))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom returns the room to one of its members.
func (s *Service) GetRoom(ctx context.Context, roomID string, userID int64) (*Info, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Member(userID) == nil {
		return nil, appErr.ErrRoomAccessDenied
	}
	return s.refreshAfterMatch(ctx, room)
}

// GetMyRoom resolves the caller's current room through the user binding.
func (s *Service) GetMyRoom(ctx context.Context, userID int64) (*Info, error) {
	roomID, ok, err := s.store.Get(ctx, store.RoomUserKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrRoomNotFound
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		_ = s.store.Del(ctx, store.RoomUserKey(userID))
		return nil, err
	}
	return s.refreshAfterMatch(ctx, room)
}

// IsMember reports room membership, used by the socket handshake.
func (s *Service) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.Member(userID) != nil, nil
}

// refreshAfterMatch flips a PLAYING room whose match has finished or
// expired back to the lobby state with all ready flags cleared.
func (s *Service) refreshAfterMatch(ctx context.Context, room *Info) (*Info, error) {
	if room.Status != StatusPlaying {
		return room, nil
	}
	raw, ok, err := s.store.Get(ctx, store.MatchStateKey(room.ID))
	if err != nil {
		return room, nil
	}
	active := false
	if ok {
		var state game.MatchState
		if err := json.Unmarshal([]byte(raw), &state); err == nil && state.Phase != game.PhaseFinished {
			active = true
		}
	}
	if active {
		return room, nil
	}
	err = s.withRoom(room.ID, func() error {
		fresh, err := s.loadRoom(ctx, room.ID)
		if err != nil {
			return err
		}
		if fresh.Status != StatusPlaying {
			room = fresh
			return nil
		}
		fresh.Status = StatusWaiting
		for _, m := range fresh.Members {
			m.Ready = false
		}
		room = fresh
		return s.saveRoom(ctx, fresh)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ensureNotInRoom rejects users that are still bound to a live room and
// cleans up bindings to rooms that expired.
func (s *Service) ensureNotInRoom(ctx context.Context, userID int64) error {
	roomID, ok, err := s.store.Get(ctx, store.RoomUserKey(userID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	exists, err := s.store.Exists(ctx, store.RoomInfoKey(roomID))
	if err != nil {
		return err
	}
	if exists {
		return appErr.ErrAlreadyInRoom
	}
	return s.store.Del(ctx, store.RoomUserKey(userID))
}

func (s *Service) recomputeStatus(room *Info) {
	if room.Status == StatusPlaying {
		return
	}
	if room.AllReady() {
		room.Status = StatusReady
	} else {
		room.Status = StatusWaiting
	}
}

func (s *Service) loadRoom(ctx context.Context, roomID string) (*Info, error) {
	raw, ok, err := s.store.Get(ctx, store.RoomInfoKey(roomID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrRoomNotFound
	}
	var room Info
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

// saveRoom writes the record back and slides the room TTL.
func (s *Service) saveRoom(ctx context.Context, room *Info) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	return s.store.Set(ctx, store.RoomInfoKey(room.ID), string(raw), store.RoomTTL)
}
