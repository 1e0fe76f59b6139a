package game_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"landlord-service/internal/config"
	"landlord-service/internal/model"
	"landlord-service/internal/service/deck"
	"landlord-service/internal/service/game"
	"landlord-service/internal/store"
	appErr "landlord-service/pkg/errors"
	"landlord-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

type fakeBroadcaster struct {
	mu         sync.Mutex
	broadcasts []game.Event
	pushes     map[int64][]game.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{pushes: make(map[int64][]game.Event)}
}

func (f *fakeBroadcaster) Broadcast(_ string, event game.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, event)
}

func (f *fakeBroadcaster) Push(_ string, userID int64, event game.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes[userID] = append(f.pushes[userID], event)
}

func (f *fakeBroadcaster) lastBroadcast(eventType game.EventType) *game.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.broadcasts) - 1; i >= 0; i-- {
		if f.broadcasts[i].Type == eventType {
			return &f.broadcasts[i]
		}
	}
	return nil
}

func (f *fakeBroadcaster) broadcastWhere(match func(game.Event) bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.broadcasts {
		if match(e) {
			return true
		}
	}
	return false
}

func (f *fakeBroadcaster) pushedTo(userID int64, eventType game.EventType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.pushes[userID] {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func testConfig() config.GameConfig {
	return config.GameConfig{
		TurnSeconds:            30,
		HeartbeatSeconds:       30,
		HeartbeatBufferSeconds: 10,
		SurrenderPenalty:       100,
		EscapePenalty:          200,
		MaxOfflineTimeouts:     2,
		ActiveStateTTLSeconds:  3600,
		SettledTTLMinutes:      5,
	}
}

func newService(t *testing.T) (*game.Service, *store.MemoryStore, *fakeBroadcaster, *gorm.DB) {
	t.Helper()
	return newServiceWithConfig(t, testConfig())
}

func newServiceWithConfig(t *testing.T, cfg config.GameConfig) (*game.Service, *store.MemoryStore, *fakeBroadcaster, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.GameMatch{}, &model.GameMatchPlayer{}, &model.GameMove{}, &model.UserStats{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	st := store.NewMemoryStore()
	bc := newFakeBroadcaster()
	return game.NewService(db, st, bc, cfg), st, bc, db
}

// waitFor polls cond until it holds or the timeout elapses. Used for
// behavior driven by background timers.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func seedState(t *testing.T, st *store.MemoryStore, state *game.MatchState) {
	t.Helper()
	if state.BidVotes == nil {
		state.BidVotes = make(map[int64]bool)
	}
	if state.RobVotes == nil {
		state.RobVotes = make(map[int64]bool)
	}
	if state.OfflineTimeouts == nil {
		state.OfflineTimeouts = make(map[int64]int)
	}
	if state.NextStepNo == 0 {
		state.NextStepNo = len(state.Moves) + 1
	}
	if state.StartTime.IsZero() {
		state.StartTime = time.Now().Add(-time.Minute)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("failed to marshal state: %v", err)
	}
	if err := st.Set(context.Background(), store.MatchStateKey(state.RoomID), string(raw), time.Hour); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}
}

// playingState builds a minimal PLAY-phase state with user 1 as landlord.
func playingState(roomID string, hands map[int64][]string) *game.MatchState {
	state := &game.MatchState{
		MatchID:       "match-1",
		RoomID:        roomID,
		Phase:         game.PhasePlay,
		LandlordID:    1,
		SeatOrder:     []int64{1, 2, 3},
		BidMultiplier: 1,
	}
	for _, uid := range state.SeatOrder {
		role := game.RoleFarmer
		if uid == state.LandlordID {
			role = game.RoleLandlord
		}
		state.Players = append(state.Players, &game.PlayerState{
			UserID:    uid,
			Role:      role,
			HandCards: hands[uid],
		})
	}
	state.CurrentTurnUserID = 1
	state.TurnDeadline = time.Now().Add(30 * time.Second).UnixMilli()
	return state
}

func TestInitializeDeals(t *testing.T) {
	ctx := context.Background()
	svc, _, bc, _ := newService(t)

	state, err := svc.Initialize(ctx, "room-1", []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if state.Phase != game.PhaseBid {
		t.Fatalf("expected BID phase, got %s", state.Phase)
	}
	if len(state.LandlordCards) != 3 {
		t.Fatalf("expected 3 reserved cards, got %d", len(state.LandlordCards))
	}

	seen := make(map[string]bool)
	for _, p := range state.Players {
		if len(p.HandCards) != 17 {
			t.Fatalf("player %d has %d cards", p.UserID, len(p.HandCards))
		}
		for i := 1; i < len(p.HandCards); i++ {
			if deck.Weight(p.HandCards[i-1]) > deck.Weight(p.HandCards[i]) {
				t.Fatalf("hand of %d not sorted: %v", p.UserID, p.HandCards)
			}
		}
		for _, card := range p.HandCards {
			seen[card] = true
		}
	}
	for _, card := range state.LandlordCards {
		seen[card] = true
	}
	if len(seen) != 54 {
		t.Fatalf("deal does not cover the deck, %d distinct cards", len(seen))
	}

	holderFound := false
	for _, uid := range state.SeatOrder {
		if uid == state.CurrentTurnUserID {
			holderFound = true
		}
	}
	if !holderFound {
		t.Fatalf("turn holder %d not seated", state.CurrentTurnUserID)
	}

	for _, uid := range []int64{1, 2, 3} {
		if !bc.pushedTo(uid, game.EventCardsDealt) {
			t.Fatalf("no private deal for user %d", uid)
		}
	}
	if bc.lastBroadcast(game.EventRoomStarted) == nil {
		t.Fatalf("missing ROOM_STARTED broadcast")
	}
	if bc.lastBroadcast(game.EventTurnStart) == nil {
		t.Fatalf("missing TURN_START broadcast")
	}
}

func TestBidAllDeclineRedeals(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	first, err := svc.Initialize(ctx, "room-1", []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		state, err := svc.State(ctx, "room-1")
		if err != nil {
			t.Fatalf("load state: %v", err)
		}
		if err := svc.HandleBid(ctx, "room-1", state.CurrentTurnUserID, false); err != nil {
			t.Fatalf("bid decline %d failed: %v", i, err)
		}
	}

	state, err := svc.State(ctx, "room-1")
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.Phase != game.PhaseBid {
		t.Fatalf("expected fresh BID phase, got %s", state.Phase)
	}
	if state.MatchID == first.MatchID {
		t.Fatalf("expected a new match id after redeal")
	}
	if state.BidMultiplier != 1 {
		t.Fatalf("multiplier should reset to 1, got %d", state.BidMultiplier)
	}
	if len(state.BidVotes) != 0 {
		t.Fatalf("bid votes should be cleared, got %d", len(state.BidVotes))
	}
	for _, p := range state.Players {
		if len(p.HandCards) != 17 {
			t.Fatalf("redeal left player %d with %d cards", p.UserID, len(p.HandCards))
		}
	}
}

func TestBidCallThenTwoNoRobs(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	if _, err := svc.Initialize(ctx, "room-1", []int64{1, 2, 3}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	state, _ := svc.State(ctx, "room-1")
	caller := state.CurrentTurnUserID

	if err := svc.HandleBid(ctx, "room-1", caller, true); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		state, _ = svc.State(ctx, "room-1")
		if err := svc.HandleBid(ctx, "room-1", state.CurrentTurnUserID, false); err != nil {
			t.Fatalf("no-rob %d failed: %v", i, err)
		}
	}

	state, _ = svc.State(ctx, "room-1")
	if state.Phase != game.PhasePlay {
		t.Fatalf("expected PLAY phase, got %s", state.Phase)
	}
	if state.LandlordID != caller {
		t.Fatalf("expected caller %d as landlord, got %d", caller, state.LandlordID)
	}
	if state.CurrentTurnUserID != caller {
		t.Fatalf("landlord should lead, turn is %d", state.CurrentTurnUserID)
	}
	if state.BidMultiplier != 1 {
		t.Fatalf("multiplier should stay 1 without robs, got %d", state.BidMultiplier)
	}
	landlord := state.FindPlayer(caller)
	if len(landlord.HandCards) != 20 {
		t.Fatalf("landlord should hold 20 cards, got %d", len(landlord.HandCards))
	}
	for _, p := range state.Players {
		if p.UserID != caller && len(p.HandCards) != 17 {
			t.Fatalf("farmer %d should hold 17 cards, got %d", p.UserID, len(p.HandCards))
		}
	}
}

func TestRobDoublesMultiplier(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	if _, err := svc.Initialize(ctx, "room-1", []int64{1, 2, 3}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	state, _ := svc.State(ctx, "room-1")
	caller := state.CurrentTurnUserID
	if err := svc.HandleBid(ctx, "room-1", caller, true); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	state, _ = svc.State(ctx, "room-1")
	robber := state.CurrentTurnUserID
	if err := svc.HandleBid(ctx, "room-1", robber, true); err != nil {
		t.Fatalf("rob failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		state, _ = svc.State(ctx, "room-1")
		if state.Phase != game.PhaseBid {
			break
		}
		if err := svc.HandleBid(ctx, "room-1", state.CurrentTurnUserID, false); err != nil {
			t.Fatalf("decline failed: %v", err)
		}
	}

	state, _ = svc.State(ctx, "room-1")
	if state.Phase != game.PhasePlay {
		t.Fatalf("expected PLAY phase, got %s", state.Phase)
	}
	if state.LandlordID != robber {
		t.Fatalf("expected robber %d as landlord, got %d", robber, state.LandlordID)
	}
	if state.BidMultiplier != 2 {
		t.Fatalf("one rob should double the multiplier, got %d", state.BidMultiplier)
	}
}

func TestBidRejectsOutOfTurnAndPhase(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newService(t)

	if _, err := svc.Initialize(ctx, "room-1", []int64{1, 2, 3}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	state, _ := svc.State(ctx, "room-1")
	notHolder := state.NextActiveUser(state.CurrentTurnUserID)
	if err := svc.HandleBid(ctx, "room-1", notHolder, true); !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}

	seedState(t, st, playingState("room-2", map[int64][]string{
		1: {"S3"}, 2: {"S4"}, 3: {"S5"},
	}))
	if err := svc.HandleBid(ctx, "room-2", 1, true); !errors.Is(err, appErr.ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}

func TestPlayValidation(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newService(t)

	seedState(t, st, playingState("room-1", map[int64][]string{
		1: {"S3", "S9", "SK"},
		2: {"H4", "H10"},
		3: {"C5", "CQ"},
	}))

	if err := svc.HandlePlay(ctx, "room-1", 2, []string{"H4"}); !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if err := svc.HandlePass(ctx, "room-1", 1); !errors.Is(err, appErr.ErrCannotPassLead) {
		t.Fatalf("leader pass should fail, got %v", err)
	}
	if err := svc.HandlePlay(ctx, "room-1", 1, []string{"H7"}); !errors.Is(err, appErr.ErrCardsNotInHand) {
		t.Fatalf("expected ErrCardsNotInHand, got %v", err)
	}
	if err := svc.HandlePlay(ctx, "room-1", 1, nil); !errors.Is(err, appErr.ErrEmptyAction) {
		t.Fatalf("expected ErrEmptyAction, got %v", err)
	}

	if err := svc.HandlePlay(ctx, "room-1", 1, []string{"S9"}); err != nil {
		t.Fatalf("lead failed: %v", err)
	}
	if err := svc.HandlePlay(ctx, "room-1", 2, []string{"H4"}); !errors.Is(err, appErr.ErrCannotBeat) {
		t.Fatalf("expected ErrCannotBeat, got %v", err)
	}
	if err := svc.HandlePlay(ctx, "room-1", 2, []string{"H10"}); err != nil {
		t.Fatalf("beat failed: %v", err)
	}

	state, _ := svc.State(ctx, "room-1")
	if state.LastPlay == nil || state.LastPlay.UserID != 2 {
		t.Fatalf("last play should belong to user 2: %+v", state.LastPlay)
	}
	if state.CurrentTurnUserID != 3 {
		t.Fatalf("turn should be at user 3, got %d", state.CurrentTurnUserID)
	}
	if len(state.Moves) != 2 {
		t.Fatalf("expected 2 moves, got %d", len(state.Moves))
	}
	if state.Moves[0].StepNo != 1 || state.Moves[1].StepNo != 2 {
		t.Fatalf("step numbers must be gapless: %+v", state.Moves)
	}
}

func TestPassCycleResetsTrick(t *testing.T) {
	ctx := context.Background()
	svc, st, _, _ := newService(t)

	seedState(t, st, playingState("room-1", map[int64][]string{
		1: {"S9", "SK"},
		2: {"H4", "H10"},
		3: {"C5", "CQ"},
	}))

	if err := svc.HandlePlay(ctx, "room-1", 1, []string{"S9"}); err != nil {
		t.Fatalf("lead failed: %v", err)
	}
	if err := svc.HandlePass(ctx, "room-1", 2); err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if err := svc.HandlePass(ctx, "room-1", 3); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	state, _ := svc.State(ctx, "room-1")
	if state.CurrentTurnUserID != 1 {
		t.Fatalf("trick should return to leader, turn is %d", state.CurrentTurnUserID)
	}
	if state.LastPlay != nil {
		t.Fatalf("trick should reset after a full pass cycle")
	}
	if err := svc.HandlePass(ctx, "room-1", 1); !errors.Is(err, appErr.ErrCannotPassLead) {
		t.Fatalf("fresh leader cannot pass, got %v", err)
	}
}

func TestSettleLandlordSpring(t *testing.T) {
	ctx := context.Background()
	svc, st, bc, db := newService(t)

	seedState(t, st, playingState("room-1", map[int64][]string{
		1: {"S3"},
		2: {"H4", "H5"},
		3: {"C6", "C7"},
	}))

	if err := svc.HandlePlay(ctx, "room-1", 1, []string{"S3"}); err != nil {
		t.Fatalf("winning play failed: %v", err)
	}

	state, err := svc.State(ctx, "room-1")
	if err != nil {
		t.Fatalf("settled state should be retained: %v", err)
	}
	if state.Phase != game.PhaseFinished {
		t.Fatalf("expected FINISHED, got %s", state.Phase)
	}

	// No farmer ever played: spring doubles the bid multiplier.
	landlord := state.FindPlayer(1)
	if landlord.ScoreDelta != 40 {
		t.Fatalf("landlord spring delta should be +40, got %d", landlord.ScoreDelta)
	}
	for _, uid := range []int64{2, 3} {
		if d := state.FindPlayer(uid).ScoreDelta; d != -20 {
			t.Fatalf("farmer %d delta should be -20, got %d", uid, d)
		}
	}

	event := bc.lastBroadcast(game.EventGameResult)
	if event == nil {
		t.Fatalf("missing GAME_RESULT broadcast")
	}

	var match model.GameMatch
	if err := db.First(&match).Error; err != nil {
		t.Fatalf("match row missing: %v", err)
	}
	if match.WinnerSide != "LANDLORD" || match.LandlordUserID != 1 {
		t.Fatalf("unexpected match row: %+v", match)
	}

	var players []model.GameMatchPlayer
	if err := db.Find(&players).Error; err != nil || len(players) != 3 {
		t.Fatalf("expected 3 player rows, got %d (%v)", len(players), err)
	}

	var stats model.UserStats
	if err := db.Where("user_id = ?", int64(1)).First(&stats).Error; err != nil {
		t.Fatalf("stats row missing: %v", err)
	}
	if stats.TotalGames != 1 || stats.WinCount != 1 || stats.Score != 1040 {
		t.Fatalf("unexpected landlord stats: %+v", stats)
	}
	if stats.Level != 1 {
		t.Fatalf("score 1040 should still sit at level 1, got %d", stats.Level)
	}
}

func TestSettleFarmerWinWithBomb(t *testing.T) {
	ctx := context.Background()
	svc, st, _, db := newService(t)

	state := playingState("room-1", map[int64][]string{
		1: {"SK", "SA"},
		2: {"H4"},
		3: {"C6", "C7"},
	})
	// Prior rounds: the landlord has played twice, farmer 2 bombed once.
	state.Moves = []game.MoveRecord{
		{StepNo: 1, UserID: 1, Pattern: "SINGLE", Cards: []string{"S3"}},
		{StepNo: 2, UserID: 2, Pattern: "BOMB", Cards: []string{"S5", "H5", "C5", "D5"}, BeatsPrev: true},
		{StepNo: 3, UserID: 1, Pattern: "SINGLE", Cards: []string{"SQ"}},
	}
	state.CurrentTurnUserID = 2
	seedState(t, st, state)

	if err := svc.HandlePlay(ctx, "room-1", 2, []string{"H4"}); err != nil {
		t.Fatalf("winning play failed: %v", err)
	}

	final, _ := svc.State(ctx, "room-1")
	// Bomb doubles the unit: 10 * 1 * 2 = 20 per farmer, landlord pays double.
	if d := final.FindPlayer(2).ScoreDelta; d != 20 {
		t.Fatalf("winning farmer delta should be +20, got %d", d)
	}
	if d := final.FindPlayer(3).ScoreDelta; d != 20 {
		t.Fatalf("other farmer delta should be +20, got %d", d)
	}
	if d := final.FindPlayer(1).ScoreDelta; d != -40 {
		t.Fatalf("landlord delta should be -40, got %d", d)
	}

	var match model.GameMatch
	if err := db.First(&match).Error; err != nil {
		t.Fatalf("match row missing: %v", err)
	}
	if match.WinnerSide != "FARMER" {
		t.Fatalf("expected farmer side win, got %s", match.WinnerSide)
	}

	var moves []model.GameMove
	if err := db.Order("step_no asc").Find(&moves).Error; err != nil || len(moves) != 4 {
		t.Fatalf("expected 4 move rows, got %d (%v)", len(moves), err)
	}

	var bomber model.GameMatchPlayer
	if err := db.Where("user_id = ?", int64(2)).First(&bomber).Error; err != nil {
		t.Fatalf("player row missing: %v", err)
	}
	if bomber.Bombs != 1 {
		t.Fatalf("bomb count should be 1, got %d", bomber.Bombs)
	}
}

func TestSurrenderSideCollapse(t *testing.T) {
	ctx := context.Background()
	svc, st, bc, db := newService(t)

	seedState(t, st, playingState("room-1", map[int64][]string{
		1: {"S3", "S4"},
		2: {"H4", "H5"},
		3: {"C6", "C7"},
	}))

	if err := svc.HandleSurrender(ctx, "room-1", 2); err != nil {
		t.Fatalf("first surrender failed: %v", err)
	}
	// Idempotent repeat.
	if err := svc.HandleSurrender(ctx, "room-1", 2); err != nil {
		t.Fatalf("repeated surrender failed: %v", err)
	}
	state, _ := svc.State(ctx, "room-1")
	if state.Phase != game.PhasePlay {
		t.Fatalf("one farmer down should not end the match")
	}

	if err := svc.HandleSurrender(ctx, "room-1", 3); err != nil {
		t.Fatalf("second surrender failed: %v", err)
	}
	state, _ = svc.State(ctx, "room-1")
	if state.Phase != game.PhaseFinished {
		t.Fatalf("both farmers down should settle, phase %s", state.Phase)
	}
	if bc.lastBroadcast(game.EventGameResult) == nil {
		t.Fatalf("missing GAME_RESULT broadcast")
	}

	var match model.GameMatch
	if err := db.First(&match).Error; err != nil {
		t.Fatalf("match row missing: %v", err)
	}
	if match.WinnerSide != "LANDLORD" {
		t.Fatalf("landlord should win a collapse, got %s", match.WinnerSide)
	}
	// No farmer ever played, so the collapse counts as spring: the unit is
	// 10*1*2 and the surrender penalty comes on top of the loss.
	if d := state.FindPlayer(2).ScoreDelta; d != -20-100 {
		t.Fatalf("surrendered farmer delta should be -120, got %d", d)
	}
}

func TestSettleEscapedFarmerStacksPenalties(t *testing.T) {
	ctx := context.Background()
	svc, st, bc, db := newService(t)

	state := playingState("room-1", map[int64][]string{
		1: {"S3"},
		2: {"H4", "H5"},
		3: {"C6", "C7"},
	})
	// Farmer 2 already timed out of the match: the forced escape also
	// surrenders the seat, so both penalties apply at settlement.
	escaped := state.FindPlayer(2)
	escaped.Escaped = true
	escaped.Surrendered = true
	escaped.AutoPlay = true
	// One prior farmer play keeps spring out of the multiplier.
	state.Moves = []game.MoveRecord{
		{StepNo: 1, UserID: 3, Pattern: "SINGLE", Cards: []string{"C9"}},
	}
	seedState(t, st, state)

	if err := db.Create(&model.UserStats{UserID: 1, Score: 1980, Level: 1}).Error; err != nil {
		t.Fatalf("failed to seed landlord stats: %v", err)
	}
	if err := db.Create(&model.UserStats{UserID: 2, Score: 50, Level: 1}).Error; err != nil {
		t.Fatalf("failed to seed farmer stats: %v", err)
	}

	if err := svc.HandlePlay(ctx, "room-1", 1, []string{"S3"}); err != nil {
		t.Fatalf("winning play failed: %v", err)
	}

	final, err := svc.State(ctx, "room-1")
	if err != nil {
		t.Fatalf("settled state missing: %v", err)
	}
	if d := final.FindPlayer(1).ScoreDelta; d != 20 {
		t.Fatalf("landlord delta should be +20, got %d", d)
	}
	if d := final.FindPlayer(2).ScoreDelta; d != -10-100-200 {
		t.Fatalf("escaped farmer should pay surrender and escape penalties, got %d", d)
	}
	if d := final.FindPlayer(3).ScoreDelta; d != -10 {
		t.Fatalf("remaining farmer delta should be -10, got %d", d)
	}

	event := bc.lastBroadcast(game.EventGameResult)
	if event == nil {
		t.Fatalf("missing GAME_RESULT broadcast")
	}
	data := event.Data.(map[string]interface{})
	if data["winnerId"] != int64(1) || data["landlordId"] != int64(1) {
		t.Fatalf("result should name winner and landlord, got %v / %v", data["winnerId"], data["landlordId"])
	}

	var landlordStats model.UserStats
	if err := db.Where("user_id = ?", int64(1)).First(&landlordStats).Error; err != nil {
		t.Fatalf("landlord stats missing: %v", err)
	}
	if landlordStats.Score != 2000 || landlordStats.Level != 2 {
		t.Fatalf("score 2000 should reach level 2, got %+v", landlordStats)
	}

	var farmerStats model.UserStats
	if err := db.Where("user_id = ?", int64(2)).First(&farmerStats).Error; err != nil {
		t.Fatalf("farmer stats missing: %v", err)
	}
	if farmerStats.Score != 0 {
		t.Fatalf("cumulative score should clamp at zero, got %d", farmerStats.Score)
	}
	if farmerStats.Level != 1 {
		t.Fatalf("clamped score should stay level 1, got %d", farmerStats.Level)
	}
}

func TestHeartbeatAck(t *testing.T) {
	ctx := context.Background()
	svc, st, bc, _ := newService(t)

	if err := svc.HandleHeartbeat(ctx, "room-1", 7); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	alive, err := st.Exists(ctx, store.HeartbeatKey("room-1", 7))
	if err != nil || !alive {
		t.Fatalf("liveness key missing (%v)", err)
	}
	if !bc.pushedTo(7, game.EventHeartbeatAck) {
		t.Fatalf("missing private HEARTBEAT_ACK")
	}
}

func TestOfflineTimeoutEscalation(t *testing.T) {
	ctx := context.Background()
	svc, st, bc, _ := newService(t)

	seedState(t, st, playingState("room-1", map[int64][]string{
		1: {"S3", "S4"},
		2: {"H4", "H5"},
		3: {"C6", "C7"},
	}))

	if err := svc.HandleOfflineTimeout(ctx, "room-1", 2); err != nil {
		t.Fatalf("first timeout failed: %v", err)
	}
	state, _ := svc.State(ctx, "room-1")
	player := state.FindPlayer(2)
	if !player.AutoPlay || player.Surrendered {
		t.Fatalf("first timeout should only enable auto-play: %+v", player)
	}
	if bc.lastBroadcast(game.EventAutoPlay) == nil {
		t.Fatalf("missing AUTO_PLAY broadcast")
	}

	if err := svc.HandleOfflineTimeout(ctx, "room-1", 2); err != nil {
		t.Fatalf("second timeout failed: %v", err)
	}
	state, _ = svc.State(ctx, "room-1")
	player = state.FindPlayer(2)
	if !player.Escaped || !player.Surrendered {
		t.Fatalf("threshold timeout should force an escape surrender: %+v", player)
	}
}

func TestSnapshotRedaction(t *testing.T) {
	ctx := context.Background()
	svc, st, bc, _ := newService(t)

	seedState(t, st, playingState("room-1", map[int64][]string{
		1: {"S3", "S4"},
		2: {"H4", "H5"},
		3: {"C6", "C7"},
	}))

	snapshot, err := svc.GetSnapshot(ctx, "room-1", 2)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snapshot.Players[2].HandCards) != 2 {
		t.Fatalf("requester should see own hand")
	}
	for _, uid := range []int64{1, 3} {
		view := snapshot.Players[uid]
		if len(view.HandCards) != 0 {
			t.Fatalf("hand of %d leaked: %v", uid, view.HandCards)
		}
		if view.HandCount != 2 {
			t.Fatalf("hand count of %d should be 2, got %d", uid, view.HandCount)
		}
	}

	if err := svc.PushSnapshot(ctx, "room-1", 2); err != nil {
		t.Fatalf("push snapshot failed: %v", err)
	}
	if !bc.pushedTo(2, game.EventSnapshot) {
		t.Fatalf("missing private SNAPSHOT event")
	}

	if _, err := svc.GetSnapshot(ctx, "room-404", 2); !errors.Is(err, appErr.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestNextActiveUserSkipsSurrendered(t *testing.T) {
	state := playingState("room-1", map[int64][]string{
		1: {"S3"}, 2: {"H4"}, 3: {"C5"},
	})
	state.FindPlayer(2).Surrendered = true

	if next := state.NextActiveUser(1); next != 3 {
		t.Fatalf("expected seat 3 after 1, got %d", next)
	}
	if next := state.NextActiveUser(3); next != 1 {
		t.Fatalf("expected seat 1 after 3, got %d", next)
	}
}
