package game

import "time"

type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseBid        Phase = "BID"
	PhasePlay       Phase = "PLAY"
	PhaseSettlement Phase = "SETTLEMENT"
	PhaseFinished   Phase = "FINISHED"
)

type Role string

const (
	RoleUnknown  Role = "UNKNOWN"
	RoleLandlord Role = "LANDLORD"
	RoleFarmer   Role = "FARMER"
)

const PatternPass = "PASS"

type PlayerState struct {
	UserID      int64    `json:"userId"`
	HandCards   []string `json:"handCards"`
	Role        Role     `json:"role"`
	AutoPlay    bool     `json:"autoPlay"`
	Surrendered bool     `json:"surrendered"`
	Escaped     bool     `json:"escaped"`
	ScoreDelta  int      `json:"scoreDelta"`
}

type LastPlay struct {
	UserID   int64    `json:"userId"`
	Cards    []string `json:"cards"`
	Pattern  string   `json:"pattern"`
	PlayedAt int64    `json:"playedAt"`
}

type MoveRecord struct {
	StepNo    int       `json:"stepNo"`
	UserID    int64     `json:"userId"`
	Pattern   string    `json:"pattern"`
	Cards     []string  `json:"cards"`
	BeatsPrev bool      `json:"beatsPrev"`
	CreatedAt time.Time `json:"createdAt"`
}

// MatchState is the versioned snapshot of one room's match, the single
// durable copy of which lives in the state store. Handlers load it, mutate
// a working copy and write it back once per action.
type MatchState struct {
	MatchID       string         `json:"matchId"`
	RoomID        string         `json:"roomId"`
	Version       int64          `json:"version"`
	Phase         Phase          `json:"phase"`
	LandlordID    int64          `json:"landlordId"`
	SeatOrder     []int64        `json:"seatOrder"`
	Players       []*PlayerState `json:"players"`
	LandlordCards []string       `json:"landlordCards"`

	InitialCallerID  int64          `json:"initialCallerId"`
	HighestBidderID  int64          `json:"highestBidderId"`
	BidMultiplier    int            `json:"bidMultiplier"`
	ConsecutiveNoRob int            `json:"consecutiveNoRob"`
	BidVotes         map[int64]bool `json:"bidVotes"`
	RobVotes         map[int64]bool `json:"robVotes"`

	LastPlay          *LastPlay `json:"lastPlay,omitempty"`
	CurrentTurnUserID int64     `json:"currentTurnUserId"`
	TurnDeadline      int64     `json:"turnDeadline"`
	Surrendering      bool      `json:"surrendering"`

	OfflineTimeouts map[int64]int `json:"offlineTimeouts"`

	Moves      []MoveRecord `json:"moves"`
	NextStepNo int          `json:"nextStepNo"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (s *MatchState) FindPlayer(userID int64) *PlayerState {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *MatchState) SeatOf(userID int64) int {
	for i, id := range s.SeatOrder {
		if id == userID {
			return i
		}
	}
	return -1
}

// NextActiveUser walks the seat order and returns the next non-surrendered
// seat after current. With every other seat surrendered it returns current
// itself.
func (s *MatchState) NextActiveUser(current int64) int64 {
	idx := s.SeatOf(current)
	n := len(s.SeatOrder)
	for i := 1; i <= n; i++ {
		candidate := s.SeatOrder[(idx+i)%n]
		if p := s.FindPlayer(candidate); p != nil && !p.Surrendered {
			return candidate
		}
	}
	return current
}

// nextRobCandidate finds the next seat that has not yet voted in the robbing
// round, or 0 when every remaining seat has spoken.
func (s *MatchState) nextRobCandidate(current int64) int64 {
	idx := s.SeatOf(current)
	n := len(s.SeatOrder)
	for i := 1; i <= n; i++ {
		candidate := s.SeatOrder[(idx+i)%n]
		p := s.FindPlayer(candidate)
		if p == nil || p.Surrendered {
			continue
		}
		if _, voted := s.RobVotes[candidate]; !voted {
			return candidate
		}
	}
	return 0
}
