package game

type EventType string

const (
	EventRoomStarted  EventType = "ROOM_STARTED"
	EventCardsDealt   EventType = "CARDS_DEALT"
	EventBidResult    EventType = "BID_RESULT"
	EventTurnStart    EventType = "TURN_START"
	EventPlayCard     EventType = "PLAY_CARD"
	EventPass         EventType = "PASS"
	EventAutoPlay     EventType = "AUTO_PLAY"
	EventHeartbeatAck EventType = "HEARTBEAT_ACK"
	EventSurrender    EventType = "SURRENDER"
	EventSnapshot     EventType = "SNAPSHOT"
	EventGameResult   EventType = "GAME_RESULT"
	EventError        EventType = "ERROR"
)

type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Broadcaster fans typed events out to a room channel or a single
// participant. Delivery is fire-and-forget, at most once.
type Broadcaster interface {
	Broadcast(roomID string, event Event)
	Push(roomID string, userID int64, event Event)
}

// CardsDealtPayload is pushed privately to each seat after a deal.
type CardsDealtPayload struct {
	RoomID        string   `json:"roomId"`
	MatchID       string   `json:"matchId"`
	Role          Role     `json:"role"`
	HandCards     []string `json:"handCards"`
	LandlordCards []string `json:"landlordCards"`
}

// PlayerSnapshot redacts opposing hands down to a count.
type PlayerSnapshot struct {
	UserID      int64    `json:"userId"`
	Role        Role     `json:"role"`
	HandCount   int      `json:"handCount"`
	HandCards   []string `json:"handCards"`
	AutoPlay    bool     `json:"autoPlay"`
	Surrendered bool     `json:"surrendered"`
	ScoreDelta  int      `json:"scoreDelta"`
}

type LastPlaySnapshot struct {
	UserID   int64    `json:"userId"`
	Cards    []string `json:"cards"`
	Pattern  string   `json:"pattern"`
	PlayedAt int64    `json:"playedAt"`
}

// Snapshot is the private full-state view a client polls to resynchronize.
type Snapshot struct {
	RoomID            string                   `json:"roomId"`
	MatchID           string                   `json:"matchId"`
	Phase             Phase                    `json:"phase"`
	LandlordID        int64                    `json:"landlordId"`
	SeatOrder         []int64                  `json:"seatOrder"`
	Players           map[int64]PlayerSnapshot `json:"players"`
	LandlordCards     []string                 `json:"landlordCards"`
	LastPlay          *LastPlaySnapshot        `json:"lastPlay,omitempty"`
	CurrentTurnUserID int64                    `json:"currentTurnUserId"`
	TurnDeadline      int64                    `json:"turnDeadline"`
	Surrendering      bool                     `json:"surrendering"`
}
