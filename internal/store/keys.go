package store

import (
	"fmt"
	"time"
)

// Key prefixes for everything the game keeps in the state store.
const (
	MatchPoolKey     = "game:match:pool"
	MatchLockKey     = "game:match:lock"
	matchTicketPfx   = "game:match:ticket:"
	roomInfoPfx      = "game:room:info:"
	roomCodePfx      = "game:room:code:"
	roomUserPfx      = "game:room:user:"
	roomStartLockPfx = "game:room:start:lock:"
	roomCreateLimPfx = "game:room:create:limit:"
	matchStatePfx    = "game:match:state:"
	heartbeatPfx     = "game:room:heartbeat:"
)

const (
	MatchWaitTTL      = 300 * time.Second
	RoomTTL           = 600 * time.Second
	MatchLockTTL      = 5 * time.Second
	StartLockTTL      = 10 * time.Second
	CreateLimitWindow = 60 * time.Second
	CreateLimitMax    = 5
)

func MatchTicketKey(userID int64) string {
	return fmt.Sprintf("%s%d", matchTicketPfx, userID)
}

func RoomInfoKey(roomID string) string {
	return roomInfoPfx + roomID
}

func RoomCodeKey(code string) string {
	return roomCodePfx + code
}

func RoomUserKey(userID int64) string {
	return fmt.Sprintf("%s%d", roomUserPfx, userID)
}

func RoomStartLockKey(roomID string) string {
	return roomStartLockPfx + roomID
}

func RoomCreateLimitKey(userID int64) string {
	return fmt.Sprintf("%s%d", roomCreateLimPfx, userID)
}

func MatchStateKey(roomID string) string {
	return matchStatePfx + roomID
}

func MatchStatePattern() string {
	return matchStatePfx + "*"
}

func HeartbeatKey(roomID string, userID int64) string {
	return fmt.Sprintf("%s%s:%d", heartbeatPfx, roomID, userID)
}

func HeartbeatPattern() string {
	return heartbeatPfx + "*"
}

func RoomUserPattern() string {
	return roomUserPfx + "*"
}
