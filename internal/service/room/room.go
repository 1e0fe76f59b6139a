// Package room implements the room directory and FIFO matchmaking on top of
// the shared state store.
package room

import "time"

// Seats per room. The game is strictly three-handed.
const Seats = 3

type Mode string

const (
	ModeRandom Mode = "RANDOM"
	ModeCustom Mode = "CUSTOM"
)

type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusReady   Status = "READY"
	StatusPlaying Status = "PLAYING"
)

type Member struct {
	UserID   int64     `json:"userId"`
	Ready    bool      `json:"ready"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Info is the stored room record. It lives in the state store under a
// sliding TTL; a room nobody touches simply expires.
type Info struct {
	ID        string    `json:"id"`
	Code      string    `json:"code,omitempty"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"status"`
	OwnerID   int64     `json:"ownerId"`
	Members   []*Member `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Info) Member(userID int64) *Member {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (r *Info) MemberIDs() []int64 {
	ids := make([]int64, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func (r *Info) Full() bool {
	return len(r.Members) >= Seats
}

func (r *Info) AllReady() bool {
	if !r.Full() {
		return false
	}
	for _, m := range r.Members {
		if !m.Ready {
			return false
		}
	}
	return true
}
