package model

import (
	"time"

	"gorm.io/datatypes"
)

// GameMatch is the durable record of one finished match.
type GameMatch struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	RoomID         string `gorm:"size:64;index"`
	LandlordUserID int64
	WinnerSide     string // LANDLORD/FARMER
	StartTime      time.Time
	EndTime        time.Time
	Remark         datatypes.JSON `gorm:"type:jsonb"` // multiplier/spring/scoreUnit
	CreatedAt      time.Time
}

type GameMatchPlayer struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	MatchID     int64 `gorm:"index"`
	UserID      int64 `gorm:"index"`
	Seat        int
	Role        string // LANDLORD/FARMER
	Result      string // WIN/LOSE
	ScoreDelta  int
	Bombs       int
	LeftCards   int
	DurationSec int
	Escaped     bool
	CreatedAt   time.Time
}

type GameMove struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	MatchID   int64 `gorm:"index"`
	StepNo    int
	PlayerID  int64
	Seat      int
	Pattern   string
	Cards     datatypes.JSON `gorm:"type:jsonb"`
	BeatsPrev bool
	CreatedAt time.Time
}

// UserStats holds cumulative per-user results, updated at every settlement.
type UserStats struct {
	UserID        int64 `gorm:"primaryKey"`
	TotalGames    int
	WinCount      int
	LoseCount     int
	Score         int `gorm:"default:1000"`
	Level         int `gorm:"default:1"`
	CurrentStreak int
	MaxStreak     int
	UpdatedAt     time.Time
}
