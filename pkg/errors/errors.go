package errors

import "errors"

// Room directory / matchmaking.
var (
	ErrRoomNotFound      = errors.New("room not found or expired")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrAlreadyMatching   = errors.New("matchmaking already pending")
	ErrNotInRoom         = errors.New("not a member of this room")
	ErrRoomNotReady      = errors.New("room is not ready to start")
	ErrStartLockHeld     = errors.New("room start already in progress")
	ErrCreateRateLimited = errors.New("room creation rate limit exceeded")
)

// Match state machine.
var (
	ErrMatchNotFound      = errors.New("match not started or expired")
	ErrWrongPhase         = errors.New("action not allowed in current phase")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrPlayerNotInMatch   = errors.New("player not in this match")
	ErrPlayerSurrendered  = errors.New("player has surrendered")
	ErrInvalidCombination = errors.New("unrecognized card combination")
	ErrCannotBeat         = errors.New("combination does not beat the last play")
	ErrCardsNotInHand     = errors.New("cards are not in hand")
	ErrCannotPassLead     = errors.New("cannot pass on your own lead")
	ErrEmptyAction        = errors.New("action payload is empty")
)

// Transport / auth.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRoomAccessDenied = errors.New("room access denied")
)
