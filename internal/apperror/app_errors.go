package apperror

import "errors"

var (
	ErrSeatUnavailable = errors.New("seat is unavailable")
	ErrNotSeated       = errors.New("user does not occupy that seat")
	ErrWrongPhase      = errors.New("action is not valid in the current phase")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrIllegalMove     = errors.New("illegal move")
	ErrGameOver        = errors.New("game is already over")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUnidentified    = errors.New("session is not identified")
	ErrProfileNotFound = errors.New("profile not found")
	ErrUnknownAction   = errors.New("unknown game action")
	ErrShuttingDown    = errors.New("server is shutting down")
)
