package entity

import (
	"github.com/stanley-fork/variant-go-server/internal/apperror"
)

type Phase string

const (
	PhasePlay    Phase = "play"
	PhaseScoring Phase = "scoring"
	PhaseDone    Phase = "done"
)

// Seat is a color slot optionally bound to a user. UserID 0 means the seat
// is open.
type Seat struct {
	UserID uint64 `json:"user_id,omitempty"`
	Color  Color  `json:"color"`
}

type ActionKind string

const (
	ActionPlace   ActionKind = "place"
	ActionPass    ActionKind = "pass"
	ActionCancel  ActionKind = "cancel"
	ActionConfirm ActionKind = "confirm"

	ActionTakeSeat  ActionKind = "take_seat"
	ActionLeaveSeat ActionKind = "leave_seat"
)

type Action struct {
	Kind ActionKind `json:"kind"`
	X    int        `json:"x,omitempty"`
	Y    int        `json:"y,omitempty"`
	Seat int        `json:"seat,omitempty"`
}

// Game is the authoritative state machine of a single game: board, seats,
// turn, phase and the scoring snapshot once both players have passed. It is
// purely synchronous; the owning room serializes all access.
type Game struct {
	Board   Board
	Seats   [2]Seat
	Turn    Color
	Phase   Phase
	Passes  int
	Scoring *Scoring
}

// NewGame creates a standard 19x19 game: empty board, open seats, Black to
// move.
func NewGame() *Game {
	return &Game{
		Seats: [2]Seat{
			{Color: ColorBlack},
			{Color: ColorWhite},
		},
		Turn:  ColorBlack,
		Phase: PhasePlay,
	}
}

// TakeSeat binds userID to the seat. A user may hold at most one seat per
// game and a seat binds at most one user.
func (that *Game) TakeSeat(userID uint64, seat int) error {
	if seat < 0 || seat >= len(that.Seats) {
		return apperror.ErrSeatUnavailable
	}

	if that.Seats[seat].UserID != 0 {
		return apperror.ErrSeatUnavailable
	}

	if _, ok := that.seatOf(userID); ok {
		return apperror.ErrSeatUnavailable
	}

	that.Seats[seat].UserID = userID

	return nil
}

// LeaveSeat unbinds userID from the seat. The seat stays open for re-claim,
// game progress is kept.
func (that *Game) LeaveSeat(userID uint64, seat int) error {
	if seat < 0 || seat >= len(that.Seats) {
		return apperror.ErrNotSeated
	}

	if userID == 0 || that.Seats[seat].UserID != userID {
		return apperror.ErrNotSeated
	}

	that.Seats[seat].UserID = 0

	return nil
}

func (that *Game) seatOf(userID uint64) (int, bool) {
	if userID == 0 {
		return 0, false
	}

	for i := range that.Seats {
		if that.Seats[i].UserID == userID {
			return i, true
		}
	}

	return 0, false
}

// Apply runs a single action against the state machine. It either mutates
// the game and returns nil, or leaves the game untouched and returns one of
// the apperror sentinels.
func (that *Game) Apply(userID uint64, action Action) error {
	switch that.Phase {
	case PhaseDone:
		return apperror.ErrGameOver
	case PhasePlay:
		return that.applyPlay(userID, action)
	case PhaseScoring:
		return that.applyScoring(userID, action)
	default:
		return apperror.ErrWrongPhase
	}
}

func (that *Game) applyPlay(userID uint64, action Action) error {
	switch action.Kind {
	case ActionPlace, ActionPass:
	case ActionCancel, ActionConfirm:
		return apperror.ErrWrongPhase
	default:
		return apperror.ErrUnknownAction
	}

	seat, ok := that.seatOf(userID)
	if !ok || that.Seats[seat].Color != that.Turn {
		return apperror.ErrNotYourTurn
	}

	if action.Kind == ActionPass {
		that.Passes++
		that.Turn = that.Turn.Opponent()

		if that.Passes >= 2 {
			that.Phase = PhaseScoring
			that.Scoring = NewScoring(&that.Board)
		}

		return nil
	}

	return that.place(action.X, action.Y)
}

func (that *Game) place(x, y int) error {
	if !OnBoard(x, y) {
		return apperror.ErrIllegalMove
	}

	idx := CellIndex(x, y)
	if that.Board[idx] != ColorEmpty {
		return apperror.ErrIllegalMove
	}

	color := that.Turn
	that.Board[idx] = color

	// Capture every adjacent enemy group left without liberties.
	var scratch [4]int
	for _, n := range appendNeighbors(scratch[:0], idx) {
		if that.Board[n] != color.Opponent() {
			continue
		}

		cells, liberties := that.Board.Group(n)
		if liberties > 0 {
			continue
		}

		for _, c := range cells {
			that.Board[c] = ColorEmpty
		}
	}

	// Suicide check. A capture above would have freed a liberty, so a
	// zero-liberty placing group means nothing was captured.
	if _, liberties := that.Board.Group(idx); liberties == 0 {
		that.Board[idx] = ColorEmpty
		return apperror.ErrIllegalMove
	}

	that.Passes = 0
	that.Turn = that.Turn.Opponent()

	return nil
}

func (that *Game) applyScoring(userID uint64, action Action) error {
	seat, seated := that.seatOf(userID)
	if !seated {
		return apperror.ErrNotYourTurn
	}

	switch action.Kind {
	case ActionPlace:
		if !OnBoard(action.X, action.Y) {
			return apperror.ErrIllegalMove
		}

		if err := that.Scoring.Toggle(&that.Board, CellIndex(action.X, action.Y)); err != nil {
			return err
		}

		return nil
	case ActionCancel:
		that.Phase = PhasePlay
		that.Passes = 0
		that.Scoring = nil

		return nil
	case ActionConfirm:
		if that.Scoring.Confirm(seat) {
			that.Phase = PhaseDone
		}

		return nil
	case ActionPass:
		return apperror.ErrWrongPhase
	default:
		return apperror.ErrUnknownAction
	}
}

// View produces an immutable snapshot of the game safe to serialize to any
// number of observers.
func (that *Game) View() *GameView {
	view := &GameView{
		Seats: that.Seats,
		Turn:  that.Turn,
		Board: make([]Color, BoardCells),
		Phase: that.Phase,
	}
	copy(view.Board, that.Board[:])

	if that.Scoring != nil {
		view.Scoring = that.Scoring.view()
	}

	return view
}
