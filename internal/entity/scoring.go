package entity

import (
	"github.com/stanley-fork/variant-go-server/internal/apperror"
)

// Group is a maximal connected set of same-color stones, flood-filled when
// scoring opens. Alive groups keep their stones for territory purposes; dead
// groups count as empty space for the surrounding color.
type Group struct {
	Color Color `json:"color"`
	Cells []int `json:"cells"`
	Alive bool  `json:"alive"`
}

// Scoring holds the review state between the second pass and the final
// agreement: the group partition, the provisional territory grid and which
// seats have confirmed the current proposal.
type Scoring struct {
	Groups    []*Group
	Territory Board

	confirmed [2]bool
}

// NewScoring flood-fills the board into groups, all initially alive, and
// computes the provisional territory.
func NewScoring(board *Board) *Scoring {
	scoring := &Scoring{}

	var visited [BoardCells]bool
	for idx := range board {
		if board[idx] == ColorEmpty || visited[idx] {
			continue
		}

		cells, _ := board.Group(idx)
		for _, c := range cells {
			visited[c] = true
		}

		scoring.Groups = append(scoring.Groups, &Group{
			Color: board[idx],
			Cells: cells,
			Alive: true,
		})
	}

	scoring.recompute(board)

	return scoring
}

// Toggle flips the alive flag of the group occupying idx and recomputes the
// territory. Toggling invalidates any pending confirmations.
func (that *Scoring) Toggle(board *Board, idx int) error {
	group := that.groupAt(idx)
	if group == nil {
		return apperror.ErrIllegalMove
	}

	group.Alive = !group.Alive
	that.confirmed = [2]bool{}
	that.recompute(board)

	return nil
}

// Confirm records seat's agreement with the current proposal and reports
// whether both seats now agree.
func (that *Scoring) Confirm(seat int) bool {
	that.confirmed[seat] = true
	return that.confirmed[0] && that.confirmed[1]
}

func (that *Scoring) groupAt(idx int) *Group {
	for _, group := range that.Groups {
		for _, c := range group.Cells {
			if c == idx {
				return group
			}
		}
	}

	return nil
}

// recompute assigns every maximal empty region to the single alive color
// bordering it, or leaves it neutral. Cells of dead groups count as empty
// and are awarded together with the region surrounding them.
func (that *Scoring) recompute(board *Board) {
	that.Territory = Board{}

	// Ownership grid with dead stones erased.
	var alive Board
	copy(alive[:], board[:])
	for _, group := range that.Groups {
		if group.Alive {
			continue
		}
		for _, c := range group.Cells {
			alive[c] = ColorEmpty
		}
	}

	var (
		visited [BoardCells]bool
		scratch [4]int
	)

	for start := range alive {
		if alive[start] != ColorEmpty || visited[start] {
			continue
		}

		var (
			region  []int
			borders [3]bool
			queue   = []int{start}
		)
		visited[start] = true

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			region = append(region, idx)

			for _, n := range appendNeighbors(scratch[:0], idx) {
				if alive[n] == ColorEmpty {
					if !visited[n] {
						visited[n] = true
						queue = append(queue, n)
					}
					continue
				}

				borders[alive[n]] = true
			}
		}

		var owner Color
		switch {
		case borders[ColorBlack] && !borders[ColorWhite]:
			owner = ColorBlack
		case borders[ColorWhite] && !borders[ColorBlack]:
			owner = ColorWhite
		default:
			continue
		}

		for _, idx := range region {
			that.Territory[idx] = owner
		}
	}
}

func (that *Scoring) view() *ScoringView {
	view := &ScoringView{
		Groups:    make([]Group, 0, len(that.Groups)),
		Territory: make([]Color, BoardCells),
	}

	for _, group := range that.Groups {
		cells := make([]int, len(group.Cells))
		copy(cells, group.Cells)

		view.Groups = append(view.Groups, Group{
			Color: group.Color,
			Cells: cells,
			Alive: group.Alive,
		})
	}

	copy(view.Territory, that.Territory[:])

	return view
}
