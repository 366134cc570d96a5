package entity

// Color marks the owner of an intersection. The zero value means empty,
// which matches the wire encoding (0 empty, 1 black, 2 white).
type Color uint8

const (
	ColorEmpty Color = iota
	ColorBlack
	ColorWhite
)

func (that Color) Opponent() Color {
	switch that {
	case ColorBlack:
		return ColorWhite
	case ColorWhite:
		return ColorBlack
	default:
		return ColorEmpty
	}
}

const (
	BoardSize  = 19
	BoardCells = BoardSize * BoardSize
)

// Board is a fixed 19x19 grid, cell index = y*19 + x.
type Board [BoardCells]Color

func CellIndex(x, y int) int {
	return y*BoardSize + x
}

func OnBoard(x, y int) bool {
	return x >= 0 && x < BoardSize && y >= 0 && y < BoardSize
}

// appendNeighbors collects the orthogonal neighbors of a cell into buf.
func appendNeighbors(buf []int, idx int) []int {
	x, y := idx%BoardSize, idx/BoardSize

	if x > 0 {
		buf = append(buf, idx-1)
	}
	if x < BoardSize-1 {
		buf = append(buf, idx+1)
	}
	if y > 0 {
		buf = append(buf, idx-BoardSize)
	}
	if y < BoardSize-1 {
		buf = append(buf, idx+BoardSize)
	}

	return buf
}

// Group returns the maximal connected same-color group containing start and
// its liberty count. Start must hold a stone.
func (that *Board) Group(start int) ([]int, int) {
	color := that[start]
	if color == ColorEmpty {
		return nil, 0
	}

	var (
		cells     []int
		visited   [BoardCells]bool
		liberties [BoardCells]bool
		queue     = []int{start}
		scratch   [4]int
	)

	visited[start] = true

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		cells = append(cells, idx)

		for _, n := range appendNeighbors(scratch[:0], idx) {
			switch {
			case that[n] == ColorEmpty:
				liberties[n] = true
			case that[n] == color && !visited[n]:
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}

	count := 0
	for _, free := range liberties {
		if free {
			count++
		}
	}

	return cells, count
}
