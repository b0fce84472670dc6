package solvers

import "fmt"

// SolveGobang finds the pattern-completion move: a line (row, column
// or diagonal) holding n-1 equal pieces plus one gap, and a matching
// piece outside that line to move into the gap.
func SolveGobang(board [][]int) (Solution, error) {
	n := len(board)
	if n == 0 {
		return Solution{}, fmt.Errorf("empty board")
	}
	for _, row := range board {
		if len(row) != n {
			return Solution{}, fmt.Errorf("board is not square")
		}
	}

	for _, line := range boardLines(n) {
		if len(line) < n {
			continue
		}

		freq := map[int]int{}
		for _, cell := range line {
			freq[board[cell[0]][cell[1]]]++
		}

		// Need n-1 matching non-empty pieces and the gap.
		target := 0
		for num, count := range freq {
			if count == n-1 && num != 0 {
				target = num
			}
		}
		if target == 0 || freq[0] != 1 {
			continue
		}

		var fill [2]int
		found := false
		for _, cell := range line {
			if board[cell[0]][cell[1]] == 0 {
				fill = cell
				found = true
				break
			}
		}
		if !found {
			continue
		}

		if remove, ok := removeCandidate(board, target, line); ok {
			return Solution{
				Kind:       KindGobang,
				Confidence: 1.0,
				Moves:      [2][2]int{remove, fill},
			}, nil
		}
	}

	return Solution{}, fmt.Errorf("no completable line on the board")
}

// boardLines enumerates every full-length row, column and diagonal of
// an n by n board as cell coordinate lists.
func boardLines(n int) [][][2]int {
	var lines [][][2]int

	for r := 0; r < n; r++ {
		line := make([][2]int, 0, n)
		for c := 0; c < n; c++ {
			line = append(line, [2]int{r, c})
		}
		lines = append(lines, line)
	}
	for c := 0; c < n; c++ {
		line := make([][2]int, 0, n)
		for r := 0; r < n; r++ {
			line = append(line, [2]int{r, c})
		}
		lines = append(lines, line)
	}

	// Diagonals from each starting row and column, both directions.
	for start := 0; start < n; start++ {
		var down, up [][2]int
		for i := 0; start+i < n; i++ {
			down = append(down, [2]int{start + i, i})
			up = append(up, [2]int{n - 1 - (start + i), i})
		}
		lines = append(lines, down, up)
	}
	for start := 1; start < n; start++ {
		var down, up [][2]int
		for i := 0; start+i < n; i++ {
			down = append(down, [2]int{i, start + i})
			up = append(up, [2]int{n - 1 - i, start + i})
		}
		lines = append(lines, down, up)
	}

	return lines
}

func removeCandidate(board [][]int, target int, exclude [][2]int) ([2]int, bool) {
	onLine := map[[2]int]bool{}
	for _, cell := range exclude {
		onLine[cell] = true
	}
	for r := range board {
		for c := range board[r] {
			cell := [2]int{r, c}
			if !onLine[cell] && board[r][c] == target {
				return cell, true
			}
		}
	}
	return [2]int{}, false
}
