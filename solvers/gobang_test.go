package solvers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveGobangRow(t *testing.T) {
	board := [][]int{
		{2, 2, 0, 2, 2},
		{0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 2, 0, 0},
		{0, 0, 0, 0, 0},
	}

	sol, err := SolveGobang(board)
	require.NoError(t, err)

	assert.Equal(t, KindGobang, sol.Kind)
	assert.Equal(t, 1.0, sol.Confidence)
	// Fill the gap in the top row.
	assert.Equal(t, [2]int{0, 2}, sol.Moves[1])
	// The removed piece matches and sits off the line.
	remove := sol.Moves[0]
	assert.Equal(t, 2, board[remove[0]][remove[1]])
	assert.NotEqual(t, 0, remove[0])
}

func TestSolveGobangDiagonal(t *testing.T) {
	board := [][]int{
		{3, 0, 0, 0, 0},
		{0, 3, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 3, 0},
		{0, 3, 0, 0, 3},
	}

	sol, err := SolveGobang(board)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 2}, sol.Moves[1])
	assert.Equal(t, [2]int{4, 1}, sol.Moves[0])
}

func TestSolveGobangColumn(t *testing.T) {
	board := [][]int{
		{0, 0, 5, 0},
		{0, 0, 5, 0},
		{0, 0, 0, 0},
		{5, 0, 5, 0},
	}

	sol, err := SolveGobang(board)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 2}, sol.Moves[1])
	assert.Equal(t, [2]int{3, 0}, sol.Moves[0])
}

func TestSolveGobangUnsolvable(t *testing.T) {
	board := [][]int{
		{1, 0, 0},
		{0, 2, 0},
		{0, 0, 3},
	}

	_, err := SolveGobang(board)
	assert.Error(t, err)
}

func TestSolveGobangNoSpareCandidate(t *testing.T) {
	// The row is one short of complete but every matching piece is
	// already on the line.
	board := [][]int{
		{4, 4, 0},
		{0, 1, 0},
		{0, 0, 1},
	}

	_, err := SolveGobang(board)
	assert.Error(t, err)
}

func TestSolveGobangRejectsMalformedBoard(t *testing.T) {
	_, err := SolveGobang(nil)
	assert.Error(t, err)

	_, err = SolveGobang([][]int{{1, 2}, {3}})
	assert.Error(t, err)
}
