package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullConnection(t *testing.T) {
	tbl := FullConnection()
	assert.True(t, tbl.IsEmpty())
	assert.Equal(t, 1, tbl.Groups())
	assert.True(t, tbl.IsConnected(5, 7))
	assert.Equal(t, 12, tbl.ConnectedCount(3, 4))
	assert.Equal(t, "full", tbl.String())
}

func TestNewGroupedTable(t *testing.T) {
	tbl, err := NewGroupedTable(2, 4, 6)
	require.NoError(t, err)
	assert.False(t, tbl.IsEmpty())
	assert.Equal(t, 2, tbl.Groups())

	out, in := tbl.Dims()
	assert.Equal(t, 6, out)
	assert.Equal(t, 4, in)

	// outputs 0..2 read inputs 0..1, outputs 3..5 read inputs 2..3
	assert.True(t, tbl.IsConnected(0, 0))
	assert.True(t, tbl.IsConnected(2, 1))
	assert.False(t, tbl.IsConnected(2, 2))
	assert.False(t, tbl.IsConnected(3, 1))
	assert.True(t, tbl.IsConnected(5, 3))
	assert.Equal(t, 12, tbl.ConnectedCount(6, 4))
}

func TestNewGroupedTable_SingleGroupIsFull(t *testing.T) {
	tbl, err := NewGroupedTable(1, 3, 5)
	require.NoError(t, err)
	assert.True(t, tbl.IsEmpty())
	assert.True(t, tbl.IsConnected(4, 2))
}

func TestNewGroupedTable_Errors(t *testing.T) {
	tests := []struct {
		name        string
		groups      int
		in, out     int
		indivisible bool
	}{
		{name: "zero groups", groups: 0, in: 4, out: 4},
		{name: "zero channels", groups: 1, in: 0, out: 4},
		{name: "input not divisible", groups: 2, in: 3, out: 96, indivisible: true},
		{name: "output not divisible", groups: 2, in: 4, out: 5, indivisible: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGroupedTable(tt.groups, tt.in, tt.out)
			require.Error(t, err)
			assert.Equal(t, tt.indivisible, errors.Is(err, ErrIndivisibleGroups))
		})
	}
}
