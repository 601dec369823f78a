package target

import (
	"errors"
	"fmt"
)

// ErrIndivisibleGroups is returned when channel counts cannot be split into
// equal group blocks.
var ErrIndivisibleGroups = errors.New("channels not divisible by groups")

// ConnectionTable records which (output channel, input channel) pairs of a
// convolution are connected. The zero value connects everything.
type ConnectionTable struct {
	rows   int // output channels
	cols   int // input channels
	groups int
}

// FullConnection returns a table connecting every output to every input.
func FullConnection() ConnectionTable { return ConnectionTable{} }

// NewGroupedTable partitions in and out channels into groups contiguous
// equal blocks; output block g reads only input block g.
func NewGroupedTable(groups, in, out int) (ConnectionTable, error) {
	if groups < 1 {
		return ConnectionTable{}, fmt.Errorf("groups must be >= 1, got %d", groups)
	}
	if in < 1 || out < 1 {
		return ConnectionTable{}, fmt.Errorf("channel counts must be >= 1, got in=%d out=%d", in, out)
	}
	if in%groups != 0 {
		return ConnectionTable{}, fmt.Errorf("%w: input channels %d, groups %d", ErrIndivisibleGroups, in, groups)
	}
	if out%groups != 0 {
		return ConnectionTable{}, fmt.Errorf("%w: output channels %d, groups %d", ErrIndivisibleGroups, out, groups)
	}
	return ConnectionTable{rows: out, cols: in, groups: groups}, nil
}

// IsEmpty reports whether the table is the fully connected zero value.
func (t ConnectionTable) IsEmpty() bool { return t.groups <= 1 }

// Groups returns the number of channel blocks, 1 for a full table.
func (t ConnectionTable) Groups() int {
	if t.groups < 1 {
		return 1
	}
	return t.groups
}

// Dims returns the (output, input) channel counts the table was built for.
// A zero-value table reports (0, 0).
func (t ConnectionTable) Dims() (int, int) { return t.rows, t.cols }

// IsConnected reports whether output channel o reads input channel i.
func (t ConnectionTable) IsConnected(o, i int) bool {
	if t.IsEmpty() {
		return true
	}
	return o/(t.rows/t.groups) == i/(t.cols/t.groups)
}

// ConnectedCount returns how many (output, input) pairs are connected for
// a layer with the given channel counts.
func (t ConnectionTable) ConnectedCount(out, in int) int {
	return out * in / t.Groups()
}

func (t ConnectionTable) String() string {
	if t.IsEmpty() {
		return "full"
	}
	return fmt.Sprintf("grouped(%d, out=%d, in=%d)", t.groups, t.rows, t.cols)
}
