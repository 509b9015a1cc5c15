package rail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTableDefaults(t *testing.T) {
	table := NewTable()

	for rail := 0; rail < NumRails; rail++ {
		for cell := 0; cell < CellsPerRail; cell++ {
			assert.Equal(t, uint8(cell%CellsPerBlock)*8, table.Cell(rail, cell))
			assert.True(t, table.IsDefault(rail, cell))
		}
	}
}

func TestEncodeEntry(t *testing.T) {
	tests := []struct {
		description string
		ok          bool
		dir         uint8
		next        uint8
		want        uint8
	}{
		{description: "ok route", ok: true, dir: 2, next: 5, want: 0xD5},
		{description: "failed route", ok: false, dir: 7, next: 7, want: 0xBF},
		{description: "zero route", ok: false, dir: 0, next: 0, want: 0x80},
		{description: "fields masked to width", ok: true, dir: 10, next: 9, want: 0xD1},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			assert.Equal(t, test.want, EncodeEntry(test.ok, test.dir, test.next))
		})
	}
}

func TestTableBlockWords(t *testing.T) {
	table := NewTable()

	first, second := table.BlockWords(3, 5)
	assert.Equal(t, uint32(0x00081018), first)
	assert.Equal(t, uint32(0x20283038), second)

	for i, v := range []uint8{1, 2, 3, 4, 5, 6, 7, 8} {
		table.SetCell(1, 2*CellsPerBlock+i, v)
	}
	first, second = table.BlockWords(1, 2)
	assert.Equal(t, uint32(0x01020304), first)
	assert.Equal(t, uint32(0x05060708), second)
}

func TestTableClone(t *testing.T) {
	table := NewTable()
	table.SetCell(4, 33, 0xAB)

	clone := table.Clone()
	assert.Equal(t, uint8(0xAB), clone.Cell(4, 33))

	clone.SetCell(4, 33, 0xCD)
	assert.Equal(t, uint8(0xAB), table.Cell(4, 33), "clones must not share cells")
}
