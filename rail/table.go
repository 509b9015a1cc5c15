package rail

// Table geometry. Each rail carries eight blocks of eight cells; the
// handshake addresses one block per channel, so the channel space is
// rails times blocks.
const (
	NumRails      = 8
	BlocksPerRail = 8
	CellsPerBlock = 8
	CellsPerRail  = BlocksPerRail * CellsPerBlock
	NumChannels   = NumRails * BlocksPerRail
)

// DefaultCell is the factory value of cell j on any rail: the cell's
// position within its block, shifted into the direction bits.
func DefaultCell(cell int) uint8 {
	return uint8(cell%CellsPerBlock) * 8
}

// EncodeEntry packs a learned routing entry. Bit 7 marks the cell as
// learned, bit 6 carries the ok flag, bits 5..3 the direction and bits
// 2..0 the next hop.
func EncodeEntry(ok bool, dir, next uint8) uint8 {
	v := 0x80 | (dir&7)<<3 | next&7
	if ok {
		v |= 0x40
	}
	return v
}

// Table is the 8x64 routing cell map exchanged with the device during rail
// normalization.
type Table struct {
	cells [NumRails][CellsPerRail]uint8
}

// NewTable returns a table filled with factory defaults.
func NewTable() *Table {
	t := &Table{}
	for i := range t.cells {
		for j := range t.cells[i] {
			t.cells[i][j] = DefaultCell(j)
		}
	}
	return t
}

// Cell returns cell j of rail i.
func (t *Table) Cell(rail, cell int) uint8 {
	return t.cells[rail][cell]
}

// SetCell stores v into cell j of rail i.
func (t *Table) SetCell(rail, cell int, v uint8) {
	t.cells[rail][cell] = v
}

// IsDefault reports whether cell j of rail i still holds its factory value.
func (t *Table) IsDefault(rail, cell int) bool {
	return t.cells[rail][cell] == DefaultCell(cell)
}

// BlockWords packs one block into the two payload words of the handshake,
// four cells each, most significant byte first.
func (t *Table) BlockWords(rail, block int) (first, second uint32) {
	base := block * CellsPerBlock
	for i := 0; i < 4; i++ {
		first = first<<8 | uint32(t.cells[rail][base+i])
		second = second<<8 | uint32(t.cells[rail][base+4+i])
	}
	return first, second
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := *t
	return &c
}
