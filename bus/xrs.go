package bus

// Indirect access registers of the XRS700x family. The 32-bit internal
// address is split over two registers; bit 0 of the low word selects
// the transfer direction, and the data register holds the payload.
const (
	XrsIba0 = 0x10
	XrsIba1 = 0x11
	XrsIbd  = 0x14

	xrsIbaWrite = 1
)

// XRS models an Arrow/Flexibilis XRS700x switch: a sparse 32-bit
// register space behind the IBA0/IBA1/IBD indirect window. Only even
// addresses exist; the hardware strides by two.
type XRS struct {
	iba0, iba1, ibd uint16

	mem map[uint32]uint16
}

func NewXRS() *XRS {
	return &XRS{mem: make(map[uint32]uint16)}
}

// Set seeds an internal register.
func (x *XRS) Set(addr uint32, val uint16) {
	x.mem[addr&^uint32(1)] = val
}

// Get reads an internal register directly.
func (x *XRS) Get(addr uint32) uint16 {
	return x.mem[addr&^uint32(1)]
}

func (x *XRS) Read(reg int) int {
	switch reg {
	case XrsIba0:
		return int(x.iba0)
	case XrsIba1:
		return int(x.iba1)
	case XrsIbd:
		return int(x.ibd)
	}

	return 0xffff
}

func (x *XRS) Write(reg, val int) int {
	switch reg {
	case XrsIba0:
		x.iba0 = uint16(val)
		addr := uint32(x.iba1)<<16 | uint32(val)&0xfffe

		if val&xrsIbaWrite != 0 {
			x.mem[addr] = x.ibd
		} else {
			x.ibd = x.mem[addr]
		}

	case XrsIba1:
		x.iba1 = uint16(val)

	case XrsIbd:
		x.ibd = uint16(val)
	}

	return 0
}
