package mdio

import (
	"mdiotool/nl"
)

// Arrow/Flexibilis XRS700x switches expose a 32-bit register space
// behind a three-register indirect window: the access address is
// split over IBA1/IBA0, bit 0 of the low half selects the direction
// and IBD carries the data. Only even addresses exist.
const (
	XrsIba0 = 0x10
	XrsIba1 = 0x11
	XrsIbd  = 0x14
)

type Xrs struct {
	Device
	ID uint16
}

func NewXrs(busID string, id uint16) *Xrs {
	x := &Xrs{
		ID: id,
		Device: Device{
			Bus: busID,
			Mem: MemMap{Max: 0xffffffff, Stride: 2, Width: 16},
		},
	}

	x.Device.Driver = x
	return x
}

func (x *Xrs) PushRead(_ *Device, prog *Prog, reg uint32) error {
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(x.ID), nl.Imm(XrsIba1), nl.Imm(uint16(reg>>16))))
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(x.ID), nl.Imm(XrsIba0), nl.Imm(uint16(reg)&0xfffe)))
	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(x.ID), nl.Imm(XrsIbd), nl.Reg(0)))
	return nil
}

func (x *Xrs) PushWrite(_ *Device, prog *Prog, reg uint32, val nl.Arg) error {
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(x.ID), nl.Imm(XrsIbd), val))
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(x.ID), nl.Imm(XrsIba1), nl.Imm(uint16(reg>>16))))
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(x.ID), nl.Imm(XrsIba0), nl.Imm(uint16(reg)&0xfffe|1)))
	return nil
}
