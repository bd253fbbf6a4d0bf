package mdio

import (
	"mdiotool/nl"
)

// Phy drives a standard PHY: registers are accessed directly, with
// Clause 22 or Clause 45 addressing depending on the device id.
type Phy struct {
	Device
	ID uint16
}

func NewPhy(busID string, id uint16) *Phy {
	p := &Phy{
		ID: id,
		Device: Device{
			Bus: busID,
			Mem: MemMap{Max: 31, Stride: 1, Width: 16},
		},
	}

	if nl.IsC45(id) {
		p.Mem.Max = 0xffff
	}

	p.Device.Driver = p
	return p
}

func (p *Phy) PushRead(_ *Device, prog *Prog, reg uint32) error {
	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(p.ID), nl.Imm(uint16(reg)), nl.Reg(0)))
	return nil
}

func (p *Phy) PushWrite(_ *Device, prog *Prog, reg uint32, val nl.Arg) error {
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(p.ID), nl.Imm(uint16(reg)), val))
	return nil
}

// StatusProg builds the standard status page program: BMCR, BMSR and
// the two id words.
func (p *Phy) StatusProg() *Prog {
	prog := &Prog{}

	for reg := uint16(0); reg <= 3; reg++ {
		prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(p.ID), nl.Imm(reg), nl.Reg(0)))
		prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	}
	return prog
}
