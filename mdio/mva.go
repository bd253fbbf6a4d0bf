package mdio

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"mdiotool/nl"
)

// Marvell Alaska PHYs bank their extended registers behind a page
// register. Accesses save the current page, switch if needed, touch
// the target register and restore, all inside one atomic program.
const (
	MvaPage = 0x16

	MvaPageCopper = 0
	MvaPageFiber  = 1
)

type Mva struct {
	Device
	ID uint16
}

func NewMva(busID string, id uint16) *Mva {
	m := &Mva{
		ID: id,
		Device: Device{
			Bus: busID,
			Mem: MemMap{Max: 0xff001f, Stride: 1, Width: 16},
		},
	}

	m.Device.Driver = m
	return m
}

// pageSwitch saves the current page in register 1 and switches to the
// target page when they differ.
func (m *Mva) pageSwitch(prog *Prog, page uint16) {
	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(m.ID), nl.Imm(MvaPage), nl.Reg(1)))
	prog.Push(nl.NewInsn(nl.OpJeq, nl.Reg(1), nl.Imm(page), nl.Imm(1)))
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(m.ID), nl.Imm(MvaPage), nl.Imm(page)))
}

// pageRestore undoes pageSwitch, writing back the saved page when it
// was changed.
func (m *Mva) pageRestore(prog *Prog, page uint16) {
	prog.Push(nl.NewInsn(nl.OpJeq, nl.Reg(1), nl.Imm(page), nl.Imm(1)))
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(m.ID), nl.Imm(MvaPage), nl.Reg(1)))
}

func (m *Mva) PushRead(_ *Device, prog *Prog, reg uint32) error {
	page := uint16(reg >> 16)

	m.pageSwitch(prog, page)
	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(m.ID), nl.Imm(uint16(reg&0x1f)), nl.Reg(0)))
	m.pageRestore(prog, page)
	return nil
}

func (m *Mva) PushWrite(_ *Device, prog *Prog, reg uint32, val nl.Arg) error {
	page := uint16(reg >> 16)

	m.pageSwitch(prog, page)
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(m.ID), nl.Imm(uint16(reg&0x1f)), val))
	m.pageRestore(prog, page)
	return nil
}

// ParseDeviceReg understands PAGE:REG, where PAGE is a number or one
// of the copper/fiber aliases.
func (m *Mva) ParseDeviceReg(_ *Device, args *Args) (uint32, error) {
	str := args.Pop()

	i := strings.IndexByte(str, ':')
	if str == "" || i < 0 {
		return 0, errors.New("expected PAGE:REG")
	}

	var page uint64
	switch tok := str[:i]; tok {
	case "copper", "cu":
		page = MvaPageCopper
	case "fiber", "fibre":
		page = MvaPageFiber
	default:
		var err error

		page, err = strconv.ParseUint(tok, 0, 16)
		if err != nil {
			return 0, errors.Errorf("%q is not a valid page", tok)
		}
		if page > 255 {
			return 0, errors.Errorf("page %d is out of range [0-255]", page)
		}
	}

	reg, err := strconv.ParseUint(str[i+1:], 0, 16)
	if err != nil {
		return 0, errors.Errorf("%q is not a valid register", str[i+1:])
	}
	if reg > 31 {
		return 0, errors.Errorf("register %d is out of range [0-31]", reg)
	}

	return uint32(page)<<16 | uint32(reg), nil
}

// StatusProg extends the standard status page with the current page
// register.
func (m *Mva) StatusProg() *Prog {
	prog := &Prog{}

	for _, reg := range []uint16{0, 1, 2, 3, MvaPage} {
		prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(m.ID), nl.Imm(reg), nl.Reg(0)))
		prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	}
	return prog
}
