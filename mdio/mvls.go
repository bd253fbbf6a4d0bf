package mdio

import (
	"strconv"

	"github.com/pkg/errors"

	"mdiotool/nl"
)

// Marvell LinkStreet switches strapped to a nonzero address expose
// their internal registers through a two-register indirect window: a
// command register with a busy flag and a data register. With address
// zero the switch claims the whole underlying bus and every internal
// port is a directly addressable device.
const (
	MvlsCmd  = 0
	MvlsData = 1

	MvlsCmdBusy = 1 << 15
	MvlsCmdC22  = 1 << 12

	MvlsG1 = 0x1b
	MvlsG2 = 0x1c
)

type Mvls struct {
	Device
	ID uint16
}

func NewMvls(busID string, id uint16) *Mvls {
	m := &Mvls{
		ID: id,
		Device: Device{
			Bus: busID,
			Mem: MemMap{Max: 0x1f001f, Stride: 1, Width: 16},
		},
	}

	m.Device.Driver = m
	return m
}

func mvlsMultiCmd(port, reg uint16, write bool) uint16 {
	op := uint16(2)
	if write {
		op = 1
	}

	return MvlsCmdBusy | MvlsCmdC22 | op<<10 | port<<5 | reg
}

// waitCmd spins until the busy flag drops, re-reading the command
// register through a backwards conditional jump.
func (m *Mvls) waitCmd(prog *Prog) {
	retry := prog.Len()

	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(m.ID), nl.Imm(MvlsCmd), nl.Reg(0)))
	prog.Push(nl.NewInsn(nl.OpAnd, nl.Reg(0), nl.Imm(MvlsCmdBusy), nl.Reg(0)))
	prog.Push(nl.NewInsn(nl.OpJeq, nl.Reg(0), nl.Imm(MvlsCmdBusy), nl.Jump(prog.Len(), retry)))
}

func (m *Mvls) PushRead(_ *Device, prog *Prog, reg uint32) error {
	port, r := uint16(reg>>16), uint16(reg&0xffff)

	if m.ID == 0 {
		// Single-chip addressing, the switch uses the entire
		// underlying bus.
		prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(port), nl.Imm(r), nl.Reg(0)))
		return nil
	}

	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(m.ID), nl.Imm(MvlsCmd),
		nl.Imm(mvlsMultiCmd(port, r, false))))
	m.waitCmd(prog)
	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(m.ID), nl.Imm(MvlsData), nl.Reg(0)))
	return nil
}

func (m *Mvls) PushWrite(_ *Device, prog *Prog, reg uint32, val nl.Arg) error {
	port, r := uint16(reg>>16), uint16(reg&0xffff)

	if m.ID == 0 {
		prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(port), nl.Imm(r), val))
		return nil
	}

	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(m.ID), nl.Imm(MvlsData), val))
	prog.Push(nl.NewInsn(nl.OpWrite, nl.Imm(m.ID), nl.Imm(MvlsCmd),
		nl.Imm(mvlsMultiCmd(port, r, true))))
	m.waitCmd(prog)
	return nil
}

// ParseDeviceReg consumes PORT REG, where PORT also accepts the
// global1/global2 aliases.
func (m *Mvls) ParseDeviceReg(_ *Device, args *Args) (uint32, error) {
	str := args.Pop()
	if str == "" {
		return 0, errors.New("expected port")
	}

	var port uint64
	switch str {
	case "global1", "g1":
		port = MvlsG1
	case "global2", "g2":
		port = MvlsG2
	default:
		var err error

		port, err = strconv.ParseUint(str, 0, 16)
		if err != nil {
			return 0, errors.Errorf("%q is not a valid port", str)
		}
		if port > 31 {
			return 0, errors.Errorf("port %d is out of range [0-31]", port)
		}
	}

	str = args.Pop()
	if str == "" {
		return 0, errors.New("expected register")
	}

	reg, err := strconv.ParseUint(str, 0, 16)
	if err != nil {
		return 0, errors.Errorf("%q is not a valid register", str)
	}
	if reg > 31 {
		return 0, errors.Errorf("register %d is out of range [0-31]", reg)
	}

	return uint32(port)<<16 | uint32(reg), nil
}
