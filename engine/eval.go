package engine

import (
	"time"

	"golang.org/x/sys/unix"

	"mdiotool/bus"
	"mdiotool/nl"
)

// argRI resolves a register-or-immediate argument against the register
// file. The validator has already pinned the mode; the default arm is
// unreachable and resolves to zero.
func argRI(a nl.Arg, regs *[8]uint16) uint16 {
	switch a.Mode() {
	case nl.ArgImm:
		return a.Value()
	case nl.ArgReg:
		return regs[a.Index()]
	}

	return 0
}

// eval runs a validated program against one bus adapter. The adapter's
// lock is held for the entire run and released on every exit path; the
// deadline is checked at each instruction boundary, never mid-I/O.
//
// The return value is the wire status: zero on a clean run, a negative
// errno otherwise. Everything emitted before an abort has already been
// handed to the reply builder and stays in the reply.
func eval(mii bus.Mii, prog []nl.Insn, timeout time.Duration, rep *reply) int32 {
	var regs [8]uint16

	deadline := time.Now().Add(timeout)

	mii.Lock()
	defer mii.Unlock()

	for pc := 0; pc < len(prog); pc++ {
		if time.Now().After(deadline) {
			return -int32(unix.ETIMEDOUT)
		}

		in := prog[pc]

		switch in.Op {
		case nl.OpRead:
			dev, reg := bus.Resolve(argRI(in.Arg0, &regs), argRI(in.Arg1, &regs))

			ret := mii.Read(dev, reg)
			if ret < 0 {
				return int32(ret)
			}
			regs[in.Arg2.Index()] = uint16(ret)

		case nl.OpWrite:
			dev, reg := bus.Resolve(argRI(in.Arg0, &regs), argRI(in.Arg1, &regs))

			ret := mii.Write(dev, reg, int(argRI(in.Arg2, &regs)))
			if ret < 0 {
				return int32(ret)
			}

		case nl.OpAnd:
			regs[in.Arg2.Index()] = argRI(in.Arg0, &regs) & argRI(in.Arg1, &regs)

		case nl.OpOr:
			regs[in.Arg2.Index()] = argRI(in.Arg0, &regs) | argRI(in.Arg1, &regs)

		case nl.OpAdd:
			regs[in.Arg2.Index()] = argRI(in.Arg0, &regs) + argRI(in.Arg1, &regs)

		case nl.OpJeq:
			if argRI(in.Arg0, &regs) == argRI(in.Arg1, &regs) {
				pc += in.Arg2.Disp()
				if pc < -1 {
					return -int32(unix.EINVAL)
				}
			}

		case nl.OpJne:
			if argRI(in.Arg0, &regs) != argRI(in.Arg1, &regs) {
				pc += in.Arg2.Disp()
				if pc < -1 {
					return -int32(unix.EINVAL)
				}
			}

		case nl.OpEmit:
			if ret := rep.emit(uint32(argRI(in.Arg0, &regs))); ret < 0 {
				return ret
			}

		default:
			// unreachable after validation
			return -int32(unix.EINVAL)
		}
	}

	return 0
}
