package mdio

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"mdiotool/nl"
)

// MemMap describes a device's register space: its last valid address,
// the distance between consecutive registers and their width in bits.
type MemMap struct {
	Max    uint32
	Stride uint8
	Width  uint8
}

// Device is one addressable piece of hardware behind a bus: a plain
// PHY, or a switch reached through paging or an indirect window. The
// driver turns abstract register accesses into program fragments.
type Device struct {
	Bus    string
	Driver Driver
	Mem    MemMap
}

// Driver generates the program fragments realizing one register
// access. PushRead leaves the result in register 0; PushWrite stores
// the val argument, which may reference register 0 for read-modify-
// write sequences.
type Driver interface {
	PushRead(dev *Device, p *Prog, reg uint32) error
	PushWrite(dev *Device, p *Prog, reg uint32, val nl.Arg) error
}

// RegParser lets a driver consume its own register syntax, e.g.
// PAGE:REG or PORT REG.
type RegParser interface {
	ParseDeviceReg(dev *Device, args *Args) (uint32, error)
}

func (d *Device) stride() uint32 {
	if d.Mem.Stride == 0 {
		return 1
	}
	return uint32(d.Mem.Stride)
}

func (d *Device) parseReg(args *Args) (uint32, error) {
	if rp, ok := d.Driver.(RegParser); ok {
		return rp.ParseDeviceReg(d, args)
	}

	str := args.Pop()
	if str == "" {
		return 0, errors.New("expected register")
	}

	r, err := strconv.ParseUint(str, 0, 64)
	if err != nil {
		return 0, errors.Errorf("%q is not a valid register", str)
	}
	if r > uint64(d.Mem.Max) {
		return 0, errors.Errorf("register %d is out of range [0-%d]", r, d.Mem.Max)
	}

	return uint32(r), nil
}

func (d *Device) parseVal(args *Args, allowMask bool) (uint16, uint16, error) {
	str := args.Pop()
	if str == "" {
		return 0, 0, errors.New("expected value")
	}

	return ParseVal(str, allowMask)
}

// RawReadCb prints the single emitted word of a read program.
func RawReadCb(data []uint32, err int32, _ interface{}) int {
	if len(data) != 1 {
		return 1
	}

	fmt.Printf("0x%4.4x\n", data[0])
	return int(err)
}

// RawWriteCb expects a silent program.
func RawWriteCb(data []uint32, err int32, _ interface{}) int {
	if len(data) != 0 {
		return 1
	}

	return int(err)
}

// RawExec performs a single register access: read, plain write, or a
// masked read-modify-write when the value carries a mask.
func RawExec(dev *Device, args *Args) error {
	prog := &Prog{}

	reg, err := dev.parseReg(args)
	if err != nil {
		return err
	}

	var val, mask uint16
	write := args.Peek() != ""
	if write {
		if val, mask, err = dev.parseVal(args, true); err != nil {
			return err
		}
	}

	if args.Peek() != "" {
		return errors.New("unexpected argument")
	}

	cb := RawReadCb
	switch {
	case write && mask != 0:
		cb = RawWriteCb
		if err := dev.Driver.PushRead(dev, prog, reg); err != nil {
			return err
		}
		prog.Push(nl.NewInsn(nl.OpAnd, nl.Reg(0), nl.Imm(mask), nl.Reg(0)))
		prog.Push(nl.NewInsn(nl.OpOr, nl.Reg(0), nl.Imm(val), nl.Reg(0)))
		if err := dev.Driver.PushWrite(dev, prog, reg, nl.Reg(0)); err != nil {
			return err
		}

	case write:
		cb = RawWriteCb
		if err := dev.Driver.PushWrite(dev, prog, reg, nl.Imm(val)); err != nil {
			return err
		}

	default:
		if err := dev.Driver.PushRead(dev, prog, reg); err != nil {
			return err
		}
		prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	}

	if err := Xfer(dev.Bus, prog, cb, nil); err != nil {
		return errors.Wrap(err, "raw operation failed")
	}
	return nil
}

type dumpCtx struct {
	addr   uint32
	stride uint32
	col    int
}

// DumpCb prints emitted words eight to a row, leading with the row's
// register address.
func DumpCb(data []uint32, err int32, arg interface{}) int {
	ctx := arg.(*dumpCtx)

	for _, val := range data {
		if ctx.col == 0 {
			fmt.Printf("0x%4.4x:", ctx.addr)
		}

		fmt.Printf(" %4.4x", val)
		ctx.addr += ctx.stride
		ctx.col++

		if ctx.col == 8 {
			fmt.Println()
			ctx.col = 0
		}
	}

	if err != 0 && ctx.col != 0 {
		fmt.Println()
		ctx.col = 0
	}
	return int(err)
}

// dumpSpan is the default register count of a dump without an explicit
// range.
const dumpSpan = 64

// DumpExec reads a register range with an unrolled sequence of
// read/emit pairs. Register arguments cannot be computed at run time,
// so the range is fully expanded at build time.
func DumpExec(dev *Device, args *Args) error {
	var start, end uint32

	stride := dev.stride()

	if _, ok := dev.Driver.(RegParser); ok {
		// Driver-specific register syntax: an optional start
		// register, then half the default span.
		if args.Peek() != "" {
			r, err := dev.parseReg(args)
			if err != nil {
				return err
			}
			start = r
		}
		end = start + (dumpSpan/2-1)*stride
	} else if str := args.Pop(); str != "" {
		s, e, err := ParseRegRange(str, dev.Mem.Max > 31)
		if err != nil {
			return err
		}
		start, end = uint32(s), uint32(e)
	} else {
		end = start + (dumpSpan-1)*stride
	}

	if dev.Mem.Max > 0 && end > dev.Mem.Max {
		end = dev.Mem.Max
	}

	if args.Peek() != "" {
		return errors.New("unexpected argument")
	}

	prog := &Prog{}
	for r := start; r <= end && prog.Len() <= nl.ProgInsnMax-2; r += stride {
		if err := dev.Driver.PushRead(dev, prog, r); err != nil {
			return err
		}
		prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	}

	ctx := &dumpCtx{addr: start, stride: stride}
	if err := Xfer(dev.Bus, prog, DumpCb, ctx); err != nil {
		return errors.Wrap(err, "dump operation failed")
	}

	if ctx.col != 0 {
		fmt.Println()
	}
	return nil
}

const benchReads = 1000

type benchCtx struct {
	mismatches []uint32
}

func benchCb(data []uint32, err int32, arg interface{}) int {
	ctx := arg.(*benchCtx)

	ctx.mismatches = append(ctx.mismatches, data...)
	return int(err)
}

// BenchExec times a burst of reads against one register. The reference
// value is parked in register 7, the loop counter in register 6; only
// reads disagreeing with the reference are emitted, so a clean run
// returns no data at all.
func BenchExec(dev *Device, args *Args) error {
	prog := &Prog{}

	reg, err := dev.parseReg(args)
	if err != nil {
		return err
	}

	if args.Peek() != "" {
		val, _, err := dev.parseVal(args, false)
		if err != nil {
			return err
		}

		prog.Push(nl.NewInsn(nl.OpAdd, nl.Imm(val), nl.Imm(0), nl.Reg(7)))
		if err := dev.Driver.PushWrite(dev, prog, reg, nl.Reg(7)); err != nil {
			return err
		}
	} else {
		if err := dev.Driver.PushRead(dev, prog, reg); err != nil {
			return err
		}
		prog.Push(nl.NewInsn(nl.OpAdd, nl.Reg(0), nl.Imm(0), nl.Reg(7)))
	}

	if args.Peek() != "" {
		return errors.New("unexpected argument")
	}

	prog.Push(nl.NewInsn(nl.OpAdd, nl.Imm(0), nl.Imm(0), nl.Reg(6)))

	loop := prog.Len()
	if err := dev.Driver.PushRead(dev, prog, reg); err != nil {
		return err
	}
	prog.Push(nl.NewInsn(nl.OpJeq, nl.Reg(0), nl.Reg(7), nl.Imm(1)))
	prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	prog.Push(nl.NewInsn(nl.OpAdd, nl.Reg(6), nl.Imm(1), nl.Reg(6)))
	prog.Push(nl.NewInsn(nl.OpJne, nl.Reg(6), nl.Imm(benchReads), nl.Jump(prog.Len(), loop)))

	ctx := &benchCtx{}
	start := time.Now()

	if err := Xfer(dev.Bus, prog, benchCb, ctx); err != nil {
		return errors.Wrap(err, "bench operation failed")
	}

	elapsed := time.Since(start)

	if len(ctx.mismatches) > 0 {
		fmt.Printf("Read back %d incorrect values:\n", len(ctx.mismatches))
		for _, val := range ctx.mismatches {
			fmt.Printf("\t0x%4.4x\n", val)
		}
	}

	fmt.Printf("Performed %d reads in %v\n", benchReads, elapsed.Round(time.Microsecond))

	if len(ctx.mismatches) > 0 {
		return errors.New("read back unexpected values")
	}
	return nil
}

// CommonExec dispatches the operations shared by all device types.
// With no recognized operation word, raw access is the default.
func CommonExec(dev *Device, args *Args) error {
	switch args.Peek() {
	case "raw":
		args.Pop()
		return RawExec(dev, args)
	case "dump":
		args.Pop()
		return DumpExec(dev, args)
	case "bench":
		args.Pop()
		return BenchExec(dev, args)
	}

	return RawExec(dev, args)
}
