package nl

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

/*
	Wire ABI of the "mdio" generic netlink family, version 1.

	A program is an array of 64-bit instructions, packed little-endian:

			op:8 | reserved:2 | arg0:18 | arg1:18 | arg2:18

	Each 18-bit argument is a (mode, value) pair: the mode sits in the
	upper 2 bits, a 16-bit value below it. REG arguments select one of
	the interpreter's 8 registers using the low 3 bits of the value;
	the remaining value bits are ignored.

	Both ends consume the same packed word, so the layout is serialized
	explicitly here rather than left to in-memory struct layout. A
	little-endian pair of peers is the only supported configuration.
*/

type Op uint8

const (
	OpUnspec Op = iota
	OpRead      // read  dev(RI), reg(RI), dst(R)
	OpWrite     // write dev(RI), reg(RI), src(RI)
	OpAnd       // and   a(RI),   b(RI),   dst(R)
	OpOr        // or    a(RI),   b(RI),   dst(R)
	OpAdd       // add   a(RI),   b(RI),   dst(R)
	OpJeq       // jeq   a(RI),   b(RI),   disp(I)
	OpJne       // jne   a(RI),   b(RI),   disp(I)
	OpEmit      // emit  src(RI)

	OpMax = OpEmit
)

var opNames = map[Op]string{
	OpUnspec: "unspec",
	OpRead:   "read",
	OpWrite:  "write",
	OpAnd:    "and",
	OpOr:     "or",
	OpAdd:    "add",
	OpJeq:    "jeq",
	OpJne:    "jne",
	OpEmit:   "emit",
}

func (op Op) String() string {
	name, ok := opNames[op]
	if !ok {
		return "?unknown?"
	}
	return name
}

type ArgMode uint8

const (
	ArgNone ArgMode = iota
	ArgReg
	ArgImm
	ArgReserved
)

// Arg is one 18-bit instruction argument: mode in bits 17:16, value in
// bits 15:0.
type Arg uint32

const argMask = 1<<18 - 1

func Reg(r uint8) Arg {
	return Arg(uint32(ArgReg)<<16 | uint32(r)&0xffff)
}

func Imm(v uint16) Arg {
	return Arg(uint32(ArgImm)<<16 | uint32(v))
}

// Jump encodes a branch displacement from the instruction at pc "from"
// to the instruction at pc "to". The interpreter applies displacements
// after advancing past the branch, hence the extra -1.
func Jump(from, to int) Arg {
	return Imm(uint16(int16(to - from - 1)))
}

func (a Arg) Mode() ArgMode {
	return ArgMode(a >> 16 & 0x3)
}

func (a Arg) Value() uint16 {
	return uint16(a)
}

// Index returns the register selected by a REG argument.
func (a Arg) Index() int {
	return int(a & 0x7)
}

// Disp returns the value reinterpreted as a signed branch displacement.
func (a Arg) Disp() int {
	return int(int16(a.Value()))
}

type Insn struct {
	Op   Op
	Arg0 Arg
	Arg1 Arg
	Arg2 Arg
}

const InsnSize = 8

func NewInsn(op Op, arg0, arg1, arg2 Arg) Insn {
	return Insn{Op: op, Arg0: arg0, Arg1: arg1, Arg2: arg2}
}

func (in Insn) pack() uint64 {
	return uint64(in.Op) |
		uint64(in.Arg0&argMask)<<10 |
		uint64(in.Arg1&argMask)<<28 |
		uint64(in.Arg2&argMask)<<46
}

// Put serializes the instruction into the first 8 bytes of b.
func (in Insn) Put(b []byte) {
	binary.LittleEndian.PutUint64(b, in.pack())
}

// DecodeInsn parses one packed instruction from the first 8 bytes of b.
func DecodeInsn(b []byte) Insn {
	u := binary.LittleEndian.Uint64(b)

	return Insn{
		Op:   Op(u & 0xff),
		Arg0: Arg(u >> 10 & argMask),
		Arg1: Arg(u >> 28 & argMask),
		Arg2: Arg(u >> 46 & argMask),
	}
}

func MarshalProg(insns []Insn) []byte {
	b := make([]byte, len(insns)*InsnSize)
	for i, in := range insns {
		in.Put(b[i*InsnSize:])
	}
	return b
}

func UnmarshalProg(b []byte) ([]Insn, error) {
	if len(b) == 0 || len(b)%InsnSize != 0 {
		return nil, errors.Errorf("program length %d is not a positive multiple of %d",
			len(b), InsnSize)
	}

	insns := make([]Insn, len(b)/InsnSize)
	for i := range insns {
		insns[i] = DecodeInsn(b[i*InsnSize:])
	}
	return insns, nil
}
