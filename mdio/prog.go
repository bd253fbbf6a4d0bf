package mdio

import (
	"mdiotool/nl"
)

// Prog accumulates the instructions of one program. Builders append
// through Push; jump targets are computed with nl.Jump against the
// current length.
type Prog struct {
	insns []nl.Insn
}

func (p *Prog) Push(in nl.Insn) {
	p.insns = append(p.insns, in)
}

// Len is the current instruction count, which is also the pc of the
// next instruction pushed.
func (p *Prog) Len() int {
	return len(p.insns)
}

func (p *Prog) Insns() []nl.Insn {
	return p.insns
}

func (p *Prog) Bytes() []byte {
	return nl.MarshalProg(p.insns)
}
