package engine

import (
	"fmt"

	"mdiotool/nl"
)

// RejectError is a validation failure scoped to the offending request
// attribute. The message travels back to the submitter in the
// extended-ack of the error reply; the status is always EINVAL.
type RejectError struct {
	Msg string
}

func (e *RejectError) Error() string {
	return e.Msg
}

func reject(msg string) error {
	return &RejectError{Msg: msg}
}

type proto struct {
	arg0, arg1, arg2 uint8
}

func bit(m nl.ArgMode) uint8 {
	return 1 << m
}

var ri = bit(nl.ArgReg) | bit(nl.ArgImm)

// Allowed argument modes per opcode. The table is exhaustive over the
// defined opcode set; anything outside it is rejected outright.
var protos = map[nl.Op]proto{
	nl.OpRead:  {arg0: ri, arg1: ri, arg2: bit(nl.ArgReg)},
	nl.OpWrite: {arg0: ri, arg1: ri, arg2: ri},
	nl.OpAnd:   {arg0: ri, arg1: ri, arg2: bit(nl.ArgReg)},
	nl.OpOr:    {arg0: ri, arg1: ri, arg2: bit(nl.ArgReg)},
	nl.OpAdd:   {arg0: ri, arg1: ri, arg2: bit(nl.ArgReg)},
	nl.OpJeq:   {arg0: ri, arg1: ri, arg2: bit(nl.ArgImm)},
	nl.OpJne:   {arg0: ri, arg1: ri, arg2: bit(nl.ArgImm)},
	nl.OpEmit:  {arg0: ri, arg1: bit(nl.ArgNone), arg2: bit(nl.ArgNone)},
}

func validateInsn(in nl.Insn) error {
	p, ok := protos[in.Op]
	if !ok {
		return reject("Illegal instruction")
	}

	for i, a := range [3]nl.Arg{in.Arg0, in.Arg1, in.Arg2} {
		var mask uint8

		switch i {
		case 0:
			mask = p.arg0
		case 1:
			mask = p.arg1
		case 2:
			mask = p.arg2
		}

		if bit(a.Mode())&mask == 0 {
			return reject(fmt.Sprintf("Argument %d invalid", i))
		}
	}

	return nil
}

// validateProg checks a PROG attribute payload against the instruction
// contract. A single bad instruction rejects the whole program. Jump
// targets are deliberately not checked; termination is the runtime
// deadline's problem.
func validateProg(b []byte) ([]nl.Insn, error) {
	if len(b) == 0 || len(b)%nl.InsnSize != 0 {
		return nil, reject("Unaligned instruction")
	}

	if len(b) > nl.ProgSizeMax {
		return nil, reject("Program too long")
	}

	prog, err := nl.UnmarshalProg(b)
	if err != nil {
		return nil, reject("Unaligned instruction")
	}

	for _, in := range prog {
		if err := validateInsn(in); err != nil {
			return nil, err
		}
	}

	return prog, nil
}
