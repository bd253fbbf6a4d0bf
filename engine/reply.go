package engine

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"mdiotool/nl"
)

// sink receives finished reply datagrams, in order. The loopback
// transport queues them for the local client; a future in-kernel
// deployment would unicast them to the requesting port.
type sink interface {
	send(b []byte) error
}

// replyMsgSize bounds one reply part, mirroring the default netlink
// message allocation.
const replyMsgSize = 4096

// reply builds the multipart response of one xfer: a sequence of parts
// each holding a nested DATA block of emitted words, an ERROR
// attribute on the final data part for abnormal runs, and a DONE
// trailer. Whenever a step no longer fits the current part, the part
// is flushed to the sink, a fresh one is opened and the step retried
// exactly once.
type reply struct {
	out    sink
	family uint16
	seq    uint32
	port   uint32

	msg  *nl.Msg
	nest int
}

func (r *reply) open() error {
	r.msg = nl.NewMsg(replyMsgSize)

	if err := r.msg.PutNlHdr(r.family, unix.NLM_F_ACK|unix.NLM_F_MULTI, r.seq, r.port); err != nil {
		return err
	}
	if err := r.msg.PutGenlHdr(nl.CmdXfer, nl.FamilyVersion); err != nil {
		return err
	}

	nest, err := r.msg.NestStart(nl.AttrData)
	if err != nil {
		return err
	}

	r.nest = nest
	return nil
}

// flush closes the accumulated part without trailers, dispatches it,
// and opens the next one.
func (r *reply) flush() error {
	r.msg.NestEnd(r.nest)
	r.msg.EndNlMsg()

	if err := r.out.send(r.msg.Bytes()); err != nil {
		return err
	}

	return r.open()
}

// emit appends one datum to the DATA block, flushing once on
// exhaustion. The return value is a wire status.
func (r *reply) emit(datum uint32) int32 {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], datum)

	if err := r.msg.PutRaw(b[:]); err == nil {
		return 0
	}

	if err := r.flush(); err != nil {
		return errnoCode(err)
	}

	if err := r.msg.PutRaw(b[:]); err != nil {
		return -int32(unix.EMSGSIZE)
	}

	return 0
}

// close finishes the in-flight part: ends the DATA block, attaches the
// run status when nonzero, appends the DONE trailer on the final close
// and dispatches the datagram. Steps that overflow the part trigger
// one flush-and-retry each.
func (r *reply) close(last bool, xerr int32) error {
	r.msg.NestEnd(r.nest)

	if xerr != 0 {
		if err := r.msg.PutAttrS32(nl.AttrError, xerr); err != nil {
			if err := r.flush(); err != nil {
				return err
			}

			r.msg.NestEnd(r.nest)
			if err := r.msg.PutAttrS32(nl.AttrError, xerr); err != nil {
				return err
			}
		}
	}

	r.msg.EndNlMsg()

	if last {
		if err := r.putDone(); err != nil {
			if err := r.out.send(r.msg.Bytes()); err != nil {
				return err
			}
			if err := r.open(); err != nil {
				return err
			}

			r.msg.NestEnd(r.nest)
			r.msg.EndNlMsg()
			if err := r.putDone(); err != nil {
				return err
			}
		}
	}

	return r.out.send(r.msg.Bytes())
}

// putDone appends the DONE trailer as a second netlink message in the
// same datagram.
func (r *reply) putDone() error {
	if err := r.msg.PutNlHdr(unix.NLMSG_DONE, unix.NLM_F_ACK|unix.NLM_F_MULTI, r.seq, r.port); err != nil {
		return err
	}

	r.msg.EndNlMsg()
	return nil
}

// errnoCode maps an error onto the wire status. Anything that is not
// errno-valued is reported as an I/O failure.
func errnoCode(err error) int32 {
	if err == nil {
		return 0
	}

	if e, ok := errors.Cause(err).(unix.Errno); ok {
		return -int32(e)
	}

	return -int32(unix.EIO)
}
