package mdio

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"mdiotool/nl"
)

// DefaultTimeoutMs is the per-program deadline requested when the
// caller does not pick one.
var DefaultTimeoutMs uint16 = 1000

// Callback receives the emitted words of each reply part, in arrival
// order, together with the running error of the transfer. The running
// error becomes nonzero on the part that carries the ERROR attribute,
// i.e. no later than the final data-bearing part. A nonzero return is
// surfaced by Xfer when the transfer itself succeeded.
type Callback func(data []uint32, err int32, arg interface{}) int

// XferTimeout submits a program for execution on the named bus and
// reassembles the multipart reply, feeding each part's data to cb.
func XferTimeout(busID string, prog *Prog, cb Callback, arg interface{}, timeoutMs uint16) error {
	conn, err := transport.Dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	seq := nextSeq()

	req, err := nl.NewRequest(family, seq, busID, prog.Bytes(), timeoutMs)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if err := conn.Send(req); err != nil {
		return errors.Wrap(err, "submitting program")
	}

	logrus.WithFields(logrus.Fields{
		"bus":     busID,
		"insns":   prog.Len(),
		"timeout": timeoutMs,
	}).Debug("submitted program")

	var run int32
	var cbret int

	for {
		buf, err := conn.Recv()
		if err != nil {
			return errors.Wrap(err, "receiving reply")
		}

		msgs, err := nl.ParseMsgs(buf)
		if err != nil {
			return err
		}

		for _, m := range msgs {
			if m.Seq != seq {
				continue
			}

			switch m.Type {
			case unix.NLMSG_DONE:
				if run != 0 {
					return nl.XferStatus(run)
				}
				if cbret != 0 {
					return errors.Errorf("callback failed (%d)", cbret)
				}
				return nil

			case unix.NLMSG_ERROR:
				ack := nl.ParseAck(m)
				if ack.Error == 0 {
					// ack of a fully consumed exchange
					return nil
				}
				if ack.Msg != "" {
					return errors.Wrap(nl.XferStatus(ack.Error), ack.Msg)
				}
				return nl.XferStatus(ack.Error)

			default:
				if m.Type != family || len(m.Data) < nl.GenlHdrLen {
					continue
				}

				tb, err := nl.ParseAttrs(m.Data[nl.GenlHdrLen:])
				if err != nil {
					return err
				}

				if b, ok := tb[nl.AttrError]; ok {
					run = nl.AttrS32(b)
				}

				b, ok := tb[nl.AttrData]
				if !ok {
					return errors.New("reply part without data block")
				}

				if ret := cb(nl.Words(b), run, arg); ret != 0 {
					cbret = ret
				}
			}
		}
	}
}

// Xfer is XferTimeout with the library default deadline.
func Xfer(busID string, prog *Prog, cb Callback, arg interface{}) error {
	return XferTimeout(busID, prog, cb, arg, DefaultTimeoutMs)
}
