package mdio

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"mdiotool/nl"
)

// Conn is one transport endpoint: a generic netlink socket against a
// real kernel, or an in-process loopback against the embedded engine.
// Either way the same bytes flow through it.
type Conn interface {
	Send(b []byte) error
	Recv() ([]byte, error)
	Close() error
}

// Transport supplies the two host-dependent operations: dialing a
// fresh endpoint for one exchange, and enumerating bus identifiers.
type Transport struct {
	Dial func() (Conn, error)
	List func(match string) ([]string, error)
}

var (
	transport = systemTransport()

	family uint16
	seqno  uint32
)

// SetTransport replaces the system transport, e.g. with a loopback
// into an in-process engine.
func SetTransport(t Transport) {
	transport = t
	family = 0
}

func nextSeq() uint32 {
	return atomic.AddUint32(&seqno, 1)
}

// Init resolves the mdio family id through the generic netlink
// controller. Called once at startup; transfers fail until it
// succeeds.
func Init() error {
	conn, err := transport.Dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	seq := nextSeq()

	req, err := nl.NewFamilyRequest(seq)
	if err != nil {
		return err
	}
	if err := conn.Send(req); err != nil {
		return errors.Wrap(err, "querying family")
	}

	for {
		buf, err := conn.Recv()
		if err != nil {
			return errors.Wrap(err, "querying family")
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
			case unix.NLMSG_ERROR:
				ack := nl.ParseAck(m)
				if ack.Error != 0 {
					return nl.XferStatus(ack.Error)
				}
				if family == 0 {
					return errors.New("controller did not report a family id")
				}
				return nil

			case unix.GENL_ID_CTRL:
				if len(m.Data) < nl.GenlHdrLen {
					continue
				}

				tb, err := nl.ParseAttrs(m.Data[nl.GenlHdrLen:])
				if err != nil {
					return err
				}
				if b, ok := tb[unix.CTRL_ATTR_FAMILY_ID]; ok {
					family = nl.AttrU16(b)
				}
			}
		}
	}
}

// ForEach invokes cb for every bus whose identifier matches the glob
// pattern. A true return from cb stops the walk early.
func ForEach(match string, cb func(id string) (bool, error)) error {
	ids, err := transport.List(match)
	if err != nil {
		return err
	}

	for _, id := range ids {
		stop, err := cb(id)
		if err != nil || stop {
			return err
		}
	}

	return nil
}

// ParseBus resolves a user-supplied pattern to the first matching bus
// identifier.
func ParseBus(str string) (string, error) {
	var id string

	err := ForEach(str, func(match string) (bool, error) {
		id = match
		return true, nil
	})
	if err != nil {
		return "", err
	}

	if id == "" {
		return "", errors.Wrapf(unix.ENODEV,
			"%q does not match any known MDIO bus", str)
	}
	return id, nil
}
