package engine

import (
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"mdiotool/bus"
	"mdiotool/nl"
)

// DefaultFamily is the id the in-process service registers under. Real
// kernels hand out dynamic ids; any value above the reserved range
// works here, the client resolves it by name either way.
const DefaultFamily = 0x1c

// Server implements the kernel half of the mdio family for buses
// registered in this process: it accepts XFER requests, validates and
// runs their programs and streams back the multipart reply. It also
// answers the generic netlink controller query used to resolve the
// family id, so a client speaks exactly the same bytes to it as to the
// real thing.
type Server struct {
	Family uint16

	log *logrus.Entry
}

func NewServer() *Server {
	return &Server{
		Family: DefaultFamily,
		log:    logrus.WithField("family", nl.FamilyName),
	}
}

// Handle processes one request datagram and returns the reply
// datagrams, in delivery order.
func (s *Server) Handle(req []byte) [][]byte {
	out := &sinkBuf{}

	msgs, err := nl.ParseMsgs(req)
	if err != nil {
		s.log.WithError(err).Warn("dropping malformed request")
		return nil
	}

	for _, m := range msgs {
		switch m.Type {
		case unix.GENL_ID_CTRL:
			s.ctrl(m, out)
		case s.Family:
			s.xfer(m, out)
		default:
			s.ack(m, out, -int32(unix.ENOENT), "")
		}
	}

	return out.msgs
}

// ctrl answers CTRL_CMD_GETFAMILY for the mdio family name.
func (s *Server) ctrl(m nl.NlMsg, out *sinkBuf) {
	if len(m.Data) < nl.GenlHdrLen || m.Data[0] != unix.CTRL_CMD_GETFAMILY {
		s.ack(m, out, -int32(unix.EOPNOTSUPP), "")
		return
	}

	tb, err := nl.ParseAttrs(m.Data[nl.GenlHdrLen:])
	if err != nil {
		s.ack(m, out, -int32(unix.EINVAL), "")
		return
	}

	if b, ok := tb[unix.CTRL_ATTR_FAMILY_NAME]; !ok || nl.AttrString(b) != nl.FamilyName {
		s.ack(m, out, -int32(unix.ENOENT), "")
		return
	}

	rep := nl.NewMsg(256)
	rep.PutNlHdr(unix.GENL_ID_CTRL, 0, m.Seq, m.Pid)
	rep.PutGenlHdr(unix.CTRL_CMD_NEWFAMILY, 2)
	rep.PutAttrString(unix.CTRL_ATTR_FAMILY_NAME, nl.FamilyName)
	rep.PutAttrU16(unix.CTRL_ATTR_FAMILY_ID, s.Family)
	rep.PutAttrU32(unix.CTRL_ATTR_VERSION, nl.FamilyVersion)
	rep.EndNlMsg()

	out.send(rep.Bytes())
	s.ack(m, out, 0, "")
}

// xfer is the doit of the single family command.
func (s *Server) xfer(m nl.NlMsg, out *sinkBuf) {
	if len(m.Data) < nl.GenlHdrLen || m.Data[0] != nl.CmdXfer {
		s.ack(m, out, -int32(unix.EOPNOTSUPP), "")
		return
	}

	tb, err := nl.ParseAttrs(m.Data[nl.GenlHdrLen:])
	if err != nil {
		s.ack(m, out, -int32(unix.EINVAL), "")
		return
	}

	busID, okBus := tb[nl.AttrBusID]
	progAttr, okProg := tb[nl.AttrProg]
	_, haveData := tb[nl.AttrData]
	_, haveErr := tb[nl.AttrError]

	if !okBus || !okProg || haveData || haveErr {
		s.ack(m, out, -int32(unix.EINVAL), "")
		return
	}

	if len(busID) > nl.BusIDSize {
		s.ack(m, out, -int32(unix.EINVAL), "Bus identifier too long")
		return
	}

	timeout := uint16(nl.TimeoutDefaultMs)
	if b, ok := tb[nl.AttrTimeout]; ok {
		if len(b) < 2 {
			s.ack(m, out, -int32(unix.EINVAL), "")
			return
		}

		timeout = nl.AttrU16(b)
		if timeout > nl.TimeoutMaxMs {
			s.ack(m, out, -int32(unix.EINVAL), "Timeout out of range")
			return
		}
	}

	prog, err := validateProg(progAttr)
	if err != nil {
		s.log.WithError(err).Debug("rejecting program")
		s.ack(m, out, -int32(unix.EINVAL), err.Error())
		return
	}

	id := nl.AttrString(busID)

	mii, err := bus.Find(id)
	if err != nil {
		s.ack(m, out, -int32(unix.ENODEV), "")
		return
	}

	s.log.WithFields(logrus.Fields{
		"bus":     id,
		"insns":   len(prog),
		"timeout": timeout,
	}).Debug("executing program")

	rep := &reply{out: out, family: s.Family, seq: m.Seq, port: m.Pid}
	if err := rep.open(); err != nil {
		s.ack(m, out, errnoCode(err), "")
		return
	}

	ret := eval(mii, prog, time.Duration(timeout)*time.Millisecond, rep)

	if err := rep.close(true, ret); err != nil {
		s.ack(m, out, errnoCode(err), "")
		return
	}

	s.ack(m, out, 0, "")
}

// ack emits the NLMSG_ERROR message closing a request: status zero for
// success, a negative errno otherwise, with the attribute-scoped
// diagnostic riding in the extended ack.
func (s *Server) ack(m nl.NlMsg, out *sinkBuf, code int32, diag string) {
	flags := uint16(unix.NLM_F_CAPPED)
	if diag != "" {
		flags |= unix.NLM_F_ACK_TLVS
	}

	rep := nl.NewMsg(256 + len(diag))
	rep.PutNlHdr(unix.NLMSG_ERROR, flags, m.Seq, m.Pid)

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(code))
	rep.PutRaw(b[:])

	// echoed (capped) request header
	rep.PutNlHdr(m.Type, m.Flags, m.Seq, m.Pid)
	rep.EndNlMsg()

	if diag != "" {
		rep.PutAttrString(unix.NLMSGERR_ATTR_MSG, diag)
	}

	// patch the outer header to cover echo and diagnostics
	outer := rep.Bytes()
	binary.LittleEndian.PutUint32(outer, uint32(len(outer)))

	out.send(outer)
}

type sinkBuf struct {
	msgs [][]byte
}

func (b *sinkBuf) send(msg []byte) error {
	b.msgs = append(b.msgs, msg)
	return nil
}
