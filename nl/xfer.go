package nl

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

const (
	FamilyName    = "mdio"
	FamilyVersion = 1

	CmdXfer = 1
)

// Attributes of the XFER command. DATA and ERROR are reply-only.
const (
	_ = iota // unspec
	AttrBusID
	AttrTimeout
	AttrProg
	AttrData
	AttrError
)

const (
	// matches MII_BUS_ID_SIZE
	BusIDSize = 61

	ProgSizeMax = 0x1000
	ProgInsnMax = ProgSizeMax / InsnSize

	TimeoutDefaultMs = 100
	TimeoutMaxMs     = 10_000
)

// Device addresses carried in READ/WRITE arg0 are either a bare 5-bit
// Clause 22 address or a flagged Clause 45 compound of port and device
// addresses.
const (
	PhyIDC45      = 1 << 15
	phyIDDevMask  = 0x1f
	phyIDPortMask = 0x3e0
)

func C45Addr(port, dev uint16) uint16 {
	return PhyIDC45 | port<<5 | dev
}

func IsC45(addr uint16) bool {
	return addr&PhyIDC45 != 0
}

func C45Port(addr uint16) uint16 {
	return (addr & phyIDPortMask) >> 5
}

func C45Dev(addr uint16) uint16 {
	return addr & phyIDDevMask
}

// XferStatus converts a wire status word into an error. Zero is a
// clean run; negative values are errnos.
func XferStatus(code int32) error {
	if code == 0 {
		return nil
	}
	return unix.Errno(-code)
}

// NewRequest builds an XFER request datagram.
func NewRequest(family uint16, seq uint32, bus string, prog []byte, timeoutMs uint16) ([]byte, error) {
	m := NewMsg(ProgSizeMax + 256)

	if err := m.PutNlHdr(family, unix.NLM_F_REQUEST|unix.NLM_F_ACK, seq, 0); err != nil {
		return nil, err
	}
	if err := m.PutGenlHdr(CmdXfer, FamilyVersion); err != nil {
		return nil, err
	}
	if err := m.PutAttrString(AttrBusID, bus); err != nil {
		return nil, err
	}
	if err := m.PutAttr(AttrProg, prog); err != nil {
		return nil, err
	}
	if err := m.PutAttrU16(AttrTimeout, timeoutMs); err != nil {
		return nil, err
	}

	m.EndNlMsg()
	return m.Bytes(), nil
}

// NewFamilyRequest builds the generic netlink controller query used to
// resolve the family name to its id.
func NewFamilyRequest(seq uint32) ([]byte, error) {
	m := NewMsg(256)

	if err := m.PutNlHdr(unix.GENL_ID_CTRL, unix.NLM_F_REQUEST|unix.NLM_F_ACK, seq, 0); err != nil {
		return nil, err
	}
	if err := m.PutGenlHdr(unix.CTRL_CMD_GETFAMILY, 1); err != nil {
		return nil, err
	}
	if err := m.PutAttrU16(unix.CTRL_ATTR_FAMILY_ID, unix.GENL_ID_CTRL); err != nil {
		return nil, err
	}
	if err := m.PutAttrString(unix.CTRL_ATTR_FAMILY_NAME, FamilyName); err != nil {
		return nil, err
	}

	m.EndNlMsg()
	return m.Bytes(), nil
}

// Ack is a decoded NLMSG_ERROR message: the errno-valued status plus
// the extended-ack diagnostic, when the sender attached one.
type Ack struct {
	Error int32
	Msg   string
}

// ParseAck decodes the payload of an NLMSG_ERROR message.
func ParseAck(m NlMsg) Ack {
	ack := Ack{}

	if len(m.Data) < 4 {
		return ack
	}
	ack.Error = int32(binary.LittleEndian.Uint32(m.Data))

	// The errno is followed by the echoed request header and, with
	// NLM_F_ACK_TLVS, extended-ack attributes after the echo. Without
	// NLM_F_CAPPED the echo spans the whole request, as its nlmsg_len
	// says; with it, the echo is capped to the header.
	if m.Flags&unix.NLM_F_ACK_TLVS == 0 || len(m.Data) < 4+unix.SizeofNlMsghdr {
		return ack
	}

	echo := int(binary.LittleEndian.Uint32(m.Data[4:]))
	if m.Flags&unix.NLM_F_CAPPED != 0 {
		echo = unix.SizeofNlMsghdr
	}

	off := 4 + align4(echo)
	if off >= len(m.Data) {
		return ack
	}

	tb, err := ParseAttrs(m.Data[off:])
	if err != nil {
		return ack
	}
	if b, ok := tb[unix.NLMSGERR_ATTR_MSG]; ok {
		ack.Msg = AttrString(b)
	}

	return ack
}
