package nl

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Msg builds one netlink datagram in a fixed-capacity buffer. A
// datagram may carry several netlink messages back to back (a multipart
// tail is followed by its DONE trailer, for instance). Any Put that
// does not fit the remaining capacity fails with EMSGSIZE and leaves
// the buffer untouched, which is what the reply chunker keys its
// flush-and-retry protocol on.
type Msg struct {
	buf []byte
	// offset of the nlmsghdr of the message currently being built
	start int
}

func NewMsg(size int) *Msg {
	return &Msg{buf: make([]byte, 0, size)}
}

// GenlHdrLen is the size of the generic netlink header following the
// nlmsghdr: command, version and a reserved word.
const GenlHdrLen = 4

func align4(n int) int {
	return (n + unix.NLMSG_ALIGNTO - 1) & ^(unix.NLMSG_ALIGNTO - 1)
}

// put reserves n bytes (plus alignment padding) and returns the slice
// to fill in.
func (m *Msg) put(n int) ([]byte, error) {
	total := align4(n)
	if len(m.buf)+total > cap(m.buf) {
		return nil, unix.EMSGSIZE
	}

	off := len(m.buf)
	m.buf = m.buf[:off+total]
	b := m.buf[off : off+total]
	for i := range b {
		b[i] = 0
	}
	return b[:n], nil
}

func (m *Msg) Len() int {
	return len(m.buf)
}

func (m *Msg) Bytes() []byte {
	return m.buf
}

// PutNlHdr starts a new netlink message. The length field is fixed up
// by EndNlMsg.
func (m *Msg) PutNlHdr(typ, flags uint16, seq, pid uint32) error {
	m.start = len(m.buf)

	b, err := m.put(unix.SizeofNlMsghdr)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(b[4:], typ)
	binary.LittleEndian.PutUint16(b[6:], flags)
	binary.LittleEndian.PutUint32(b[8:], seq)
	binary.LittleEndian.PutUint32(b[12:], pid)
	return nil
}

// EndNlMsg patches the current message's nlmsg_len.
func (m *Msg) EndNlMsg() {
	binary.LittleEndian.PutUint32(m.buf[m.start:], uint32(len(m.buf)-m.start))
}

func (m *Msg) PutGenlHdr(cmd, version uint8) error {
	b, err := m.put(GenlHdrLen)
	if err != nil {
		return err
	}

	b[0] = cmd
	b[1] = version
	return nil
}

func (m *Msg) PutAttr(typ uint16, payload []byte) error {
	b, err := m.put(unix.SizeofNlAttr + len(payload))
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(b, uint16(unix.SizeofNlAttr+len(payload)))
	binary.LittleEndian.PutUint16(b[2:], typ)
	copy(b[unix.SizeofNlAttr:], payload)
	return nil
}

func (m *Msg) PutAttrString(typ uint16, s string) error {
	return m.PutAttr(typ, append([]byte(s), 0))
}

func (m *Msg) PutAttrU16(typ uint16, v uint16) error {
	var b [2]byte

	binary.LittleEndian.PutUint16(b[:], v)
	return m.PutAttr(typ, b[:])
}

func (m *Msg) PutAttrU32(typ uint16, v uint32) error {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], v)
	return m.PutAttr(typ, b[:])
}

func (m *Msg) PutAttrS32(typ uint16, v int32) error {
	return m.PutAttrU32(typ, uint32(v))
}

// PutRaw appends payload bytes with no attribute header, aligned like
// an attribute. This is how emitted data words land inside the DATA
// nest.
func (m *Msg) PutRaw(payload []byte) error {
	b, err := m.put(len(payload))
	if err != nil {
		return err
	}

	copy(b, payload)
	return nil
}

// NestStart opens a nested attribute and returns a mark for NestEnd.
func (m *Msg) NestStart(typ uint16) (int, error) {
	mark := len(m.buf)

	if err := m.PutAttr(typ|unix.NLA_F_NESTED, nil); err != nil {
		return 0, err
	}
	return mark, nil
}

// NestEnd patches the nest header to cover everything appended since
// NestStart.
func (m *Msg) NestEnd(mark int) {
	binary.LittleEndian.PutUint16(m.buf[mark:], uint16(len(m.buf)-mark))
}

// NlMsg is one parsed netlink message out of a datagram.
type NlMsg struct {
	Type  uint16
	Flags uint16
	Seq   uint32
	Pid   uint32
	// payload past the nlmsghdr
	Data []byte
}

// ParseMsgs splits a datagram into its netlink messages.
func ParseMsgs(b []byte) ([]NlMsg, error) {
	var msgs []NlMsg

	for len(b) >= unix.SizeofNlMsghdr {
		l := int(binary.LittleEndian.Uint32(b))
		if l < unix.SizeofNlMsghdr || l > len(b) {
			return nil, errors.Errorf("malformed netlink message length %d", l)
		}

		msgs = append(msgs, NlMsg{
			Type:  binary.LittleEndian.Uint16(b[4:]),
			Flags: binary.LittleEndian.Uint16(b[6:]),
			Seq:   binary.LittleEndian.Uint32(b[8:]),
			Pid:   binary.LittleEndian.Uint32(b[12:]),
			Data:  b[unix.SizeofNlMsghdr:l],
		})

		b = b[align4(l):]
	}

	return msgs, nil
}

// ParseAttrs walks a run of netlink attributes into a type-indexed
// table, mirroring mnl_attr_parse. Nest and byte-order flags are
// masked off the type.
func ParseAttrs(b []byte) (map[uint16][]byte, error) {
	tb := make(map[uint16][]byte)

	for len(b) >= unix.SizeofNlAttr {
		l := int(binary.LittleEndian.Uint16(b))
		typ := binary.LittleEndian.Uint16(b[2:])
		if l < unix.SizeofNlAttr || l > len(b) {
			return nil, errors.Errorf("malformed attribute length %d", l)
		}

		typ &= ^(uint16(unix.NLA_F_NESTED) | uint16(unix.NLA_F_NET_BYTEORDER))
		tb[typ] = b[unix.SizeofNlAttr:l]

		b = b[align4(l):]
	}

	return tb, nil
}

// AttrString decodes a NUL-terminated string attribute.
func AttrString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func AttrU16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func AttrU32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func AttrS32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

// Words reinterprets a DATA nest payload as emitted u32 words.
func Words(b []byte) []uint32 {
	data := make([]uint32, len(b)/4)
	for i := range data {
		data[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return data
}
