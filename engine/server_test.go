package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"mdiotool/bus"
	"mdiotool/nl"
)

func newTestServer(t *testing.T, busID string) *Server {
	t.Helper()

	sim := bus.NewSim()
	sim.Attach(3, bus.NewPhy(0x01410c89))
	require.NoError(t, bus.Register(busID, sim))

	return NewServer()
}

// request builds an XFER request for the test server.
func request(t *testing.T, srv *Server, busID string, insns []nl.Insn, timeout uint16) []byte {
	t.Helper()

	b, err := nl.NewRequest(srv.Family, 1, busID, nl.MarshalProg(insns), timeout)
	require.NoError(t, err)
	return b
}

// finalAck returns the NLMSG_ERROR closing the exchange.
func finalAck(t *testing.T, datagrams [][]byte) nl.Ack {
	t.Helper()

	for i := len(datagrams) - 1; i >= 0; i-- {
		msgs, err := nl.ParseMsgs(datagrams[i])
		require.NoError(t, err)

		for _, m := range msgs {
			if m.Type == unix.NLMSG_ERROR {
				return nl.ParseAck(m)
			}
		}
	}

	t.Fatal("no ack in reply")
	return nl.Ack{}
}

func TestServerXfer(t *testing.T) {
	srv := newTestServer(t, "srv-xfer-0")

	out := srv.Handle(request(t, srv, "srv-xfer-0", []nl.Insn{
		nl.NewInsn(nl.OpRead, nl.Imm(3), nl.Imm(1), nl.Reg(0)),
		nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0),
	}, 100))

	words := collect(t, out)
	require.Len(t, words, 1)

	ack := finalAck(t, out)
	assert.Equal(t, int32(0), ack.Error)
}

func TestServerRejectsBadProg(t *testing.T) {
	srv := newTestServer(t, "srv-rej-0")

	out := srv.Handle(request(t, srv, "srv-rej-0", []nl.Insn{
		nl.NewInsn(nl.OpRead, nl.Imm(3), nl.Imm(1), nl.Imm(0)),
	}, 100))

	// no execution: the only reply is the error ack
	require.Len(t, out, 1)

	ack := finalAck(t, out)
	assert.Equal(t, -int32(unix.EINVAL), ack.Error)
	assert.Equal(t, "Argument 2 invalid", ack.Msg)
}

func TestServerNoSuchBus(t *testing.T) {
	srv := NewServer()

	out := srv.Handle(request(t, srv, "no-such-bus", []nl.Insn{
		nl.NewInsn(nl.OpEmit, nl.Imm(1), 0, 0),
	}, 100))

	ack := finalAck(t, out)
	assert.Equal(t, -int32(unix.ENODEV), ack.Error)
}

func TestServerTimeoutPolicy(t *testing.T) {
	srv := newTestServer(t, "srv-tmo-0")

	out := srv.Handle(request(t, srv, "srv-tmo-0", []nl.Insn{
		nl.NewInsn(nl.OpEmit, nl.Imm(1), 0, 0),
	}, nl.TimeoutMaxMs+1))

	ack := finalAck(t, out)
	assert.Equal(t, -int32(unix.EINVAL), ack.Error)
	assert.Equal(t, "Timeout out of range", ack.Msg)
}

func TestServerRejectsReplyAttrs(t *testing.T) {
	srv := newTestServer(t, "srv-attr-0")

	m := nl.NewMsg(512)
	require.NoError(t, m.PutNlHdr(srv.Family, unix.NLM_F_REQUEST|unix.NLM_F_ACK, 1, 0))
	require.NoError(t, m.PutGenlHdr(nl.CmdXfer, nl.FamilyVersion))
	require.NoError(t, m.PutAttrString(nl.AttrBusID, "srv-attr-0"))
	require.NoError(t, m.PutAttr(nl.AttrProg,
		nl.MarshalProg([]nl.Insn{nl.NewInsn(nl.OpEmit, nl.Imm(1), 0, 0)})))
	require.NoError(t, m.PutAttrS32(nl.AttrError, -5))
	m.EndNlMsg()

	ack := finalAck(t, srv.Handle(m.Bytes()))
	assert.Equal(t, -int32(unix.EINVAL), ack.Error)
}

func TestServerMissingAttrs(t *testing.T) {
	srv := newTestServer(t, "srv-miss-0")

	m := nl.NewMsg(512)
	require.NoError(t, m.PutNlHdr(srv.Family, unix.NLM_F_REQUEST|unix.NLM_F_ACK, 1, 0))
	require.NoError(t, m.PutGenlHdr(nl.CmdXfer, nl.FamilyVersion))
	require.NoError(t, m.PutAttrString(nl.AttrBusID, "srv-miss-0"))
	m.EndNlMsg()

	ack := finalAck(t, srv.Handle(m.Bytes()))
	assert.Equal(t, -int32(unix.EINVAL), ack.Error)
}

func TestServerDefaultTimeout(t *testing.T) {
	srv := newTestServer(t, "srv-dflt-0")

	m := nl.NewMsg(512)
	require.NoError(t, m.PutNlHdr(srv.Family, unix.NLM_F_REQUEST|unix.NLM_F_ACK, 1, 0))
	require.NoError(t, m.PutGenlHdr(nl.CmdXfer, nl.FamilyVersion))
	require.NoError(t, m.PutAttrString(nl.AttrBusID, "srv-dflt-0"))
	require.NoError(t, m.PutAttr(nl.AttrProg, nl.MarshalProg([]nl.Insn{
		// a spin that only a deadline can stop
		nl.NewInsn(nl.OpJeq, nl.Imm(0), nl.Imm(0), nl.Imm(i16(-1))),
	})))
	m.EndNlMsg()

	out := srv.Handle(m.Bytes())

	code, ok := lastError(t, out)
	require.True(t, ok)
	assert.Equal(t, -int32(unix.ETIMEDOUT), code)
}

func TestServerCtrl(t *testing.T) {
	srv := NewServer()

	req, err := nl.NewFamilyRequest(5)
	require.NoError(t, err)

	out := srv.Handle(req)
	require.NotEmpty(t, out)

	var got uint16

	for _, b := range out {
		msgs, err := nl.ParseMsgs(b)
		require.NoError(t, err)

		for _, m := range msgs {
			if m.Type != unix.GENL_ID_CTRL {
				continue
			}

			tb, err := nl.ParseAttrs(m.Data[nl.GenlHdrLen:])
			require.NoError(t, err)
			got = nl.AttrU16(tb[unix.CTRL_ATTR_FAMILY_ID])
		}
	}

	assert.Equal(t, srv.Family, got)
}
