package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"mdiotool/bus"
	"mdiotool/nl"
)

func TestReplyChunking(t *testing.T) {
	// emit enough words to force the reply across several parts:
	// count register 0 up to 4000, emitting each value
	const n = 4000

	insns := []nl.Insn{
		nl.NewInsn(nl.OpAdd, nl.Reg(0), nl.Imm(1), nl.Reg(0)),
		nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0),
		nl.NewInsn(nl.OpJne, nl.Reg(0), nl.Imm(n), nl.Jump(2, 0)),
	}

	out := &sinkBuf{}
	rep := &reply{out: out, family: DefaultFamily, seq: 1}
	require.NoError(t, rep.open())

	ret := eval(bus.NewSim(), insns, time.Second, rep)
	require.NoError(t, rep.close(true, ret))

	assert.Equal(t, int32(0), ret)
	assert.Greater(t, len(out.msgs), 1, "expected a multipart reply")

	words := collect(t, out.msgs)
	require.Len(t, words, n)
	for i, w := range words {
		require.Equal(t, uint32(i+1), w)
	}
}

// lastError digs out the ERROR attribute of the final data-bearing
// part.
func lastError(t *testing.T, datagrams [][]byte) (int32, bool) {
	t.Helper()

	var (
		code  int32
		found bool
	)

	for _, b := range datagrams {
		msgs, err := nl.ParseMsgs(b)
		require.NoError(t, err)

		for _, m := range msgs {
			if m.Type != DefaultFamily {
				continue
			}

			tb, err := nl.ParseAttrs(m.Data[nl.GenlHdrLen:])
			require.NoError(t, err)

			if e, ok := tb[nl.AttrError]; ok {
				require.False(t, found, "ERROR attribute repeated")
				code, found = nl.AttrS32(e), true
			}
		}
	}

	return code, found
}

func TestReplyErrorAttr(t *testing.T) {
	out := &sinkBuf{}
	rep := &reply{out: out, family: DefaultFamily, seq: 1}
	require.NoError(t, rep.open())

	require.Equal(t, int32(0), rep.emit(0xaa))
	require.NoError(t, rep.close(true, -int32(unix.ETIMEDOUT)))

	words := collect(t, out.msgs)
	assert.Equal(t, []uint32{0xaa}, words)

	code, ok := lastError(t, out.msgs)
	require.True(t, ok)
	assert.Equal(t, -int32(unix.ETIMEDOUT), code)
}

func TestReplyErrorAttrOverflow(t *testing.T) {
	// pack the part so full that the trailing ERROR needs a flush
	// of its own
	out := &sinkBuf{}
	rep := &reply{out: out, family: DefaultFamily, seq: 1}
	require.NoError(t, rep.open())

	for rep.msg.Len() < replyMsgSize-4 {
		require.Equal(t, int32(0), rep.emit(0x55))
	}

	require.NoError(t, rep.close(true, -int32(unix.EIO)))

	code, ok := lastError(t, out.msgs)
	require.True(t, ok)
	assert.Equal(t, -int32(unix.EIO), code)

	// nothing emitted was lost along the way
	for _, w := range collect(t, out.msgs) {
		require.Equal(t, uint32(0x55), w)
	}
}

func TestReplyEmptyRun(t *testing.T) {
	// a program with no EMITs still produces a well-formed reply:
	// one part with an empty DATA block, then DONE
	out := &sinkBuf{}
	rep := &reply{out: out, family: DefaultFamily, seq: 1}
	require.NoError(t, rep.open())
	require.NoError(t, rep.close(true, 0))

	assert.Empty(t, collect(t, out.msgs))
}
