package mdio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"mdiotool/bus"
	"mdiotool/engine"
	"mdiotool/nl"
)

func i16(v int16) uint16 { return uint16(v) }

// useLoopback points the client at an in-process engine and resolves
// the family id through it, exactly as a real startup would.
func useLoopback(t *testing.T) {
	t.Helper()

	srv := engine.NewServer()
	SetTransport(Transport{
		Dial: func() (Conn, error) {
			return engine.NewLoopback(srv), nil
		},
		List: func(match string) ([]string, error) {
			var ids []string

			for _, id := range bus.Names() {
				if ok, _ := filepath.Match(match, id); ok {
					ids = append(ids, id)
				}
			}
			return ids, nil
		},
	})

	require.NoError(t, Init())
}

func simBus(t *testing.T, id string) *bus.Sim {
	t.Helper()

	sim := bus.NewSim()
	require.NoError(t, bus.Register(id, sim))
	return sim
}

// gather is a callback collecting everything it sees.
type gather struct {
	data []uint32
	err  int32
}

func (g *gather) cb(data []uint32, err int32, _ interface{}) int {
	g.data = append(g.data, data...)
	g.err = err
	return 0
}

func TestXferRawRead(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-raw-0")
	sim.Attach(3, bus.NewPhy(0x01410c89))

	phy := NewPhy("xfer-raw-0", 3)

	prog := &Prog{}
	require.NoError(t, phy.PushRead(&phy.Device, prog, uint32(bus.MiiBmsr)))
	prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))

	var g gather
	require.NoError(t, Xfer("xfer-raw-0", prog, g.cb, nil))

	require.Len(t, g.data, 1)
	assert.Equal(t, uint32(sim.Read(3, bus.MiiBmsr)), g.data[0])
	assert.Equal(t, int32(0), g.err)
}

func TestXferMaskedWrite(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-rmw-0")
	sim.Attach(1, bus.NewPhy(0x01410c89))

	before := uint16(sim.Read(1, bus.MiiBmcr))
	phy := NewPhy("xfer-rmw-0", 1)

	prog := &Prog{}
	require.NoError(t, phy.PushRead(&phy.Device, prog, 0))
	prog.Push(nl.NewInsn(nl.OpAnd, nl.Reg(0), nl.Imm(0x7fff), nl.Reg(0)))
	prog.Push(nl.NewInsn(nl.OpOr, nl.Reg(0), nl.Imm(0x8000), nl.Reg(0)))
	require.NoError(t, phy.PushWrite(&phy.Device, prog, 0, nl.Reg(0)))

	var g gather
	require.NoError(t, Xfer("xfer-rmw-0", prog, g.cb, nil))

	assert.Empty(t, g.data)
	assert.Equal(t, before&0x7fff|0x8000, uint16(sim.Read(1, bus.MiiBmcr)))

	// a subsequent raw read observes bit 15
	read := &Prog{}
	require.NoError(t, phy.PushRead(&phy.Device, read, 0))
	read.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))

	g = gather{}
	require.NoError(t, Xfer("xfer-rmw-0", read, g.cb, nil))
	require.Len(t, g.data, 1)
	assert.NotZero(t, g.data[0]&0x8000)
}

func TestXferScan(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-scan-0")
	sim.Attach(1, bus.NewPhy(0x01410c89))
	sim.Attach(3, bus.NewPhy(0x01410c89))

	prog := &Prog{}
	prog.Push(nl.NewInsn(nl.OpAdd, nl.Imm(0), nl.Imm(0), nl.Reg(1)))

	loop := prog.Len()
	for reg := uint16(1); reg <= 3; reg++ {
		prog.Push(nl.NewInsn(nl.OpRead, nl.Reg(1), nl.Imm(reg), nl.Reg(0)))
		prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	}
	prog.Push(nl.NewInsn(nl.OpAdd, nl.Reg(1), nl.Imm(1), nl.Reg(1)))
	prog.Push(nl.NewInsn(nl.OpJne, nl.Reg(1), nl.Imm(32), nl.Jump(prog.Len(), loop)))

	var g gather
	require.NoError(t, Xfer("xfer-scan-0", prog, g.cb, nil))

	require.Len(t, g.data, 96)

	present := 0
	for dev := 0; dev < 32; dev++ {
		if g.data[dev*3+1] != 0xffff || g.data[dev*3+2] != 0xffff {
			present++
		}
	}
	assert.Equal(t, 2, present)
}

func TestXferTimeout(t *testing.T) {
	useLoopback(t)
	simBus(t, "xfer-tmo-0")

	prog := &Prog{}
	prog.Push(nl.NewInsn(nl.OpJeq, nl.Imm(0), nl.Imm(0), nl.Imm(i16(-1))))

	var g gather
	err := XferTimeout("xfer-tmo-0", prog, g.cb, nil, 10)

	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ETIMEDOUT)
	assert.Empty(t, g.data)
	assert.Equal(t, -int32(unix.ETIMEDOUT), g.err)
}

func TestXferValidatorDiagnostic(t *testing.T) {
	useLoopback(t)
	simBus(t, "xfer-diag-0")

	prog := &Prog{}
	prog.Push(nl.NewInsn(nl.OpRead, nl.Imm(3), nl.Imm(1), nl.Imm(0)))

	var g gather
	err := Xfer("xfer-diag-0", prog, g.cb, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EINVAL)
	assert.Contains(t, err.Error(), "Argument 2 invalid")

	// no execution took place
	assert.Empty(t, g.data)
}

func TestXferNoSuchBus(t *testing.T) {
	useLoopback(t)

	prog := &Prog{}
	prog.Push(nl.NewInsn(nl.OpEmit, nl.Imm(1), 0, 0))

	err := Xfer("xfer-none-0", prog, (&gather{}).cb, nil)
	assert.ErrorIs(t, err, unix.ENODEV)
}

func TestXferChunkedReassembly(t *testing.T) {
	useLoopback(t)
	simBus(t, "xfer-chunk-0")

	const n = 4000

	prog := &Prog{}
	prog.Push(nl.NewInsn(nl.OpAdd, nl.Reg(0), nl.Imm(1), nl.Reg(0)))
	prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	prog.Push(nl.NewInsn(nl.OpJne, nl.Reg(0), nl.Imm(n), nl.Jump(prog.Len(), 0)))

	var g gather
	require.NoError(t, XferTimeout("xfer-chunk-0", prog, g.cb, nil, 5000))

	require.Len(t, g.data, n)
	for i, w := range g.data {
		require.Equal(t, uint32(i+1), w)
	}
}

func TestXferIndirectSwitch(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-mvls-0")
	ls := bus.NewLinkStreet()
	ls.Set(0x1b, 0x01, 0x0abc)
	sim.Attach(4, ls)

	mvls := NewMvls("xfer-mvls-0", 4)

	prog := &Prog{}
	require.NoError(t, mvls.PushRead(&mvls.Device, prog, 0x1b<<16|0x01))
	prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))

	var g gather
	require.NoError(t, Xfer("xfer-mvls-0", prog, g.cb, nil))

	require.Len(t, g.data, 1)
	assert.Equal(t, uint32(0x0abc), g.data[0])
}

func TestXferIndirectSwitchWrite(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-mvlsw-0")
	ls := bus.NewLinkStreet()
	sim.Attach(4, ls)

	mvls := NewMvls("xfer-mvlsw-0", 4)

	prog := &Prog{}
	require.NoError(t, mvls.PushWrite(&mvls.Device, prog, 0x12<<16|0x07, nl.Imm(0x55aa)))

	require.NoError(t, Xfer("xfer-mvlsw-0", prog, (&gather{}).cb, nil))
	assert.Equal(t, uint16(0x55aa), ls.Get(0x12, 0x07))
}

func TestXferXrsWindow(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-xrs-0")
	xd := bus.NewXRS()
	xd.Set(0x10008, 0x0770)
	sim.Attach(6, xd)

	xrs := NewXrs("xfer-xrs-0", 6)

	prog := &Prog{}
	require.NoError(t, xrs.PushRead(&xrs.Device, prog, 0x10008))
	prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))

	var g gather
	require.NoError(t, Xfer("xfer-xrs-0", prog, g.cb, nil))
	require.Len(t, g.data, 1)
	assert.Equal(t, uint32(0x0770), g.data[0])

	wr := &Prog{}
	require.NoError(t, xrs.PushWrite(&xrs.Device, wr, 0x2000a, nl.Imm(0x1234)))
	require.NoError(t, Xfer("xfer-xrs-0", wr, (&gather{}).cb, nil))
	assert.Equal(t, uint16(0x1234), xd.Get(0x2000a))
}

func TestXferPagedAccess(t *testing.T) {
	useLoopback(t)

	sim := simBus(t, "xfer-mva-0")
	phy := bus.NewPhy(0x01410c89)
	phy.Write(MvaPage, 0)
	sim.Attach(2, phy)

	mva := NewMva("xfer-mva-0", 2)

	// write through page 3, then confirm the page register was
	// restored
	prog := &Prog{}
	require.NoError(t, mva.PushWrite(&mva.Device, prog, 3<<16|0x1a, nl.Imm(0x0042)))

	require.NoError(t, Xfer("xfer-mva-0", prog, (&gather{}).cb, nil))
	assert.Equal(t, 0, phy.Read(MvaPage))

	// the write landed while page 3 was selected; with the sim's
	// flat register file the value is observable directly
	assert.Equal(t, 0x0042, phy.Read(0x1a))
}

func TestForEachAndParseBus(t *testing.T) {
	useLoopback(t)
	simBus(t, "feb-0")
	simBus(t, "feb-1")

	var seen []string
	require.NoError(t, ForEach("feb-*", func(id string) (bool, error) {
		seen = append(seen, id)
		return false, nil
	}))
	assert.Equal(t, []string{"feb-0", "feb-1"}, seen)

	id, err := ParseBus("feb-*")
	require.NoError(t, err)
	assert.Equal(t, "feb-0", id)

	_, err = ParseBus("nope-*")
	assert.ErrorIs(t, err, unix.ENODEV)
}
