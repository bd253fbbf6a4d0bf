package bus

import (
	"sync"
)

// Device is one piece of simulated hardware attached to a Sim bus at a
// single address. The register argument may carry the RegC45 marker
// for devices that implement Clause 45 register spaces.
type Device interface {
	Read(reg int) int
	Write(reg, val int) int
}

// Sim is a software MDIO bus. Reads from empty addresses float high,
// like a real bus with nothing driving the line; writes to them are
// silently accepted. The embedded mutex provides the same exclusive
// access discipline the MDIO subsystem's own lock gives real adapters.
type Sim struct {
	mu   sync.Mutex
	devs [32]Device
}

func NewSim() *Sim {
	return &Sim{}
}

// Attach places dev at the given bus address.
func (s *Sim) Attach(addr int, dev Device) {
	s.devs[addr&0x1f] = dev
}

func (s *Sim) Read(dev, reg int) int {
	d := s.devs[dev&0x1f]
	if d == nil {
		return 0xffff
	}
	return d.Read(reg)
}

func (s *Sim) Write(dev, reg, val int) int {
	d := s.devs[dev&0x1f]
	if d == nil {
		return 0
	}
	return d.Write(reg, val)
}

func (s *Sim) Lock() {
	s.mu.Lock()
}

func (s *Sim) Unlock() {
	s.mu.Unlock()
}
