package bus

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"mdiotool/nl"
)

// Mii is one MDIO bus adapter. Read and Write follow the kernel
// convention: a negative return is an errno, anything else is the
// 16-bit register value (reads) or zero (writes).
//
// Lock grants exclusive use of the line. It is held for the duration
// of one whole program, so a register sequence observed by a device
// can never interleave with another caller's.
type Mii interface {
	Read(dev, reg int) int
	Write(dev, reg, val int) int

	Lock()
	Unlock()
}

// RegC45 marks a register argument that carries a Clause 45 device
// address in bits 20:16, matching the Linux MDIO calling convention.
const RegC45 = 1 << 30

// Resolve translates the user-visible device address of a READ/WRITE
// instruction into the adapter's native convention. Bare Clause 22
// addresses pass through; flagged Clause 45 compounds are decomposed
// into the port address and a RegC45-tagged register word.
func Resolve(udev, ureg uint16) (dev, reg int) {
	if !nl.IsC45(udev) {
		return int(udev), int(ureg)
	}

	return int(nl.C45Port(udev)), RegC45 | int(nl.C45Dev(udev))<<16 | int(ureg)
}

var (
	mu       sync.Mutex
	registry = make(map[string]Mii)
)

// Register makes a bus adapter findable under its identifier.
func Register(id string, m Mii) error {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registry[id]; ok {
		return errors.Errorf("bus %q already registered", id)
	}

	registry[id] = m
	logrus.WithField("bus", id).Debug("registered mdio bus")
	return nil
}

// Find looks up a bus adapter by identifier.
func Find(id string) (Mii, error) {
	mu.Lock()
	defer mu.Unlock()

	m, ok := registry[id]
	if !ok {
		return nil, errors.Wrap(unix.ENODEV, id)
	}
	return m, nil
}

// Names lists all registered bus identifiers, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}
