package main

import (
	"path/filepath"

	"mdiotool/bus"
	"mdiotool/engine"
	"mdiotool/mdio"
)

// simSetup builds a small board out of simulated hardware and swaps
// the transport for a loopback into the in-process engine: a PHY on
// address 1 and 3, a LinkStreet switch strapped to address 4 and an
// XRS switch on address 6, all on bus "sim-0".
func simSetup() {
	sim := bus.NewSim()
	sim.Attach(1, bus.NewPhy(0x01410c89))
	sim.Attach(3, bus.NewPhy(0x01410c89))

	ls := bus.NewLinkStreet()
	ls.Set(0x1b, 0x01, 0x0abc)
	sim.Attach(4, ls)

	xrs := bus.NewXRS()
	xrs.Set(0x0008, 0x0770)
	sim.Attach(6, xrs)

	bus.Register("sim-0", sim)

	srv := engine.NewServer()
	mdio.SetTransport(mdio.Transport{
		Dial: func() (mdio.Conn, error) {
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
}
