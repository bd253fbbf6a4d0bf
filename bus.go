package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v2"

	"mdiotool/mdio"
	"mdiotool/nl"
)

var busCmd = &cli.Command{
	Name:      "bus",
	Usage:     "List buses, or scan one for attached devices",
	ArgsUsage: "[BUS]",
	Description: "If BUS is specified, scan the bus and show all attached PHYs.\n" +
		"If BUS is omitted, list all buses on the system. BUS is matched\n" +
		"as a glob pattern, i.e. \"fixed*\" would typically match against\n" +
		"\"fixed-0\".",
	Action: busExec,
}

func busExec(c *cli.Context) error {
	if c.NArg() == 0 {
		return mdio.ForEach("*", func(id string) (bool, error) {
			fmt.Println(id)
			return false, nil
		})
	}

	id, err := mdio.ParseBus(c.Args().Get(0))
	if err != nil {
		return err
	}

	return busStatus(id)
}

const busDevMax = 32

// busStatus probes every Clause 22 address for its status and id
// words: a counter in register 1 walks the addresses, reading
// registers 1 through 3 of each.
func busStatus(id string) error {
	prog := &mdio.Prog{}

	prog.Push(nl.NewInsn(nl.OpAdd, nl.Imm(0), nl.Imm(0), nl.Reg(1)))

	loop := prog.Len()
	for reg := uint16(1); reg <= 3; reg++ {
		prog.Push(nl.NewInsn(nl.OpRead, nl.Reg(1), nl.Imm(reg), nl.Reg(0)))
		prog.Push(nl.NewInsn(nl.OpEmit, nl.Reg(0), 0, 0))
	}
	prog.Push(nl.NewInsn(nl.OpAdd, nl.Reg(1), nl.Imm(1), nl.Reg(1)))
	prog.Push(nl.NewInsn(nl.OpJne, nl.Reg(1), nl.Imm(busDevMax), nl.Jump(prog.Len(), loop)))

	var scan []uint32

	err := mdio.Xfer(id, prog, func(data []uint32, err int32, _ interface{}) int {
		scan = append(scan, data...)
		return int(err)
	}, nil)
	if err != nil {
		return fmt.Errorf("unable to scan %s: %w", id, err)
	}

	if len(scan) != busDevMax*3 {
		return fmt.Errorf("short scan of %s: %d words", id, len(scan))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"DEV", "PHY-ID", "LINK"})
	table.SetBorder(false)

	for dev := 0; dev < busDevMax; dev++ {
		bmsr, id1, id2 := scan[dev*3], scan[dev*3+1], scan[dev*3+2]

		if id1 == 0xffff && id2 == 0xffff {
			continue
		}

		link := "down"
		if bmsr&0x0004 != 0 {
			link = "up"
		}

		table.Append([]string{
			fmt.Sprintf("0x%2.2x", dev),
			fmt.Sprintf("0x%8.8x", id1<<16|id2),
			link,
		})
	}

	table.Render()
	return nil
}
