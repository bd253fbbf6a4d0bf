package main

import (
	"gopkg.in/urfave/cli.v2"

	"mdiotool/mdio"
)

var xrsCmd = &cli.Command{
	Name:      "xrs",
	Usage:     "Operate on an Arrow/Flexibilis XRS700x switch",
	ArgsUsage: "BUS ID [raw REG [VAL[/MASK]] | dump [RANGE] | bench REG [VAL]]",
	Description: "Operate on an Arrow/Flexibilis XRS700x device attached to BUS using\n" +
		"address ID. Registers stride by 2; only even addresses are valid.",
	Action: xrsExec,
}

func xrsExec(c *cli.Context) error {
	args := mdio.NewArgs(rawArgs(c))

	busID, err := mdio.ParseBus(args.Pop())
	if err != nil {
		return err
	}

	id, err := mdio.ParseDev(args.Pop(), true)
	if err != nil {
		return err
	}

	xrs := mdio.NewXrs(busID, id)
	return mdio.CommonExec(&xrs.Device, args)
}
