package main

import (
	"gopkg.in/urfave/cli.v2"

	"mdiotool/mdio"
)

var mvlsCmd = &cli.Command{
	Name:      "mvls",
	Usage:     "Operate on a Marvell LinkStreet switch",
	ArgsUsage: "BUS ID [raw PORT REG [VAL[/MASK]] | dump [PORT REG] | bench PORT REG [VAL]]",
	Description: "Operate on a Marvell LinkStreet (mv88e6xxx) device attached to BUS\n" +
		"using address ID. If ID is 0, single-chip addressing is used; all\n" +
		"other IDs use multi-chip addressing. PORT also accepts the\n" +
		"\"global1\"/\"g1\" and \"global2\"/\"g2\" aliases.",
	Action: mvlsExec,
}

func mvlsExec(c *cli.Context) error {
	args := mdio.NewArgs(rawArgs(c))

	busID, err := mdio.ParseBus(args.Pop())
	if err != nil {
		return err
	}

	id, err := mdio.ParseDev(args.Pop(), false)
	if err != nil {
		return err
	}

	mvls := mdio.NewMvls(busID, id)
	return mdio.CommonExec(&mvls.Device, args)
}
