package main

import (
	"fmt"

	"gopkg.in/urfave/cli.v2"

	"mdiotool/mdio"
)

var phyCmd = &cli.Command{
	Name:      "phy",
	Usage:     "Operate on a standard PHY",
	ArgsUsage: "BUS PORT[:DEV] [status | raw REG [VAL[/MASK]] | dump [RANGE] | bench REG [VAL]]",
	Description: "Operate on a standard PHY attached to BUS using either Clause 22\n" +
		"(PORT) or Clause 45 (PORT:DEV) addressing.",
	Action: phyExec,
}

func phyExec(c *cli.Context) error {
	args := mdio.NewArgs(rawArgs(c))

	busID, err := mdio.ParseBus(args.Pop())
	if err != nil {
		return err
	}

	id, err := mdio.ParseDev(args.Pop(), true)
	if err != nil {
		return err
	}

	phy := mdio.NewPhy(busID, id)

	if op := args.Peek(); op == "" || op == "status" {
		return phyStatus(phy)
	}

	return mdio.CommonExec(&phy.Device, args)
}

func phyStatusCb(data []uint32, err int32, _ interface{}) int {
	if len(data) != 4 {
		return 1
	}

	if data[2] == 0xffff && data[3] == 0xffff {
		fmt.Println("No device found")
		return 1
	}

	printPhyBmcr(uint16(data[0]))
	fmt.Println()
	printPhyBmsr(uint16(data[1]))
	fmt.Println()
	printPhyID(uint16(data[2]), uint16(data[3]))
	return int(err)
}

func phyStatus(phy *mdio.Phy) error {
	if err := mdio.Xfer(phy.Bus, phy.StatusProg(), phyStatusCb, nil); err != nil {
		return fmt.Errorf("unable to read status: %w", err)
	}
	return nil
}
