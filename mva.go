package main

import (
	"fmt"

	"gopkg.in/urfave/cli.v2"

	"mdiotool/mdio"
)

var mvaCmd = &cli.Command{
	Name:      "mva",
	Usage:     "Operate on a Marvell Alaska PHY",
	ArgsUsage: "BUS PORT[:DEV] [status | raw PAGE:REG [VAL[/MASK]] | dump [PAGE:REG] | bench PAGE:REG [VAL]]",
	Description: "Operate on a Marvell Alaska PHY attached to BUS. Extended registers\n" +
		"are addressed as PAGE:REG; the page is switched and restored around\n" +
		"every access. \"copper\" and \"fiber\" are accepted as page aliases.",
	Action: mvaExec,
}

func mvaExec(c *cli.Context) error {
	args := mdio.NewArgs(rawArgs(c))

	busID, err := mdio.ParseBus(args.Pop())
	if err != nil {
		return err
	}

	id, err := mdio.ParseDev(args.Pop(), true)
	if err != nil {
		return err
	}

	mva := mdio.NewMva(busID, id)

	if op := args.Peek(); op == "" || op == "status" {
		return mvaStatus(mva)
	}

	return mdio.CommonExec(&mva.Device, args)
}

func mvaStatusCb(data []uint32, err int32, _ interface{}) int {
	if len(data) != 5 {
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

	fmt.Printf("Current page: %d\n", data[4]&0xff)
	return int(err)
}

func mvaStatus(mva *mdio.Mva) error {
	if err := mdio.Xfer(mva.Bus, mva.StatusProg(), mvaStatusCb, nil); err != nil {
		return fmt.Errorf("unable to read status: %w", err)
	}
	return nil
}
