package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v2"

	"mdiotool/mdio"
)

const version = "v0.3.0"

func main() {
	app := &cli.App{
		Name:    "mdio",
		Usage:   "Inspect and manipulate devices on MDIO buses",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
			&cli.UintFlag{
				Name:  "timeout",
				Usage: "program deadline in milliseconds",
				Value: uint(mdio.DefaultTimeoutMs),
			},
			&cli.BoolFlag{
				Name:  "sim",
				Usage: "run against simulated buses instead of the kernel",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			busCmd,
			phyCmd,
			mvaCmd,
			mvlsCmd,
			xrsCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// rawArgs copies the positional arguments of a command invocation.
func rawArgs(c *cli.Context) []string {
	args := make([]string, c.NArg())
	for i := range args {
		args[i] = c.Args().Get(i)
	}
	return args
}

func setup(c *cli.Context) error {
	if c.Bool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	if t := c.Uint("timeout"); t > 0 && t <= 0xffff {
		mdio.DefaultTimeoutMs = uint16(t)
	}

	if c.Bool("sim") {
		simSetup()
	}

	if err := mdio.Init(); err != nil {
		logrus.WithError(err).Debug("family lookup failed")
		return cli.Exit("ERROR: Unable to initialize. Is the mdio-netlink module loaded?", 1)
	}

	return nil
}
