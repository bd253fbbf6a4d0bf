package main

import (
	"fmt"
)

// Clause 22 status bits, as tabulated on the phy/mva status pages.
const (
	bmcrSpeed1000 = 0x0040
	bmcrCtst      = 0x0080
	bmcrFulldplx  = 0x0100
	bmcrAnrestart = 0x0200
	bmcrIsolate   = 0x0400
	bmcrPdown     = 0x0800
	bmcrAnenable  = 0x1000
	bmcrSpeed100  = 0x2000
	bmcrLoopback  = 0x4000
	bmcrReset     = 0x8000

	bmsrErcap        = 0x0001
	bmsrJcd          = 0x0002
	bmsrLstatus      = 0x0004
	bmsrAnegcapable  = 0x0008
	bmsrRfault       = 0x0010
	bmsrAnegcomplete = 0x0020
	bmsrEstaten      = 0x0100
	bmsr100half2     = 0x0200
	bmsr100full2     = 0x0400
	bmsr10half       = 0x0800
	bmsr10full       = 0x1000
	bmsr100half      = 0x2000
	bmsr100full      = 0x4000
	bmsr100base4     = 0x8000
)

func printBool(name string, on bool) {
	if on {
		fmt.Printf("\x1b[1m+%s\x1b[0m", name)
	} else {
		fmt.Printf("-%s", name)
	}
}

func printFlags(indent string, val uint16, flags []struct {
	name string
	bit  uint16
}) {
	for i, f := range flags {
		if i > 0 {
			fmt.Print(" ")
		}
		printBool(f.name, val&f.bit != 0)
	}
	fmt.Print("\n" + indent)
}

func printPhyBmcr(val uint16) {
	speed := 10
	if val&bmcrSpeed100 != 0 {
		speed = 100
	}
	if val&bmcrSpeed1000 != 0 {
		speed = 1000
	}

	fmt.Printf("BMCR(0x00): %#4.4x\n", val)

	fmt.Print("  flags: ")
	printFlags("         ", val, []struct {
		name string
		bit  uint16
	}{
		{"reset", bmcrReset},
		{"loopback", bmcrLoopback},
		{"aneg-enable", bmcrAnenable},
		{"power-down", bmcrPdown},
		{"isolate", bmcrIsolate},
		{"aneg-restart", bmcrAnrestart},
	})
	printBool("collision-test", val&bmcrCtst != 0)
	fmt.Println()

	duplex := "half"
	if val&bmcrFulldplx != 0 {
		duplex = "full"
	}
	fmt.Printf("  speed: %d-%s\n", speed, duplex)
}

func printPhyBmsr(val uint16) {
	fmt.Printf("BMSR(0x01): %#4.4x\n", val)

	fmt.Print("  capabilities: ")
	printFlags("  flags:        ", val, []struct {
		name string
		bit  uint16
	}{
		{"100-t4", bmsr100base4},
		{"100-tx-f", bmsr100full},
		{"100-tx-h", bmsr100half},
		{"10-t-f", bmsr10full},
		{"10-t-h", bmsr10half},
		{"100-t2-f", bmsr100full2},
		{"100-t2-h", bmsr100half2},
	})
	printFlags("                ", val, []struct {
		name string
		bit  uint16
	}{
		{"ext-status", bmsrEstaten},
		{"aneg-complete", bmsrAnegcomplete},
		{"remote-fault", bmsrRfault},
		{"aneg-capable", bmsrAnegcapable},
		{"link", bmsrLstatus},
	})
	printBool("jabber", val&bmsrJcd != 0)
	fmt.Print(" ")
	printBool("ext-register", val&bmsrErcap != 0)
	fmt.Println()
}

func printPhyID(idHi, idLo uint16) {
	fmt.Printf("ID(0x02/0x03): %#8.8x\n", uint32(idHi)<<16|uint32(idLo))
}
