package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/gatt"
)

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services <device-address>",
	Short: "List services, characteristics, and descriptors",
	Long: fmt.Sprintf(`Connects to a peripheral, discovers its GATT topology, and prints it
in discovery order.

Examples:
  # List the full topology
  blegatt services %s

  # With a shorter connection timeout
  blegatt services %s --timeout 10s

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runServices,
}

var servicesTimeout time.Duration

func init() {
	servicesCmd.Flags().DurationVar(&servicesTimeout, "timeout", 30*time.Second, "Connection timeout")
}

func runServices(cmd *cobra.Command, args []string) error {
	address := args[0]

	return withSession(cmd, address, servicesTimeout, func(ctx context.Context, sess *gatt.Session) error {
		printTopology(sess)
		return nil
	})
}

func printTopology(sess *gatt.Session) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Printf("Device %s (bonded: %v, mtu: %d)\n", sess.Address(), sess.IsBonded(), sess.MTU())

	for _, svc := range sess.Services() {
		kind := "secondary"
		if svc.Primary {
			kind = "primary"
		}
		fmt.Printf("%s %s (%s)\n", green.Sprint("service"), cyan.Sprint(svc.UUID), kind)

		for _, char := range svc.Characteristics {
			fmt.Printf("  %s %s [%s]\n", green.Sprint("characteristic"), cyan.Sprint(char.UUID), yellow.Sprint(char.Properties.String()))
			for _, desc := range char.Descriptors {
				fmt.Printf("    descriptor %s\n", cyan.Sprint(desc))
			}
		}
	}
}
