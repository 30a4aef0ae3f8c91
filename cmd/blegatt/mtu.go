package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/gatt"
)

// mtuCmd represents the mtu command
var mtuCmd = &cobra.Command{
	Use:   "mtu <device-address> [size]",
	Short: "Negotiate the ATT MTU",
	Long: fmt.Sprintf(`Requests an ATT MTU exchange and prints the negotiated value. Without
an explicit size the default ceiling of %d is requested.

Examples:
  # Request the default MTU
  blegatt mtu %s

  # Request a specific MTU
  blegatt mtu %s 185

%s`, gatt.DefaultMTU, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runMTU,
}

var mtuTimeout time.Duration

func init() {
	mtuCmd.Flags().DurationVar(&mtuTimeout, "timeout", 30*time.Second, "Connection timeout")
}

func runMTU(cmd *cobra.Command, args []string) error {
	address := args[0]

	requested := gatt.DefaultMTU
	if len(args) == 2 {
		size, err := strconv.Atoi(args[1])
		if err != nil || size <= 0 {
			return fmt.Errorf("invalid MTU size %q: must be a positive integer", args[1])
		}
		requested = size
	}

	return withSession(cmd, address, mtuTimeout, func(ctx context.Context, sess *gatt.Session) error {
		negotiated, err := sess.RequestMTU(ctx, requested)
		if err != nil {
			return err
		}
		fmt.Printf("mtu: %d\n", negotiated)
		return nil
	})
}
