package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/gatt"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <service-uuid> <char-uuid> <data>",
	Short: "Write a value to a characteristic",
	Long: fmt.Sprintf(`Writes data to a characteristic. Data is taken literally unless --hex
is given, in which case it is decoded from a hex string first.

Examples:
  # Write a string value
  blegatt write %s ff30 ff31 hello

  # Write raw bytes from hex
  blegatt write %s ff30 ff31 01ff --hex

  # Write without response (fire and forget on the ATT layer)
  blegatt write %s ff30 ff31 01 --hex --no-response

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeHex        bool
	writeNoResponse bool
	writeTimeout    time.Duration
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Interpret data as a hex string (e.g., 'FF01')")
	writeCmd.Flags().BoolVar(&writeNoResponse, "no-response", false, "Use write-without-response")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 30*time.Second, "Connection timeout")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID := args[0], args[1], args[2]

	value := []byte(args[3])
	if writeHex {
		decoded, err := hex.DecodeString(args[3])
		if err != nil {
			return fmt.Errorf("invalid hex data %q: %w", args[3], err)
		}
		value = decoded
	}

	return withSession(cmd, address, writeTimeout, func(ctx context.Context, sess *gatt.Session) error {
		return sess.Write(ctx, serviceUUID, charUUID, value, !writeNoResponse)
	})
}
