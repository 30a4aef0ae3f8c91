package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/gatt"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <service-uuid> <char-uuid>",
	Short: "Read a characteristic value",
	Long: fmt.Sprintf(`Reads the value of a characteristic and writes it to stdout.

Examples:
  # Read Battery Level
  blegatt read %s 180f 2a19

  # Read Heart Rate Control Point as hex
  blegatt read %s 180d 2a39 --hex

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var (
	readHex     bool
	readTimeout time.Duration
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'FF01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 30*time.Second, "Connection timeout")
}

func runRead(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID := args[0], args[1], args[2]

	return withSession(cmd, address, readTimeout, func(ctx context.Context, sess *gatt.Session) error {
		data, err := sess.Read(ctx, serviceUUID, charUUID)
		if err != nil {
			return err
		}
		return outputData(data, readHex)
	})
}

// outputData writes a characteristic value to stdout, hex-encoded or raw.
func outputData(data []byte, asHex bool) error {
	if asHex {
		fmt.Println(hex.EncodeToString(data))
		return nil
	}
	_, err := os.Stdout.Write(data)
	return err
}
