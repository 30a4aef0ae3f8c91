package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/gatt"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <service-uuid> <char-uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: fmt.Sprintf(`Enables notifications on a characteristic and streams received values
to stdout until Ctrl+C or the connection drops.

Examples:
  # Stream Heart Rate Measurement notifications
  blegatt subscribe %s 180d 2a37

  # Stream as hex
  blegatt subscribe %s 180d 2a37 --hex

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeHex     bool
	subscribeTimeout time.Duration
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; raw bytes by default")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 30*time.Second, "Connection timeout")
}

// printSink writes each notification as one output line.
type printSink struct {
	hex bool
}

func (s *printSink) HandleNotification(n gatt.Notification) {
	data, err := base64.StdEncoding.DecodeString(n.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: malformed payload: %v\n", n.CharacteristicUUID, err)
		return
	}
	if s.hex {
		fmt.Println(hex.EncodeToString(data))
		return
	}
	_, _ = os.Stdout.Write(data)
	fmt.Println()
}

// cancelOnDisconnect unblocks the wait loop when the peripheral drops the link.
type cancelOnDisconnect struct {
	cancel context.CancelFunc
}

func (s *cancelOnDisconnect) HandleDeviceEvent(event gatt.LifecycleEvent, _ string) {
	if event == gatt.DeviceDisconnected {
		s.cancel()
	}
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID := args[0], args[1], args[2]

	return withSession(cmd, address, subscribeTimeout, func(ctx context.Context, sess *gatt.Session) error {
		waitCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		sess.SetNotificationSink(&printSink{hex: subscribeHex})
		sess.SetEventSink(&cancelOnDisconnect{cancel: cancel})

		if err := sess.Subscribe(ctx, serviceUUID, charUUID, true); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Subscribed to %s. Press Ctrl+C to stop...\n", charUUID)
		<-waitCtx.Done()

		// Best-effort disable; the link may already be gone.
		disableCtx, disableCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer disableCancel()
		_ = sess.Subscribe(disableCtx, serviceUUID, charUUID, false)
		return nil
	})
}
