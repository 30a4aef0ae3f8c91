package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/gatt"
	"github.com/srg/blegatt/internal/gatt/goble"
)

const (
	exampleDeviceAddress = "01234567-89AB-CDEF-0123-456789ABCDEF"
	deviceAddressNote    = "Device address format: 128-bit UUID, with or without dashes\n  Examples: 01234567-89AB-CDEF-0123-456789ABCDEF or 0123456789ABCDEF0123456789ABCDEF"
)

// withSession connects to the peripheral, discovers its services, runs fn,
// and tears the connection down no matter how fn exits. The context passed
// to fn is cancelled on Ctrl+C.
func withSession(cmd *cobra.Command, address string, connectTimeout time.Duration, fn func(ctx context.Context, sess *gatt.Session) error) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	transport := goble.NewTransport(logger, nil)
	sess := gatt.NewSession(address, transport, logger, nil)

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	defer connectCancel()
	if err := sess.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer func() { _ = sess.Disconnect() }()

	if err := sess.DiscoverServices(ctx); err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	return fn(ctx, sess)
}
