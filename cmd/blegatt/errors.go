package main

import (
	"errors"
	"fmt"

	"github.com/srg/blegatt/internal/gatt"
)

// FormatUserError turns session errors into actionable messages without the
// wrapped stack noise.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, gatt.ErrNotConnected):
		return "device is not connected - connect first and retry"
	case errors.Is(err, gatt.ErrAlreadyConnected):
		return "device is already connected"
	case errors.Is(err, gatt.ErrTimeout):
		return "operation timed out waiting for the device"
	case errors.Is(err, gatt.ErrSessionClosed):
		return "connection was torn down before the operation completed"
	case errors.Is(err, gatt.ErrOverwritten):
		return "operation was superseded by a newer request"
	}

	var notFound *gatt.NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Error() + " - run 'blegatt services' to list the device's topology"
	}

	if status, ok := gatt.StatusOf(err); ok {
		switch status.Category() {
		case gatt.CategoryUnreachable:
			return fmt.Sprintf("%s - check the device is powered on and advertising", err)
		case gatt.CategoryOutOfRange:
			return fmt.Sprintf("%s - move closer to the device and retry", err)
		case gatt.CategoryResourceExhausted:
			return fmt.Sprintf("%s - disconnect other clients and retry", err)
		}
	}

	return err.Error()
}
