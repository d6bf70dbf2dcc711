package main

import (
	"errors"
	"fmt"

	"github.com/srg/rangelink/internal/device"
)

// Command-level errors
var (
	// ErrMalformedFrames is returned by decode when at least one frame failed to parse
	ErrMalformedFrames = errors.New("malformed frames")
)

// FormatUserError renders err as a message for the terminal
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, device.ErrNotInitialized):
		return fmt.Sprintf("Bluetooth adapter is not available (%v). Check that the adapter is present and that you have permission to use it.", err)
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("%v. Run on Linux or macOS.", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s. Check that the server is running the same service and characteristic ids.", notFound.Error())
	default:
		return err.Error()
	}
}
