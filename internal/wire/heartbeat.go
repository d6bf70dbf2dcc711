package wire

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const heartbeatPrefix = "Time since boot: "

// FormatHeartbeat renders the central's liveness write: whole seconds since start
func FormatHeartbeat(uptime time.Duration) string {
	return fmt.Sprintf("%s%d", heartbeatPrefix, int64(uptime/time.Second))
}

// DecodeHeartbeat parses a heartbeat write back into an uptime
func DecodeHeartbeat(raw []byte) (time.Duration, error) {
	frame := string(raw)
	if !strings.HasPrefix(frame, heartbeatPrefix) {
		return 0, &DecodeError{Frame: frame, Reason: "missing heartbeat prefix"}
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(frame[len(heartbeatPrefix):]), 10, 64)
	if err != nil {
		return 0, &DecodeError{Frame: frame, Reason: "uptime is not an integer", Err: err}
	}
	if secs < 0 {
		return 0, &DecodeError{Frame: frame, Reason: "negative uptime"}
	}
	return time.Duration(secs) * time.Second, nil
}
