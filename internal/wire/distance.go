// Package wire encodes and decodes the text frames exchanged over the link characteristic.
//
// The peripheral notifies "Distance: <value> cm" with exactly two decimals; the central writes
// "Time since boot: <seconds>" as a heartbeat. Frames carry no length, version or checksum, so
// decoding reports malformed input as an error and leaves the fallback to the caller.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	distancePrefix = "Distance: "
	valueDelimiter = ": "
	unitDelimiter  = " cm"
)

// ErrMalformed is matched by every decoding failure
var ErrMalformed = errors.New("malformed frame")

// DecodeError describes why a frame could not be decoded
type DecodeError struct {
	Frame  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame %q: %s: %v", e.Frame, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed frame %q: %s", e.Frame, e.Reason)
}

// Is makes errors.Is(err, ErrMalformed) true for any DecodeError
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FormatDistance renders a denoised distance as a notify payload
func FormatDistance(cm float64) string {
	return fmt.Sprintf("%s%.2f%s", distancePrefix, cm, unitDelimiter)
}

// EncodeDistance is FormatDistance as bytes
func EncodeDistance(cm float64) []byte {
	return []byte(FormatDistance(cm))
}

// DecodeDistance extracts the number between the first ": " and the first " cm" of the frame.
// Both delimiters are searched over the whole frame, so a " cm" ahead of the value makes the
// frame malformed. The payload is read as a C string: anything from the first NUL byte on is ignored.
func DecodeDistance(raw []byte) (float64, error) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	frame := string(raw)

	start := strings.Index(frame, valueDelimiter)
	if start < 0 {
		return 0, &DecodeError{Frame: frame, Reason: "missing value delimiter"}
	}
	start += len(valueDelimiter)

	end := strings.Index(frame, unitDelimiter)
	if end < 0 {
		return 0, &DecodeError{Frame: frame, Reason: "missing unit delimiter"}
	}
	if end < start {
		return 0, &DecodeError{Frame: frame, Reason: "unit delimiter precedes value"}
	}

	text := strings.TrimSpace(frame[start:end])
	if text == "" {
		return 0, &DecodeError{Frame: frame, Reason: "empty value"}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &DecodeError{Frame: frame, Reason: "value is not numeric", Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &DecodeError{Frame: frame, Reason: "value is not finite"}
	}
	return v, nil
}

// ParseDistance decodes raw and substitutes the zero sentinel for malformed frames.
// It never fails.
func ParseDistance(raw []byte) float64 {
	v, err := DecodeDistance(raw)
	if err != nil {
		return 0
	}
	return v
}
