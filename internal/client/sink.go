package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/srg/rangelink/internal/aggregate"
)

// Sink receives the aggregate after every accepted reading
type Sink interface {
	Publish(ctx context.Context, snap aggregate.Snapshot) error
}

// Output formats supported by WriterSink
const (
	FormatText = "text"
	FormatJSON = "json"
)

// WriterSink prints snapshots as text lines or JSON lines
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

// NewWriterSink returns a sink for format "text" or "json"
func NewWriterSink(w io.Writer, format string) (*WriterSink, error) {
	switch format {
	case FormatText, FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported output format %q: use %s or %s", format, FormatText, FormatJSON)
	}
	return &WriterSink{w: w, format: format}, nil
}

func (s *WriterSink) Publish(_ context.Context, snap aggregate.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatJSON {
		raw, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(s.w, "%s\n", raw)
		return err
	}
	_, err := fmt.Fprintln(s.w, snap.String())
	return err
}
