package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/rangelink/internal/wire"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [frame...]",
	Short: "Decode distance frames offline",
	Long: `Decode "Distance: <value> cm" frames given as arguments, or one per line on stdin
when no arguments are given. Each frame prints its value in centimetres or the reason
it is malformed; the command fails if any frame is malformed.

With --policy, malformed frames are resolved the way the client would: "zero" prints
0.00 and "drop" omits the frame. The exit status still reports them.`,
	Example: `  rangelink decode "Distance: 12.50 cm"
  printf 'Distance: 8.00 cm\nDistance: x cm\n' | rangelink decode --policy zero`,
	RunE: runDecode,
}

var decodePolicy string

func init() {
	decodeCmd.Flags().StringVar(&decodePolicy, "policy", "", "Resolve malformed frames (zero, drop)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	var policy wire.MalformedPolicy
	if decodePolicy != "" {
		p, err := wire.ParseMalformedPolicy(decodePolicy)
		if err != nil {
			return err
		}
		policy = p
	}
	cmd.SilenceUsage = true

	frames := args
	if len(frames) == 0 {
		var err error
		frames, err = readFrames(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	malformed := 0
	for _, frame := range frames {
		cm, err := wire.DecodeDistance([]byte(frame))
		if err != nil {
			malformed++
		}

		switch {
		case err == nil:
			fmt.Fprintf(out, "%.2f\n", cm)
		case policy == "":
			fmt.Fprintf(out, "malformed: %v\n", err)
		default:
			if v, ok := policy.Resolve(cm, err); ok {
				fmt.Fprintf(out, "%.2f\n", v)
			}
		}
	}

	if malformed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrMalformedFrames, malformed, len(frames))
	}
	return nil
}

func readFrames(r io.Reader) ([]string, error) {
	var frames []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		frames = append(frames, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	return frames, nil
}
