package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/smazurov/v4l2cast/internal/nal"
)

// CreateSplitCmd creates the split command.
func CreateSplitCmd() *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "split [file]",
		Short: "List the NAL units of an Annex-B file",
		Long: `Splits an H.264 Annex-B byte stream at its start codes and prints the offset, ` +
			`type and size of every unit. Reads stdin when the file is - or omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			return printUnits(cmd.OutOrStdout(), data, summary)
		},
	}

	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "Print unit counts per type instead of every unit")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// printUnits writes one line per unit, or per unit type when summary is set.
// The offset is that of the unit's start code.
func printUnits(out io.Writer, data []byte, summary bool) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	counts := map[nal.UnitType]int{}
	sizes := map[nal.UnitType]int{}
	s := nal.NewSplitter(data)
	var splitErr error
	for {
		offset := len(data) - s.Remaining()
		unit, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			splitErr = fmt.Errorf("split at offset %d: %w", offset, err)
			break
		}
		t := nal.Type(unit)
		counts[t]++
		sizes[t] += len(unit)
		if !summary {
			fmt.Fprintf(w, "%10d  %-14s %8d\n", offset, t, len(unit))
		}
	}

	if summary {
		types := make([]nal.UnitType, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			fmt.Fprintf(w, "%-14s %8d units %10d bytes\n", t, counts[t], sizes[t])
		}
	}

	return splitErr
}
