package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/ilmeta/internal/table"
)

var tablesEmpty bool

var tablesCmd = &cobra.Command{
	Use:   "tables <file>",
	Short: "List metadata tables with row counts and sizes",
	Args:  cobra.ExactArgs(1),
	RunE:  runTables,
}

func init() {
	tablesCmd.Flags().BoolVarP(&tablesEmpty, "all", "a", false, "include empty tables")
}

func runTables(cmd *cobra.Command, args []string) error {
	_, img, err := openImage(args[0])
	if err != nil {
		return err
	}
	s := img.Tables()

	headerColor.Fprintf(output, "%-4s %-24s %-8s %-8s %-10s %s\n", "ID", "TABLE", "ROWS", "ROWSIZE", "SIZE", "SORTED")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 70))

	var total uint64
	for _, k := range table.Kinds() {
		n := s.RowCount(k)
		if n == 0 && !tablesEmpty {
			continue
		}
		size := uint64(s.Layout.TableSize(k))
		total += size
		sorted := ""
		if s.IsSorted(k) {
			sorted = "yes"
		}
		fmt.Fprintf(output, "0x%02X %-24s %-8d %-8d %-10s %s\n",
			uint8(k), k, n, s.Layout.RowSize(k), humanize.IBytes(size), sorted)
	}

	fmt.Fprintf(output, "\nTotal: %s of rows\n", humanize.IBytes(total))
	return nil
}
