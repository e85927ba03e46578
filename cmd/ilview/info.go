package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/meta"
	"github.com/skdltmxn/ilmeta/metaroot"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Display metadata root information",
	Long:  `Display general information about a metadata root including versions, streams, module identity and statistics.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]

	root, img, err := openImage(path)
	if err != nil {
		return err
	}
	printInfo(path, root, img)
	return nil
}

func printInfo(path string, root *metaroot.File, img *meta.Image) {
	h := root.Header()
	tables := img.Tables()

	fmt.Fprintf(output, "File: %s\n", path)
	fmt.Fprintf(output, "Runtime Version: %s\n", h.Version)
	fmt.Fprintf(output, "Root Version: %d.%d\n", h.MajorVersion, h.MinorVersion)
	fmt.Fprintf(output, "Table Stream Version: %d.%d\n", tables.Major, tables.Minor)
	fmt.Fprintf(output, "Metadata Size: %s\n", humanize.IBytes(uint64(root.Size())))

	fmt.Fprintf(output, "Streams:\n")
	for _, name := range root.Directory().Names() {
		sh, _ := root.Directory().Lookup(name)
		fmt.Fprintf(output, "  %-10s %s\n", name, humanize.IBytes(uint64(sh.Size)))
	}

	if m := img.Module(); m != nil {
		fmt.Fprintf(output, "Module: %s\n", m.Name())
		fmt.Fprintf(output, "MVID: %s\n", m.MVID())
	}
	if a := img.Assembly(); a != nil {
		fmt.Fprintf(output, "Assembly: %s, Version=%s\n", a.Name(), a.Version())
	}

	fmt.Fprintf(output, "Types: %s\n", humanize.Comma(int64(img.Count(table.KindTypeDef))))
	fmt.Fprintf(output, "Methods: %s\n", humanize.Comma(int64(img.Count(table.KindMethodDef))))
	fmt.Fprintf(output, "Fields: %s\n", humanize.Comma(int64(img.Count(table.KindField))))
	fmt.Fprintf(output, "Type References: %s\n", humanize.Comma(int64(img.Count(table.KindTypeRef))))
	fmt.Fprintf(output, "Member References: %s\n", humanize.Comma(int64(img.Count(table.KindMemberRef))))

	if len(tables.Dropped) > 0 {
		warnColor.Fprintf(output, "Skipped Tables: %v\n", tables.Dropped)
	}
	if diags := img.Diagnostics(); len(diags) > 0 {
		warnColor.Fprintf(output, "Unresolved References: %d\n", len(diags))
	}
}
