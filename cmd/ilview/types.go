package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/ilmeta/meta"
)

var (
	typesNamespace string
	typesKind      string
	typesLimit     int
)

var typesCmd = &cobra.Command{
	Use:   "types <file>",
	Short: "List type definitions",
	Long: `List the type definitions of a metadata root.

Use --kind to filter by kind (class, interface, valuetype) and
--namespace to restrict the listing to one namespace.`,
	Args: cobra.ExactArgs(1),
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().StringVarP(&typesNamespace, "namespace", "n", "", "only list types in this namespace")
	typesCmd.Flags().StringVarP(&typesKind, "kind", "k", "", "filter by kind (class, interface, valuetype)")
	typesCmd.Flags().IntVarP(&typesLimit, "limit", "l", 0, "limit number of types shown (0 = unlimited)")
}

func runTypes(cmd *cobra.Command, args []string) error {
	_, img, err := openImage(args[0])
	if err != nil {
		return err
	}
	return printTypes(img)
}

func printTypes(img *meta.Image) error {
	switch kind := strings.ToLower(typesKind); kind {
	case "", "class", "interface", "valuetype":
		typesKind = kind
	default:
		return fmt.Errorf("unknown type kind: %s", typesKind)
	}

	headerColor.Fprintf(output, "%-10s %-10s %-8s %s\n", "TOKEN", "KIND", "MEMBERS", "NAME")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 80))

	count := 0
	for cls := range img.Classes() {
		if typesNamespace != "" && cls.Namespace() != typesNamespace {
			continue
		}
		kind := classKind(cls)
		if typesKind != "" && kind != typesKind {
			continue
		}

		members := 0
		for range cls.Members() {
			members++
		}
		fmt.Fprintf(output, "0x%08X %-10s %-8d %s\n", uint32(cls.Token()), kind, members, cls.FullName())
		count++
		if typesLimit > 0 && count >= typesLimit {
			break
		}
	}

	fmt.Fprintf(output, "\nTotal: %d types\n", count)
	return nil
}

func classKind(cls *meta.Class) string {
	switch {
	case cls.IsInterface():
		return "interface"
	case cls.IsValueType():
		return "valuetype"
	default:
		return "class"
	}
}
