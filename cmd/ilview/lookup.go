package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/meta"
)

var lookupFold bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <file> <query>",
	Short: "Look up types or items by name or token",
	Long: `Look up a type or any other item in a metadata root.

Query can be:
  - Type name: lookup app.dll System.String
  - Nested type: lookup app.dll App.Widget/Part
  - Token: lookup app.dll 0x06000012`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().BoolVarP(&lookupFold, "ignore-case", "i", false, "match type names case-insensitively")
}

func runLookup(cmd *cobra.Command, args []string) error {
	_, img, err := openImage(args[0])
	if err != nil {
		return err
	}
	query := args[1]

	if strings.HasPrefix(query, "0x") || strings.HasPrefix(query, "0X") {
		v, err := strconv.ParseUint(query[2:], 16, 32)
		if err != nil {
			return fmt.Errorf("invalid token: %s", query)
		}
		it, err := img.Get(table.Token(v))
		if err != nil {
			return err
		}
		printItem(it)
		return nil
	}

	cls, ok := findClass(img, query)
	if !ok {
		warnColor.Fprintf(output, "No type found matching: %s\n", query)
		return nil
	}
	printClass(cls)
	return nil
}

// findClass resolves a dotted name with optional /-separated nested names.
func findClass(img *meta.Image, query string) (*meta.Class, bool) {
	parts := strings.Split(query, "/")
	ns, name := "", parts[0]
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ns, name = name[:i], name[i+1:]
	}

	var cls *meta.Class
	var ok bool
	if lookupFold {
		cls, ok = img.LookupClassFold(ns, name)
	} else {
		cls, ok = img.LookupClass(ns, name)
	}
	for _, nested := range parts[1:] {
		if !ok {
			break
		}
		ok = false
		for _, n := range cls.NestedClasses() {
			if n.Name() == nested || lookupFold && strings.EqualFold(n.Name(), nested) {
				cls, ok = n, true
				break
			}
		}
	}
	return cls, ok
}

func printItem(it meta.Item) {
	switch v := it.(type) {
	case *meta.Class:
		printClass(v)
	case *meta.MemberRef:
		fmt.Fprintf(output, "MemberRef %s\n", v.Name())
		fmt.Fprintf(output, "  Token: %s\n", v.Token())
		fmt.Fprintf(output, "  Kind: %s\n", v.TargetKind())
		fmt.Fprintf(output, "  Signature: %s\n", v.Signature())
		if target, ok := v.Target(); ok {
			okColor.Fprintf(output, "  Resolves To: %s::%s\n", target.Owner().FullName(), target.Name())
		} else {
			warnColor.Fprintf(output, "  Resolves To: <unresolved>\n")
		}
	case meta.Member:
		fmt.Fprintf(output, "%s %s::%s\n", v.MemberKind(), v.Owner().FullName(), v.Name())
		fmt.Fprintf(output, "  Token: %s\n", v.Item().Token())
		fmt.Fprintf(output, "  Flags: 0x%04X\n", v.Flags())
		if sig := v.Signature(); sig != nil {
			fmt.Fprintf(output, "  Signature: %s\n", sig)
		}
	case *meta.TypeSpec:
		fmt.Fprintf(output, "TypeSpec %s\n", v.Type())
	case *meta.AssemblyRef:
		fmt.Fprintf(output, "AssemblyRef %s, Version=%s\n", v.Name(), v.Version())
	case *meta.ModuleRef:
		fmt.Fprintf(output, "ModuleRef %s\n", v.Name())
	case *meta.Attribute:
		fmt.Fprintf(output, "CustomAttribute on %s\n", v.Owner().Item().Token())
		if c := v.Class(); c != nil {
			fmt.Fprintf(output, "  Class: %s\n", c.FullName())
		}
		fmt.Fprintf(output, "  Value: % X\n", v.Value())
	default:
		fmt.Fprintf(output, "%T %s\n", it, it.Item().Token())
	}
}

func printClass(cls *meta.Class) {
	headerColor.Fprintf(output, "%s %s\n", classKind(cls), cls.FullName())
	fmt.Fprintf(output, "  Token: %s\n", cls.Token())
	fmt.Fprintf(output, "  Image: %s\n", cls.Image().Name())
	fmt.Fprintf(output, "  Flags: 0x%08X\n", cls.Flags())
	if p := cls.Parent(); p != nil {
		fmt.Fprintf(output, "  Extends: %s\n", p.FullName())
	}
	for _, i := range cls.Interfaces() {
		fmt.Fprintf(output, "  Implements: %s\n", i.Resolved().FullName())
	}
	for _, g := range cls.GenericParams() {
		fmt.Fprintf(output, "  Generic Parameter %d: %s", g.Number(), g.Name())
		if cs, err := g.Constraints(); err == nil && len(cs) > 0 {
			names := make([]string, len(cs))
			for i, c := range cs {
				names[i] = c.Resolved().FullName()
			}
			fmt.Fprintf(output, " : %s", strings.Join(names, ", "))
		}
		fmt.Fprintln(output)
	}
	for _, n := range cls.NestedClasses() {
		fmt.Fprintf(output, "  Nested: %s\n", n.Name())
	}

	fmt.Fprintln(output, "  Members:")
	for m := range cls.Members() {
		sig := ""
		if s := m.Signature(); s != nil {
			sig = s.String()
		}
		fmt.Fprintf(output, "    %-10s %-9s %s %s\n", m.Item().Token(), m.MemberKind(), m.Name(), sig)
	}
}
