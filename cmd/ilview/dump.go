package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/meta"
	"github.com/skdltmxn/ilmeta/metaroot"
)

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Dump all metadata information",
	Long: `Dump all information from a metadata root in structured format.

Supported formats:
  - text: Human-readable text (default)
  - json: JSON format
  - msgpack: MessagePack binary format`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format (text, json, msgpack)")
}

func runDump(cmd *cobra.Command, args []string) error {
	path := args[0]

	root, img, err := openImage(path)
	if err != nil {
		return err
	}

	switch dumpFormat {
	case "json":
		encoder := json.NewEncoder(output)
		encoder.SetIndent("", "  ")
		return encoder.Encode(buildDump(path, root, img))
	case "msgpack":
		return msgpack.NewEncoder(output).Encode(buildDump(path, root, img))
	case "text":
		return dumpText(path, root, img)
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

type ImageDump struct {
	File     string       `json:"file" msgpack:"file"`
	Runtime  string       `json:"runtime" msgpack:"runtime"`
	Module   string       `json:"module,omitempty" msgpack:"module,omitempty"`
	MVID     string       `json:"mvid,omitempty" msgpack:"mvid,omitempty"`
	Assembly string       `json:"assembly,omitempty" msgpack:"assembly,omitempty"`
	Version  string       `json:"version,omitempty" msgpack:"version,omitempty"`
	Streams  []StreamDump `json:"streams" msgpack:"streams"`
	Tables   []TableDump  `json:"tables" msgpack:"tables"`
	Types    []TypeDump   `json:"types" msgpack:"types"`
}

type StreamDump struct {
	Name string `json:"name" msgpack:"name"`
	Size uint32 `json:"size" msgpack:"size"`
}

type TableDump struct {
	Name    string `json:"name" msgpack:"name"`
	Rows    uint32 `json:"rows" msgpack:"rows"`
	RowSize int    `json:"row_size" msgpack:"row_size"`
	Sorted  bool   `json:"sorted,omitempty" msgpack:"sorted,omitempty"`
}

type TypeDump struct {
	Token   uint32       `json:"token" msgpack:"token"`
	Kind    string       `json:"kind" msgpack:"kind"`
	Name    string       `json:"name" msgpack:"name"`
	Extends string       `json:"extends,omitempty" msgpack:"extends,omitempty"`
	Members []MemberDump `json:"members,omitempty" msgpack:"members,omitempty"`
}

type MemberDump struct {
	Token     uint32 `json:"token" msgpack:"token"`
	Kind      string `json:"kind" msgpack:"kind"`
	Name      string `json:"name" msgpack:"name"`
	Signature string `json:"signature,omitempty" msgpack:"signature,omitempty"`
}

func buildDump(path string, root *metaroot.File, img *meta.Image) *ImageDump {
	dump := &ImageDump{File: path, Runtime: root.Header().Version}
	if m := img.Module(); m != nil {
		dump.Module = m.Name()
		dump.MVID = m.MVID().String()
	}
	if a := img.Assembly(); a != nil {
		dump.Assembly = a.Name()
		dump.Version = a.Version().String()
	}

	for _, name := range root.Directory().Names() {
		sh, _ := root.Directory().Lookup(name)
		dump.Streams = append(dump.Streams, StreamDump{Name: name, Size: sh.Size})
	}

	s := img.Tables()
	for _, k := range table.Kinds() {
		if n := s.RowCount(k); n > 0 {
			dump.Tables = append(dump.Tables, TableDump{
				Name:    k.String(),
				Rows:    n,
				RowSize: s.Layout.RowSize(k),
				Sorted:  s.IsSorted(k),
			})
		}
	}

	for cls := range img.Classes() {
		td := TypeDump{
			Token: uint32(cls.Token()),
			Kind:  classKind(cls),
			Name:  cls.FullName(),
		}
		if p := cls.Parent(); p != nil {
			td.Extends = p.FullName()
		}
		for m := range cls.Members() {
			md := MemberDump{
				Token: uint32(m.Item().Token()),
				Kind:  m.MemberKind().String(),
				Name:  m.Name(),
			}
			if sig := m.Signature(); sig != nil {
				md.Signature = sig.String()
			}
			td.Members = append(td.Members, md)
		}
		dump.Types = append(dump.Types, td)
	}
	return dump
}

func dumpText(path string, root *metaroot.File, img *meta.Image) error {
	headerColor.Fprintln(output, "=== Metadata Information ===")
	printInfo(path, root, img)

	fmt.Fprintln(output)
	headerColor.Fprintln(output, "=== Types ===")
	typesLimit = 0
	if err := printTypes(img); err != nil {
		return err
	}

	fmt.Fprintln(output)
	headerColor.Fprintln(output, "=== Type Details ===")
	for cls := range img.Classes() {
		printClass(cls)
		fmt.Fprintln(output)
	}
	return nil
}
