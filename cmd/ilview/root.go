package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/meta"
	"github.com/skdltmxn/ilmeta/metaroot"
)

var (
	outputFile string
	configFile string
	refDirs    []string
	tolerant   bool
	verbose    bool
	noColor    bool

	output   io.Writer
	loadOpts meta.LoadOptions
)

var rootCmd = &cobra.Command{
	Use:   "ilview",
	Short: "CLI metadata viewer and analyzer",
	Long: `ilview is a command-line tool for viewing and analyzing the
metadata of .NET assemblies (ECMA-335 metadata roots).

Files may be PE images with a CLI header or bare metadata roots.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		if verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			meta.SetLogger(l)
		}

		loadOpts = meta.DefaultLoadOptions()
		if configFile != "" {
			opts, err := meta.LoadConfig(configFile)
			if err != nil {
				return err
			}
			loadOpts = opts
		}
		loadOpts.SearchPaths = append(loadOpts.SearchPaths, refDirs...)
		if tolerant {
			loadOpts.IgnoreErrors = true
		}

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
			color.NoColor = true
		} else {
			output = color.Output
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
		_ = meta.Logger().Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	flags.StringVarP(&configFile, "config", "c", "", "read load options from a TOML file")
	flags.StringSliceVarP(&refDirs, "ref", "r", nil, "directory to search for referenced assemblies (repeatable)")
	flags.BoolVarP(&tolerant, "tolerant", "t", false, "keep loading when references cannot be resolved")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log loader activity to stderr")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(checkCmd)
}

// openImage loads a single file into a fresh context.
func openImage(path string) (*metaroot.File, *meta.Image, error) {
	root, err := metaroot.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	c, err := meta.NewContext(loadOpts)
	if err != nil {
		return nil, nil, err
	}
	img, err := c.LoadImage(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return root, img, nil
}

var (
	headerColor = color.New(color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)
