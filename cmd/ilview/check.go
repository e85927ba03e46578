package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/skdltmxn/ilmeta/meta"
	"github.com/skdltmxn/ilmeta/metaroot"
)

var checkJobs int

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Load files as one batch and report unresolved references",
	Long: `Load several files together so that references between them,
including cycles, resolve against each other. Every image is reported with
the references it could not resolve.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVarP(&checkJobs, "jobs", "j", 4, "number of files read in parallel")
}

func runCheck(cmd *cobra.Command, args []string) error {
	roots, err := readRoots(cmd.Context(), args)
	if err != nil {
		return err
	}
	srcs := make([]meta.Source, len(roots))
	for i, r := range roots {
		srcs[i] = r
	}

	c, err := meta.NewContext(loadOpts)
	if err != nil {
		return err
	}
	defer c.Close()

	imgs, err := c.LoadBatch(srcs...)
	if err != nil {
		for _, e := range multierr.Errors(err) {
			errColor.Fprintf(output, "error: %v\n", e)
		}
		return fmt.Errorf("batch of %d files failed to load", len(args))
	}

	failed := 0
	for i, img := range imgs {
		diags := img.Diagnostics()
		if len(diags) == 0 {
			okColor.Fprintf(output, "ok   %s (%s)\n", img.Name(), args[i])
			continue
		}
		failed++
		warnColor.Fprintf(output, "warn %s (%s): %d unresolved\n", img.Name(), args[i], len(diags))
		for _, d := range diags {
			fmt.Fprintf(output, "       %v\n", d)
		}
	}
	fmt.Fprintf(output, "\n%d images, %d with unresolved references\n", len(imgs), failed)
	return nil
}

// readRoots reads and parses the files concurrently. Loading itself is
// sequential since a Context is not safe for concurrent use.
func readRoots(ctx context.Context, paths []string) ([]*metaroot.File, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	roots := make([]*metaroot.File, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(checkJobs, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			root, err := metaroot.Open(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			roots[i] = root
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return roots, nil
}
