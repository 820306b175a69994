package main

import (
	"fmt"
	"path"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cordoba-data/program-dashboard/internal/decode"
)

func newTreeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "List the recognised files of the data repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, src, log, err := openSource(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()

			paths, err := src.ListTree(cmd.Context())
			if err != nil {
				return fmt.Errorf("list %s: %w", src.Name(), err)
			}
			sort.Strings(paths)
			return printTree(cmd, paths, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also list files the dashboard ignores")
	return cmd
}

func printTree(cmd *cobra.Command, paths []string, all bool) error {
	out := cmd.OutOrStdout()
	n := 0
	for _, p := range paths {
		kind, ok := decode.KindOf(p)
		if !ok && !all {
			continue
		}
		if !ok {
			kind = "-"
		}
		n++
		fmt.Fprintf(out, "%-9s %-45s %s\n", kind, path.Base(p), p)
	}
	fmt.Fprintf(out, "%d of %d files\n", n, len(paths))
	return nil
}
