package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cordoba-data/program-dashboard/internal/loader"
	"github.com/cordoba-data/program-dashboard/internal/views"
)

func newViewCmd() *cobra.Command {
	var (
		pretty   bool
		progress bool
	)
	cmd := &cobra.Command{
		Use:       "view <banco|capacita|empleo>",
		Short:     "Build the catalogue and print one program view as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(views.Banco), string(views.Capacita), string(views.Empleo)},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := views.ParseProgram(args[0])
			if err != nil {
				return err
			}
			cfg, src, log, err := openSource(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()

			opts := []loader.Option{loader.WithConcurrency(cfg.DataRepo.Concurrency)}
			if progress {
				errOut := cmd.ErrOrStderr()
				opts = append(opts, loader.WithProgress(func(done, total int, path string) {
					fmt.Fprintf(errOut, "[%d/%d] %s\n", done, total, path)
				}))
			}
			cat, err := loader.New(src, log, opts...).Build(cmd.Context())
			if err != nil {
				return err
			}

			v, err := views.NewBuilder(views.WithLocation(cfg.Location()), views.WithLogger(log)).Build(cat, p)
			if err != nil {
				return err
			}
			return writeView(cmd, v, pretty)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().BoolVar(&progress, "progress", false, "report fetch progress on stderr")
	return cmd
}

func writeView(cmd *cobra.Command, v *views.ProgramView, pretty bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	if v.LastUpdate != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "last update %s\n", v.LastUpdate.Format(time.RFC3339))
	}
	return nil
}
