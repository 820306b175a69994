package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cordoba-data/program-dashboard/internal/kpi"
)

var programAliases = map[string]string{
	"ppp":        kpi.ProgramPrimerPaso,
	"primerpaso": kpi.ProgramPrimerPaso,
	"empleo26":   kpi.ProgramEmpleo26,
	"empleo+26":  kpi.ProgramEmpleo26,
}

func newCupoCmd() *cobra.Command {
	var (
		employees int64
		employer  string
		program   string
	)
	cmd := &cobra.Command{
		Use:   "cupo",
		Short: "Compute the hiring quota of a company",
		Example: `  dashctl cupo --employees 40 --program ppp
  dashctl cupo --employees 0 --employer N --program "EMPLEO +26"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if employees < 0 {
				return errors.New("--employees must not be negative")
			}
			employer = strings.ToUpper(strings.TrimSpace(employer))
			if employer != "S" && employer != "N" {
				return fmt.Errorf("--employer must be S or N, got %q", employer)
			}
			p := strings.TrimSpace(program)
			if alias, ok := programAliases[strings.ToLower(strings.ReplaceAll(p, " ", ""))]; ok {
				p = alias
			}
			if p != kpi.ProgramPrimerPaso && p != kpi.ProgramEmpleo26 {
				return fmt.Errorf("unknown program %q", program)
			}
			fmt.Fprintln(cmd.OutOrStdout(), kpi.Cupo(employees, employer, p))
			return nil
		},
	}
	cmd.Flags().Int64Var(&employees, "employees", 0, "number of employees")
	cmd.Flags().StringVar(&employer, "employer", "S", "S if the company has employees of record, N otherwise")
	cmd.Flags().StringVar(&program, "program", "", "program name or alias (ppp, empleo26)")
	cmd.MarkFlagRequired("program")
	return cmd
}
