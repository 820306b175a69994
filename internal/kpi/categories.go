// Package kpi holds the deterministic aggregations shared by the program
// views. Every function checks the columns it reads and returns an error
// wrapping table.ErrMissingColumn instead of assuming them.
package kpi

import (
	"errors"
	"fmt"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// State identifier columns.
const (
	ColLoanState  = "ID_ESTADO_PRESTAMO"
	ColFormState  = "ID_ESTADO_FORMULARIO"
	ColFichaState = "ID_EST_FIC"
	ColEmployer   = "ID_EMP"
)

// Category is a named set of state identifiers. When RequireNonNull is set a
// row only counts if that column is also non-null.
type Category struct {
	Name           string
	States         []int64
	RequireNonNull string
}

// Banco de la Gente, whole loan book (ID_ESTADO_PRESTAMO).
var BancoGlobal = []Category{
	{Name: "En Evaluación", States: []int64{1, 2, 5}},
	{Name: "Rechazados", States: []int64{3, 6, 7, 15, 23}},
	{Name: "A Pagar", States: []int64{4, 9, 10, 11, 12, 13, 19, 20}},
}

// Banco de la Gente, recupero. Pagados includes Finalizados (7).
var BancoRecupero = []Category{
	{Name: "Pagados", States: []int64{13, 14, 15, 16, 17, 18, 20, 21, 7}},
	{Name: "Créditos con Deuda", States: []int64{21}},
	{Name: "Impagos/Bajas", States: []int64{23, 22}},
	{Name: "Finalizados", States: []int64{7}},
}

// Banco de la Gente, form rejections (ID_ESTADO_FORMULARIO).
var BancoRechazos = []Category{
	{Name: "Rechazo", States: []int64{4, 33, 18, 14, 17, 20, 30, 31, 32, 35, 13, 28, 29, 36, 22}},
	{Name: "Desistido", States: []int64{6}},
}

// Empleo +26 fichas (ID_EST_FIC).
var EmpleoFichas = []Category{
	{Name: "Rechazados", States: []int64{4}},
	{Name: "Empresa No Apta", States: []int64{2}},
	{Name: "Fuera de Cupo", States: []int64{5}},
	{Name: "Beneficiarios", States: []int64{3}},
	{Name: "Match", States: []int64{8}},
	{Name: "CTI Inscripto", States: []int64{12}, RequireNonNull: ColEmployer},
	{Name: "CTI Válidos", States: []int64{13}},
	{Name: "CTI Beneficiarios", States: []int64{14}},
}

// Count returns the number of rows whose state is in cat. Categories are
// counted independently; overlapping sets count a row once per category.
func Count(t *table.Table, column string, cat Category) (int, error) {
	c, err := t.Require(column)
	if err != nil {
		return 0, err
	}
	var guard *table.Column
	if cat.RequireNonNull != "" {
		if guard, err = t.Require(cat.RequireNonNull); err != nil {
			return 0, fmt.Errorf("category %s: %w", cat.Name, err)
		}
	}
	in := make(map[int64]bool, len(cat.States))
	for _, s := range cat.States {
		in[s] = true
	}
	n := 0
	for i := 0; i < t.NumRows(); i++ {
		v, ok := c.Int(i)
		if !ok || !in[v] {
			continue
		}
		if guard != nil && guard.IsNull(i) {
			continue
		}
		n++
	}
	return n, nil
}

// CountStates counts every category of cats over column. Categories whose
// columns are missing count 0 and are reported in the joined error.
func CountStates(t *table.Table, column string, cats []Category) (map[string]int, error) {
	out := make(map[string]int, len(cats))
	var errs []error
	seen := map[string]bool{}
	for _, cat := range cats {
		n, err := Count(t, column, cat)
		if err != nil {
			if msg := err.Error(); !seen[msg] {
				seen[msg] = true
				errs = append(errs, err)
			}
		}
		out[cat.Name] = n
	}
	return out, errors.Join(errs...)
}
