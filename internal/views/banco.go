package views

import (
	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/kpi"
	"github.com/cordoba-data/program-dashboard/internal/normalize"
	"github.com/cordoba-data/program-dashboard/internal/table"
)

// Banco de la Gente files.
const (
	FileBancoGlobal     = "vt_nomina_rep_dpto_localidad.parquet"
	FileBancoRecupero   = "VT_NOMINA_REP_RECUPERO_X_ANIO.parquet"
	FileBancoDebt       = "Detalle_recupero.csv"
	FileBancoPopulation = "poblacion_departamentos.txt"
)

// Banco de la Gente scalars outside the category sets.
const (
	ScalarForms           = "Formularios"
	ScalarFormsLast24h    = "Formularios últimas 24 hs"
	ScalarVentures        = "Emprendimientos"
	ScalarRecuperoForms   = "Formularios recupero"
	ScalarRecuperoLast24h = "Recupero últimas 24 hs"
	ScalarDebtTotal       = "Deuda Total"
	ScalarDebtOverdue     = "Deuda Vencida"
	ScalarDebtNotOverdue  = "Deuda No Vencida"
	ScalarDebtPrescribed  = "Deuda Prescripta"
)

const (
	colLocality           = "N_LOCALIDAD"
	colDepartmentName     = "N_DEPARTAMENTO"
	colPopulation         = "POBLACION"
	colCreditsPerThousand = "CREDITOS_CADA_1000"
	colVentureName        = "NOMBRE_EMPRENDIMIENTO"
	colCUIL               = "CUIL"
	colCUIT               = "CUIT"
	colDNI                = "DNI"

	primaryBancoGlobal   = "FECHA_INGRESO"
	primaryBancoRecupero = "FEC_FORM"

	seriesBancoMonthly    = "formularios_por_mes"
	seriesRecuperoMonthly = "recupero_por_mes"
	tableTopLocalities    = "top_localidades"
	tableChoropleth       = "departamentos"
	layerDepartments      = "departamentos"

	topN = 10
)

// ventureKey identifies an entrepreneurship.
var ventureKey = []string{colCUIL, colDNI, colVentureName}

var bancoGlobalRules = normalize.Rules{
	Primary:     primaryBancoGlobal,
	Identifiers: []string{colCUIL, colCUIT},
}

var bancoRecuperoRules = normalize.Rules{
	Primary:     primaryBancoRecupero,
	Identifiers: []string{colCUIL, colCUIT},
}

var bancoDebtRules = normalize.Rules{
	Numeric: []string{
		kpi.ColDebtTotal, kpi.ColDebtOverdue, kpi.ColDebtNotOverdue, kpi.ColDebtPrescribed, "DEUDA",
	},
	Identifiers: []string{colCUIL, colCUIT},
}

var bancoPopulationRules = normalize.Rules{
	Numeric: []string{colPopulation},
}

// Banco builds the Banco de la Gente view.
func (b *Builder) Banco(cat *catalog.Catalogue) *ProgramView {
	a := newAssembly(cat, Banco)
	now := b.wallNow()

	// Whole loan book.
	a.zero(ScalarForms, ScalarFormsLast24h, ScalarVentures)
	a.zero(names(kpi.BancoGlobal)...)
	global, haveGlobal := a.table(FileBancoGlobal, bancoGlobalRules)
	if haveGlobal {
		a.scalar(ScalarForms, float64(global.NumRows()))

		counts, err := kpi.CountStates(global, kpi.ColLoanState, kpi.BancoGlobal)
		a.check(FileBancoGlobal, err)
		a.counts(counts)

		n, err := kpi.Last24h(global, primaryBancoGlobal, now)
		a.check(FileBancoGlobal, err)
		a.scalar(ScalarFormsLast24h, float64(n))

		if global.Has(ventureKey...) {
			a.scalar(ScalarVentures, float64(normalize.Dedup(global, ventureKey...).NumRows()))
		}

		if points, err := kpi.Monthly(global, primaryBancoGlobal); err == nil {
			a.v.Series[seriesBancoMonthly] = kpi.SeriesTable(points)
		}

		top, err := kpi.TopN(global, colLocality, topN)
		a.check(FileBancoGlobal, err)
		if err == nil {
			a.v.Tables[tableTopLocalities] = kpi.GroupTable(colLocality, top)
		}
	}

	// Recupero: loan states and form rejections.
	a.zero(ScalarRecuperoForms, ScalarRecuperoLast24h)
	a.zero(names(kpi.BancoRecupero)...)
	a.zero(names(kpi.BancoRechazos)...)
	if rec, ok := a.table(FileBancoRecupero, bancoRecuperoRules); ok {
		a.scalar(ScalarRecuperoForms, float64(rec.NumRows()))

		counts, err := kpi.CountStates(rec, kpi.ColLoanState, kpi.BancoRecupero)
		a.check(FileBancoRecupero, err)
		a.counts(counts)

		counts, err = kpi.CountStates(rec, kpi.ColFormState, kpi.BancoRechazos)
		a.check(FileBancoRecupero, err)
		a.counts(counts)

		n, err := kpi.Last24h(rec, primaryBancoRecupero, now)
		a.check(FileBancoRecupero, err)
		a.scalar(ScalarRecuperoLast24h, float64(n))

		if points, err := kpi.Monthly(rec, primaryBancoRecupero); err == nil {
			a.v.Series[seriesRecuperoMonthly] = kpi.SeriesTable(points)
		}
	}

	// Debt roll-up.
	a.zero(ScalarDebtTotal, ScalarDebtOverdue, ScalarDebtNotOverdue, ScalarDebtPrescribed)
	if debt, ok := a.table(FileBancoDebt, bancoDebtRules); ok {
		d, err := kpi.Debts(debt)
		a.check(FileBancoDebt, err)
		a.scalar(ScalarDebtTotal, d.Total)
		a.scalar(ScalarDebtOverdue, d.Overdue)
		a.scalar(ScalarDebtNotOverdue, d.NotOverdue)
		a.scalar(ScalarDebtPrescribed, d.Prescribed)
	} else {
		a.warn(FileBancoDebt + ": debt totals unavailable")
	}

	// Map: credits per department, per 1,000 inhabitants.
	population, _ := a.table(FileBancoPopulation, bancoPopulationRules)
	layer, haveLayer := a.layer(FileDepartments)
	if haveGlobal {
		counts, err := kpi.CountByKey(global, kpi.ColDepartment)
		a.check(FileBancoGlobal, err)
		if err == nil {
			a.v.Tables[tableChoropleth] = a.choropleth(global, counts, population)
			if haveLayer {
				a.v.Layers[layerDepartments] = kpi.JoinCounts(layer, counts)
			}
		}
	}

	return a.done()
}

// choropleth builds ID_DPTO, N_DEPARTAMENTO, CANTIDAD, POBLACION,
// CREDITOS_CADA_1000 ordered by department code. Population and rate are
// null when the population file or the department row is absent.
func (a *assembly) choropleth(global *table.Table, counts map[string]int, population *table.Table) *table.Table {
	labelByKey := map[string]string{}
	if c, ok := global.Column(colDepartmentName); ok {
		dept, _ := global.Column(kpi.ColDepartment)
		for i := 0; i < global.NumRows(); i++ {
			k := kpi.JoinKey(dept.Value(i))
			if s, ok := c.Str(i); ok && labelByKey[k] == "" {
				labelByKey[k] = s
			}
		}
	}

	pop := map[string]float64{}
	if population != nil {
		dept, err1 := population.Require(kpi.ColDepartment)
		p, err2 := population.Require(colPopulation)
		switch {
		case err1 != nil:
			a.check(FileBancoPopulation, err1)
		case err2 != nil:
			a.check(FileBancoPopulation, err2)
		default:
			for i := 0; i < population.NumRows(); i++ {
				if f, ok := p.Float(i); ok {
					pop[kpi.JoinKey(dept.Value(i))] += f
				}
			}
		}
	}

	keys := sortedKeys(counts)
	ids := make([]any, len(keys))
	labels := make([]any, len(keys))
	cnt := make([]any, len(keys))
	pops := make([]any, len(keys))
	rates := make([]any, len(keys))
	for i, k := range keys {
		ids[i] = k
		if n, ok := labelByKey[k]; ok {
			labels[i] = n
		}
		cnt[i] = int64(counts[k])
		if p, ok := pop[k]; ok && p > 0 {
			pops[i] = p
			rates[i] = float64(counts[k]) / p * 1000
		}
	}
	return table.MustNew(
		table.NewColumn(kpi.ColDepartment, table.String, ids),
		table.NewColumn(colDepartmentName, table.String, labels),
		table.NewColumn(kpi.PropCount, table.Int64, cnt),
		table.NewColumn(colPopulation, table.Float64, pops),
		table.NewColumn(colCreditsPerThousand, table.Float64, rates),
	)
}

func names(cats []kpi.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Name
	}
	return out
}
