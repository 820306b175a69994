package views

import (
	"strings"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/kpi"
	"github.com/cordoba-data/program-dashboard/internal/normalize"
	"github.com/cordoba-data/program-dashboard/internal/table"
)

// Empleo +26 files.
const (
	FileEmpleoInscriptions = "vt_inscripciones_empleo.parquet"
	FileEmpleoCompanies    = "VT_INSCRIPCIONES_EMPLEO_EMPRESAS.parquet"
	FileEmpleoReports      = "VT_REPORTES_PPP_MAS26.parquet"
	FileEmpleoAdhered      = "vt_empresas_adheridas.parquet"
)

const (
	ScalarApplicants        = "Inscriptos"
	ScalarApplicantsLast24h = "Inscriptos últimas 24 hs"
	ScalarCompanies         = "Empresas inscriptas"
	ScalarCupo              = "Cupo total"
	ScalarVacancies         = "Vacantes"
	ScalarAdhered           = "Empresas adheridas"
	ScalarReports           = "Reportes"
)

const (
	colEmployees   = "CANTIDAD_EMPLEADOS"
	colVacancies   = "VACANTES"
	colIsEmployer  = "EMPLEADOR"
	colProgram     = "N_PROGRAMA"
	colCompanyName = "RAZON_SOCIAL"
	colAge         = "EDAD"
	colCupo        = "CUPO"

	primaryEmpleo = "FECHA_INSCRIPCION"

	seriesEmpleoMonthly   = "inscripciones_por_mes"
	tableCupo             = "cupo_empresas"
	tableAgeBands         = "edades"
	tableReportsByProgram = "reportes_por_programa"
)

var empleoInscriptionRules = normalize.Rules{
	Primary:     primaryEmpleo,
	Identifiers: []string{colCUIL, colCUIT},
	Numeric:     []string{colAge},
}

var empleoCompanyRules = normalize.Rules{
	Numeric:     []string{colEmployees, colVacancies},
	Identifiers: []string{colCUIT},
	DedupKey:    []string{colCUIT},
}

var empleoReportRules = normalize.Rules{
	Identifiers: []string{colCUIL, colCUIT},
}

var empleoAdheredRules = normalize.Rules{
	Identifiers: []string{colCUIT},
	DedupKey:    []string{colCUIT},
}

// Empleo builds the Empleo +26 view.
func (b *Builder) Empleo(cat *catalog.Catalogue) *ProgramView {
	a := newAssembly(cat, Empleo)

	// Fichas.
	a.zero(ScalarApplicants, ScalarApplicantsLast24h)
	a.zero(names(kpi.EmpleoFichas)...)
	fichas, haveFichas := a.table(FileEmpleoInscriptions, empleoInscriptionRules)
	if haveFichas {
		a.scalar(ScalarApplicants, float64(fichas.NumRows()))

		counts, err := kpi.CountStates(fichas, kpi.ColFichaState, kpi.EmpleoFichas)
		a.check(FileEmpleoInscriptions, err)
		a.counts(counts)

		n, err := kpi.Last24h(fichas, primaryEmpleo, b.wallNow())
		a.check(FileEmpleoInscriptions, err)
		a.scalar(ScalarApplicantsLast24h, float64(n))

		if points, err := kpi.Monthly(fichas, primaryEmpleo); err == nil {
			a.v.Series[seriesEmpleoMonthly] = kpi.SeriesTable(points)
		}

		if bands, err := kpi.BandCounts(fichas, colAge, kpi.AgeBands); err != nil {
			a.check(FileEmpleoInscriptions, err)
		} else {
			a.v.Tables[tableAgeBands] = kpi.GroupTable(colAge, bands)
		}

		if top, err := kpi.TopN(fichas, colLocality, topN); err != nil {
			a.check(FileEmpleoInscriptions, err)
		} else {
			a.v.Tables[tableTopLocalities] = kpi.GroupTable(colLocality, top)
		}
	}

	// Companies and their quota.
	a.zero(ScalarCompanies, ScalarCupo, ScalarVacancies)
	if companies, ok := a.table(FileEmpleoCompanies, empleoCompanyRules); ok {
		a.scalar(ScalarCompanies, float64(companies.NumRows()))

		vacancies, err := kpi.Sum(companies, colVacancies)
		a.check(FileEmpleoCompanies, err)
		a.scalar(ScalarVacancies, vacancies)

		cupo, total, err := cupoTable(companies)
		a.check(FileEmpleoCompanies, err)
		if err == nil {
			a.v.Tables[tableCupo] = cupo
			a.scalar(ScalarCupo, float64(total))
		}
	}

	a.zero(ScalarAdhered)
	if adhered, ok := a.table(FileEmpleoAdhered, empleoAdheredRules); ok {
		a.scalar(ScalarAdhered, float64(adhered.NumRows()))
	}

	a.zero(ScalarReports)
	if reports, ok := a.table(FileEmpleoReports, empleoReportRules); ok {
		a.scalar(ScalarReports, float64(reports.NumRows()))
		if groups, err := kpi.TopN(reports, colProgram, 0); err != nil {
			a.check(FileEmpleoReports, err)
		} else {
			a.v.Tables[tableReportsByProgram] = kpi.GroupTable(colProgram, groups)
		}
	}

	layer, haveLayer := a.layer(FileDepartments)
	if haveFichas && haveLayer {
		counts, err := kpi.CountByKey(fichas, kpi.ColDepartment)
		a.check(FileEmpleoInscriptions, err)
		if err == nil {
			a.v.Layers[layerDepartments] = kpi.JoinCounts(layer, counts)
		}
	}

	return a.done()
}

// cupoTable computes the quota of every company: CUIT, RAZON_SOCIAL,
// CANTIDAD_EMPLEADOS, VACANTES, EMPLEADOR, N_PROGRAMA, CUPO. Company name,
// vacancies and employer flag are optional.
func cupoTable(companies *table.Table) (*table.Table, int64, error) {
	cuit, err := companies.Require(colCUIT)
	if err != nil {
		return nil, 0, err
	}
	employees, err := companies.Require(colEmployees)
	if err != nil {
		return nil, 0, err
	}
	program, err := companies.Require(colProgram)
	if err != nil {
		return nil, 0, err
	}
	name, _ := companies.Column(colCompanyName)
	vacancies, _ := companies.Column(colVacancies)
	employer, _ := companies.Column(colIsEmployer)

	n := companies.NumRows()
	cols := struct{ cuit, name, emp, vac, isEmp, prog, cupo []any }{
		make([]any, n), make([]any, n), make([]any, n), make([]any, n), make([]any, n), make([]any, n), make([]any, n),
	}
	var total int64
	for i := 0; i < n; i++ {
		cols.cuit[i] = cuit.Value(i)
		if name != nil {
			cols.name[i] = name.Value(i)
		}
		e, _ := employees.Float(i)
		cols.emp[i] = e
		if vacancies != nil {
			cols.vac[i] = vacancies.Value(i)
		}
		flag := ""
		if employer != nil {
			flag, _ = employer.Str(i)
			flag = strings.ToUpper(strings.TrimSpace(flag))
			cols.isEmp[i] = employer.Value(i)
		}
		prog, _ := program.Str(i)
		prog = strings.TrimSpace(prog)
		cols.prog[i] = program.Value(i)

		c := kpi.Cupo(int64(e), flag, prog)
		cols.cupo[i] = c
		total += c
	}
	return table.MustNew(
		table.NewColumn(colCUIT, table.String, cols.cuit),
		table.NewColumn(colCompanyName, table.String, cols.name),
		table.NewColumn(colEmployees, table.Float64, cols.emp),
		table.NewColumn(colVacancies, table.Float64, cols.vac),
		table.NewColumn(colIsEmployer, table.String, cols.isEmp),
		table.NewColumn(colProgram, table.String, cols.prog),
		table.NewColumn(colCupo, table.Int64, cols.cupo),
	), total, nil
}
