package views

import (
	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/kpi"
	"github.com/cordoba-data/program-dashboard/internal/normalize"
)

// CBA Me Capacita files.
const FileCapacitaStudents = "ALUMNOS_X_LOCALIDAD.parquet"

const (
	ScalarInscriptions = "Inscripciones"
	ScalarStudents     = "Alumnos"
)

const (
	colCourse      = "N_CURSO"
	tableTopCourse = "top_cursos"
)

var capacitaRules = normalize.Rules{
	Identifiers: []string{colCUIL},
}

// Capacita builds the CBA Me Capacita view. The program has no primary date.
func (b *Builder) Capacita(cat *catalog.Catalogue) *ProgramView {
	a := newAssembly(cat, Capacita)
	a.zero(ScalarInscriptions, ScalarStudents)

	students, ok := a.table(FileCapacitaStudents, capacitaRules)
	layer, haveLayer := a.layer(FileDepartments)
	if !ok {
		return a.done()
	}

	a.scalar(ScalarInscriptions, float64(students.NumRows()))
	n, err := kpi.Distinct(students, colCUIL)
	a.check(FileCapacitaStudents, err)
	a.scalar(ScalarStudents, float64(n))

	if top, err := kpi.TopN(students, colLocality, topN); err != nil {
		a.check(FileCapacitaStudents, err)
	} else {
		a.v.Tables[tableTopLocalities] = kpi.GroupTable(colLocality, top)
	}
	if top, err := kpi.TopN(students, colCourse, topN); err != nil {
		a.check(FileCapacitaStudents, err)
	} else {
		a.v.Tables[tableTopCourse] = kpi.GroupTable(colCourse, top)
	}

	counts, err := kpi.CountByKey(students, kpi.ColDepartment)
	a.check(FileCapacitaStudents, err)
	if err == nil {
		a.v.Tables[tableChoropleth] = a.choropleth(students, counts, nil)
		if haveLayer {
			a.v.Layers[layerDepartments] = kpi.JoinCounts(layer, counts)
		}
	}
	return a.done()
}
