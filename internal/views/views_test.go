package views

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/decode"
	"github.com/cordoba-data/program-dashboard/internal/kpi"
	"github.com/cordoba-data/program-dashboard/internal/table"
)

var (
	fixedNow = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
	loadedAt = time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
)

func day(y int, m time.Month, d, h int) time.Time { return time.Date(y, m, d, h, 0, 0, 0, time.UTC) }

func put(cat *catalog.Catalogue, path string, t *table.Table, at time.Time) {
	kind, _ := decode.KindOf(path)
	cat.Put(path, decode.Result{Kind: kind, Table: t}, at)
}

func putLayer(cat *catalog.Catalogue) {
	var fs []*geojson.Feature
	for _, code := range []string{"14", "21", "7"} {
		f := geojson.NewFeature(orb.Point{-64, -31})
		f.Properties["CODDEPTO"] = code
		fs = append(fs, f)
	}
	cat.Put("geo/"+FileDepartments, decode.Result{Kind: decode.KindGeoJSON, Layer: table.NewGeoLayer(fs)}, loadedAt)
}

func bancoGlobal() *table.Table {
	return table.MustNew(
		table.Ints(kpi.ColLoanState, 1, 1, 2, 6, 7, 10),
		// Wall clock in Córdoba is 12:00 on 2024-06-10.
		table.Times(primaryBancoGlobal,
			day(2024, 6, 10, 11), day(2024, 6, 9, 13), day(2024, 5, 2, 0),
			day(2024, 5, 20, 0), day(2024, 4, 1, 0), day(2024, 4, 30, 0)),
		table.Strings(colCUIL, "20-1-1", "20-1-1", "27-2-2", "20-3-3", "20-4-4", "23-5-5"),
		table.Ints(colDNI, 1, 1, 2, 3, 4, 5),
		table.Strings(colVentureName, "Panadería", "Panadería", "Taller", "Huerta", "Kiosco", "Textil"),
		table.Strings(colLocality, "CORDOBA", "CORDOBA", "RIO CUARTO", "CORDOBA", "VILLA MARIA", "RIO CUARTO"),
		table.Ints(kpi.ColDepartment, 14, 14, 21, 14, 7, 21),
		table.Strings(colDepartmentName, "CAPITAL", "CAPITAL", "RIO CUARTO", "CAPITAL", "GENERAL SAN MARTIN", "RIO CUARTO"),
	)
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	cba, err := time.LoadLocation("America/Argentina/Cordoba")
	require.NoError(t, err)
	return NewBuilder(WithClock(func() time.Time { return fixedNow }), WithLocation(cba))
}

func TestBanco_OnlyGlobalPresent(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "banco/"+FileBancoGlobal, bancoGlobal(), loadedAt)

	v, err := newBuilder(t).Build(cat, Banco)
	require.NoError(t, err)

	assert.Equal(t, 6.0, v.Scalars[ScalarForms])
	assert.Equal(t, 3.0, v.Scalars["En Evaluación"])
	assert.Equal(t, 2.0, v.Scalars["Rechazados"])
	assert.Equal(t, 1.0, v.Scalars["A Pagar"])
	assert.Equal(t, 2.0, v.Scalars[ScalarFormsLast24h])
	assert.Equal(t, 5.0, v.Scalars[ScalarVentures])

	for _, name := range []string{
		"Pagados", "Créditos con Deuda", "Impagos/Bajas", "Finalizados", "Rechazo", "Desistido",
		ScalarRecuperoForms, ScalarRecuperoLast24h,
		ScalarDebtTotal, ScalarDebtOverdue, ScalarDebtNotOverdue, ScalarDebtPrescribed,
	} {
		got, ok := v.Scalars[name]
		assert.True(t, ok, "%s present", name)
		assert.Zero(t, got, name)
	}

	assert.Subset(t, v.Missing, []string{FileBancoRecupero, FileBancoDebt})
	assert.Contains(t, v.Warnings, FileBancoDebt+": debt totals unavailable")
	require.NotNil(t, v.LastUpdate)
	assert.Equal(t, loadedAt, *v.LastUpdate)
	assert.NotContains(t, v.Series, seriesRecuperoMonthly)
}

func TestBanco_Complete(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "banco/"+FileBancoGlobal, bancoGlobal(), loadedAt)
	put(cat, "banco/"+FileBancoRecupero, table.MustNew(
		table.Ints(kpi.ColLoanState, 7, 21, 22, 13, 3),
		table.Ints(kpi.ColFormState, 4, 6, 6, 99, 33),
		table.Strings(primaryBancoRecupero, "2024-06-10 10:30:00", "2024-06-09", "2024-01-15", "bad", "2024-02-01"),
	), loadedAt.Add(time.Minute))
	put(cat, "banco/"+FileBancoDebt, table.MustNew(
		table.Strings(colCUIL, "20-1-1", "27-2-2"),
		table.Strings(kpi.ColDebtTotal, "1.000,50", "500"),
		table.NewColumn(kpi.ColDebtOverdue, table.String, []any{"400", nil}),
		table.Strings(kpi.ColDebtNotOverdue, "600,5", "500"),
		table.Strings(kpi.ColDebtPrescribed, "0", "10"),
	), loadedAt)
	put(cat, "banco/"+FileBancoPopulation, table.MustNew(
		table.Ints(kpi.ColDepartment, 14, 21),
		table.Ints(colPopulation, 1500000, 250000),
	), loadedAt)
	putLayer(cat)

	v, err := newBuilder(t).Build(cat, Banco)
	require.NoError(t, err)
	assert.Empty(t, v.Missing)
	assert.Empty(t, v.Warnings)

	// "bad" FEC_FORM row dropped.
	assert.Equal(t, 4.0, v.Scalars[ScalarRecuperoForms])
	assert.Equal(t, 2.0, v.Scalars["Pagados"])
	assert.Equal(t, 1.0, v.Scalars["Finalizados"])
	assert.Equal(t, 1.0, v.Scalars["Créditos con Deuda"])
	assert.Equal(t, 1.0, v.Scalars["Impagos/Bajas"])
	assert.Equal(t, 2.0, v.Scalars["Rechazo"])
	assert.Equal(t, 2.0, v.Scalars["Desistido"])
	assert.Equal(t, 1.0, v.Scalars[ScalarRecuperoLast24h])

	assert.InDelta(t, 1500.5, v.Scalars[ScalarDebtTotal], 1e-9)
	assert.InDelta(t, 400, v.Scalars[ScalarDebtOverdue], 1e-9)
	assert.InDelta(t, 1100.5, v.Scalars[ScalarDebtNotOverdue], 1e-9)
	assert.InDelta(t, 10, v.Scalars[ScalarDebtPrescribed], 1e-9)

	assert.Equal(t, loadedAt.Add(time.Minute), *v.LastUpdate)

	choro := v.Tables[tableChoropleth]
	require.NotNil(t, choro)
	require.Equal(t, 3, choro.NumRows())
	ids, _ := choro.Column(kpi.ColDepartment)
	rate, _ := choro.Column(colCreditsPerThousand)
	assert.Equal(t, "7", ids.Value(0))
	assert.Nil(t, rate.Value(0), "no population row for department 7")
	assert.Equal(t, "14", ids.Value(1))
	assert.InDelta(t, 3.0/1500000*1000, rate.Value(1), 1e-12)

	layer := v.Layers[layerDepartments]
	require.NotNil(t, layer)
	got := map[string]any{}
	for _, f := range layer.Features {
		got[f.Properties["CODDEPTO"].(string)] = f.Properties[kpi.PropCount]
	}
	assert.Equal(t, map[string]any{"14": 3, "21": 2, "7": 1}, got)

	series := v.Series[seriesBancoMonthly]
	require.NotNil(t, series)
	months, _ := series.Column("MES")
	counts, _ := series.Column("CANTIDAD")
	var gotSeries []string
	for i := 0; i < series.NumRows(); i++ {
		m, _ := months.Time(i)
		n, _ := counts.Int(i)
		gotSeries = append(gotSeries, m.Format("2006-01")+"="+table.FormatValue(n))
	}
	if diff := cmp.Diff([]string{"2024-04=2", "2024-05=2", "2024-06=2"}, gotSeries); diff != "" {
		t.Errorf("monthly series (-want +got):\n%s", diff)
	}
}

func TestBanco_MissingColumnWarns(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "banco/"+FileBancoGlobal, table.MustNew(
		table.Times(primaryBancoGlobal, day(2024, 6, 1, 0)),
	), loadedAt)

	v, err := newBuilder(t).Build(cat, Banco)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Scalars[ScalarForms])
	assert.Zero(t, v.Scalars["En Evaluación"])
	assert.Contains(t, v.Warnings, FileBancoGlobal+": missing column: ID_ESTADO_PRESTAMO")
}

func TestCapacita(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "capacita/"+FileCapacitaStudents, table.MustNew(
		table.Strings(colCUIL, "20-1", "201", "27-2", "20-3"),
		table.Strings(colLocality, "CORDOBA", "CORDOBA", "JESUS MARIA", "CORDOBA"),
		table.Strings(colCourse, "Programación", "Marketing", "Programación", "Programación"),
		table.Floats(kpi.ColDepartment, 14, 14, 7, 14),
	), loadedAt)
	putLayer(cat)

	v, err := newBuilder(t).Build(cat, Capacita)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.Scalars[ScalarInscriptions])
	assert.Equal(t, 3.0, v.Scalars[ScalarStudents])
	assert.Equal(t, 2, v.Tables[tableTopLocalities].NumRows())
	courses, _ := v.Tables[tableTopCourse].Column(colCourse)
	assert.Equal(t, "Programación", courses.Value(0))
	assert.Empty(t, v.Missing)
}

func TestCapacita_NothingLoaded(t *testing.T) {
	v, err := newBuilder(t).Build(catalog.New(uuid.New()), Capacita)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALUMNOS_X_LOCALIDAD.parquet", "capa_departamentos_2010.geojson"}, v.Missing)
	assert.Equal(t, map[string]float64{ScalarInscriptions: 0, ScalarStudents: 0}, v.Scalars)
	assert.Nil(t, v.LastUpdate)
}

func TestEmpleo(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "empleo/"+FileEmpleoInscriptions, table.MustNew(
		table.Ints(kpi.ColFichaState, 12, 12, 8, 3, 4),
		table.NewColumn(kpi.ColEmployer, table.Int64, []any{int64(1), nil, int64(2), nil, nil}),
		table.Times(primaryEmpleo, day(2024, 6, 10, 10), day(2024, 3, 1, 0), day(2024, 3, 5, 0), time.Time{}, day(2024, 1, 9, 0)),
		table.Ints(colAge, 27, 33, 40, 29, 70),
		table.Strings(colLocality, "CORDOBA", "CORDOBA", "RIO CUARTO", "X", "RIO TERCERO"),
		table.Ints(kpi.ColDepartment, 14, 14, 21, 7, 21),
	), loadedAt)
	put(cat, "empleo/"+FileEmpleoCompanies, table.MustNew(
		table.Strings(colCUIT, "30-111-1", "30111-1", "30-222-2", "30-333-3"),
		table.Strings(colCompanyName, "ACME", "ACME dup", "Sur SRL", "Norte SA"),
		table.Strings(colEmployees, "26", "26", "1000", "8"),
		table.Strings(colVacancies, "3", "3", "2", ""),
		table.Strings(colIsEmployer, "S", "S", "N", "S"),
		table.Strings(colProgram, kpi.ProgramPrimerPaso, kpi.ProgramPrimerPaso, kpi.ProgramEmpleo26, kpi.ProgramEmpleo26),
	), loadedAt)
	put(cat, "empleo/"+FileEmpleoReports, table.MustNew(
		table.Strings(colProgram, "PPP", "EMPLEO +26", "PPP"),
	), loadedAt)
	put(cat, "empleo/"+FileEmpleoAdhered, table.MustNew(
		table.Strings(colCUIT, "30-1", "301", "30-2"),
	), loadedAt)
	putLayer(cat)

	v, err := newBuilder(t).Build(cat, Empleo)
	require.NoError(t, err)
	assert.Empty(t, v.Missing)
	assert.Empty(t, v.Warnings)

	// The row without FECHA_INSCRIPCION is dropped.
	assert.Equal(t, 4.0, v.Scalars[ScalarApplicants])
	assert.Equal(t, 1.0, v.Scalars["CTI Inscripto"])
	assert.Equal(t, 1.0, v.Scalars["Match"])
	assert.Equal(t, 1.0, v.Scalars["Rechazados"])
	assert.Zero(t, v.Scalars["Beneficiarios"])
	assert.Equal(t, 1.0, v.Scalars[ScalarApplicantsLast24h])

	assert.Equal(t, 3.0, v.Scalars[ScalarCompanies])
	assert.Equal(t, 5.0, v.Scalars[ScalarVacancies])
	// ⌈0.2·26⌉ + 1 (non-employer) + 2
	assert.Equal(t, 9.0, v.Scalars[ScalarCupo])
	assert.Equal(t, 2.0, v.Scalars[ScalarAdhered])
	assert.Equal(t, 3.0, v.Scalars[ScalarReports])

	reports, _ := v.Tables[tableReportsByProgram].Column(colProgram)
	assert.Equal(t, "PPP", reports.Value(0))

	bands := v.Tables[tableAgeBands]
	require.Equal(t, len(kpi.AgeBands), bands.NumRows())
	bandCounts, _ := bands.Column("CANTIDAD")
	assert.Equal(t, int64(1), bandCounts.Value(0))
	assert.Equal(t, int64(1), bandCounts.Value(1))
	assert.Equal(t, int64(1), bandCounts.Value(2))

	require.Len(t, v.Series[seriesEmpleoMonthly].Columns(), 2)
	assert.Equal(t, 3, v.Series[seriesEmpleoMonthly].NumRows())
}

func TestBuild_DeterministicWithFixedClock(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "banco/"+FileBancoGlobal, bancoGlobal(), loadedAt)
	putLayer(cat)

	b := newBuilder(t)
	first, err := b.Build(cat, Banco)
	require.NoError(t, err)
	a, err := json.Marshal(first)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := b.Build(cat, Banco)
		require.NoError(t, err)
		bs, err := json.Marshal(again)
		require.NoError(t, err)
		assert.JSONEq(t, string(a), string(bs))
	}
}

func TestBuild_DoesNotMutateCatalogue(t *testing.T) {
	cat := catalog.New(uuid.New())
	put(cat, "banco/"+FileBancoGlobal, bancoGlobal(), loadedAt)
	putLayer(cat)

	_, err := newBuilder(t).Build(cat, Banco)
	require.NoError(t, err)

	raw, _, _ := cat.Table(FileBancoGlobal)
	cuil, _ := raw.Column(colCUIL)
	assert.Equal(t, "20-1-1", cuil.Value(0))
	layer, _, _ := cat.Layer(FileDepartments)
	_, touched := layer.Features[0].Properties[kpi.PropCount]
	assert.False(t, touched)
}

func TestBuild_UnknownProgram(t *testing.T) {
	_, err := NewBuilder().Build(nil, Program("turismo"))
	assert.True(t, errors.Is(err, ErrUnknownProgram))

	_, err = ParseProgram("Turismo")
	assert.ErrorIs(t, err, ErrUnknownProgram)
	p, err := ParseProgram(" EMPLEO ")
	require.NoError(t, err)
	assert.Equal(t, Empleo, p)
}

func TestMissingFileCarriesLoadWarning(t *testing.T) {
	cat := catalog.New(uuid.New())
	cat.Warnf("decode empleo/%s: parquet: invalid magic number", FileEmpleoReports)

	v, err := newBuilder(t).Build(cat, Empleo)
	require.NoError(t, err)
	assert.Contains(t, v.Missing, FileEmpleoReports)
	assert.Contains(t, v.Warnings, "decode empleo/VT_REPORTES_PPP_MAS26.parquet: parquet: invalid magic number")
}
