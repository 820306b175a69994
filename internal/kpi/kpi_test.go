package kpi

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

func TestCategorySetsArePinned(t *testing.T) {
	ids := func(cats []Category) map[string][]int64 {
		m := map[string][]int64{}
		for _, c := range cats {
			m[c.Name] = c.States
		}
		return m
	}
	want := map[string]map[string][]int64{
		"global": {
			"En Evaluación": {1, 2, 5},
			"Rechazados":    {3, 6, 7, 15, 23},
			"A Pagar":       {4, 9, 10, 11, 12, 13, 19, 20},
		},
		"recupero": {
			"Pagados":            {13, 14, 15, 16, 17, 18, 20, 21, 7},
			"Créditos con Deuda": {21},
			"Impagos/Bajas":      {23, 22},
			"Finalizados":        {7},
		},
		"rechazos": {
			"Rechazo":   {4, 33, 18, 14, 17, 20, 30, 31, 32, 35, 13, 28, 29, 36, 22},
			"Desistido": {6},
		},
		"fichas": {
			"Rechazados":        {4},
			"Empresa No Apta":   {2},
			"Fuera de Cupo":     {5},
			"Beneficiarios":     {3},
			"Match":             {8},
			"CTI Inscripto":     {12},
			"CTI Válidos":       {13},
			"CTI Beneficiarios": {14},
		},
	}
	got := map[string]map[string][]int64{
		"global":   ids(BancoGlobal),
		"recupero": ids(BancoRecupero),
		"rechazos": ids(BancoRechazos),
		"fichas":   ids(EmpleoFichas),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("category sets changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, ColEmployer, EmpleoFichas[5].RequireNonNull)
}

func TestCountStates_BancoGlobal(t *testing.T) {
	tbl := table.MustNew(table.Ints(ColLoanState, 1, 1, 2, 6, 7, 10))
	got, err := CountStates(tbl, ColLoanState, BancoGlobal)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"En Evaluación": 3, "Rechazados": 2, "A Pagar": 1}, got)
}

func TestCountStates_RecuperoOverlap(t *testing.T) {
	tbl := table.MustNew(table.Ints(ColLoanState, 7, 7, 21, 22, 13))
	got, err := CountStates(tbl, ColLoanState, BancoRecupero)
	require.NoError(t, err)
	assert.Equal(t, 4, got["Pagados"], "Pagados includes the Finalizados rows")
	assert.Equal(t, 2, got["Finalizados"])
	assert.Equal(t, 1, got["Créditos con Deuda"])
	assert.Equal(t, 1, got["Impagos/Bajas"])
}

func TestCountStates_CTIInscriptoNeedsEmployer(t *testing.T) {
	tbl := table.MustNew(
		table.Ints(ColFichaState, 12, 12, 12, 8),
		table.NewColumn(ColEmployer, table.Int64, []any{int64(5), nil, int64(9), nil}),
	)
	got, err := CountStates(tbl, ColFichaState, EmpleoFichas)
	require.NoError(t, err)
	assert.Equal(t, 2, got["CTI Inscripto"])
	assert.Equal(t, 1, got["Match"])

	noEmp := table.MustNew(table.Ints(ColFichaState, 12, 8))
	got, err = CountStates(noEmp, ColFichaState, EmpleoFichas)
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
	assert.Equal(t, 0, got["CTI Inscripto"])
	assert.Equal(t, 1, got["Match"], "other categories still count")
}

func TestCountStates_MissingColumn(t *testing.T) {
	got, err := CountStates(table.MustNew(table.Ints("OTRA", 1)), ColLoanState, BancoGlobal)
	assert.ErrorIs(t, err, table.ErrMissingColumn)
	assert.Equal(t, map[string]int{"En Evaluación": 0, "Rechazados": 0, "A Pagar": 0}, got)
}

func TestCount_DisjointUnionIsAdditive(t *testing.T) {
	tbl := table.MustNew(table.Ints(ColLoanState, 1, 2, 3, 4, 5, 6, 7, 7, 9, 10, 23, 99))
	c1 := Category{Name: "a", States: []int64{1, 2, 5}}
	c2 := Category{Name: "b", States: []int64{3, 6, 7, 15, 23}}
	union := Category{Name: "a∪b", States: append(append([]int64{}, c1.States...), c2.States...)}

	n1, err := Count(tbl, ColLoanState, c1)
	require.NoError(t, err)
	n2, err := Count(tbl, ColLoanState, c2)
	require.NoError(t, err)
	nu, err := Count(tbl, ColLoanState, union)
	require.NoError(t, err)
	assert.Equal(t, nu, n1+n2)
}

func TestCupo(t *testing.T) {
	cases := []struct {
		employees int64
		employer  string
		program   string
		want      int64
	}{
		// PPP
		{0, "S", ProgramPrimerPaso, 0},
		{1, "S", ProgramPrimerPaso, 1},
		{5, "S", ProgramPrimerPaso, 1},
		{6, "S", ProgramPrimerPaso, 2},
		{10, "S", ProgramPrimerPaso, 2},
		{11, "S", ProgramPrimerPaso, 3},
		{25, "S", ProgramPrimerPaso, 3},
		{26, "S", ProgramPrimerPaso, 6},
		{50, "S", ProgramPrimerPaso, 10},
		{51, "S", ProgramPrimerPaso, 6},
		{200, "S", ProgramPrimerPaso, 20},
		{3, "N", ProgramPrimerPaso, 1},
		// Empleo +26
		{1000, "N", ProgramEmpleo26, 1},
		{0, "S", ProgramEmpleo26, 1},
		{1, "S", ProgramEmpleo26, 2},
		{7, "S", ProgramEmpleo26, 2},
		{8, "S", ProgramEmpleo26, 2},
		{30, "S", ProgramEmpleo26, 6},
		{31, "S", ProgramEmpleo26, 5},
		{165, "S", ProgramEmpleo26, 25},
		{166, "S", ProgramEmpleo26, 17},
		// other
		{100, "S", "OTRO PROGRAMA", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Cupo(tc.employees, tc.employer, tc.program), "cupo(%d, %q, %q)", tc.employees, tc.employer, tc.program)
	}
}

func TestCupo_NonNegative(t *testing.T) {
	for _, prog := range []string{ProgramPrimerPaso, ProgramEmpleo26} {
		for _, emp := range []string{"S", "N"} {
			for n := int64(0); n <= 2000; n++ {
				require.GreaterOrEqual(t, Cupo(n, emp, prog), int64(0))
			}
		}
	}
}

func TestCupo_MonotoneWithinBands(t *testing.T) {
	bands := map[string][][2]int64{
		ProgramPrimerPaso: {{0, 0}, {1, 5}, {6, 10}, {11, 25}, {26, 50}, {51, 5000}},
		ProgramEmpleo26:   {{0, 0}, {1, 7}, {8, 30}, {31, 165}, {166, 5000}},
	}
	for prog, bs := range bands {
		for _, b := range bs {
			prev := Cupo(b[0], "S", prog)
			for n := b[0] + 1; n <= b[1]; n++ {
				cur := Cupo(n, "S", prog)
				require.GreaterOrEqual(t, cur, prev, "%s: cupo(%d) < cupo(%d)", prog, n, n-1)
				prev = cur
			}
		}
	}
}

func TestDebts(t *testing.T) {
	tbl := table.MustNew(
		table.Floats(ColDebtTotal, 100, 250.5, 0),
		table.Floats(ColDebtOverdue, 40, 100, 0),
		table.Floats(ColDebtNotOverdue, 60, 120.5, 0),
		table.Floats(ColDebtPrescribed, 0, 30, 0),
	)
	d, err := Debts(tbl)
	require.NoError(t, err)
	assert.Equal(t, Debt{Total: 350.5, Overdue: 140, NotOverdue: 180.5, Prescribed: 30}, d)
	assert.LessOrEqual(t, d.Overdue+d.NotOverdue, d.Total+1e-6)

	partial := table.MustNew(table.Floats(ColDebtTotal, 5))
	d, err = Debts(partial)
	assert.ErrorIs(t, err, table.ErrMissingColumn)
	assert.Equal(t, Debt{Total: 5}, d)
}

func TestLast24h(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tbl := table.MustNew(table.Times("FEC_FORM",
		now.Add(-30*time.Minute),
		now.Add(-23*time.Hour),
		now.Add(-25*time.Hour),
	))
	n, err := Last24h(tbl, "FEC_FORM", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWallClock(t *testing.T) {
	cba, err := time.LoadLocation("America/Argentina/Cordoba")
	require.NoError(t, err)
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), WallClock(now, cba))
	assert.Equal(t, now, WallClock(now, nil))
}

func TestMonthly(t *testing.T) {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }
	tbl := table.MustNew(table.Times("FECHA_INSCRIPCION",
		d(2024, 3, 15), d(2024, 1, 2), d(2024, 3, 20), d(2024, 2, 10),
	))
	got, err := Monthly(tbl, "FECHA_INSCRIPCION")
	require.NoError(t, err)
	want := []Point{
		{Month: d(2024, 1, 1), Count: 1},
		{Month: d(2024, 2, 1), Count: 1},
		{Month: d(2024, 3, 1), Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Monthly() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, SeriesTable(got).NumRows())
}

func TestMonthly_SkipsEmptyMonths(t *testing.T) {
	d := func(m time.Month) time.Time { return time.Date(2023, m, 5, 0, 0, 0, 0, time.UTC) }
	tbl := table.MustNew(table.Times("F", d(1), d(4)))
	got, err := Monthly(tbl, "F")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.April, got[1].Month.Month())
}

func TestTopN(t *testing.T) {
	tbl := table.MustNew(table.NewColumn("N_LOCALIDAD", table.String, []any{
		"RIO CUARTO", "CORDOBA", "VILLA MARIA", "CORDOBA", "RIO CUARTO", "ALTA GRACIA", nil,
	}))
	got, err := TopN(tbl, "N_LOCALIDAD", 3)
	require.NoError(t, err)
	assert.Equal(t, []Group{{"CORDOBA", 2}, {"RIO CUARTO", 2}, {"ALTA GRACIA", 1}}, got)

	all, err := TopN(tbl, "N_LOCALIDAD", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4, "n larger than the group count returns every group")
	assert.Equal(t, "VILLA MARIA", all[3].Key)

	_, err = TopN(tbl, "N_CURSO", 10)
	assert.ErrorIs(t, err, table.ErrMissingColumn)
}

func TestBandCounts(t *testing.T) {
	tbl := table.MustNew(table.NewColumn("EDAD", table.Float64, []any{
		25.0, 26.0, 30.9, 31.0, 45.0, 65.0, 66.0, nil, 70.0,
	}))
	got, err := BandCounts(tbl, "EDAD", AgeBands)
	require.NoError(t, err)
	want := []Group{
		{"26-30", 2}, {"31-35", 1}, {"36-40", 0}, {"41-45", 1},
		{"46-50", 0}, {"51-55", 0}, {"56-60", 0}, {"61-65", 1},
	}
	assert.Equal(t, want, got)
}

func TestJoinCounts(t *testing.T) {
	f1 := geojson.NewFeature(orb.Point{-64.18, -31.41})
	f1.Properties["CODDEPTO"] = "14"
	f2 := geojson.NewFeature(orb.Point{-64.35, -33.12})
	f2.Properties["CODDEPTO"] = 24.0
	f3 := geojson.NewFeature(orb.Point{-63.24, -32.41})
	f3.Properties["CODDEPTO"] = "007"
	layer := table.NewGeoLayer([]*geojson.Feature{f1, f2, f3})

	business := table.MustNew(table.NewColumn(ColDepartment, table.String, []any{"14", "14", "024", nil}))
	counts, err := CountByKey(business, ColDepartment)
	require.NoError(t, err)

	joined := JoinCounts(layer, counts)
	assert.Equal(t, 2, joined.Features[0].Properties[PropCount])
	assert.Equal(t, 1, joined.Features[1].Properties[PropCount])
	assert.Equal(t, 0, joined.Features[2].Properties[PropCount])
	_, touched := layer.Features[0].Properties[PropCount]
	assert.False(t, touched, "the source layer is not modified")
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "14", JoinKey(int64(14)))
	assert.Equal(t, "14", JoinKey(14.0))
	assert.Equal(t, "14", JoinKey(" 014 "))
	assert.Equal(t, "CAPITAL", JoinKey("CAPITAL"))
	assert.Equal(t, "", JoinKey(nil))
}
