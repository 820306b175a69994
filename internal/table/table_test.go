package table_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

func TestNew_RejectsRaggedColumns(t *testing.T) {
	_, err := table.New(table.Ints("A", 1, 2), table.Ints("B", 1))
	require.Error(t, err)
}

func TestRequire_WrapsErrMissingColumn(t *testing.T) {
	tb := table.MustNew(table.Ints("A", 1))
	_, err := tb.Require("B")
	require.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestColumnAccessorsCoerce(t *testing.T) {
	c := table.NewColumn("X", table.String, []any{"12", " 3.5 ", nil, float64(20123456789), int64(7)})

	n, ok := c.Int(0)
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	f, ok := c.Float(1)
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)

	_, ok = c.Str(2)
	assert.False(t, ok)

	s, ok := c.Str(3)
	assert.True(t, ok)
	assert.Equal(t, "20123456789", s)

	f, ok = c.Float(4)
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)
}

func TestFilterAndTakePreserveOrder(t *testing.T) {
	tb := table.MustNew(table.Ints("ID", 1, 2, 3, 4), table.Strings("N", "a", "b", "c", "d"))
	ids, _ := tb.Column("ID")

	even := tb.Filter(func(r int) bool {
		v, _ := ids.Int(r)
		return v%2 == 0
	})
	require.Equal(t, 2, even.NumRows())
	n, _ := even.Column("N")
	assert.Equal(t, "b", n.Value(0))
	assert.Equal(t, "d", n.Value(1))

	// The source table is untouched.
	assert.Equal(t, 4, tb.NumRows())
}

func TestWithColumnReplacesAndAppends(t *testing.T) {
	tb := table.MustNew(table.Ints("A", 1, 2))

	out, err := tb.WithColumn(table.Strings("A", "x", "y"))
	require.NoError(t, err)
	c, _ := out.Column("A")
	assert.Equal(t, table.String, c.Type)

	out, err = out.WithColumn(table.Floats("B", 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out.Names())

	_, err = out.WithColumn(table.Floats("C", 1))
	assert.Error(t, err)
}

func TestMarshalJSON(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tb := table.MustNew(table.Strings("MES", "2024-03"), table.Times("F", day))

	raw, err := json.Marshal(tb)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"columns":[{"name":"MES","type":"string"},{"name":"F","type":"timestamp"}],"rows":[["2024-03","2024-03-01T00:00:00Z"]]}`,
		string(raw))
}

func TestGeoLayerGuaranteesProperties(t *testing.T) {
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties = nil

	layer := table.NewGeoLayer([]*geojson.Feature{f})
	require.NotNil(t, layer.Features[0].Properties)

	cp := layer.Clone()
	cp.Features[0].Properties["X"] = 1
	_, leaked := layer.Features[0].Properties["X"]
	assert.False(t, leaked)
}
