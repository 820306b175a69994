package catalog_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/decode"
	"github.com/cordoba-data/program-dashboard/internal/table"
)

func TestPut_LastWriteWinsWithWarning(t *testing.T) {
	c := catalog.New(uuid.New())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c.Put("a/Detalle_recupero.csv", decode.Result{Kind: decode.KindCSV, Table: table.MustNew(table.Ints("X", 1))}, t0)
	c.Put("b/Detalle_recupero.csv", decode.Result{Kind: decode.KindCSV, Table: table.MustNew(table.Ints("X", 1, 2))}, t0.Add(time.Second))

	require.Equal(t, 1, c.Len())
	e, ok := c.Get("Detalle_recupero.csv")
	require.True(t, ok)
	assert.Equal(t, "b/Detalle_recupero.csv", e.Path)
	assert.Equal(t, 2, e.Rows)

	require.Len(t, c.Warnings(), 1)
	assert.Contains(t, c.Warnings()[0], "duplicate basename Detalle_recupero.csv")
}

func TestTableAndLayerAccessors(t *testing.T) {
	c := catalog.New(uuid.New())
	now := time.Now()
	c.Put("x.parquet", decode.Result{Kind: decode.KindColumnar, Table: table.MustNew(table.Ints("A", 1))}, now)
	c.Put("capa.geojson", decode.Result{Kind: decode.KindGeoJSON, Layer: table.NewGeoLayer(nil)}, now)

	_, _, ok := c.Table("x.parquet")
	assert.True(t, ok)
	_, _, ok = c.Table("capa.geojson")
	assert.False(t, ok)
	_, _, ok = c.Layer("capa.geojson")
	assert.True(t, ok)

	names := []string{}
	for _, e := range c.Entries() {
		names = append(names, e.Basename)
	}
	assert.Equal(t, []string{"capa.geojson", "x.parquet"}, names)
	assert.Len(t, c.LoadTimestamps(), 2)
}

func TestNilCatalogueIsEmpty(t *testing.T) {
	var c *catalog.Catalogue
	_, ok := c.Get("anything")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}
