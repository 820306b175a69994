// Package catalog holds the per-session set of decoded files, keyed by
// basename.
package catalog

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cordoba-data/program-dashboard/internal/decode"
	"github.com/cordoba-data/program-dashboard/internal/table"
)

// Entry is one decoded file.
type Entry struct {
	Basename string          `json:"basename"`
	Path     string          `json:"path"`
	Kind     decode.Kind     `json:"kind"`
	Rows     int             `json:"rows"`
	LoadedAt time.Time       `json:"loadedAt"`
	Table    *table.Table    `json:"-"`
	Layer    *table.GeoLayer `json:"-"`
}

// Catalogue maps basenames to decoded files. Later Puts of the same basename
// replace earlier ones and leave a warning behind.
type Catalogue struct {
	RunID    uuid.UUID
	entries  map[string]Entry
	warnings []string
}

// New returns an empty catalogue for a load run.
func New(runID uuid.UUID) *Catalogue {
	return &Catalogue{RunID: runID, entries: map[string]Entry{}}
}

// Put publishes a decoded file under basename(p).
func (c *Catalogue) Put(p string, res decode.Result, loadedAt time.Time) Entry {
	base := path.Base(p)
	if prev, ok := c.entries[base]; ok {
		c.Warnf("duplicate basename %s: %s replaces %s", base, p, prev.Path)
	}
	e := Entry{
		Basename: base,
		Path:     p,
		Kind:     res.Kind,
		Rows:     res.Rows(),
		LoadedAt: loadedAt,
		Table:    res.Table,
		Layer:    res.Layer,
	}
	c.entries[base] = e
	return e
}

// Get returns the entry for a basename.
func (c *Catalogue) Get(basename string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[basename]
	return e, ok
}

// Table returns the tabular content for a basename.
func (c *Catalogue) Table(basename string) (*table.Table, time.Time, bool) {
	e, ok := c.Get(basename)
	if !ok || e.Table == nil {
		return nil, time.Time{}, false
	}
	return e.Table, e.LoadedAt, true
}

// Layer returns the geospatial content for a basename.
func (c *Catalogue) Layer(basename string) (*table.GeoLayer, time.Time, bool) {
	e, ok := c.Get(basename)
	if !ok || e.Layer == nil {
		return nil, time.Time{}, false
	}
	return e.Layer, e.LoadedAt, true
}

// Len returns the number of entries.
func (c *Catalogue) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns all entries sorted by basename.
func (c *Catalogue) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Basename < out[j].Basename })
	return out
}

// LoadTimestamps returns basename → loadedAt.
func (c *Catalogue) LoadTimestamps() map[string]time.Time {
	out := make(map[string]time.Time, c.Len())
	for _, e := range c.Entries() {
		out[e.Basename] = e.LoadedAt
	}
	return out
}

// Warnf records a load warning.
func (c *Catalogue) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the load warnings in the order they were recorded.
func (c *Catalogue) Warnings() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.warnings...)
}
