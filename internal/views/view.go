// Package views assembles the render-ready payload of each program page
// from the session catalogue.
package views

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/kpi"
	"github.com/cordoba-data/program-dashboard/internal/logging"
	"github.com/cordoba-data/program-dashboard/internal/normalize"
	"github.com/cordoba-data/program-dashboard/internal/table"
	"github.com/cordoba-data/program-dashboard/internal/telemetry"
)

// ErrUnknownProgram is returned for a program name without a view.
var ErrUnknownProgram = errors.New("unknown program")

// Program identifies a program page.
type Program string

const (
	Banco    Program = "banco"
	Capacita Program = "capacita"
	Empleo   Program = "empleo"
)

// Programs returns every program, in menu order.
func Programs() []Program { return []Program{Banco, Capacita, Empleo} }

// Title returns the display name.
func (p Program) Title() string {
	switch p {
	case Banco:
		return "Banco de la Gente"
	case Capacita:
		return "CBA Me Capacita"
	case Empleo:
		return "Empleo +26"
	}
	return string(p)
}

// ParseProgram resolves a URL segment to a Program.
func ParseProgram(s string) (Program, error) {
	p := Program(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Programs() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProgram, s)
}

// Shared file.
const FileDepartments = "capa_departamentos_2010.geojson"

// ProgramView is the payload of one program page. Scalars depending on a
// missing file are 0 and the file is listed in Missing.
type ProgramView struct {
	Program    Program                    `json:"program"`
	Title      string                     `json:"title"`
	Scalars    map[string]float64         `json:"scalars"`
	Series     map[string]*table.Table    `json:"series"`
	Tables     map[string]*table.Table    `json:"tables"`
	Layers     map[string]*table.GeoLayer `json:"layers"`
	LastUpdate *time.Time                 `json:"lastUpdate,omitempty"`
	Missing    []string                   `json:"missing"`
	Warnings   []string                   `json:"warnings"`
}

// Builder builds program views. It holds no per-session state.
type Builder struct {
	now     func() time.Time
	loc     *time.Location
	metrics *telemetry.Metrics
	log     *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces time.Now for the last-24-hours scalars.
func WithClock(now func() time.Time) Option { return func(b *Builder) { b.now = now } }

// WithLocation sets the zone the source timestamps are recorded in.
func WithLocation(loc *time.Location) Option { return func(b *Builder) { b.loc = loc } }

func WithMetrics(m *telemetry.Metrics) Option { return func(b *Builder) { b.metrics = m } }

func WithLogger(log *zap.Logger) Option { return func(b *Builder) { b.log = log } }

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now, loc: time.UTC, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.Named("views")
	return b
}

// Build assembles the view of program p. It never fails for a known program.
func (b *Builder) Build(cat *catalog.Catalogue, p Program) (*ProgramView, error) {
	start := time.Now()
	var v *ProgramView
	switch p {
	case Banco:
		v = b.Banco(cat)
	case Capacita:
		v = b.Capacita(cat)
	case Empleo:
		v = b.Empleo(cat)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, p)
	}
	b.metrics.ObserveView(string(p), time.Since(start), len(v.Warnings))
	logging.LogTransform(b.log.With(zap.String("program", string(p))), "view", cat.Len(), len(v.Scalars), time.Since(start))
	return v, nil
}

// wallNow is the current wall-clock reading comparable with source dates.
func (b *Builder) wallNow() time.Time {
	return kpi.WallClock(b.now(), b.loc)
}

// assembly accumulates one view.
type assembly struct {
	v   *ProgramView
	cat *catalog.Catalogue
}

func newAssembly(cat *catalog.Catalogue, p Program) *assembly {
	return &assembly{
		cat: cat,
		v: &ProgramView{
			Program:  p,
			Title:    p.Title(),
			Scalars:  map[string]float64{},
			Series:   map[string]*table.Table{},
			Tables:   map[string]*table.Table{},
			Layers:   map[string]*table.GeoLayer{},
			Missing:  []string{},
			Warnings: []string{},
		},
	}
}

func (a *assembly) touch(loadedAt time.Time) {
	if a.v.LastUpdate == nil || loadedAt.After(*a.v.LastUpdate) {
		t := loadedAt
		a.v.LastUpdate = &t
	}
}

// missing records an absent file, carrying along any load warning about it.
func (a *assembly) missing(basename string) {
	a.v.Missing = append(a.v.Missing, basename)
	for _, w := range a.cat.Warnings() {
		if strings.Contains(w, basename) {
			a.warn(w)
		}
	}
}

// table returns a normalised copy of a catalogue table.
func (a *assembly) table(basename string, rules normalize.Rules) (*table.Table, bool) {
	t, loadedAt, ok := a.cat.Table(basename)
	if !ok {
		a.missing(basename)
		return nil, false
	}
	a.touch(loadedAt)
	out, warnings := normalize.Apply(t, rules)
	for _, w := range warnings {
		a.warn(basename + ": " + w)
	}
	return out, true
}

func (a *assembly) layer(basename string) (*table.GeoLayer, bool) {
	l, loadedAt, ok := a.cat.Layer(basename)
	if !ok {
		a.missing(basename)
		return nil, false
	}
	a.touch(loadedAt)
	return l, true
}

func (a *assembly) warn(msg string) {
	for _, w := range a.v.Warnings {
		if w == msg {
			return
		}
	}
	a.v.Warnings = append(a.v.Warnings, msg)
}

// check turns a metric error into a warning scoped to a file.
func (a *assembly) check(basename string, err error) {
	if err == nil {
		return
	}
	for _, e := range unwrapJoined(err) {
		a.warn(basename + ": " + e.Error())
	}
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (a *assembly) scalar(name string, v float64) { a.v.Scalars[name] = v }

// counts copies a category count map into the scalars.
func (a *assembly) counts(m map[string]int) {
	for k, n := range m {
		a.v.Scalars[k] = float64(n)
	}
}

// zero sets every named scalar to 0.
func (a *assembly) zero(names ...string) {
	for _, n := range names {
		a.v.Scalars[n] = 0
	}
}

func (a *assembly) done() *ProgramView {
	sort.Strings(a.v.Missing)
	return a.v
}

// sortedKeys orders department keys numerically when both are integers.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		if (errA == nil) != (errB == nil) {
			return errA == nil
		}
		return keys[i] < keys[j]
	})
	return keys
}
