package rainbow

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/units"
)

// Fixed column names of an exported table. The time column name depends on
// the requested format; see TimeColumn.
const (
	WavelengthColumn  = "Wavelength (microns)"
	FluxColumn        = "Flux"
	UncertaintyColumn = "Flux Uncertainty"
)

// TimeColumn returns the time column name for an export format, e.g.
// "Time (day)" or "Time (s)". The label keeps the format as written.
func TimeColumn(format string) string {
	if format == "" {
		format = units.DefaultTimeFormat
	}
	return fmt.Sprintf("Time (%s)", format)
}

// Table is a flattened, row-per-cell view of a grid. Values are bare
// numbers; the units live in the column names.
type Table struct {
	columns []string
	data    [][]float64 // one slice per column
}

// ToTable flattens the grid into one row per (wavelength, time) cell, in
// row-major order: row w*ntime + t holds wavelength index w and time index
// t. format selects the time unit (see units.ParseTimeFormat); "" means day.
func (g *Grid) ToTable(format string) (*Table, error) {
	u, err := units.ParseTimeFormat(format)
	if err != nil {
		return nil, err
	}

	nwave, ntime := g.Shape()
	n := nwave * ntime
	times := g.time.ValueIn(u)
	waves := g.wavelength.Value()

	timeCol := make([]float64, n)
	waveCol := make([]float64, n)
	fluxCol := make([]float64, n)
	uncCol := make([]float64, n)

	for w := 0; w < nwave; w++ {
		row := w * ntime
		copy(timeCol[row:row+ntime], times)
		copy(fluxCol[row:row+ntime], g.flux.RawRowView(w))
		copy(uncCol[row:row+ntime], g.uncertainty.RawRowView(w))
		for t := 0; t < ntime; t++ {
			waveCol[row+t] = waves[w]
		}
	}

	return &Table{
		columns: []string{TimeColumn(format), WavelengthColumn, FluxColumn, UncertaintyColumn},
		data:    [][]float64{timeCol, waveCol, fluxCol, uncCol},
	}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.data) == 0 {
		return 0
	}
	return len(t.data[0])
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for i, c := range t.columns {
		if c == name {
			return append([]float64(nil), t.data[i]...), true
		}
	}
	return nil, false
}

// ColumnAt returns a copy of the i-th column.
func (t *Table) ColumnAt(i int) []float64 {
	return append([]float64(nil), t.data[i]...)
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []float64 {
	row := make([]float64, len(t.data))
	for c := range t.data {
		row[c] = t.data[c][i]
	}
	return row
}

// Dense returns the table as an (nrows, ncols) matrix.
func (t *Table) Dense() *mat.Dense {
	m := mat.NewDense(t.Len(), len(t.columns), nil)
	for c, col := range t.data {
		m.SetCol(c, col)
	}
	return m
}
