// Package export writes rainbow tables and arrays to CSV and JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/fsutil"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/rainbow"
)

// Output file names written by Writer.WriteAll.
const (
	TableFile   = "table.csv"
	ArraysFile  = "arrays.json"
	SummaryFile = "rainbow.json"
)

// WriteTableCSV writes a header row of column names followed by one record
// per table row. Floats use the shortest representation that round-trips.
func WriteTableCSV(w io.Writer, t *rainbow.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		for c, v := range t.Row(i) {
			record[c] = formatFloat(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ArraysDocument is the JSON form of rainbow.Arrays. NaN cells, which JSON
// cannot carry, are written as null.
type ArraysDocument struct {
	TimeFormat  string       `json:"time_format"`
	Time        []*float64   `json:"time"`
	Wavelength  []*float64   `json:"wavelength"`
	Flux        [][]*float64 `json:"flux"`
	Uncertainty [][]*float64 `json:"uncertainty"`
}

// NewArraysDocument converts arrays exported with the given time format.
func NewArraysDocument(a rainbow.Arrays, format string) ArraysDocument {
	return ArraysDocument{
		TimeFormat:  format,
		Time:        nullable(a.Time),
		Wavelength:  nullable(a.Wavelength),
		Flux:        nullableRows(a.Flux),
		Uncertainty: nullableRows(a.Uncertainty),
	}
}

func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if v := values[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = &v
		}
	}
	return out
}

func nullableRows(m *mat.Dense) [][]*float64 {
	r, _ := m.Dims()
	out := make([][]*float64, r)
	for i := 0; i < r; i++ {
		out[i] = nullable(m.RawRowView(i))
	}
	return out
}

// WriteArraysJSON encodes a as an indented ArraysDocument.
func WriteArraysJSON(w io.Writer, a rainbow.Arrays, format string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewArraysDocument(a, format)); err != nil {
		return fmt.Errorf("encode arrays: %w", err)
	}
	return nil
}

// TableDocument is the JSON form of rainbow.Table, row-major with NaN
// cells as null.
type TableDocument struct {
	Columns []string     `json:"columns"`
	Rows    [][]*float64 `json:"rows"`
}

// NewTableDocument converts t.
func NewTableDocument(t *rainbow.Table) TableDocument {
	doc := TableDocument{Columns: t.Columns(), Rows: make([][]*float64, t.Len())}
	for i := range doc.Rows {
		doc.Rows[i] = nullable(t.Row(i))
	}
	return doc
}

// WriteTableJSON encodes t as a TableDocument.
func WriteTableJSON(w io.Writer, t *rainbow.Table) error {
	if err := json.NewEncoder(w).Encode(NewTableDocument(t)); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return nil
}

// Summary describes a grid without its data.
type Summary struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	NWave   int                    `json:"nwave"`
	NTime   int                    `json:"ntime"`
	NFlux   int                    `json:"nflux"`
	WScale  rainbow.Scale          `json:"wscale"`
	TScale  rainbow.Scale          `json:"tscale"`
	Model   bool                   `json:"has_model"`
	History []rainbow.HistoryEntry `json:"history"`
}

// Summarize returns the summary of g.
func Summarize(g *rainbow.Grid) Summary {
	return Summary{
		ID:      g.ID(),
		Name:    g.Name(),
		NWave:   g.NWave(),
		NTime:   g.NTime(),
		NFlux:   g.NFlux(),
		WScale:  g.WScale(),
		TScale:  g.TScale(),
		Model:   g.HasModel(),
		History: g.History(),
	}
}

// Writer writes every export of a grid into one directory.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter returns a Writer on the real filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir}
}

// WriteAll writes the table, arrays and summary of g using the given time
// format and returns the paths written. The format is checked before any
// file is created.
func (w *Writer) WriteAll(g *rainbow.Grid, format string) ([]string, error) {
	tbl, err := g.ToTable(format)
	if err != nil {
		return nil, err
	}
	arrays, err := g.ToArrays(format)
	if err != nil {
		return nil, err
	}

	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{TableFile, func(out io.Writer) error { return WriteTableCSV(out, tbl) }},
		{ArraysFile, func(out io.Writer) error { return WriteArraysJSON(out, arrays, format) }},
		{SummaryFile, func(out io.Writer) error {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(Summarize(g))
		}},
	}
	for _, s := range steps {
		path := filepath.Join(w.Dir, s.name)
		if err := w.writeFile(path, s.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	monitoring.Logf("export: wrote %d files for %s to %s", len(written), g, w.Dir)
	return written, nil
}

func (w *Writer) writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := w.FS.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
