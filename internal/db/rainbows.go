package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/chromatic/internal/rainbow"
	"github.com/banshee-data/chromatic/internal/units"
)

// RainbowRecord is the catalogue row of a stored grid.
type RainbowRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	NWave     int           `json:"nwave"`
	NTime     int           `json:"ntime"`
	WScale    rainbow.Scale `json:"wscale"`
	TScale    rainbow.Scale `json:"tscale"`
	HasModel  bool          `json:"has_model"`
	CreatedAt time.Time     `json:"created_at"`
}

// nullable maps NaN to NULL; sqlite has no NaN.
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// SaveGrid stores g, its axes, cells and history in one transaction.
// Saving a grid whose id already exists fails.
func (db *DB) SaveGrid(ctx context.Context, g *rainbow.Grid) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	nwave, ntime := g.Shape()
	hasModel := 0
	if g.HasModel() {
		hasModel = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rainbows (rainbow_id, name, nwave, ntime, wscale, tscale, has_model, created_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID(), g.Name(), nwave, ntime, string(g.WScale()), string(g.TScale()), hasModel,
		db.clock.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert rainbow %s: %w", g.ID(), err)
	}

	if err := insertAxis(ctx, tx, `INSERT INTO rainbow_times (rainbow_id, idx, time_day, original_idx) VALUES (?, ?, ?, ?)`,
		g.ID(), g.Time().Value(), g.OriginalTimeIndex()); err != nil {
		return fmt.Errorf("insert times: %w", err)
	}
	if err := insertAxis(ctx, tx, `INSERT INTO rainbow_wavelengths (rainbow_id, idx, micron, original_idx) VALUES (?, ?, ?, ?)`,
		g.ID(), g.Wavelength().Value(), g.OriginalWaveIndex()); err != nil {
		return fmt.Errorf("insert wavelengths: %w", err)
	}

	var model *mat.Dense
	if g.HasModel() {
		model, _ = g.Model()
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rainbow_points (rainbow_id, wave_idx, time_idx, flux, uncertainty, model)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()
	for w := 0; w < nwave; w++ {
		for t := 0; t < ntime; t++ {
			var m interface{}
			if model != nil {
				m = nullable(model.At(w, t))
			}
			if _, err := stmt.ExecContext(ctx, g.ID(), w, t,
				nullable(g.FluxAt(w, t)), nullable(g.UncertaintyAt(w, t)), m); err != nil {
				return fmt.Errorf("insert point (%d, %d): %w", w, t, err)
			}
		}
	}

	for i, h := range g.History() {
		params, err := json.Marshal(h.Params)
		if err != nil {
			return fmt.Errorf("encode history params: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rainbow_history (rainbow_id, seq, entry_id, action, params_json, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID(), i, h.ID, h.Action, string(params), h.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert history %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func insertAxis(ctx context.Context, tx *sql.Tx, query, id string, values []float64, original []int) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, v := range values {
		if _, err := stmt.ExecContext(ctx, id, i, v, original[i]); err != nil {
			return err
		}
	}
	return nil
}

// LoadGrid rebuilds the stored grid with the given id, keeping its id,
// name and history.
func (db *DB) LoadGrid(ctx context.Context, id string) (*rainbow.Grid, error) {
	rec, err := db.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	times, timeIndex, err := db.loadAxis(ctx, `SELECT time_day, original_idx FROM rainbow_times WHERE rainbow_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("load times: %w", err)
	}
	waves, waveIndex, err := db.loadAxis(ctx, `SELECT micron, original_idx FROM rainbow_wavelengths WHERE rainbow_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("load wavelengths: %w", err)
	}

	flux := mat.NewDense(rec.NWave, rec.NTime, nil)
	unc := mat.NewDense(rec.NWave, rec.NTime, nil)
	var model *mat.Dense
	if rec.HasModel {
		model = mat.NewDense(rec.NWave, rec.NTime, nil)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT wave_idx, time_idx, flux, uncertainty, model FROM rainbow_points WHERE rainbow_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var w, t int
		var f, u, m sql.NullFloat64
		if err := rows.Scan(&w, &t, &f, &u, &m); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if w < 0 || w >= rec.NWave || t < 0 || t >= rec.NTime {
			return nil, fmt.Errorf("%w: stored point (%d, %d) outside (%d, %d)", rainbow.ErrShapeMismatch, w, t, rec.NWave, rec.NTime)
		}
		flux.Set(w, t, orNaN(f))
		unc.Set(w, t, orNaN(u))
		if model != nil {
			model.Set(w, t, orNaN(m))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history, err := db.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	opts := []rainbow.Option{
		rainbow.WithID(rec.ID),
		rainbow.WithName(rec.Name),
		rainbow.WithHistory(history),
		rainbow.WithOriginalIndex(waveIndex, timeIndex),
	}
	if model != nil {
		opts = append(opts, rainbow.WithModel(model))
	}
	return rainbow.New(units.NewTimes(times, units.Day), units.NewWavelengths(waves), flux, unc, opts...)
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// loadAxis returns an axis and its original indices. The indices are nil,
// meaning 0..n-1, when any row predates the original_idx column.
func (db *DB) loadAxis(ctx context.Context, query, id string) ([]float64, []int, error) {
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var (
		values   []float64
		original []int
		missing  bool
	)
	for rows.Next() {
		var v float64
		var o sql.NullInt64
		if err := rows.Scan(&v, &o); err != nil {
			return nil, nil, err
		}
		values = append(values, v)
		original = append(original, int(o.Int64))
		missing = missing || !o.Valid
	}
	if missing {
		original = nil
	}
	return values, original, rows.Err()
}

func (db *DB) loadHistory(ctx context.Context, id string) ([]rainbow.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT entry_id, action, params_json, recorded_at FROM rainbow_history
		 WHERE rainbow_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []rainbow.HistoryEntry
	for rows.Next() {
		var (
			h        rainbow.HistoryEntry
			params   sql.NullString
			recorded string
		)
		if err := rows.Scan(&h.ID, &h.Action, &params, &recorded); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if params.Valid && params.String != "" && params.String != "null" {
			if err := json.Unmarshal([]byte(params.String), &h.Params); err != nil {
				return nil, fmt.Errorf("decode history params: %w", err)
			}
		}
		if h.Timestamp, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("parse history time: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const recordColumns = `rainbow_id, name, nwave, ntime, wscale, tscale, has_model, created_ns`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (RainbowRecord, error) {
	var (
		r              RainbowRecord
		wscale, tscale string
		hasModel       int
		createdNs      int64
	)
	if err := s.Scan(&r.ID, &r.Name, &r.NWave, &r.NTime, &wscale, &tscale, &hasModel, &createdNs); err != nil {
		return RainbowRecord{}, err
	}
	r.WScale, r.TScale = rainbow.Scale(wscale), rainbow.Scale(tscale)
	r.HasModel = hasModel != 0
	r.CreatedAt = time.Unix(0, createdNs).UTC()
	return r, nil
}

// GetRecord returns the catalogue row of one grid.
func (db *DB) GetRecord(ctx context.Context, id string) (RainbowRecord, error) {
	r, err := scanRecord(db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM rainbows WHERE rainbow_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RainbowRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return RainbowRecord{}, fmt.Errorf("get rainbow %s: %w", id, err)
	}
	return r, nil
}

// ListRecords returns the most recently stored grids first, at most limit
// rows (limit <= 0 means 100).
func (db *DB) ListRecords(ctx context.Context, limit int) ([]RainbowRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM rainbows ORDER BY created_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rainbows: %w", err)
	}
	defer rows.Close()

	var out []RainbowRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rainbow: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteGrid removes a stored grid and everything that references it.
func (db *DB) DeleteGrid(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM rainbows WHERE rainbow_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rainbow %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
