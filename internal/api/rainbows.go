package api

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banshee-data/chromatic/internal/db"
	"github.com/banshee-data/chromatic/internal/export"
	"github.com/banshee-data/chromatic/internal/httputil"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/plotting"
	"github.com/banshee-data/chromatic/internal/rainbow"
	"github.com/banshee-data/chromatic/internal/security"
	"github.com/banshee-data/chromatic/internal/simulate"
	"github.com/banshee-data/chromatic/internal/units"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, units.ErrUnknownTimeFormat),
		errors.Is(err, rainbow.ErrInvalidParameter),
		errors.Is(err, rainbow.ErrIndexOutOfRange),
		errors.Is(err, rainbow.ErrShapeMismatch):
		httputil.BadRequest(w, err.Error())
	default:
		monitoring.Logf("api: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}

// queryFloat parses an optional float parameter, returning def when absent.
func queryFloat(q url.Values, name string, def float64) (float64, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, &rainbow.ParameterError{Name: name, Value: math.NaN(), Reason: fmt.Sprintf("not a number: %q", s)}
	}
	return v, nil
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}

func (s *Server) rainbowsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		grids := s.Grids()
		out := make([]export.Summary, len(grids))
		for i, g := range grids {
			out[i] = export.Summarize(g)
		}
		httputil.WriteJSONOK(w, out)
	case http.MethodPost:
		s.createRainbow(w, r)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// createRainbow handles POST /api/rainbows?snr=&dt=&dt_unit=&R=&seed=.
// Absent parameters fall back to the server configuration.
func (s *Server) createRainbow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	snr, err := queryFloat(q, "snr", s.cfg.GetSignalToNoise())
	if err != nil {
		writeError(w, err)
		return
	}
	R, err := queryFloat(q, "R", s.cfg.GetResolution())
	if err != nil {
		writeError(w, err)
		return
	}
	dt := s.cfg.GetDt()
	if name := q.Get("dt_unit"); name != "" {
		u, err := units.ParseTimeUnit(name)
		if err != nil {
			writeError(w, err)
			return
		}
		dt = units.Duration{Value: dt.Value, Unit: u}
	}
	if dt.Value, err = queryFloat(q, "dt", dt.Value); err != nil {
		writeError(w, err)
		return
	}

	factory := s.factory
	if seedStr := q.Get("seed"); seedStr != "" {
		seed, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid seed %q", seedStr))
			return
		}
		factory = simulate.NewFactory(simulate.FromConfig(s.cfg), simulate.WithSeed(seed), simulate.WithClock(s.clock))
	}

	g, err := factory.Build(snr, dt, R)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Register(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, export.Summarize(g))
}

func (s *Server) rainbowHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		g, err := s.Lookup(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, export.Summarize(g))
	case http.MethodDelete:
		if err := s.Remove(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// lookupForRead resolves the {id} of a GET request.
func (s *Server) lookupForRead(w http.ResponseWriter, r *http.Request) (*rainbow.Grid, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return nil, false
	}
	g, err := s.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return g, true
}

// tableHandler serves GET /api/rainbows/{id}/table?timeformat=&format=json|csv.
func (s *Server) tableHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupForRead(w, r)
	if !ok {
		return
	}
	tbl, err := g.ToTable(r.URL.Query().Get("timeformat"))
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		if err := export.WriteTableJSON(&buf, tbl); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
	case "csv":
		if err := export.WriteTableCSV(&buf, tbl); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", security.SanitizeFilename(g.ID())+"-"+export.TableFile))
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown table format %q (valid: json, csv)", format))
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// arraysHandler serves GET /api/rainbows/{id}/arrays?timeformat=.
func (s *Server) arraysHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupForRead(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("timeformat")
	arrays, err := g.ToArrays(format)
	if err != nil {
		writeError(w, err)
		return
	}
	if format == "" {
		format = units.DefaultTimeFormat
	}
	httputil.WriteJSONOK(w, export.NewArraysDocument(arrays, format))
}

// chartHandler serves GET /api/rainbows/{id}/chart?timeformat= as HTML.
func (s *Server) chartHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupForRead(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := plotting.RenderChart(&buf, g, r.URL.Query().Get("timeformat"), s.chartOptions()); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// deriveHandler runs an action on {id} and registers the result.
func (s *Server) deriveHandler(w http.ResponseWriter, r *http.Request, action func(*rainbow.Grid, url.Values) (*rainbow.Grid, error)) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	g, err := s.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	child, err := action(g, r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Register(r.Context(), child); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, export.Summarize(child))
}

// normalizeHandler serves POST /api/rainbows/{id}/normalize?axis=&percentile=.
func (s *Server) normalizeHandler(w http.ResponseWriter, r *http.Request) {
	s.deriveHandler(w, r, func(g *rainbow.Grid, q url.Values) (*rainbow.Grid, error) {
		axis := rainbow.AxisWavelength
		if a := q.Get("axis"); a != "" {
			var err error
			if axis, err = rainbow.ParseAxis(a); err != nil {
				return nil, err
			}
		}
		p, err := queryFloat(q, "percentile", 50)
		if err != nil {
			return nil, err
		}
		return g.Normalize(axis, p)
	})
}

// trimHandler serves POST /api/rainbows/{id}/trim?wmin=&wmax=&tmin=&tmax=
// with wavelengths in microns and times in days.
func (s *Server) trimHandler(w http.ResponseWriter, r *http.Request) {
	s.deriveHandler(w, r, func(g *rainbow.Grid, q url.Values) (*rainbow.Grid, error) {
		bounds := map[string]float64{}
		for name, def := range map[string]float64{
			"wmin": math.Inf(-1), "wmax": math.Inf(1),
			"tmin": math.Inf(-1), "tmax": math.Inf(1),
		} {
			v, err := queryFloat(q, name, def)
			if err != nil {
				return nil, err
			}
			bounds[name] = v
		}
		out, err := g.TrimWavelengths(bounds["wmin"], bounds["wmax"])
		if err != nil {
			return nil, err
		}
		return out.TrimTimes(bounds["tmin"], bounds["tmax"])
	})
}

// transitHandler serves POST /api/rainbows/{id}/transit?radius=&t0=&period=&a=&inc=&u1=&u2=.
func (s *Server) transitHandler(w http.ResponseWriter, r *http.Request) {
	s.deriveHandler(w, r, func(g *rainbow.Grid, q url.Values) (*rainbow.Grid, error) {
		p := rainbow.DefaultTransitParams()
		fields := []struct {
			name string
			dst  *float64
		}{
			{"t0", &p.T0}, {"period", &p.Period}, {"a", &p.SemiMajor},
			{"inc", &p.Inclination}, {"u1", &p.U1}, {"u2", &p.U2},
		}
		for _, f := range fields {
			v, err := queryFloat(q, f.name, *f.dst)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		radius, err := queryFloat(q, "radius", 0.1)
		if err != nil {
			return nil, err
		}
		return g.InjectTransit(p, []float64{radius})
	})
}

// storedHandler serves GET /api/stored?limit=, the store's catalogue.
func (s *Server) storedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		httputil.WriteJSONOK(w, []db.RainbowRecord{})
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", l))
			return
		}
		limit = n
	}
	records, err := s.store.ListRecords(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []db.RainbowRecord{}
	}
	httputil.WriteJSONOK(w, records)
}
