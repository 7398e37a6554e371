package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/chromatic/internal/config"
	"github.com/banshee-data/chromatic/internal/db"
	"github.com/banshee-data/chromatic/internal/export"
	"github.com/banshee-data/chromatic/internal/httputil"
	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/timeutil"
)

// smallConfig keeps simulated grids tiny: 1 hour at 10 minutes, R=5.
func smallConfig() *config.SimulationConfig {
	cfg := config.EmptySimulationConfig()
	start, end := -0.5, 0.5
	cfg.TimeStartHours = &start
	cfg.TimeEndHours = &end
	return cfg
}

func newTestServer(t *testing.T, store *db.DB) *Server {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewServer(smallConfig(), store, clock)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func create(t *testing.T, h http.Handler, query string) export.Summary {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/rainbows?"+query)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[export.Summary](t, rec)
}

func TestCreateRainbow(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()

	sum := create(t, mux, "snr=20&dt=10&dt_unit=minute&R=5&seed=1")
	assert.Equal(t, 7, sum.NTime)  // -30..+30 minutes every 10
	assert.Equal(t, 12, sum.NWave) // ceil(5*ln 10)
	assert.Equal(t, sum.NWave*sum.NTime, sum.NFlux)
	assert.Equal(t, "simulated", sum.Name)
	require.Len(t, sum.History, 1)
	assert.Equal(t, "simulate", sum.History[0].Action)
}

func TestCreateRainbowSeedIsReproducible(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	a := create(t, mux, "dt=10&R=5&seed=42")
	b := create(t, mux, "dt=10&R=5&seed=42")
	assert.NotEqual(t, a.ID, b.ID)

	ta := do(t, mux, http.MethodGet, "/api/rainbows/"+a.ID+"/table?format=csv")
	tb := do(t, mux, http.MethodGet, "/api/rainbows/"+b.ID+"/table?format=csv")
	assert.Equal(t, ta.Body.String(), tb.Body.String())
}

func TestCreateRainbowBadParams(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	for _, q := range []string{
		"snr=0",
		"snr=-3",
		"dt=0",
		"R=-1",
		"snr=abc",
		"dt_unit=fortnight",
		"seed=x",
		"dt=1e-300",
		"R=1e300",
	} {
		rec := do(t, mux, http.MethodPost, "/api/rainbows?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.NotEmpty(t, decode[httputil.ErrorResponse](t, rec).Error, q)
	}
}

func TestListRainbows(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()

	rec := do(t, mux, http.MethodGet, "/api/rainbows")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	a := create(t, mux, "dt=10&R=5")
	b := create(t, mux, "dt=20&R=5")
	list := decode[[]export.Summary](t, do(t, mux, http.MethodGet, "/api/rainbows"))
	require.Len(t, list, 2)
	assert.Equal(t, []string{a.ID, b.ID}, []string{list[0].ID, list[1].ID})
}

func TestTableEndpoint(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	sum := create(t, mux, "dt=10&R=5&seed=3")

	rec := do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID+"/table?timeformat=h")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[export.TableDocument](t, rec)
	assert.Equal(t, []string{"Time (h)", "Wavelength (microns)", "Flux", "Flux Uncertainty"}, doc.Columns)
	require.Len(t, doc.Rows, sum.NFlux)
	assert.InDelta(t, -0.5, *doc.Rows[0][0], 1e-12)

	rec = do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID+"/table?format=csv&timeformat=s")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="`+sum.ID+`-table.csv"`, rec.Header().Get("Content-Disposition"))
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, sum.NFlux+1)
	assert.Equal(t, "Time (s)", records[0][0])
}

func TestTableEndpointErrors(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	sum := create(t, mux, "dt=10&R=5")

	tests := []struct {
		method, target string
		status         int
	}{
		{http.MethodGet, "/api/rainbows/" + sum.ID + "/table?timeformat=d", http.StatusBadRequest},
		{http.MethodGet, "/api/rainbows/" + sum.ID + "/table?format=xml", http.StatusBadRequest},
		{http.MethodGet, "/api/rainbows/" + sum.ID + "/arrays?timeformat=weeks", http.StatusBadRequest},
		{http.MethodGet, "/api/rainbows/" + sum.ID + "/chart?timeformat=Day", http.StatusBadRequest},
		{http.MethodGet, "/api/rainbows/nope/table", http.StatusNotFound},
		{http.MethodGet, "/api/rainbows/nope/arrays", http.StatusNotFound},
		{http.MethodGet, "/api/rainbows/nope", http.StatusNotFound},
		{http.MethodDelete, "/api/rainbows/nope", http.StatusNotFound},
		{http.MethodPost, "/api/rainbows/" + sum.ID + "/table", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/rainbows/" + sum.ID + "/normalize", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/rainbows", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/rainbows/" + sum.ID + "/transit?t0=inf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, mux, tt.method, tt.target)
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.target)
	}

	rec := do(t, mux, http.MethodPut, "/api/rainbows/"+sum.ID)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Allow"))
}

func TestArraysEndpoint(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	sum := create(t, mux, "dt=10&R=5")

	doc := decode[export.ArraysDocument](t, do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID+"/arrays?timeformat=minute"))
	assert.Equal(t, "minute", doc.TimeFormat)
	require.Len(t, doc.Time, sum.NTime)
	require.Len(t, doc.Wavelength, sum.NWave)
	require.Len(t, doc.Flux, sum.NWave)
	assert.Len(t, doc.Flux[0], sum.NTime)
	assert.InDelta(t, -30, *doc.Time[0], 1e-9)
	assert.InDelta(t, 30, *doc.Time[sum.NTime-1], 1e-9)

	doc = decode[export.ArraysDocument](t, do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID+"/arrays"))
	assert.Equal(t, "day", doc.TimeFormat)
}

func TestChartEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.AssetsHost = "/static/"
	mux := s.ServeMux()
	sum := create(t, mux, "dt=10&R=5")

	rec := do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID+"/chart?timeformat=h")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/static/echarts.min.js")
}

func TestDeriveEndpoints(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	sum := create(t, mux, "dt=10&R=5&seed=9")

	rec := do(t, mux, http.MethodPost, "/api/rainbows/"+sum.ID+"/normalize?axis=time&percentile=50")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	norm := decode[export.Summary](t, rec)
	assert.NotEqual(t, sum.ID, norm.ID)
	assert.Equal(t, []string{"simulate", "normalize"}, actions(norm))

	rec = do(t, mux, http.MethodPost, "/api/rainbows/"+sum.ID+"/trim?wmin=1&wmax=2&tmin=-0.01&tmax=0.01")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trimmed := decode[export.Summary](t, rec)
	assert.Less(t, trimmed.NWave, sum.NWave)
	assert.Equal(t, 3, trimmed.NTime) // -10, 0, +10 minutes

	rec = do(t, mux, http.MethodPost, "/api/rainbows/"+sum.ID+"/transit?radius=0.1&period=2")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, actions(decode[export.Summary](t, rec)), "inject_transit")

	for _, target := range []string{
		"/api/rainbows/" + sum.ID + "/normalize?percentile=101",
		"/api/rainbows/" + sum.ID + "/normalize?axis=flux",
		"/api/rainbows/" + sum.ID + "/trim?wmin=10&wmax=20",
		"/api/rainbows/" + sum.ID + "/transit?a=0.5",
		"/api/rainbows/" + sum.ID + "/transit?radius=-1",
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPost, target).Code, target)
	}

	list := decode[[]export.Summary](t, do(t, mux, http.MethodGet, "/api/rainbows"))
	assert.Len(t, list, 4)
}

func actions(s export.Summary) []string {
	out := make([]string, len(s.History))
	for i, h := range s.History {
		out[i] = h.Action
	}
	return out
}

func TestPersistence(t *testing.T) {
	store := cloneAPITestDB(t)
	mux := newTestServer(t, store).ServeMux()
	sum := create(t, mux, "dt=10&R=5&seed=11")

	stored := decode[[]db.RainbowRecord](t, do(t, mux, http.MethodGet, "/api/stored"))
	require.Len(t, stored, 1)
	assert.Equal(t, sum.ID, stored[0].ID)

	// a fresh server on the same store finds the grid lazily
	other := newTestServer(t, store).ServeMux()
	rec := do(t, other, http.MethodGet, "/api/rainbows/"+sum.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[export.Summary](t, rec)
	if diff := cmp.Diff(sum.History, got.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	a := do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID+"/table?format=csv").Body.String()
	b := do(t, other, http.MethodGet, "/api/rainbows/"+sum.ID+"/table?format=csv").Body.String()
	assert.Equal(t, a, b)

	assert.Equal(t, http.StatusNoContent, do(t, mux, http.MethodDelete, "/api/rainbows/"+sum.ID).Code)
	assert.Equal(t, "[]\n", do(t, mux, http.MethodGet, "/api/stored").Body.String())
}

func TestStoredWithoutDB(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	rec := do(t, mux, http.MethodGet, "/api/stored")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, do(t, newTestServer(t, cloneAPITestDB(t)).ServeMux(), http.MethodGet, "/api/stored?limit=-1").Code)
}

func TestDeleteFromRegistry(t *testing.T) {
	s := newTestServer(t, nil)
	mux := s.ServeMux()
	sum := create(t, mux, "dt=10&R=5")

	assert.Equal(t, http.StatusNoContent, do(t, mux, http.MethodDelete, "/api/rainbows/"+sum.ID).Code)
	assert.Empty(t, s.Grids())
	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodGet, "/api/rainbows/"+sum.ID).Code)
}

func TestShowConfig(t *testing.T) {
	mux := newTestServer(t, nil).ServeMux()
	rec := do(t, mux, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]interface{}](t, rec)
	assert.Equal(t, -0.5, got["time_start_hours"])
}

func TestConcurrentCreates(t *testing.T) {
	s := newTestServer(t, nil)
	mux := s.ServeMux()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rainbows?dt=10&R=5", nil))
			assert.Equal(t, http.StatusCreated, rec.Code)
		}()
	}
	wg.Wait()
	assert.Len(t, s.Grids(), 8)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	var mu sync.Mutex
	old := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(old)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := do(t, h, http.MethodGet, "/api/rainbows?x=1")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, lines, 1)
	assert.Contains(t, statusCodeColor(http.StatusTeapot), "418")
	assert.Equal(t, "200", strings.TrimSuffix(strings.TrimPrefix(statusCodeColor(200), colorBoldGreen), colorReset))
}

func TestClientAgainstServer(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).ServeMux())
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	c.HTTP = srv.Client()
	ctx := context.Background()

	seed := int64(5)
	sum, err := c.Simulate(ctx, SimulateParams{SignalToNoise: 30, Dt: 10, DtUnit: "min", R: 5, Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, 7, sum.NTime)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	data, err := c.TableCSV(ctx, sum.ID, "h")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Time (h),"))

	arrays, err := c.Arrays(ctx, sum.ID, "s")
	require.NoError(t, err)
	assert.Equal(t, "s", arrays.TimeFormat)

	_, err = c.Arrays(ctx, "missing", "")
	assert.True(t, httputil.IsStatus(err, http.StatusNotFound), "err = %v", err)
	_, err = c.TableCSV(ctx, sum.ID, "fortnight")
	assert.True(t, httputil.IsStatus(err, http.StatusBadRequest), "err = %v", err)
}

func TestClientRequests(t *testing.T) {
	replay := new(httputil.ReplayClient).
		Respond(http.StatusCreated, `{"id":"abc","nwave":12,"ntime":7}`).
		Respond(http.StatusOK, "Time (s),Wavelength (microns),Flux,Flux Uncertainty\n").
		Respond(http.StatusOK, `not json`)
	c := &Client{BaseURL: "http://chromatic.test", HTTP: replay}
	ctx := context.Background()

	sum, err := c.Simulate(ctx, SimulateParams{R: 5})
	require.NoError(t, err)
	assert.Equal(t, "abc", sum.ID)

	_, err = c.TableCSV(ctx, "a b/c", "s")
	require.NoError(t, err)

	_, err = c.Arrays(ctx, "abc", "")
	assert.ErrorContains(t, err, "fetch arrays abc")

	reqs := replay.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/api/rainbows", reqs[0].URL.Path)
	assert.Equal(t, "5", reqs[0].URL.Query().Get("R"))
	assert.Equal(t, "/api/rainbows/a%20b%2Fc/table", reqs[1].URL.EscapedPath())
	assert.Equal(t, "csv", reqs[1].URL.Query().Get("format"))
	assert.Equal(t, "s", reqs[1].URL.Query().Get("timeformat"))
	assert.Empty(t, reqs[2].URL.RawQuery)
}

func TestSimulateParamsQuery(t *testing.T) {
	assert.Empty(t, SimulateParams{}.query().Encode())
	seed := int64(-2)
	q := SimulateParams{SignalToNoise: 12.5, DtUnit: "h", Seed: &seed}.query()
	assert.Equal(t, "12.5", q.Get("snr"))
	assert.Equal(t, "h", q.Get("dt_unit"))
	assert.Equal(t, "-2", q.Get("seed"))
	assert.Empty(t, q.Get("R"))
}

func TestStartAndShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0", nil) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
