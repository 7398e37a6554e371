package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOK(t *testing.T) {
	mock := new(ReplayClient).Respond(http.StatusOK, "hello")

	body, err := Fetch(context.Background(), mock, http.MethodPost, "http://example.test/api/rainbows?snr=10", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "10", reqs[0].URL.Query().Get("snr"))
}

func TestFetchStatusError(t *testing.T) {
	mock := new(ReplayClient).Respond(http.StatusNotFound, `{"error":"rainbow abc not found"}`)

	_, err := Fetch(context.Background(), mock, http.MethodGet, "http://example.test/x", nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "rainbow abc not found", se.Message)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, "http 404: rainbow abc not found", err.Error())
}

func TestFetchNonJSONErrorBody(t *testing.T) {
	mock := new(ReplayClient).Respond(http.StatusBadGateway, "<html>bad gateway</html>")
	_, err := Fetch(context.Background(), mock, http.MethodGet, "http://example.test/x", nil)
	assert.EqualError(t, err, "http 502")
}

func TestFetchTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := new(ReplayClient).Fail(boom)
	_, err := Fetch(context.Background(), mock, http.MethodGet, "http://example.test/x", nil)
	assert.ErrorIs(t, err, boom)
}

func TestFetchJSON(t *testing.T) {
	mock := new(ReplayClient).
		Respond(http.StatusOK, `{"nwave": 3}`).
		Respond(http.StatusOK, `not json`)

	var out struct {
		NWave int `json:"nwave"`
	}
	require.NoError(t, FetchJSON(context.Background(), mock, http.MethodGet, "http://example.test/a", &out))
	assert.Equal(t, 3, out.NWave)

	err := FetchJSON(context.Background(), mock, http.MethodGet, "http://example.test/b", &out)
	assert.ErrorContains(t, err, "decode response")
}

func TestReplayDrainedQueueReturnsEmptyOK(t *testing.T) {
	mock := new(ReplayClient)
	for i := 0; i < 2; i++ {
		body, err := Fetch(context.Background(), mock, http.MethodGet, "http://example.test/", nil)
		require.NoError(t, err)
		assert.Empty(t, body)
	}
	assert.Len(t, mock.Requests(), 2)
}

func TestClientFunc(t *testing.T) {
	var seen string
	c := ClientFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.URL.Path
		return nil, errors.New("offline")
	})
	_, err := Fetch(context.Background(), c, http.MethodGet, "http://example.test/api/config", nil)
	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, "/api/config", seen)
}

func TestStandardClientAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, map[string]string{"path": r.URL.Path})
	}))
	defer srv.Close()

	c := NewStandardClient(5 * time.Second)
	var out map[string]string
	require.NoError(t, FetchJSON(context.Background(), c, http.MethodGet, srv.URL+"/api/rainbows", &out))
	assert.Equal(t, "/api/rainbows", out["path"])
}
