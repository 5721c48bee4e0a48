package combain

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey           = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testLookup() domain.ProviderLookup {
	return domain.ProviderLookup{
		Radio:          domain.RadioLTE,
		MCC:            432,
		MNC:            35,
		LAC:            domain.Ptr(11),
		CellID:         123456,
		SignalStrength: domain.Ptr(-85),
	}
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testKey, r.URL.Query().Get("key"))
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "LTE", req.RadioType)
		require.Len(t, req.CellTowers, 1)
		assert.Equal(t, int64(123456), req.CellTowers[0].CellID)
		assert.Equal(t, 11, *req.CellTowers[0].LocationAreaCode)
		assert.Equal(t, -85, *req.CellTowers[0].SignalStrength)

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"location":{"lat":35.755273,"lng":51.4103},"accuracy":1234}`))
	}))
	defer srv.Close()

	fix, err := testClient(srv.URL).Lookup(context.Background(), testLookup())
	require.NoError(t, err)
	require.NotNil(t, fix)

	assert.Equal(t, 35.755273, fix.Lat)
	assert.Equal(t, 51.4103, fix.Lon)
	assert.Equal(t, 1234.0, *fix.AccuracyM)
	assert.Equal(t, srv.URL, fix.RequestURL, "api key stays out of the audit trail")
	assert.Contains(t, string(fix.RequestBody), `"cellId":123456`)
	assert.JSONEq(t, `{"location":{"lat":35.755273,"lng":51.4103},"accuracy":1234}`, string(fix.ResponseBody))
}

func TestClient_Lookup_OmitsUnknownFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(raw), "locationAreaCode")
		assert.NotContains(t, string(raw), "signalStrength")
		_, _ = w.Write([]byte(`{"location":{"lat":1,"lng":2}}`))
	}))
	defer srv.Close()

	q := testLookup()
	q.LAC, q.SignalStrength = nil, nil
	fix, err := testClient(srv.URL).Lookup(context.Background(), q)
	require.NoError(t, err)
	assert.Nil(t, fix.AccuracyM)
}

func TestClient_Lookup_NoLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	}))
	defer srv.Close()

	fix, err := testClient(srv.URL).Lookup(context.Background(), testLookup())
	require.NoError(t, err)
	assert.Nil(t, fix)
}

func TestClient_Lookup_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), testLookup())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestClient_Lookup_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), testLookup())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Lookup_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testClient(srv.URL).Lookup(ctx, testLookup())
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	c := NewClient(testKey, 3*time.Second, slog.Default())
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.Equal(t, "COMBAIN", c.Name())
	assert.Equal(t, domain.SourceCombain, c.DatasetSource())
}
