package google

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

const testKey = "test-key"

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(testKey, baseURL, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func testLookup() domain.ProviderLookup {
	return domain.ProviderLookup{
		Radio:          domain.RadioUMTS,
		MCC:            432,
		MNC:            11,
		LAC:            domain.Ptr(5021),
		CellID:         8812,
		SignalStrength: domain.Ptr(-77),
	}
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, geolocatePath, r.URL.Path)
		assert.Equal(t, testKey, r.URL.Query().Get("key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "wcdma", body["radioType"])
		assert.Equal(t, false, body["considerIp"])
		towers := body["cellTowers"].([]any)
		require.Len(t, towers, 1)
		tower := towers[0].(map[string]any)
		assert.Equal(t, 8812.0, tower["cellId"])
		assert.Equal(t, 5021.0, tower["locationAreaCode"])
		assert.Equal(t, -77.0, tower["signalStrength"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":{"lat":35.750133,"lng":51.4697272},"accuracy":1823}`))
	}))
	defer srv.Close()

	fix, err := testClient(t, srv.URL).Lookup(context.Background(), testLookup())
	require.NoError(t, err)
	require.NotNil(t, fix)

	assert.Equal(t, 35.750133, fix.Lat)
	assert.Equal(t, 51.4697272, fix.Lon)
	assert.Equal(t, 1823.0, *fix.AccuracyM)
	assert.Equal(t, srv.URL+geolocatePath, fix.RequestURL)
	assert.Contains(t, string(fix.RequestBody), `"cellId":8812`)
	assert.JSONEq(t, `{"location":{"lat":35.750133,"lng":51.4697272},"accuracy":1823}`, string(fix.ResponseBody))
}

func TestClient_Lookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"errors":[{"domain":"geolocation","reason":"notFound","message":"Not Found"}],"code":404,"message":"Not Found"}}`))
	}))
	defer srv.Close()

	fix, err := testClient(t, srv.URL).Lookup(context.Background(), testLookup())
	require.Error(t, err)
	assert.Nil(t, fix)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestClient_Lookup_EmptyLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	fix, err := testClient(t, srv.URL).Lookup(context.Background(), testLookup())
	require.NoError(t, err)
	assert.Nil(t, fix)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "", time.Second, slog.Default())
	assert.Error(t, err)
}

func TestRadioType(t *testing.T) {
	assert.EqualValues(t, "gsm", radioType(domain.RadioGSM))
	assert.EqualValues(t, "wcdma", radioType(domain.RadioUMTS))
	assert.EqualValues(t, "lte", radioType(domain.RadioLTE))
	assert.EqualValues(t, "lte", radioType(domain.RadioNR))
}
