package objectstore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(&config.Config{MinioEndpoint: "localhost:9000"}, discardLogger())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenMissingObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(&config.Config{
		MinioEndpoint:  strings.TrimPrefix(srv.URL, "http://"),
		MinioAccessKey: "access",
		MinioSecretKey: "secret",
		MinioRegion:    "us-east-1",
	}, discardLogger())
	require.NoError(t, err)

	_, err = c.Open(context.Background(), "imports", "towers.csv")
	require.ErrorIs(t, err, ErrObjectNotFound)
	assert.Contains(t, err.Error(), "imports/towers.csv")
}
