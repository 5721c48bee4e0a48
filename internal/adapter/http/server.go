package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/importer"
	"github.com/couchcryptid/cell-locator/internal/jobs"
	"github.com/couchcryptid/cell-locator/internal/locator"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TowerCatalog is the read/write slice of the tower store the API exposes directly.
type TowerCatalog interface {
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.Tower, error)
	WithinBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Tower, error)
	GetOrCreate(ctx context.Context, t domain.Tower) (domain.Tower, bool, error)
	RecentLookups(ctx context.Context, mcc, mnc int, cellID int64, limit int) ([]domain.LookupRecord, error)
}

// ObjectOpener opens an import file from object storage.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Settings are the request-level knobs taken from configuration.
type Settings struct {
	ImportAPIKey           string
	ImportBatchSize        int
	MaxTowersPerRequest    int
	AllowExternalNeighbors bool
	// LocateTimeout bounds each location request including provider calls.
	// It is capped below the server's write timeout.
	LocateTimeout time.Duration
}

// Deps are the components the API serves. Objects may be nil, which
// disables imports from object storage.
type Deps struct {
	Ready    sharedobs.ReadinessChecker
	Locator  *locator.Locator
	Towers   TowerCatalog
	Importer *importer.Importer
	Jobs     jobs.Store
	Objects  ObjectOpener
	Settings Settings
}

// Server exposes the positioning API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger

	// Background imports run under bgCtx and are cancelled on shutdown.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	imports  sync.WaitGroup
}

const (
	writeTimeout         = 60 * time.Second
	defaultLocateTimeout = 45 * time.Second
)

// NewServer creates an HTTP server with the health routes and the /v1 API.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if deps.Settings.MaxTowersPerRequest <= 0 {
		deps.Settings.MaxTowersPerRequest = 50
	}
	if deps.Settings.LocateTimeout <= 0 || deps.Settings.LocateTimeout >= writeTimeout {
		deps.Settings.LocateTimeout = defaultLocateTimeout
	}
	if deps.Settings.ImportBatchSize <= 0 {
		deps.Settings.ImportBatchSize = importer.DefaultBatchSize
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		deps:     deps,
		logger:   logger,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/locate", s.withLocateBudget(s.handleLocate))
	mux.HandleFunc("POST /v1/resolve", s.withLocateBudget(s.handleResolve))
	mux.HandleFunc("POST /v1/snapshot/locate", s.withLocateBudget(s.handleSnapshotLocate))

	mux.HandleFunc("POST /v1/towers", s.handleCreateTower)
	mux.HandleFunc("POST /v1/towers/search", s.handleSearch)
	mux.HandleFunc("POST /v1/towers/within", s.handleWithin)
	mux.HandleFunc("GET /v1/towers/lookups", s.handleLookups)
	mux.HandleFunc("POST /v1/towers/import", s.requireImportKey(s.handleImportStart))
	mux.HandleFunc("GET /v1/towers/import/{id}", s.handleImportStatus)

	mux.HandleFunc("POST /v1/calibrate", s.handleCalibrate)
	mux.HandleFunc("POST /v1/calibrate/fit", s.handleCalibrateFit)
	mux.HandleFunc("POST /v1/ref-loss", s.handleRefLoss)

	return s
}

// withLocateBudget gives the request a deadline so provider lookups finish
// before the response write deadline.
func (s *Server) withLocateBudget(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.deps.Settings.LocateTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections, then cancels running imports and waits for
// them to record their final state, all within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.imports.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("imports still running at shutdown deadline")
	}
	return err
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// WaitImports blocks until background imports finish.
func (s *Server) WaitImports() {
	s.imports.Wait()
}
