// Package google looks up cell towers with the Google Geolocation API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"googlemaps.github.io/maps"
)

const (
	defaultBaseURL = "https://www.googleapis.com"
	geolocatePath  = "/geolocation/v1/geolocate"
	defaultRateQPS = 10
)

// Client implements domain.Provider on top of the Google Maps client.
type Client struct {
	maps    *maps.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a Geolocation client. baseURL may be empty for the
// public endpoint.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	opts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout}),
		maps.WithRateLimit(defaultRateQPS),
	}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	} else {
		baseURL = defaultBaseURL
	}
	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &Client{maps: mc, baseURL: baseURL, logger: logger}, nil
}

// Name implements domain.Provider.
func (c *Client) Name() string { return "GOOGLE" }

// DatasetSource implements domain.Provider.
func (c *Client) DatasetSource() domain.DatasetSource { return domain.SourceGoogle }

// Lookup resolves one cell. IP fallback is disabled so an unknown cell
// yields an error instead of the server's own location.
func (c *Client) Lookup(ctx context.Context, q domain.ProviderLookup) (*domain.ProviderFix, error) {
	req := newRequest(q)
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	res, err := c.maps.Geolocate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google geolocate: %w", err)
	}
	if res.Location.Lat == 0 && res.Location.Lng == 0 {
		c.logger.Debug("google returned no location", "cell_id", q.CellID)
		return nil, nil
	}

	respBody, err := json.Marshal(response{
		Location: location{Lat: res.Location.Lat, Lng: res.Location.Lng},
		Accuracy: res.Accuracy,
	})
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	fix := &domain.ProviderFix{
		Lat:          res.Location.Lat,
		Lon:          res.Location.Lng,
		RequestURL:   c.baseURL + geolocatePath,
		RequestBody:  reqBody,
		ResponseBody: respBody,
	}
	if res.Accuracy > 0 {
		acc := res.Accuracy
		fix.AccuracyM = &acc
	}
	return fix, nil
}

func newRequest(q domain.ProviderLookup) *maps.GeolocationRequest {
	tower := maps.CellTower{
		CellID:            int(q.CellID),
		MobileCountryCode: q.MCC,
		MobileNetworkCode: q.MNC,
	}
	if q.LAC != nil {
		tower.LocationAreaCode = *q.LAC
	}
	if q.SignalStrength != nil {
		tower.SignalStrength = *q.SignalStrength
	}
	return &maps.GeolocationRequest{
		RadioType:  radioType(q.Radio),
		ConsiderIP: false,
		CellTowers: []maps.CellTower{tower},
	}
}

// radioType maps onto Google's radio names; NR has none and is sent as LTE.
func radioType(r domain.Radio) maps.RadioType {
	switch r {
	case domain.RadioGSM:
		return maps.RadioTypeGSM
	case domain.RadioUMTS:
		return maps.RadioTypeWCDMA
	default:
		return maps.RadioTypeLTE
	}
}

// response mirrors the API's success body for the audit trail.
type response struct {
	Location location `json:"location"`
	Accuracy float64  `json:"accuracy"`
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
