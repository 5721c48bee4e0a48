// Package combain looks up cell towers with the Combain positioning API.
package combain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

const defaultBaseURL = "https://apiv2.combain.com"

// Client implements domain.Provider using the Combain API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Combain client.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// Name implements domain.Provider.
func (c *Client) Name() string { return "COMBAIN" }

// DatasetSource implements domain.Provider.
func (c *Client) DatasetSource() domain.DatasetSource { return domain.SourceCombain }

// Lookup resolves one cell. It returns (nil, nil) when Combain answers
// without a location.
func (c *Client) Lookup(ctx context.Context, q domain.ProviderLookup) (*domain.ProviderFix, error) {
	body, err := json.Marshal(request{
		RadioType:  strings.ToUpper(string(q.Radio)),
		CellTowers: []cellTower{newCellTower(q)},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"?"+url.Values{"key": {c.apiKey}}.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("combain request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("combain API error: status %d: %s", resp.StatusCode, raw)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Location == nil || out.Location.Lat == nil || out.Location.Lng == nil {
		c.logger.Debug("combain returned no location", "cell_id", q.CellID)
		return nil, nil
	}

	return &domain.ProviderFix{
		Lat:          *out.Location.Lat,
		Lon:          *out.Location.Lng,
		AccuracyM:    out.Accuracy,
		RequestURL:   c.baseURL,
		RequestBody:  body,
		ResponseBody: raw,
	}, nil
}

func newCellTower(q domain.ProviderLookup) cellTower {
	return cellTower{
		MobileCountryCode: q.MCC,
		MobileNetworkCode: q.MNC,
		LocationAreaCode:  q.LAC,
		CellID:            q.CellID,
		SignalStrength:    q.SignalStrength,
	}
}

// Combain API request and response types.

type request struct {
	RadioType  string      `json:"radioType"`
	CellTowers []cellTower `json:"cellTowers"`
}

type cellTower struct {
	MobileCountryCode int   `json:"mobileCountryCode"`
	MobileNetworkCode int   `json:"mobileNetworkCode"`
	LocationAreaCode  *int  `json:"locationAreaCode,omitempty"`
	CellID            int64 `json:"cellId"`
	SignalStrength    *int  `json:"signalStrength,omitempty"`
}

type response struct {
	Location *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
	Accuracy *float64 `json:"accuracy"`
}
