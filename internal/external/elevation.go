package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"farmsat/internal/types"
)

const (
	// DefaultElevationBaseURL is the public OpenTopoData API.
	DefaultElevationBaseURL = "https://api.opentopodata.org/v1"

	// DefaultElevationDataset is the 25 m European DEM.
	DefaultElevationDataset = "eudem25m"

	// DefaultElevationPacing is the public API's one-call-per-second limit.
	DefaultElevationPacing = time.Second
)

// ElevationLookup returns the terrain elevation in metres for one coordinate.
type ElevationLookup interface {
	Elevation(ctx context.Context, lat, lon float64) (float64, error)
}

// OpenTopoDataConfig holds the configuration for creating an OpenTopoDataClient.
type OpenTopoDataConfig struct {
	BaseURL string // Override for testing; defaults to DefaultElevationBaseURL
	Dataset string
	// Pacing is the minimum interval between calls. Zero disables pacing.
	Pacing time.Duration
	Logger *slog.Logger
}

type openTopoResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// OpenTopoDataClient implements ElevationLookup against the OpenTopoData REST
// API. Calls are paced by a token-bucket limiter with a burst of one.
type OpenTopoDataClient struct {
	base    *BaseClient
	baseURL string
	dataset string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenTopoDataClient creates an OpenTopoDataClient.
func NewOpenTopoDataClient(httpClient *http.Client, cfg OpenTopoDataConfig) *OpenTopoDataClient {
	base := NewBaseClient(httpClient, "opentopodata", DefaultBreakerSettings(), DefaultUserAgent)
	return NewOpenTopoDataClientWithBase(base, cfg)
}

// NewOpenTopoDataClientWithBase creates an OpenTopoDataClient with a
// pre-configured BaseClient.
func NewOpenTopoDataClientWithBase(base *BaseClient, cfg OpenTopoDataConfig) *OpenTopoDataClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultElevationBaseURL
	}
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = DefaultElevationDataset
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}

	return &OpenTopoDataClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dataset: dataset,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Elevation looks up one coordinate. It blocks until the pacing limiter admits
// the call. A null elevation in the response (outside the dataset's coverage)
// is reported as ErrCodeUpstreamElevation. A pacing wait that cannot finish
// before the context deadline is ErrCodeUpstreamRateLimited.
func (c *OpenTopoDataClient) Elevation(ctx context.Context, lat, lon float64) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		// The next slot lies beyond the context deadline.
		return 0, types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"elevation pacing would exceed the context deadline", err)
	}

	q := url.Values{}
	q.Set("locations", formatCoord(lat)+","+formatCoord(lon))
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(c.dataset), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create elevation request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body openTopoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamElevation, "failed to decode elevation response", err)
	}

	if resp.StatusCode >= 400 || body.Status != "OK" {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamElevation,
			fmt.Sprintf("elevation API returned %d", resp.StatusCode),
			nil,
			map[string]any{"status": body.Status, "error": body.Error},
		)
	}

	if len(body.Results) == 0 || body.Results[0].Elevation == nil {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamElevation,
			"no elevation available for coordinate",
			nil,
			map[string]any{"lat": lat, "lon": lon, "dataset": c.dataset},
		)
	}

	return *body.Results[0].Elevation, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
