package external

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
	"sync"
	"time"

	"farmsat/internal/geo"
	"farmsat/internal/raster"
	"farmsat/internal/types"
)

const (
	// DefaultSentinelTokenURL is the Copernicus Data Space identity endpoint.
	DefaultSentinelTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	// DefaultSentinelProcessURL is the Sentinel Hub Process API endpoint.
	DefaultSentinelProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"

	// DefaultWindowDays is the look-back window before the reading date.
	DefaultWindowDays = 10

	// DefaultResolutionMeters is the requested ground resolution.
	DefaultResolutionMeters = 20.0

	crsWGS84 = "http://www.opengis.net/def/crs/EPSG/0/4326"

	// tokenExpirySkew renews the token slightly before the provider says it
	// expires.
	tokenExpirySkew = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for the log.
	maxErrorBody = 1024
)

// evalscript requests the ten bands as FLOAT32 reflectance, in the plane order
// of types.AllBands.
var evalscript = buildEvalscript()

func buildEvalscript() string {
	names := make([]string, len(types.AllBands))
	samples := make([]string, len(types.AllBands))
	for i, b := range types.AllBands {
		names[i] = fmt.Sprintf("%q", b.String())
		samples[i] = "sample." + b.String()
	}

	return fmt.Sprintf(`//VERSION=3
function setup() {
    return {
        input: [{
            bands: [%s],
            units: "REFLECTANCE"
        }],
        output: {
            bands: %d,
            sampleType: "FLOAT32"
        },
        mosaicking: "SIMPLE"
    };
}

function evaluatePixel(sample) {
    return [%s];
}
`, strings.Join(names, ", "), len(types.AllBands), strings.Join(samples, ", "))
}

// ImageFetcher retrieves one cloud-filtered multi-band image for a bounding box
// and reading date. The caller owns the returned Image and must Close it.
type ImageFetcher interface {
	FetchImage(ctx context.Context, maxCloudCoverage int, date time.Time, bbox types.BoundingBox) (raster.Image, error)
}

// SentinelHubConfig holds the configuration for creating a SentinelHubClient.
type SentinelHubConfig struct {
	ClientID     string
	ClientSecret types.SecretString

	TokenURL   string // Override for testing; defaults to DefaultSentinelTokenURL
	ProcessURL string // Override for testing; defaults to DefaultSentinelProcessURL

	WindowDays       int
	ResolutionMeters float64

	// Decode turns the response body into an Image. Defaults to
	// raster.DecodeGeoTIFF.
	Decode func([]byte) (raster.Image, error)

	Logger *slog.Logger
}

// processRequest is the Process API request body.
type processRequest struct {
	Input      processInput  `json:"input"`
	Output     processOutput `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type processInput struct {
	Bounds processBounds `json:"bounds"`
	Data   []processData `json:"data"`
}

type processBounds struct {
	Properties struct {
		CRS string `json:"crs"`
	} `json:"properties"`
	BBox []float64 `json:"bbox"`
}

type processData struct {
	Type       string        `json:"type"`
	DataFilter processFilter `json:"dataFilter"`
}

type processFilter struct {
	MosaickingOrder  string           `json:"mosaickingOrder"`
	MaxCloudCoverage int              `json:"maxCloudCoverage"`
	TimeRange        processTimeRange `json:"timeRange"`
}

type processTimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type processOutput struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Responses []processResponse `json:"responses"`
}

type processResponse struct {
	Identifier string `json:"identifier"`
	Format     struct {
		Type string `json:"type"`
	} `json:"format"`
}

// tokenResponse is the client-credentials grant response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// SentinelHubClient implements ImageFetcher against the Copernicus Data Space
// Sentinel Hub Process API. A client-credentials token is fetched on first use
// and reused until it expires.
type SentinelHubClient struct {
	base         *BaseClient
	clientID     string
	clientSecret types.SecretString
	tokenURL     string
	processURL   string
	windowDays   int
	resolution   float64
	decode       func([]byte) (raster.Image, error)
	logger       *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSentinelHubClient creates a SentinelHubClient. Missing credentials are a
// configuration error.
func NewSentinelHubClient(httpClient *http.Client, cfg SentinelHubConfig) (*SentinelHubClient, error) {
	base := NewBaseClient(httpClient, "sentinelhub", DefaultBreakerSettings(), DefaultUserAgent)
	return NewSentinelHubClientWithBase(base, cfg)
}

// NewSentinelHubClientWithBase creates a SentinelHubClient with a
// pre-configured BaseClient.
func NewSentinelHubClientWithBase(base *BaseClient, cfg SentinelHubConfig) (*SentinelHubClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret.IsZero() {
		return nil, types.NewAppError(
			types.ErrCodeConfigMissingCredentials,
			"Sentinel Hub client ID and secret must be set",
			nil,
		)
	}

	c := &SentinelHubClient{
		base:         base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.TokenURL,
		processURL:   cfg.ProcessURL,
		windowDays:   cfg.WindowDays,
		resolution:   cfg.ResolutionMeters,
		decode:       cfg.Decode,
		logger:       cfg.Logger,
		now:          time.Now,
	}
	if c.tokenURL == "" {
		c.tokenURL = DefaultSentinelTokenURL
	}
	if c.processURL == "" {
		c.processURL = DefaultSentinelProcessURL
	}
	if c.windowDays <= 0 {
		c.windowDays = DefaultWindowDays
	}
	if c.resolution <= 0 {
		c.resolution = DefaultResolutionMeters
	}
	if c.decode == nil {
		c.decode = raster.DecodeGeoTIFF
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// FetchImage requests the least-cloudy mosaic within the look-back window
// ending on date and decodes it.
func (c *SentinelHubClient) FetchImage(
	ctx context.Context,
	maxCloudCoverage int,
	date time.Time,
	bbox types.BoundingBox,
) (raster.Image, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(c.buildRequest(maxCloudCoverage, date, bbox))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize process request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create process request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/tiff")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.DebugContext(ctx, "requesting Sentinel-2 image",
		"date", date.Format(time.DateOnly),
		"bbox", bbox.Slice(),
		"max_cloud_coverage", maxCloudCoverage,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.invalidateToken()
	}
	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, date)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamImagery, "failed to read image response", err)
	}

	img, err := c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image for %s: %w", date.Format(time.DateOnly), err)
	}
	return img, nil
}

// buildRequest assembles the Process API body.
func (c *SentinelHubClient) buildRequest(maxCloudCoverage int, date time.Time, bbox types.BoundingBox) processRequest {
	width, height := geo.Dimensions(bbox, c.resolution)
	from, to := TimeRange(date, c.windowDays)

	var req processRequest
	req.Input.Bounds.Properties.CRS = crsWGS84
	req.Input.Bounds.BBox = bbox.Slice()
	req.Input.Data = []processData{{
		Type: "sentinel-2-l2a",
		DataFilter: processFilter{
			MosaickingOrder:  "leastCC",
			MaxCloudCoverage: maxCloudCoverage,
			TimeRange: processTimeRange{
				From: from.Format(time.RFC3339),
				To:   to.Format(time.RFC3339),
			},
		},
	}}

	resp := processResponse{Identifier: "default"}
	resp.Format.Type = "image/tiff"
	req.Output = processOutput{Width: width, Height: height, Responses: []processResponse{resp}}
	req.Evalscript = evalscript
	return req
}

// TimeRange returns the acquisition window for a reading date: from midnight
// windowDays before the date until 23:59 on the date itself, in UTC.
func TimeRange(date time.Time, windowDays int) (from, to time.Time) {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -windowDays), day.Add(23*time.Hour + 59*time.Minute)
}

// accessToken returns the cached token or requests a new one.
func (c *SentinelHubClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret.Unmask())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamAuth,
			fmt.Sprintf("token request returned %d", resp.StatusCode),
			nil,
			map[string]any{"body": string(snippet)},
		)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamAuth, "failed to decode token response", err)
	}
	if tok.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamAuth, "token response has no access_token", nil)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew)

	c.logger.DebugContext(ctx, "obtained Sentinel Hub access token", "expires_in", tok.ExpiresIn)
	return c.token, nil
}

func (c *SentinelHubClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// handleErrorResponse maps a 4xx process response to an AppError.
func (c *SentinelHubClient) handleErrorResponse(resp *http.Response, date time.Time) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	code := types.ErrCodeUpstreamImagery
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		code = types.ErrCodeUpstreamAuth
	}

	return types.NewAppErrorWithDetails(
		code,
		fmt.Sprintf("process API returned %d for %s", resp.StatusCode, date.Format(time.DateOnly)),
		nil,
		map[string]any{"status": resp.StatusCode, "body": string(snippet)},
	)
}
