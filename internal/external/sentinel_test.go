package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmsat/internal/geo"
	"farmsat/internal/raster"
	"farmsat/internal/types"
)

type sentinelServer struct {
	*httptest.Server
	tokenCalls   atomic.Int32
	processCalls atomic.Int32

	tokenStatus   int
	processStatus int
	lastBody      processRequest
	lastAuth      string
	lastForm      map[string]string
}

func newSentinelServer(t *testing.T) *sentinelServer {
	t.Helper()
	s := &sentinelServer{tokenStatus: http.StatusOK, processStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		s.lastForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}
		if s.tokenStatus != http.StatusOK {
			w.WriteHeader(s.tokenStatus)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	})
	mux.HandleFunc("POST /process", func(w http.ResponseWriter, r *http.Request) {
		s.processCalls.Add(1)
		s.lastAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &s.lastBody))
		if s.processStatus != http.StatusOK {
			w.WriteHeader(s.processStatus)
			w.Write([]byte(`{"error":{"message":"no data"}}`))
			return
		}
		w.Header().Set("Content-Type", "image/tiff")
		w.Write([]byte("TIFFDATA"))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func stubDecode(t *testing.T) func([]byte) (raster.Image, error) {
	return func(data []byte) (raster.Image, error) {
		assert.Equal(t, "TIFFDATA", string(data))
		planes := make([][]float32, types.NumBands)
		for i := range planes {
			planes[i] = []float32{float32(i)}
		}
		return raster.NewMemImage(geo.Grid{Transform: geo.NorthUp(9, 45, 1, 1), Width: 1, Height: 1}, planes)
	}
}

func newSentinelClient(t *testing.T, s *sentinelServer) *SentinelHubClient {
	t.Helper()
	c, err := NewSentinelHubClient(&http.Client{Timeout: 5 * time.Second}, SentinelHubConfig{
		ClientID:     "id-1",
		ClientSecret: "secret-1",
		TokenURL:     s.URL + "/token",
		ProcessURL:   s.URL + "/process",
		Decode:       stubDecode(t),
	})
	require.NoError(t, err)
	return c
}

var testBBox = types.BoundingBox{LonMin: 9.189999, LatMin: 45.459999, LonMax: 9.200001, LatMax: 45.470001}

func TestFetchImageBuildsProcessRequest(t *testing.T) {
	s := newSentinelServer(t)
	c := newSentinelClient(t, s)

	date := time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC)
	img, err := c.FetchImage(context.Background(), 30, date, testBBox)
	require.NoError(t, err)
	defer img.Close()

	assert.Equal(t, types.NumBands, img.BandCount())
	assert.Equal(t, "Bearer tok-1", s.lastAuth)
	assert.Equal(t, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "id-1",
		"client_secret": "secret-1",
	}, s.lastForm)

	body := s.lastBody
	assert.Equal(t, "http://www.opengis.net/def/crs/EPSG/0/4326", body.Input.Bounds.Properties.CRS)
	assert.Equal(t, testBBox.Slice(), body.Input.Bounds.BBox)
	require.Len(t, body.Input.Data, 1)
	assert.Equal(t, "sentinel-2-l2a", body.Input.Data[0].Type)
	assert.Equal(t, "leastCC", body.Input.Data[0].DataFilter.MosaickingOrder)
	assert.Equal(t, 30, body.Input.Data[0].DataFilter.MaxCloudCoverage)
	assert.Equal(t, "2024-05-05T00:00:00Z", body.Input.Data[0].DataFilter.TimeRange.From)
	assert.Equal(t, "2024-05-15T23:59:00Z", body.Input.Data[0].DataFilter.TimeRange.To)

	w, h := geo.Dimensions(testBBox, DefaultResolutionMeters)
	assert.Equal(t, w, body.Output.Width)
	assert.Equal(t, h, body.Output.Height)
	require.Len(t, body.Output.Responses, 1)
	assert.Equal(t, "image/tiff", body.Output.Responses[0].Format.Type)

	assert.Contains(t, body.Evalscript, `"B02", "B03", "B04", "B05", "B06", "B07", "B08", "B8A", "B11", "B12"`)
	assert.Contains(t, body.Evalscript, `sampleType: "FLOAT32"`)
	assert.Contains(t, body.Evalscript, `mosaicking: "SIMPLE"`)
	assert.Contains(t, body.Evalscript, "sample.B8A, sample.B11, sample.B12")
}

func TestFetchImageReusesToken(t *testing.T) {
	s := newSentinelServer(t)
	c := newSentinelClient(t, s)

	for i := 0; i < 3; i++ {
		img, err := c.FetchImage(context.Background(), 30, time.Date(2024, 5, 10+i, 0, 0, 0, 0, time.UTC), testBBox)
		require.NoError(t, err)
		img.Close()
	}

	assert.Equal(t, int32(1), s.tokenCalls.Load())
	assert.Equal(t, int32(3), s.processCalls.Load())
}

func TestFetchImageRefreshesExpiredToken(t *testing.T) {
	s := newSentinelServer(t)
	c := newSentinelClient(t, s)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.FetchImage(context.Background(), 30, now, testBBox)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = c.FetchImage(context.Background(), 30, now, testBBox)
	require.NoError(t, err)

	assert.Equal(t, int32(2), s.tokenCalls.Load())
}

func TestFetchImageProcessError(t *testing.T) {
	s := newSentinelServer(t)
	s.processStatus = http.StatusBadRequest
	c := newSentinelClient(t, s)

	_, err := c.FetchImage(context.Background(), 30, time.Now(), testBBox)
	require.Error(t, err)

	code := types.CodeOf(err)
	assert.Equal(t, types.ErrCodeUpstreamImagery, code)
	assert.True(t, code.Upstream())
}

func TestFetchImageServerErrorIsUpstream(t *testing.T) {
	s := newSentinelServer(t)
	s.processStatus = http.StatusBadGateway
	c := newSentinelClient(t, s)

	_, err := c.FetchImage(context.Background(), 30, time.Now(), testBBox)
	require.Error(t, err)
	assert.True(t, types.CodeOf(err).Upstream())
	assert.Equal(t, int32(1), s.processCalls.Load())
}

func TestFetchImageTokenRejected(t *testing.T) {
	s := newSentinelServer(t)
	s.tokenStatus = http.StatusUnauthorized
	c := newSentinelClient(t, s)

	_, err := c.FetchImage(context.Background(), 30, time.Now(), testBBox)
	require.Error(t, err)

	assert.Equal(t, types.ErrCodeUpstreamAuth, types.CodeOf(err))
	assert.Equal(t, int32(0), s.processCalls.Load())
}

func TestFetchImageDecodeFailureIsStructural(t *testing.T) {
	s := newSentinelServer(t)
	c, err := NewSentinelHubClient(nil, SentinelHubConfig{
		ClientID:     "id-1",
		ClientSecret: "secret-1",
		TokenURL:     s.URL + "/token",
		ProcessURL:   s.URL + "/process",
		Decode: func([]byte) (raster.Image, error) {
			return nil, types.NewAppError(types.ErrCodeInternalRasterDecode, "bad tiff", nil)
		},
	})
	require.NoError(t, err)

	_, err = c.FetchImage(context.Background(), 30, time.Now(), testBBox)
	require.Error(t, err)
	assert.True(t, types.CodeOf(err).Structural())
}

func TestNewSentinelHubClientRequiresCredentials(t *testing.T) {
	_, err := NewSentinelHubClient(nil, SentinelHubConfig{ClientID: "id-only"})
	require.Error(t, err)

	code := types.CodeOf(err)
	assert.Equal(t, types.ErrCodeConfigMissingCredentials, code)
	assert.True(t, code.Fatal())
}

func TestTimeRange(t *testing.T) {
	from, to := TimeRange(time.Date(2024, time.March, 3, 14, 30, 0, 0, time.UTC), 10)

	assert.Equal(t, time.Date(2024, time.February, 22, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, time.March, 3, 23, 59, 0, 0, time.UTC), to)
}
