package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"go.uber.org/zap"
)

// Client resolves routes through the OSRM route service
type Client struct {
	baseURL    string
	profile    string
	httpClient *http.Client
	logger     *zap.Logger
}

// routeResponse is the subset of the OSRM route response used here
type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// NewClient creates a new OSRM client
func NewClient(baseURL, profile string, timeout time.Duration, logger *zap.Logger) *Client {
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Route returns the route geometry between origin and destination
func (c *Client) Route(ctx context.Context, origin, destination domain.GeoPoint) ([]domain.GeoPoint, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		c.baseURL, c.profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build route request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request route: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm returned status %d", resp.StatusCode)
	}

	var parsed routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode route response: %w", err)
	}
	if parsed.Code != "" && parsed.Code != "Ok" {
		return nil, fmt.Errorf("osrm error %s: %s", parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return nil, nil
	}

	coords := parsed.Routes[0].Geometry.Coordinates
	points := make([]domain.GeoPoint, 0, len(coords))
	for _, pair := range coords {
		if len(pair) < 2 {
			continue
		}
		points = append(points, domain.NewGeoPoint(pair[0], pair[1]))
	}

	c.logger.Debug("route resolved",
		zap.String("origin", origin.String()),
		zap.String("destination", destination.String()),
		zap.Int("points", len(points)),
		zap.Float64("distance_m", parsed.Routes[0].Distance),
		zap.Duration("duration", time.Since(start)))

	return points, nil
}
