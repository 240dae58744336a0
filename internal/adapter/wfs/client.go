// Package wfs loads archaeological sites from the IPHAN GeoServer layer
// through its CORS proxy.
package wfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
)

// SourceTag prefixes ids synthesized for features without an id.
const SourceTag = "iphan"

// ErrResponseTooLarge is returned when a response exceeds the configured size limit.
var ErrResponseTooLarge = errors.New("wfs response exceeds size limit")

// Client implements a bounding-box feature query against a WFS endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	typeName    string
	maxFeatures int
	maxBytes    int64
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewClient creates a WFS client. maxFeatures bounds the features requested and
// maxBytes the accepted body size; maxBytes <= 0 disables the limit.
func NewClient(baseURL, typeName string, maxFeatures int, maxBytes int64, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		typeName:    typeName,
		maxFeatures: maxFeatures,
		maxBytes:    maxBytes,
		logger:      logger,
		metrics:     metrics,
	}
}

// LoadFromBbox returns the sites inside bbox. Results are neither sorted nor
// deduplicated across calls.
func (c *Client) LoadFromBbox(ctx context.Context, bbox domain.BBox) ([]domain.Point, error) {
	start := time.Now()
	defer func() {
		c.metrics.IngestDuration.WithLabelValues(SourceTag).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(bbox), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "transport").Inc()
		return nil, fmt.Errorf("wfs request: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "transport").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.StatusError{
			Source:     "wfs proxy",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "transport").Inc()
		return nil, fmt.Errorf("read wfs response: %w: %w", domain.ErrTransport, err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "parse").Inc()
		return nil, fmt.Errorf("read wfs response: %w: %w", domain.ErrParse, ErrResponseTooLarge)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "parse").Inc()
		return nil, fmt.Errorf("decode wfs response: %w: %w", domain.ErrParse, err)
	}

	points := make([]domain.Point, 0, len(fc.Features))
	rejected := 0
	for i, f := range fc.Features {
		p, err := domain.NormalizeFeature(f, i, SourceTag)
		if err != nil {
			rejected++
			c.logger.Debug("wfs feature rejected", "index", i, "error", err)
			continue
		}
		points = append(points, p)
	}

	c.metrics.RecordsParsed.WithLabelValues(SourceTag).Add(float64(len(fc.Features)))
	c.metrics.RecordsRejected.WithLabelValues(SourceTag).Add(float64(rejected))
	c.logger.Debug("wfs loaded", "bbox", bbox.String(), "features", len(fc.Features), "points", len(points))

	return points, nil
}

func (c *Client) requestURL(b domain.BBox) string {
	params := url.Values{
		"service":      {"WFS"},
		"version":      {"1.0.0"},
		"request":      {"GetFeature"},
		"typeName":     {c.typeName},
		"outputFormat": {"application/json"},
		"srsName":      {"EPSG:4326"},
		// WFS 1.0.0 bbox axis order is lng,lat.
		"bbox":        {b.String() + ",EPSG:4326"},
		"maxFeatures": {strconv.Itoa(c.maxFeatures)},
	}

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + params.Encode()
}
