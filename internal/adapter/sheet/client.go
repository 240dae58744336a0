// Package sheet ingests points from a published spreadsheet CSV export.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
)

// SourceTag prefixes ids synthesized for rows without an id.
const SourceTag = "csv"

// Client loads points from a delimited-text resource over HTTP.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a spreadsheet client. maxBytes caps the accepted body size.
func NewClient(timeout time.Duration, maxBytes int64, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		logger:     logger,
		metrics:    metrics,
	}
}

// LoadFromDelimitedSource fetches url and returns its valid points in row order.
// Invalid rows are dropped; only transport or parse failures fail the batch.
func (c *Client) LoadFromDelimitedSource(ctx context.Context, url string) ([]domain.Point, error) {
	batch, err := c.FetchBatch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.logger.Info("csv loaded", "url", url, "points", len(batch.Points), "rejected", len(batch.Rejected))
	return batch.Points, nil
}

// FetchBatch fetches url and parses it, keeping per-row rejections.
func (c *Client) FetchBatch(ctx context.Context, url string) (Batch, error) {
	start := time.Now()
	defer func() {
		c.metrics.IngestDuration.WithLabelValues(SourceTag).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to load csv: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "transport").Inc()
		return Batch{}, fmt.Errorf("failed to load csv: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "transport").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Batch{}, fmt.Errorf("failed to load csv: %w", &domain.StatusError{
			Source:     "spreadsheet",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "parse").Inc()
		return Batch{}, fmt.Errorf("failed to process csv data: %w: unexpected content type %q", domain.ErrParse, ct)
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = &limitedReader{r: resp.Body, remaining: c.maxBytes}
	}

	batch, err := Parse(body, SourceTag)
	if err != nil {
		c.metrics.IngestErrors.WithLabelValues(SourceTag, "parse").Inc()
		return Batch{}, err
	}

	c.metrics.RecordsParsed.WithLabelValues(SourceTag).Add(float64(batch.Rows))
	c.metrics.RecordsRejected.WithLabelValues(SourceTag).Add(float64(len(batch.Rejected)))
	for _, rej := range batch.Rejected {
		c.logger.Debug("csv row rejected", "row", rej.Index, "error", rej.Err)
	}
	return batch, nil
}

// Rejection records a dropped data row.
type Rejection struct {
	Index int
	Err   error
}

// Batch is the outcome of parsing one delimited payload.
type Batch struct {
	Points   []domain.Point
	Rows     int
	Rejected []Rejection
}

// Parse reads a header row and data rows from r and normalizes each row.
// Rows are indexed from 0, header excluded; blank lines are skipped. Quotes are
// read leniently and a malformed row is rejected on its own; only read failures
// and an unreadable header fail the batch.
func Parse(r io.Reader, sourceTag string) (Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	batch := Batch{Points: []domain.Point{}}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return batch, nil
	}
	if err != nil {
		return Batch{}, parseError(err)
	}
	header = normalizeHeader(header)

	for index := 0; ; index++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			batch.Rows++
			batch.Rejected = append(batch.Rejected, Rejection{
				Index: index,
				Err:   fmt.Errorf("%w: malformed row: %w", domain.ErrRejected, err),
			})
			continue
		}
		if err != nil {
			return Batch{}, parseError(err)
		}
		batch.Rows++

		p, err := domain.NormalizeRow(toRow(header, fields), index, sourceTag)
		if err != nil {
			batch.Rejected = append(batch.Rejected, Rejection{Index: index, Err: err})
			continue
		}
		batch.Points = append(batch.Points, p)
	}
	return batch, nil
}

func parseError(err error) error {
	return fmt.Errorf("failed to process csv data: %w: %w", domain.ErrParse, err)
}

// normalizeHeader trims whitespace and a UTF-8 byte order mark.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// toRow maps fields onto header names. Extra fields are ignored and missing
// trailing fields read as empty.
func toRow(header, fields []string) domain.Row {
	row := make(domain.Row, len(header))
	for i, name := range header {
		if name == "" || i >= len(fields) {
			continue
		}
		if _, dup := row[name]; dup {
			continue
		}
		row[name] = fields[i]
	}
	return row
}

var errBodyTooLarge = errors.New("response body exceeds size limit")

// limitedReader errors once more than remaining bytes are available.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		if n, _ := l.r.Read(probe[:]); n > 0 {
			return 0, errBodyTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
