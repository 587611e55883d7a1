// Package fetcher retrieves single tiles from remote HTTP providers,
// spacing requests through a shared limiter and classifying the failure
// modes a map-tile provider can produce.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
)

// Source describes one remote tile provider. Limited selects whether
// fetches against it go through the shared limiter; the local render
// server is not limited, public providers are.
type Source struct {
	Name        string
	URLTemplate string
	Timeout     time.Duration
	Limited     bool
}

// URL interpolates a tile into the source's {z}/{x}/{y} template.
func (s Source) URL(t cache.TileKey) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
	)
	return r.Replace(s.URLTemplate)
}

type Fetcher struct {
	client    *http.Client
	limiter   *Limiter
	userAgent string
	logger    logger.Logger
}

func New(limiter *Limiter, userAgent string, l logger.Logger) *Fetcher {
	return &Fetcher{
		// Per-source deadlines come from request contexts, not the client.
		client:    &http.Client{},
		limiter:   limiter,
		userAgent: userAgent,
		logger:    l,
	}
}

// Fetch retrieves one tile from src. No retry happens here; retry policy
// belongs to the caller.
func (f *Fetcher) Fetch(ctx context.Context, src Source, t cache.TileKey) ([]byte, error) {
	if src.Limited {
		f.limiter.Wait()
	}

	ctx, cancel := context.WithTimeout(ctx, src.Timeout)
	defer cancel()

	url := src.URL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/png")

	metrics.UpstreamFetches.WithLabelValues(src.Name).Inc()
	start := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			f.logger.Warn("tile fetch timed out", "source", src.Name, "url", url)
			return nil, fmt.Errorf("%s: %w", src.Name, ErrFetchTimeout)
		}
		return nil, fmt.Errorf("failed to fetch tile from %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamLatency.WithLabelValues(src.Name).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		// Drain so the keep-alive connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read tile data from %s: %w", src.Name, err)
		}
		return data, nil

	case http.StatusTooManyRequests:
		return nil, &RateLimitedError{
			Source:     src.Name,
			RetryAfter: retryAfter(resp),
		}

	case http.StatusForbidden:
		return nil, &BlockedError{Source: src.Name}

	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", src.Name, ErrTileNotFound)

	default:
		return nil, &UnexpectedStatusError{
			Source:     src.Name,
			StatusCode: resp.StatusCode,
		}
	}
}

const (
	defaultRetryAfter = 60 * time.Second

	// Error responses larger than this are abandoned along with the
	// connection.
	maxDrainBytes = 64 << 10
)

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return os.IsTimeout(err)
}
