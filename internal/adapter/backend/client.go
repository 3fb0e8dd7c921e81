package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ai-labc/cropai/internal/adapter/cache"
	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
)

// Client implements Gateway over HTTP against the analytics backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	cache      cache.Store
	cacheTTL   time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

var _ Gateway = (*Client)(nil)

// NewClient creates a gateway client. The cache store is required; the
// caller decides whether it is disk-backed or in-memory.
func NewClient(baseURL string, timeout time.Duration, store cache.Store, cacheTTL time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
		cache:      store,
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

func (c *Client) Farms(ctx context.Context) ([]domain.Farm, error) {
	env, err := c.get(ctx, PathFarms, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.Farm](env, PathFarms)
}

func (c *Client) Crops(ctx context.Context) ([]domain.Crop, error) {
	env, err := c.get(ctx, PathCrops, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.Crop](env, PathCrops)
}

func (c *Client) Fields(ctx context.Context, farmID, cropID string) ([]domain.FieldBoundary, error) {
	if farmID == "" || cropID == "" {
		return nil, domain.ValidationError(PathFields, "farm_id and crop_id are required")
	}
	env, err := c.get(ctx, PathFields, FieldsParams(farmID, cropID), true)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.FieldBoundary](env, PathFields)
}

func (c *Client) KPI(ctx context.Context, q KPIQuery, useCache bool) (domain.KPISummary, error) {
	env, err := c.get(ctx, PathKPI, q.Params(), useCache)
	if err != nil {
		return domain.KPISummary{}, err
	}
	return decodeAs[domain.KPISummary](env, PathKPI)
}

func (c *Client) NDVIGrid(ctx context.Context, fieldID, date string, useCache bool) (domain.NDVIGrid, error) {
	path := NDVIGridPath(fieldID)
	env, err := c.get(ctx, path, NDVIGridParams(date), useCache)
	if err != nil {
		return domain.NDVIGrid{}, err
	}
	return decodeAs[domain.NDVIGrid](env, path)
}

func (c *Client) NDVITimeline(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.TimeSeriesPoint, error) {
	path := NDVITimelinePath(fieldID)
	env, err := c.get(ctx, path, q.Params(), useCache)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.TimeSeriesPoint](env, path)
}

func (c *Client) StressIndex(ctx context.Context, fieldID string, q StressQuery, useCache bool) (domain.StressIndex, error) {
	path := StressIndexPath(fieldID)
	env, err := c.get(ctx, path, q.Params(), useCache)
	if err != nil {
		return domain.StressIndex{}, err
	}
	return decodeAs[domain.StressIndex](env, path)
}

func (c *Client) SoilMoisture(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.SoilMoisturePoint, error) {
	path := SoilMoisturePath(fieldID)
	env, err := c.get(ctx, path, q.Params(), useCache)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.SoilMoisturePoint](env, path)
}

func (c *Client) YieldPrediction(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.YieldPredictionPoint, error) {
	path := YieldPath(fieldID)
	env, err := c.get(ctx, path, q.Params(), useCache)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.YieldPredictionPoint](env, path)
}

func (c *Client) CarbonMetrics(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.CarbonMetricsPoint, error) {
	path := CarbonPath(fieldID)
	env, err := c.get(ctx, path, q.Params(), useCache)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.CarbonMetricsPoint](env, path)
}

func (c *Client) Weather(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.WeatherPoint, error) {
	path := WeatherPath(fieldID)
	if q.Location == nil {
		return nil, domain.ValidationError(path, "lat and lng are required")
	}
	env, err := c.get(ctx, path, q.Params(), useCache)
	if err != nil {
		return nil, err
	}
	return decodeAs[[]domain.WeatherPoint](env, path)
}

// get performs one read: optional cache consult, exactly one network
// attempt, error classification, and cache population on success. The
// entire envelope is the cached unit. Retries are caller policy, never
// this layer's.
func (c *Client) get(ctx context.Context, path string, params url.Values, useCache bool) (domain.Envelope, error) {
	fingerprint := domain.Fingerprint(path, params)

	if useCache {
		if payload, ok := c.cache.Get(fingerprint); ok {
			var env domain.Envelope
			if err := json.Unmarshal(payload, &env); err == nil && env.Status == domain.StatusSuccess {
				c.metrics.CacheHits.WithLabelValues(path).Inc()
				return env, nil
			}
			// Unreadable cached envelope: evict and fall through.
			c.cache.Clear(fingerprint)
		}
		c.metrics.CacheMisses.WithLabelValues(path).Inc()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fullURL := c.baseURL + path
	if q := params.Encode(); q != "" {
		fullURL += "?" + q
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Envelope{}, c.fail(&domain.RequestError{Kind: domain.ErrValidation, Endpoint: path, Err: err})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Envelope{}, c.fail(classifyTransport(path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Envelope{}, c.fail(classifyTransport(path, err))
	}

	var env domain.Envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return domain.Envelope{}, c.fail(&domain.RequestError{
			Kind: domain.ErrAPI, Endpoint: path, Status: resp.StatusCode, Message: msg,
		})
	}
	if decodeErr != nil {
		return domain.Envelope{}, c.fail(&domain.RequestError{
			Kind: domain.ErrAPI, Endpoint: path, Status: resp.StatusCode,
			Message: "malformed response envelope", Err: decodeErr,
		})
	}
	if env.Status != domain.StatusSuccess {
		return domain.Envelope{}, c.fail(&domain.RequestError{
			Kind: domain.ErrAPI, Endpoint: path, Status: resp.StatusCode, Message: env.Message,
		})
	}

	// Population happens on every successful read, cached consult or not.
	c.cache.Set(fingerprint, body, c.cacheTTL)

	return env, nil
}

func (c *Client) fail(re *domain.RequestError) *domain.RequestError {
	c.metrics.RequestErrors.WithLabelValues(re.Endpoint, string(re.Kind)).Inc()
	c.logger.Debug("backend request failed", "endpoint", re.Endpoint, "kind", re.Kind, "error", re)
	return re
}

// classifyTransport normalizes a transport failure into the error
// taxonomy: deadline exceeded means timeout, everything else network.
func classifyTransport(path string, err error) *domain.RequestError {
	kind := domain.ErrNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.ErrTimeout
	}
	return &domain.RequestError{Kind: kind, Endpoint: path, Err: err}
}

func decodeAs[T any](env domain.Envelope, path string) (T, error) {
	v, err := domain.DecodeData[T](env)
	if err != nil {
		var zero T
		return zero, &domain.RequestError{
			Kind: domain.ErrAPI, Endpoint: path, Message: "malformed payload", Err: err,
		}
	}
	return v, nil
}
