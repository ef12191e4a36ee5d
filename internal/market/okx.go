package market

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/logging"
	"okx-scanner/internal/metrics"
	"okx-scanner/internal/models"
	"okx-scanner/internal/resilience"
)

// DefaultBaseURL is the public OKX REST endpoint.
const DefaultBaseURL = "https://www.okx.com"

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// OKXClient reads public market data from the OKX v5 REST API. Requests are
// never retried; a failure surfaces as *errors.UpstreamError.
type OKXClient struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
	breaker *resilience.Breaker
}

// ClientOption configures an OKXClient.
type ClientOption func(*OKXClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OKXClient) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *OKXClient) { c.logger = logger }
}

// WithMetrics records every request.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *OKXClient) { c.metrics = m }
}

// WithBreaker fails requests fast while the exchange keeps failing.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *OKXClient) { c.breaker = b }
}

// NewOKXClient creates a client for baseURL. An empty baseURL selects the
// public endpoint; a non-positive timeout selects DefaultTimeout.
func NewOKXClient(baseURL string, timeout time.Duration, opts ...ClientOption) *OKXClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &OKXClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common OKX response wrapper.
type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

// okxTicker is the wire form of a ticker; OKX sends numbers as strings.
type okxTicker struct {
	InstType  string `json:"instType"`
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	Ts        string `json:"ts"`
}

func (t okxTicker) toModel() models.Ticker {
	out := models.Ticker{
		InstID:    t.InstID,
		InstType:  models.InstrumentType(t.InstType),
		Last:      parseFloat(t.Last),
		Open24h:   parseFloat(t.Open24h),
		High24h:   parseFloat(t.High24h),
		Low24h:    parseFloat(t.Low24h),
		Vol24h:    parseFloat(t.Vol24h),
		VolCcy24h: parseFloat(t.VolCcy24h),
	}
	if ms, err := strconv.ParseInt(t.Ts, 10, 64); err == nil {
		out.Timestamp = time.UnixMilli(ms).UTC()
	}
	return out
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// FetchCandles implements DataSource.
func (c *OKXClient) FetchCandles(ctx context.Context, instID, bar string, limit int) (*models.CandleSeries, error) {
	params := url.Values{}
	params.Set("instId", instID)
	params.Set("bar", bar)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	rows, err := get[[][]string](ctx, c, "candles", instID, "/api/v5/market/candles", params)
	if err != nil {
		return nil, err
	}
	return &models.CandleSeries{InstID: instID, Bar: bar, Rows: rows}, nil
}

// FetchTickers implements DataSource.
func (c *OKXClient) FetchTickers(ctx context.Context, instType models.InstrumentType) ([]models.Ticker, error) {
	if instType == "" {
		instType = models.InstSpot
	}
	params := url.Values{}
	params.Set("instType", string(instType))

	raw, err := get[[]okxTicker](ctx, c, "tickers", "", "/api/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}
	out := make([]models.Ticker, 0, len(raw))
	for _, t := range raw {
		if t.InstID == "" {
			continue
		}
		out = append(out, t.toModel())
	}
	return out, nil
}

// FetchTicker implements DataSource.
func (c *OKXClient) FetchTicker(ctx context.Context, instID string) (*models.Ticker, error) {
	params := url.Values{}
	params.Set("instId", instID)

	raw, err := get[[]okxTicker](ctx, c, "ticker", instID, "/api/v5/market/ticker", params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.NewUpstreamError("ticker", instID, 0, "", "empty ticker data", nil)
	}
	t := raw[0].toModel()
	return &t, nil
}

// get performs one GET request, unwraps the OKX envelope and records the
// call.
func get[T any](ctx context.Context, c *OKXClient, op, instID, path string, params url.Values) (T, error) {
	if err := c.breaker.Allow(); err != nil {
		var zero T
		c.metrics.ObserveUpstream(op, 0, err)
		return zero, errors.NewUpstreamError(op, instID, 0, "", "upstream unavailable", err)
	}

	start := time.Now()
	out, err := fetch[T](ctx, c, op, instID, path, params)
	elapsed := time.Since(start)
	c.breaker.Record(isOutage(err))

	c.metrics.ObserveUpstream(op, elapsed, err)
	logging.LogAPICall(c.logger, http.MethodGet, path, elapsed, err)
	return out, err
}

// isOutage reports whether err reflects the exchange failing rather than a
// rejected request or a cancelled caller.
func isOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ue *errors.UpstreamError
	if errors.As(err, &ue) {
		if ue.Code != "" {
			return false
		}
		if ue.Status >= 400 && ue.Status < 500 && ue.Status != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}

func fetch[T any](ctx context.Context, c *OKXClient, op, instID, path string, params url.Values) (T, error) {
	var env envelope[T]
	data, err := c.do(ctx, op, instID, path, params)
	if err != nil {
		return env.Data, err
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return env.Data, errors.NewUpstreamError(op, instID, 0, "", "decode response", err)
	}
	if env.Code != "0" {
		var zero T
		return zero, errors.NewUpstreamError(op, instID, 0, env.Code, env.Msg, nil)
	}
	return env.Data, nil
}

func (c *OKXClient) do(ctx context.Context, op, instID, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewUpstreamError(op, instID, 0, "", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError(op, instID, 0, "", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewUpstreamError(op, instID, resp.StatusCode, "", "read body", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errors.NewUpstreamError(op, instID, resp.StatusCode, "", msg, nil)
	}
	return body, nil
}
