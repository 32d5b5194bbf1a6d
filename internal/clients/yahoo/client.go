// Package yahoo provides a client for the Yahoo Finance v8 chart API
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

const (
	DefaultBaseURL   = "https://query2.finance.yahoo.com"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 2 // requests per second
	userAgent        = "Mozilla/5.0 (compatible; folio/1.0)"
)

// ErrNoResult is returned when the chart payload carries no result
var ErrNoResult = errors.New("yahoo: no result")

// Client implements interfaces.MarketDataClient against Yahoo Finance
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Yahoo chart client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name identifies the provider
func (c *Client) Name() string { return "yahoo" }

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Permanent reports whether retrying the same request is pointless.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
		PreviousClose      float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp []int64 `json:"timestamp"`
	Events    struct {
		Splits map[string]struct {
			Date        int64   `json:"date"`
			Numerator   float64 `json:"numerator"`
			Denominator float64 `json:"denominator"`
		} `json:"splits"`
	} `json:"events"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// chart performs a rate-limited GET against /v8/finance/chart/{symbol}
func (c *Client) chart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	path := "/v8/finance/chart/" + url.PathEscape(symbol)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Yahoo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if raw.Chart.Error != nil {
		// Yahoo reports unknown symbols as {"code":"Not Found","description":"No data found, symbol may be delisted"}
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: raw.Chart.Error.Description, Endpoint: path}
	}
	if len(raw.Chart.Result) == 0 {
		return nil, ErrNoResult
	}
	return &raw.Chart.Result[0], nil
}

// GetRealTimeQuote retrieves the regular market price, falling back to the
// last non-null close of the intraday series.
func (c *Client) GetRealTimeQuote(ctx context.Context, ticker string) (*models.RealTimeQuote, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "5d")

	r, err := c.chart(ctx, ticker, params)
	if err != nil {
		return nil, err
	}

	price := r.Meta.RegularMarketPrice
	asOf := time.Unix(r.Meta.RegularMarketTime, 0).UTC()

	if price <= 0 && len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0 && i < len(r.Timestamp); i-- {
			if closes[i] != nil && *closes[i] > 0 {
				price = *closes[i]
				asOf = time.Unix(r.Timestamp[i], 0).UTC()
				break
			}
		}
	}
	if price <= 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no price data found", Endpoint: ticker}
	}

	return &models.RealTimeQuote{
		Code:          r.Meta.Symbol,
		Close:         price,
		PreviousClose: r.Meta.PreviousClose,
		Currency:      r.Meta.Currency,
		Timestamp:     asOf,
		Source:        c.Name(),
	}, nil
}

// GetSplits retrieves split events in [from, to] from the chart events feed
func (c *Client) GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error) {
	if from.IsZero() {
		from = time.Unix(0, 0)
	}
	if to.IsZero() {
		to = time.Now()
	}
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("events", "split")
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	// period2 is exclusive on Yahoo's side
	params.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))

	r, err := c.chart(ctx, ticker, params)
	if err != nil {
		return nil, err
	}

	events := make([]models.SplitEvent, 0, len(r.Events.Splits))
	for _, s := range r.Events.Splits {
		if s.Numerator <= 0 || s.Denominator <= 0 {
			c.logger.Warn().Str("ticker", ticker).Int64("date", s.Date).Msg("Skipping split with non-positive terms")
			continue
		}
		events = append(events, models.SplitEvent{
			Symbol:        ticker,
			EffectiveDate: models.TruncateDay(time.Unix(s.Date, 0).UTC()),
			Ratio:         s.Numerator / s.Denominator,
		})
	}
	models.SortSplits(events)
	return events, nil
}

// GetFXRate retrieves the rate for one unit of from in to using the <FROM><TO>=X pair
func (c *Client) GetFXRate(ctx context.Context, from, to string) (float64, error) {
	pair := strings.ToUpper(strings.TrimSpace(from)+strings.TrimSpace(to)) + "=X"
	q, err := c.GetRealTimeQuote(ctx, pair)
	if err != nil {
		return 0, err
	}
	return q.Close, nil
}
