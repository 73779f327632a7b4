package polygonio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.polygon.io"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=polygonio_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a minimal Polygon aggregates API client.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header
	apiKey     string
}

// ClientOption is a configuration option for the client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a Polygon API client authenticating with key.
func NewClient(key string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		apiKey:     key,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Agg is one aggregate window as the API reports it.
type Agg struct {
	Timestamp    int64   `json:"t"` // ms since epoch, window start
	Open         float64 `json:"o"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Close        float64 `json:"c"`
	Volume       float64 `json:"v"`
	VWAP         float64 `json:"vw"`
	Transactions int64   `json:"n"`
}

type aggsResponse struct {
	Ticker       string `json:"ticker"`
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	Results      []Agg  `json:"results"`
	Error        string `json:"error"`
}

// GetAggs retrieves aggregate bars for ticker between from and to
// (half-open handling is the caller's concern; the API is inclusive).
func (c *Client) GetAggs(ctx context.Context, ticker string, multiplier int, timespan string, from, to time.Time) ([]Agg, error) {
	u := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		c.baseURL, url.PathEscape(ticker), multiplier, timespan, from.UnixMilli(), to.UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	q := req.URL.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(50000))
	req.URL.RawQuery = q.Encode()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errStatus{code: res.StatusCode}
	}

	var body aggsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, errMalformed{reason: fmt.Sprintf("decoding aggregates response: %v", err)}
	}
	if body.Error != "" {
		return nil, errMalformed{reason: "api error: " + body.Error}
	}
	return body.Results, nil
}

// errStatus carries the raw HTTP status for the adapter to classify.
type errStatus struct {
	code int
}

func (e errStatus) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// errMalformed marks an unparseable or error-bearing payload.
type errMalformed struct {
	reason string
}

func (e errMalformed) Error() string { return e.reason }
