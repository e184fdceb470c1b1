package coinmarketcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/ratelimit"
	xhttp "CoinPull/pkg/http"
	"CoinPull/pkg/logger"
)

const (
	// SourceName identifies snapshots produced by this client.
	SourceName = "coinmarketcap"

	ProductionURL = "https://pro-api.coinmarketcap.com"
	SandboxURL    = "https://sandbox-api.coinmarketcap.com"

	listingsPath = "/v1/cryptocurrency/listings/latest"
	apiKeyHeader = "X-CMC_PRO_API_KEY"
)

// Client implements a DataSource backed by the CoinMarketCap listings endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger
	now     func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLimiter throttles outgoing requests.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New creates a listings client. An empty baseURL means production.
func New(baseURL, apiKey string, log *logger.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = ProductionURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		log:     log,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return SourceName }

// Fetch requests one page of the latest listings.
func (c *Client) Fetch(ctx context.Context, req models.FetchRequest) (*models.Snapshot, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "listings"); err != nil {
			return nil, models.NewFetchError(SourceName, models.FetchNetwork, fmt.Errorf("rate limiter: %w", err))
		}
	}

	params := map[string][]string{}
	if req.Start > 0 {
		params["start"] = []string{strconv.Itoa(req.Start)}
	}
	if req.Limit > 0 {
		params["limit"] = []string{strconv.Itoa(req.Limit)}
	}
	if req.Convert != "" {
		params["convert"] = []string{req.Convert}
	}

	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + listingsPath,
		Headers: map[string]string{
			"Accept":     "application/json",
			apiKeyHeader: c.apiKey,
		},
		QueryParams: params,
	}, &body)
	fetchedAt := c.now()
	if err != nil {
		return nil, c.classify(err)
	}

	entries, err := parseListings(body)
	if err != nil {
		return nil, err
	}

	c.log.Debug("listings fetched", logger.Int("entries", len(entries)), logger.String("convert", req.Convert))
	return &models.Snapshot{Source: SourceName, FetchedAt: fetchedAt, Entries: entries}, nil
}

func (c *Client) classify(err error) error {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return models.NewFetchError(SourceName, models.FetchNetwork, err)
	}

	kind := kindForStatus(se.Code)
	if kind == "" {
		kind = kindForAPICode(apiErrorCode(se.Body))
	}
	if kind == "" {
		kind = models.FetchMalformedResponse
	}
	msg := apiErrorMessage(se.Body)
	if msg == "" {
		msg = http.StatusText(se.Code)
	}
	return models.NewFetchError(SourceName, kind, fmt.Errorf("status %d: %s", se.Code, msg))
}

func kindForStatus(code int) models.FetchErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return models.FetchRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.FetchAuth
	case code >= 500:
		return models.FetchNetwork
	}
	return ""
}

// kindForAPICode maps CoinMarketCap status.error_code values: 1001-1007 are
// key and plan problems, 1008-1011 are rate and credit limits.
func kindForAPICode(code int64) models.FetchErrorKind {
	switch {
	case code >= 1001 && code <= 1007:
		return models.FetchAuth
	case code >= 1008 && code <= 1011:
		return models.FetchRateLimited
	}
	return ""
}

func apiErrorCode(body []byte) int64 {
	return gjson.GetBytes(body, "status.error_code").Int()
}

func apiErrorMessage(body []byte) string {
	return gjson.GetBytes(body, "status.error_message").String()
}

// parseListings extracts the data array, keeping each entry's raw bytes.
func parseListings(body []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, models.NewFetchError(SourceName, models.FetchMalformedResponse, errors.New("invalid JSON body"))
	}
	if code := apiErrorCode(body); code != 0 {
		kind := kindForAPICode(code)
		if kind == "" {
			kind = models.FetchMalformedResponse
		}
		return nil, models.NewFetchError(SourceName, kind, fmt.Errorf("api error %d: %s", code, apiErrorMessage(body)))
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, models.NewFetchError(SourceName, models.FetchMalformedResponse, errors.New("response has no data array"))
	}

	var entries []json.RawMessage
	data.ForEach(func(_, v gjson.Result) bool {
		entries = append(entries, json.RawMessage(v.Raw))
		return true
	})
	return entries, nil
}

var _ drepo.DataSource = (*Client)(nil)
