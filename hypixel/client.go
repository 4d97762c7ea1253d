/*
Package hypixel fetches the co-op profile used as the reconciliation feed.

PURPOSE:
  Implements ledger.FeedSource over the Hypixel SkyBlock profile endpoint.
  One Fetch is one HTTP request: the profile carries both the banking
  section (balance and recent transactions) and each member's completed
  tasks, which the upgrade cap is resolved from.

FAILURE HANDLING:
  - success=false responses become ErrFeedRejected with the API's cause
  - non-2xx responses become *StatusError
  - three consecutive failures open the circuit breaker; while open, Fetch
    fails fast with ledger.ErrFeedUnavailable
  - requests are spaced by a token bucket limiter
  Failed fetches are not retried here. The next scheduled pass tries again.
*/
package hypixel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/warp/coop-banker/ledger"
)

const DefaultBaseURL = "https://api.hypixel.net"

var (
	// ErrFeedRejected is returned when the API answers with success=false.
	ErrFeedRejected = errors.New("profile request rejected")
	// ErrMalformedProfile is returned when a successful response lacks the
	// fields a pass needs.
	ErrMalformedProfile = errors.New("malformed profile response")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL   string
	apiKey    string
	profileID string

	http    *http.Client
	limiter *rate.Limiter
	breaker *cb.CircuitBreaker
	logger  zerolog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit allows one request per interval.
func WithRateLimit(interval time.Duration) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(interval), 1) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBreakerTimeout sets how long the breaker stays open before letting a
// probe request through.
func WithBreakerTimeout(d time.Duration) Option {
	return func(c *Client) { c.breaker = newBreaker(d) }
}

func New(apiKey, profileID string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		profileID: profileID,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		breaker:   newBreaker(60 * time.Second),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(timeout time.Duration) *cb.CircuitBreaker {
	st := cb.Settings{Name: "hypixel-profile"}
	st.Timeout = timeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return cb.NewCircuitBreaker(st)
}

// Fetch implements ledger.FeedSource.
func (c *Client) Fetch(ctx context.Context) (ledger.Feed, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ledger.Feed{}, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		p, err := c.fetchProfile(ctx)
		if err != nil {
			return nil, err
		}
		return p.toFeed()
	})
	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		return ledger.Feed{}, fmt.Errorf("%w: %v", ledger.ErrFeedUnavailable, err)
	}
	if err != nil {
		return ledger.Feed{}, err
	}

	feed := result.(ledger.Feed)
	c.logger.Debug().
		Int("transactions", len(feed.Transactions)).
		Int("members", len(feed.Members)).
		Str("balance", feed.Balance.String()).
		Msg("profile fetched")
	return feed, nil
}

func (c *Client) fetchProfile(ctx context.Context) (*profile, error) {
	q := url.Values{}
	q.Set("profile", c.profileID)
	q.Set("key", c.apiKey)
	endpoint := c.baseURL + "/v2/skyblock/profile?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var decoded profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("%w: %s", ErrFeedRejected, decoded.Cause)
	}
	if decoded.Profile == nil || decoded.Profile.Banking == nil {
		return nil, fmt.Errorf("%w: missing banking section", ErrMalformedProfile)
	}
	return decoded.Profile, nil
}
