package billing

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

type accountStatus struct {
	Subscribed bool `json:"subscribed"`
	Trial      bool `json:"trial"`
}

// Client reads account standing from the billing service and keeps each
// answer for a short TTL so a busy tick does not hit the service per job.
type Client struct {
	http  *resty.Client
	cache *cache.Cache
}

func NewClient(baseURL, token string, ttl time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("billing baseURL cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	if token != "" {
		hc.SetAuthToken(token)
	}

	log.Info().Str("baseURL", baseURL).Dur("ttl", ttl).Msg("billing client configured")
	return &Client{http: hc, cache: cache.New(ttl, 2*ttl)}, nil
}

func (c *Client) status(ctx context.Context, owner string) (accountStatus, error) {
	if v, ok := c.cache.Get(owner); ok {
		return v.(accountStatus), nil
	}

	var st accountStatus
	path := "/accounts/" + url.PathEscape(owner) + "/standing"
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&st).
		Get(path)
	if err != nil {
		return accountStatus{}, fmt.Errorf("billing request failed: %w", err)
	}
	if resp.IsError() {
		return accountStatus{}, fmt.Errorf("billing error: status %s", resp.Status())
	}

	c.cache.Set(owner, st, cache.DefaultExpiration)
	return st, nil
}

func (c *Client) IsSubscribed(ctx context.Context, owner string) (bool, error) {
	st, err := c.status(ctx, owner)
	return st.Subscribed, err
}

func (c *Client) IsInTrial(ctx context.Context, owner string) (bool, error) {
	st, err := c.status(ctx, owner)
	return st.Trial, err
}
