// Package profile resolves osu! players through the osu! API v1.
package profile

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house-bot/internal/config"
)

// ErrNotFound is returned when the API knows no user for the query.
var ErrNotFound = errors.New("profile not found")

// pingUserID is a long-standing account used to verify the API key.
const pingUserID = 2

// Client implements auction.ProfileLookup against the osu! API v1.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// New returns a Client whose requests are traced and measured.
func New(cfg config.ProfileConfig, tp trace.TracerProvider, mp metric.MeterProvider) *Client {
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// user is one element of a get_user response. The v1 API encodes numbers as strings.
type user struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ResolveDisplayName returns the current username of profileID.
func (c *Client) ResolveDisplayName(ctx context.Context, profileID int64) (string, error) {
	u, err := c.getUser(ctx, strconv.FormatInt(profileID, 10), "id")
	if err != nil {
		return "", err
	}
	if u.Username == "" {
		return "", fmt.Errorf("user %d: empty username in response", profileID)
	}
	return u.Username, nil
}

// ResolveID returns the profile id of the user currently named displayName.
func (c *Client) ResolveID(ctx context.Context, displayName string) (int64, error) {
	u, err := c.getUser(ctx, displayName, "string")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(u.UserID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user %q: parsing user_id %q: %w", displayName, u.UserID, err)
	}
	return id, nil
}

// Ping checks that the API is reachable and accepts the key.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.getUser(ctx, strconv.Itoa(pingUserID), "id")
	return err
}

func (c *Client) getUser(ctx context.Context, query, kind string) (*user, error) {
	q := url.Values{}
	q.Set("k", c.apiKey)
	q.Set("u", query)
	q.Set("type", kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_user?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get_user: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("get_user: reading body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("get_user: status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("get_user: status %d", resp.StatusCode)
	}

	var users []user
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("get_user: decoding response: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, query)
	}
	return &users[0], nil
}
