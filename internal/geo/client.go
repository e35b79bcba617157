package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
)

const defaultBaseURL = "http://ip-api.com/json"

// Location is the best-effort geolocation of a network origin.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// Empty reports whether the lookup produced nothing usable.
func (l Location) Empty() bool {
	return l.Country == "" && l.Region == "" && l.City == ""
}

// Client resolves IP addresses against an ip-api style endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the lookup endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a geolocation client.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Lookup resolves the given IP. Private or empty origins resolve to an empty
// location without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) (Location, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" || isPrivate(ip) {
		return Location{}, nil
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build geo request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Location{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute geo request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Location{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("geo lookup status %d", resp.StatusCode))
	}

	var apiResp struct {
		Status     string `json:"status"`
		Country    string `json:"country"`
		RegionName string `json:"regionName"`
		City       string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Location{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode geo response")
	}
	if apiResp.Status != "success" {
		return Location{}, nil
	}

	return Location{
		Country: apiResp.Country,
		Region:  apiResp.RegionName,
		City:    apiResp.City,
	}, nil
}

func isPrivate(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1" ||
		strings.HasPrefix(ip, "10.") ||
		strings.HasPrefix(ip, "192.168.") ||
		strings.HasPrefix(ip, "172.16.")
}
