package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/omaldonado/snapfield-backend/pkg/config"
	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Client calls an HTTP field-extraction endpoint. The underlying handle is
// built lazily on first use and can be unloaded by the idle reclaimer; the
// next call transparently rebuilds it.
type Client struct {
	cfg config.VisionConfig

	mu     sync.Mutex
	handle *http.Client
}

// NewClient builds a lazily-initialized extraction client.
func NewClient(cfg config.VisionConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vision base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		c.handle = &http.Client{Timeout: c.cfg.Timeout}
	}
	return c.handle
}

// Loaded reports whether the handle is currently initialized.
func (c *Client) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Name implements the reclaimable contract.
func (c *Client) Name() string { return "vision_client" }

// Reclaim drops the lazily-built handle. Idempotent.
func (c *Client) Reclaim() error {
	c.mu.Lock()
	c.handle = nil
	c.mu.Unlock()
	return nil
}

type extractPayload struct {
	Model     string `json:"model,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageData string `json:"image_data,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// Extract performs the external inference call under the caller's context.
func (c *Client) Extract(ctx context.Context, req Request) (*Record, error) {
	if req.ImageURL == "" && len(req.ImageData) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image url or payload required")
	}

	payload := extractPayload{
		Model:    c.cfg.Model,
		ImageURL: req.ImageURL,
		Hint:     req.Hint,
	}
	if len(req.ImageData) > 0 {
		payload.ImageData = base64.StdEncoding.EncodeToString(req.ImageData)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal extraction request")
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/extract"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build extraction request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute extraction request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"extraction request failed")
	}

	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode extraction response")
	}
	if record.Fields == nil {
		record.Fields = map[string]string{}
	}
	return &record, nil
}
