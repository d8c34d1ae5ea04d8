package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/igpost/internal/igpost"
	"github.com/blacktop/igpost/internal/logutil"
)

const (
	providerName = "instagram"

	DefaultBaseURL      = "https://graph.facebook.com"
	DefaultAPIVersion   = "v18.0"
	DefaultPublishDelay = 10 * time.Second

	PhaseCreate  = "create container"
	PhasePublish = "publish container"
)

var httpTimeout = 30 * time.Second

// Config captures the Graph API account and credentials.
type Config struct {
	BaseURL     string
	APIVersion  string
	AccountID   string
	AccessToken string
	// PublishDelay is the blind wait between creating and publishing a
	// container. The API offers no synchronous ready signal. Zero means
	// DefaultPublishDelay.
	PublishDelay time.Duration
	HTTPClient   *http.Client
}

// Result identifies what a successful Publish created.
type Result struct {
	ContainerID string
	PostID      string
}

// Client publishes single images through the container workflow.
type Client struct {
	cfg   Config
	http  *http.Client
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates cfg and constructs a Client.
func New(cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.AccountID) == "" {
		missing = append(missing, "IG_USER_ID")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		missing = append(missing, "IG_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return nil, igpost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	switch {
	case cfg.PublishDelay == 0:
		cfg.PublishDelay = DefaultPublishDelay
	case cfg.PublishDelay < 0:
		// negative disables the wait
		cfg.PublishDelay = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}

	return &Client{cfg: cfg, http: httpClient, sleep: wait}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Publish creates a media container for imageURL, waits for the platform to
// process it, then publishes it. Publishing is never attempted when the
// container could not be created.
func (c *Client) Publish(ctx context.Context, imageURL, caption string) (Result, error) {
	containerID, err := c.CreateContainer(ctx, imageURL, caption)
	if err != nil {
		return Result{}, err
	}
	logutil.Infof("container created: id=%s", containerID)

	logutil.Debugf("waiting %s before publishing", c.cfg.PublishDelay)
	if err := c.sleep(ctx, c.cfg.PublishDelay); err != nil {
		return Result{ContainerID: containerID}, fmt.Errorf("wait for container %s: %w", containerID, err)
	}

	postID, err := c.PublishContainer(ctx, containerID)
	if err != nil {
		return Result{ContainerID: containerID}, err
	}
	logutil.Infof("post published: id=%s", postID)

	return Result{ContainerID: containerID, PostID: postID}, nil
}

// CreateContainer submits POST /{version}/{account}/media.
func (c *Client) CreateContainer(ctx context.Context, imageURL, caption string) (string, error) {
	form := url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"access_token": {c.cfg.AccessToken},
	}
	logutil.Debugf("creating media container: image_url=%s", imageURL)
	return c.post(ctx, PhaseCreate, "media", form)
}

// PublishContainer submits POST /{version}/{account}/media_publish.
func (c *Client) PublishContainer(ctx context.Context, containerID string) (string, error) {
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {c.cfg.AccessToken},
	}
	logutil.Debugf("publishing media container: creation_id=%s", containerID)
	return c.post(ctx, PhasePublish, "media_publish", form)
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *Client) post(ctx context.Context, phase, edge string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s", c.cfg.BaseURL, c.cfg.APIVersion, url.PathEscape(c.cfg.AccountID), edge)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", phase, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", phase, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", phase, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &igpost.APIError{Provider: providerName, Phase: phase, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out idResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", phase, err)
	}
	if out.ID == "" {
		return "", &igpost.APIError{Provider: providerName, Phase: phase, StatusCode: resp.StatusCode, Body: "response has no id: " + string(body)}
	}

	return out.ID, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsAPIError reports whether err carries a Graph API rejection.
func IsAPIError(err error) bool {
	var apiErr *igpost.APIError
	return errors.As(err, &apiErr)
}
