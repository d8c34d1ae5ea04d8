package mastodon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blacktop/igpost/internal/igpost"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	envServer      = "IGPOST_MASTODON_SERVER"
	envAccessToken = "IGPOST_MASTODON_ACCESS_TOKEN"

	providerName   = "mastodon"
	requestTimeout = 30 * time.Second
)

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server      string
	AccessToken string
}

// Client mirrors posts to a Mastodon instance.
type Client struct {
	client *mastodonapi.Client
}

// New constructs a Mastodon mirror based on environment configuration.
func New(ctx context.Context) (igpost.Poster, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig constructs a Mastodon mirror for an explicit server.
func NewWithConfig(cfg Config) *Client {
	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:      cfg.Server,
		AccessToken: cfg.AccessToken,
	})
	client.Timeout = requestTimeout
	return &Client{client: client}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post uploads the image and publishes a status with the caption.
func (c *Client) Post(ctx context.Context, post igpost.Post) error {
	file, err := os.Open(post.ImagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return igpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", post.ImagePath)}
		}
		return fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        file,
		Description: post.ImageAlt,
	})
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}

	if _, err := c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   post.Caption,
		MediaIDs: []mastodonapi.ID{attachment.ID},
	}); err != nil {
		return fmt.Errorf("post status: %w", err)
	}

	return nil
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Server:      strings.TrimSpace(os.Getenv(envServer)),
		AccessToken: strings.TrimSpace(os.Getenv(envAccessToken)),
	}

	var missing []string
	if cfg.Server == "" {
		missing = append(missing, envServer)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, envAccessToken)
	}

	if len(missing) > 0 {
		return Config{}, igpost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}
