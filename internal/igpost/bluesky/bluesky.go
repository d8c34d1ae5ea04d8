package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/igpost/internal/igpost"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	envHandle      = "IGPOST_BLUESKY_HANDLE"
	envAppPassword = "IGPOST_BLUESKY_APP_PASSWORD"
	envPDSURL      = "IGPOST_BLUESKY_PDS_URL"

	providerName   = "bluesky"
	defaultPDSURL  = "https://bsky.social"
	requestTimeout = 30 * time.Second

	// app.bsky.feed.post text limit, counted in graphemes; runes are close enough
	// for captions.
	maxPostLength = 300
)

// Config holds the account used to mirror posts.
type Config struct {
	Handle      string
	AppPassword string
	PDSURL      string
}

// Client mirrors posts to Bluesky.
type Client struct {
	client *xrpc.Client
}

// New logs in with the app password from the environment.
func New(ctx context.Context) (igpost.Poster, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	userAgent := "igpost/1"
	xrpcClient := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      cfg.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, xrpcClient, &atproto.ServerCreateSession_Input{
		Identifier: cfg.Handle,
		Password:   cfg.AppPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	xrpcClient.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}

	return &Client{client: xrpcClient}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post creates a feed post embedding the image with the caption as text.
func (c *Client) Post(ctx context.Context, post igpost.Post) error {
	blob, err := c.uploadImage(ctx, post.ImagePath)
	if err != nil {
		return err
	}

	record := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      truncate(post.Caption, maxPostLength),
		Embed: &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{
				Images: []*bsky.EmbedImages_Image{{Alt: post.ImageAlt, Image: blob}},
			},
		},
	}

	if _, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.client.Auth.Did,
		Record:     &util.LexiconTypeDecoder{Val: record},
	}); err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	return nil
}

func (c *Client) uploadImage(ctx context.Context, path string) (*util.LexBlob, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, igpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	resp, err := atproto.RepoUploadBlob(ctx, c.client, file)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}

	return resp.Blob, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Handle:      strings.TrimSpace(os.Getenv(envHandle)),
		AppPassword: strings.TrimSpace(os.Getenv(envAppPassword)),
		PDSURL:      strings.TrimSpace(os.Getenv(envPDSURL)),
	}
	if cfg.PDSURL == "" {
		cfg.PDSURL = defaultPDSURL
	}

	var missing []string
	if cfg.Handle == "" {
		missing = append(missing, envHandle)
	}
	if cfg.AppPassword == "" {
		missing = append(missing, envAppPassword)
	}

	if len(missing) > 0 {
		return Config{}, igpost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}
