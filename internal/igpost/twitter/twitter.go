package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/blacktop/igpost/internal/igpost"
	"github.com/blacktop/igpost/internal/logutil"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
)

const (
	envAPIKey       = "IGPOST_TWITTER_CONSUMER_KEY"
	envAPISecret    = "IGPOST_TWITTER_CONSUMER_SECRET"
	envAccessToken  = "IGPOST_TWITTER_ACCESS_TOKEN"
	envAccessSecret = "IGPOST_TWITTER_ACCESS_TOKEN_SECRET"

	providerName = "twitter"
)

var httpTimeout = 30 * time.Second

// Config captures the credentials required for OAuth 1.0a user-context requests.
type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Client mirrors posts to X (Twitter).
type Client struct {
	api *gotwi.Client
}

// New constructs an X mirror using gotwi and OAuth 1.0a credentials.
func New(ctx context.Context) (igpost.Poster, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, fmt.Errorf("twitter client not ready")
	}

	return &Client{api: client}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Post uploads the image and tweets the caption with it attached.
func (c *Client) Post(ctx context.Context, post igpost.Post) error {
	mediaID, err := c.uploadImage(ctx, post.ImagePath)
	if err != nil {
		return err
	}

	input := &managetweettypes.CreateInput{
		Text:  gotwi.String(post.Caption),
		Media: &managetweettypes.CreateInputMedia{MediaIDs: []string{mediaID}},
	}
	if _, err := managetweet.Create(ctx, c.api, input); err != nil {
		return fmt.Errorf("post tweet: %w", unwrapGotwiError(err))
	}
	logutil.Debugf("tweet posted: media_id=%s", mediaID)

	return nil
}

// uploadImage runs the chunked INIT/APPEND/FINALIZE upload in one segment;
// feed images are far below the segment limit.
func (c *Client) uploadImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", igpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return "", fmt.Errorf("read image: %w", err)
	}

	mediaType, err := mediaTypeFor(path)
	if err != nil {
		return "", err
	}

	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: uploadtypes.MediaCategoryTweetImage,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	mediaID := initRes.Data.MediaID

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()
	appendRes, err := upload.Append(ctx, c.api, appendIn)
	if err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	switch state := finalizeRes.Data.ProcessingInfo.State; state {
	case "", resources.ProcessingInfoStateSucceeded,
		resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		// still images are usable while processing
	default:
		return "", fmt.Errorf("media processing failed: state=%s", state)
	}

	return mediaID, nil
}

func mediaTypeFor(path string) (uploadtypes.MediaType, error) {
	switch igpost.MIMEType(path) {
	case "image/jpeg":
		return uploadtypes.MediaTypeJPEG, nil
	case "image/png":
		return uploadtypes.MediaTypePNG, nil
	}
	return "", igpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported image type for %q", path)}
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:       strings.TrimSpace(os.Getenv(envAPIKey)),
		APISecret:    strings.TrimSpace(os.Getenv(envAPISecret)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		AccessSecret: strings.TrimSpace(os.Getenv(envAccessSecret)),
	}

	var missing []string
	for env, value := range map[string]string{
		envAPIKey:       cfg.APIKey,
		envAPISecret:    cfg.APISecret,
		envAccessToken:  cfg.AccessToken,
		envAccessSecret: cfg.AccessSecret,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, igpost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		}
	}
	if len(msgs) == 0 {
		return errors.New("unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if !errors.As(err, &gwErr) || gwErr == nil {
		return err
	}

	parts := make([]string, 0, 4)
	if gwErr.Title != "" {
		parts = append(parts, gwErr.Title)
	}
	if gwErr.Detail != "" {
		parts = append(parts, gwErr.Detail)
	}
	for _, apiErr := range gwErr.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		return err
	}
	return errors.New(strings.Join(parts, "; "))
}
