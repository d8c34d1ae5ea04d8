package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/blacktop/igpost/internal/igpost"
	"github.com/joho/godotenv"
)

const (
	EnvAccountID   = "IG_USER_ID"
	EnvAccessToken = "IG_ACCESS_TOKEN"
	EnvRepository  = "GITHUB_REPOSITORY"
	EnvBranch      = "IGPOST_BRANCH"
	EnvAPIVersion  = "IGPOST_API_VERSION"
	EnvGraphURL    = "IGPOST_GRAPH_URL"
	EnvPhotosDir   = "IGPOST_PHOTOS_DIR"
	EnvRepoRoot    = "IGPOST_REPO_ROOT"
	EnvWorkspace   = "GITHUB_WORKSPACE"
	EnvGeminiKey   = "GEMINI_API_KEY"
	EnvGeminiModel = "IGPOST_GEMINI_MODEL"

	DefaultBranch      = "main"
	DefaultAPIVersion  = "v18.0"
	DefaultGraphURL    = "https://graph.facebook.com"
	DefaultPhotosDir   = "photos"
	DefaultGeminiModel = "gemini-2.5-flash"

	providerName = "igpost"
)

// Config is read once at start-up and handed to each component.
type Config struct {
	AccountID   string
	AccessToken string
	Repository  string
	Branch      string
	APIVersion  string
	GraphURL    string
	PhotosDir   string
	RepoRoot    string
	GeminiKey   string
	GeminiModel string
}

// AICaptions reports whether an AI credential is available.
func (c Config) AICaptions() bool {
	return c.GeminiKey != ""
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. With no
// arguments it reads ./.env and silently skips it when absent.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Requirements selects which optional credentials Load insists on.
type Requirements struct {
	// Graph requires the Instagram account and token. Dry runs skip them.
	Graph bool
	AI    bool
}

// PhotosDir returns the pending directory without touching any credential,
// so an empty queue can be detected before configuration is validated.
func PhotosDir() string {
	return getEnv(EnvPhotosDir, DefaultPhotosDir)
}

// Load reads the configuration from the environment. The repository is always
// required; req adds the Graph and Gemini credentials.
func Load(req Requirements) (Config, error) {
	cfg := Config{
		AccountID:   getEnv(EnvAccountID, ""),
		AccessToken: getEnv(EnvAccessToken, ""),
		Repository:  getEnv(EnvRepository, ""),
		Branch:      getEnv(EnvBranch, DefaultBranch),
		APIVersion:  getEnv(EnvAPIVersion, DefaultAPIVersion),
		GraphURL:    getEnv(EnvGraphURL, DefaultGraphURL),
		PhotosDir:   PhotosDir(),
		RepoRoot:    getEnv(EnvRepoRoot, getEnv(EnvWorkspace, "")),
		GeminiKey:   getEnv(EnvGeminiKey, ""),
		GeminiModel: getEnv(EnvGeminiModel, DefaultGeminiModel),
	}

	var missing []string
	if req.Graph && cfg.AccountID == "" {
		missing = append(missing, EnvAccountID)
	}
	if req.Graph && cfg.AccessToken == "" {
		missing = append(missing, EnvAccessToken)
	}
	if cfg.Repository == "" {
		missing = append(missing, EnvRepository)
	}
	if req.AI && cfg.GeminiKey == "" {
		missing = append(missing, EnvGeminiKey)
	}

	if len(missing) > 0 {
		return Config{}, igpost.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
