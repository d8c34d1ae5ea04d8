package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blacktop/igpost/internal/config"
	"github.com/blacktop/igpost/internal/igpost"
	"github.com/blacktop/igpost/internal/rawurl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T, graphURL string) {
	t.Helper()
	t.Setenv(config.EnvAccountID, "42")
	t.Setenv(config.EnvAccessToken, "token")
	t.Setenv(config.EnvRepository, "me/photos")
	t.Setenv(config.EnvGraphURL, graphURL)
	t.Setenv(config.EnvGeminiKey, "")
	t.Setenv(config.EnvPhotosDir, "")
	t.Setenv(config.EnvWorkspace, "")
	t.Setenv(config.EnvRepoRoot, "")
}

// pending lays out a checkout with a photos directory and points the
// repository root at it.
func pending(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "photos")
	require.NoError(t, os.Mkdir(dir, 0o755))
	t.Setenv(config.EnvRepoRoot, root)
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type graphRecorder struct {
	mu           sync.Mutex
	imageURL     string
	publishCalls int
}

func (g *graphRecorder) snapshot() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.imageURL, g.publishCalls
}

func newGraph(t *testing.T, createStatus int) (*httptest.Server, *graphRecorder) {
	t.Helper()
	rec := &graphRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v18.0/42/media":
			rec.mu.Lock()
			rec.imageURL = r.FormValue("image_url")
			rec.mu.Unlock()
			w.WriteHeader(createStatus)
			if createStatus == http.StatusOK {
				_, _ = w.Write([]byte(`{"id":"container-1"}`))
				return
			}
			_, _ = w.Write([]byte(`{"error":{"message":"The image could not be downloaded"}}`))
		case "/v18.0/42/media_publish":
			rec.mu.Lock()
			rec.publishCalls++
			rec.mu.Unlock()
			_, _ = w.Write([]byte(`{"id":"post-1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestRootPublishes(t *testing.T) {
	srv, graph := newGraph(t, http.StatusOK)
	setBaseEnv(t, srv.URL)
	dir := pending(t, "a.jpg")

	out, err := execute(t, "--dir", dir, "--caption", "static", "--publish-delay=-1s")
	require.NoError(t, err)
	assert.Contains(t, out, "published a.jpg as post-1")

	imageURL, publishCalls := graph.snapshot()
	assert.Equal(t, "https://raw.githubusercontent.com/me/photos/main/photos/a.jpg", imageURL)
	assert.Equal(t, 1, publishCalls)

	_, err = os.Stat(filepath.Join(dir, "a.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestRootPhotosOutsideRepositoryKeepsFile(t *testing.T) {
	srv, graph := newGraph(t, http.StatusOK)
	setBaseEnv(t, srv.URL)
	dir := pending(t, "a.jpg")
	t.Setenv(config.EnvRepoRoot, filepath.Join(t.TempDir(), "checkout"))

	_, err := execute(t, "--dir", dir, "--publish-delay=-1s")
	require.ErrorIs(t, err, rawurl.ErrOutsideRoot)

	imageURL, _ := graph.snapshot()
	assert.Empty(t, imageURL)
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
}

func TestRootCreateFailureKeepsFile(t *testing.T) {
	srv, graph := newGraph(t, http.StatusBadRequest)
	setBaseEnv(t, srv.URL)
	dir := pending(t, "a.jpg")

	_, err := execute(t, "--dir", dir, "--publish-delay=-1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The image could not be downloaded")
	_, publishCalls := graph.snapshot()
	assert.Zero(t, publishCalls)
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
}

func TestRootNoWork(t *testing.T) {
	srv, _ := newGraph(t, http.StatusOK)
	setBaseEnv(t, srv.URL)
	dir := pending(t, "readme.txt")

	out, err := execute(t, "--dir", dir)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.FileExists(t, filepath.Join(dir, "readme.txt"))
}

func TestRootDryRun(t *testing.T) {
	setBaseEnv(t, "http://127.0.0.1:0")
	dir := pending(t, "a.png")

	_, err := execute(t, "--dir", dir, "--dry-run", "--caption", "ai", "--mirror", "all")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.png"))
}

func TestRootNoWorkWithoutSecrets(t *testing.T) {
	t.Setenv(config.EnvAccountID, "")
	t.Setenv(config.EnvAccessToken, "")
	t.Setenv(config.EnvRepository, "")

	_, err := execute(t, "--dir", filepath.Join(t.TempDir(), "photos"))
	assert.NoError(t, err)
}

func TestRootDryRunWithoutGraphCredentials(t *testing.T) {
	setBaseEnv(t, "http://127.0.0.1:0")
	t.Setenv(config.EnvAccountID, "")
	t.Setenv(config.EnvAccessToken, "")
	dir := pending(t, "a.jpg")

	_, err := execute(t, "--dir", dir, "--dry-run")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
}

func TestRootMissingConfig(t *testing.T) {
	setBaseEnv(t, "http://127.0.0.1:0")
	t.Setenv(config.EnvAccountID, "")
	t.Setenv(config.EnvAccessToken, "")
	t.Setenv(config.EnvRepository, "")
	dir := pending(t, "a.jpg")

	_, err := execute(t, "--dir", dir)
	var missing igpost.MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Variables, config.EnvAccountID)
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
}

func TestRootRequiresGeminiKeyForAI(t *testing.T) {
	setBaseEnv(t, "http://127.0.0.1:0")
	dir := pending(t, "a.jpg")

	_, err := execute(t, "--dir", dir, "--caption", "ai")
	assert.ErrorContains(t, err, config.EnvGeminiKey)
}

func TestNormalizeCaptionMode(t *testing.T) {
	for in, want := range map[string]string{
		"":        captionAuto,
		"AUTO":    captionAuto,
		"ai":      captionAI,
		"gemini":  captionAI,
		" static": captionStatic,
	} {
		got, err := normalizeCaptionMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := normalizeCaptionMode("gpt")
	assert.Error(t, err)
}

func TestNormalizeTargets(t *testing.T) {
	got, err := normalizeTargets(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = normalizeTargets([]string{"Mastodon", "bluesky", "mastodon", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"bluesky", "mastodon"}, got)

	got, err = normalizeTargets([]string{"twitter", "all"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bluesky", "mastodon", "twitter"}, got)

	_, err = normalizeTargets([]string{"threads"})
	assert.ErrorContains(t, err, "threads")
}

func TestBuildMirrorsMissingCredentials(t *testing.T) {
	t.Setenv("IGPOST_MASTODON_SERVER", "")
	t.Setenv("IGPOST_MASTODON_ACCESS_TOKEN", "")

	_, err := buildMirrors(context.Background(), []string{"mastodon"})
	var missing igpost.MissingEnvError
	assert.ErrorAs(t, err, &missing)
}
