package caption

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/blacktop/igpost/internal/igpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageURL = "https://raw.githubusercontent.com/me/photos/main/photos/001.jpg"

func TestStatic(t *testing.T) {
	res := Static{}.Caption(context.Background(), Request{Filename: "001.jpg"})
	require.True(t, res.OK())
	assert.Equal(t, "001.jpg\n.\n.\n#archive #streetphotography #texture", res.Text)

	res = Static{Hashtags: "#night"}.Caption(context.Background(), Request{Filename: "x.png"})
	assert.Equal(t, "x.png\n.\n.\n#night", res.Text)
}

func TestResultOr(t *testing.T) {
	assert.Equal(t, "hello", Result{Text: "hello"}.Or("fallback"))
	assert.Equal(t, "fallback", Failed(errors.New("boom")).Or("fallback"))
	assert.Equal(t, "fallback", Result{Text: "  \n"}.Or("fallback"))
	assert.False(t, Result{Text: "partial", Err: errors.New("late")}.OK())
}

type geminiServer struct {
	*httptest.Server
	calls atomic.Int32
	body  atomic.Value
}

func newGeminiServer(t *testing.T, status int, payload string) *geminiServer {
	t.Helper()
	gs := &geminiServer{}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gs.calls.Add(1)
		data, _ := io.ReadAll(r.Body)
		gs.body.Store(string(data))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(gs.Close)
	return gs
}

func newTestGemini(t *testing.T, srv *geminiServer) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-test",
		BaseURL:    srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return g
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) {
	panic("transport exploded")
}

func TestGeminiCaptionRecoversPanic(t *testing.T) {
	g, err := NewGemini(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-test",
		BaseURL:    "http://gemini.invalid/",
		HTTPClient: &http.Client{Transport: panicTransport{}},
	})
	require.NoError(t, err)

	var res Result
	require.NotPanics(t, func() {
		res = g.Caption(context.Background(), Request{Filename: "001.jpg", ImageURL: imageURL, MIMEType: "image/jpeg"})
	})
	assert.False(t, res.OK())
	assert.ErrorContains(t, res.Err, "transport exploded")
	assert.Equal(t, DefaultFallback, res.Or(DefaultFallback))
}

func TestGeminiCaption(t *testing.T) {
	t.Run("returns model text", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"夜の交差点\nNight crossing\n#東京 #tokyo #夜景 #streetphotography #texture\n"}]},"finishReason":"STOP"}]}`)
		g := newTestGemini(t, srv)

		res := g.Caption(context.Background(), Request{Filename: "001.jpg", ImageURL: imageURL, MIMEType: "image/jpeg"})
		require.NoError(t, res.Err)
		assert.Equal(t, "夜の交差点\nNight crossing\n#東京 #tokyo #夜景 #streetphotography #texture", res.Text)
		assert.EqualValues(t, 1, srv.calls.Load())

		body, _ := srv.body.Load().(string)
		assert.Contains(t, body, imageURL)
		assert.Contains(t, body, "image/jpeg")
		assert.Contains(t, body, "Never use emojis")
	})

	t.Run("free-form answer passes through", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"just one line"}]}}]}`)
		g := newTestGemini(t, srv)

		res := g.Caption(context.Background(), Request{ImageURL: imageURL})
		require.True(t, res.OK())
		assert.Equal(t, "just one line", res.Text)
	})

	failures := []struct {
		name    string
		status  int
		payload string
	}{
		{"error status", http.StatusBadRequest, `{"error":{"code":400,"message":"bad image","status":"INVALID_ARGUMENT"}}`},
		{"malformed body", http.StatusOK, `<html>not json</html>`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeminiServer(t, tt.status, tt.payload)
			g := newTestGemini(t, srv)

			res := g.Caption(context.Background(), Request{ImageURL: imageURL})
			assert.False(t, res.OK())
			assert.Error(t, res.Err)
			assert.Equal(t, DefaultFallback, res.Or(DefaultFallback))
		})
	}

	t.Run("unreachable service", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusOK, `{}`)
		g := newTestGemini(t, srv)
		srv.Close()

		res := g.Caption(context.Background(), Request{ImageURL: imageURL})
		assert.Error(t, res.Err)
	})

	t.Run("missing image url", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusOK, `{}`)
		g := newTestGemini(t, srv)

		res := g.Caption(context.Background(), Request{})
		assert.ErrorContains(t, res.Err, "image url")
		assert.Zero(t, srv.calls.Load())
	})
}

func TestNewGemini(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	var missing igpost.MissingEnvError
	require.ErrorAs(t, err, &missing)

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", g.Name())
	assert.True(t, strings.Contains(g.SystemPrompt(), "exactly 5 hashtags, mixing Japanese and English"))
	assert.Contains(t, g.SystemPrompt(), "color, light, structure, texture and urban elements")
}
