package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/blacktop/igpost/internal/igpost"
	"github.com/blacktop/igpost/internal/logutil"
	"google.golang.org/genai"
)

const (
	providerName   = "gemini"
	requestTimeout = 60 * time.Second

	systemPromptTmplStr = `You write Instagram captions for a street and architecture photography account.
Describe the photo objectively and without emotion. Never use emojis.
Focus on {{.Focus}}.
When a structure, building or location is recognisable, name it explicitly.

Answer in exactly this format and nothing else:
line 1: a short title in {{.Language}}
line 2: the English translation of that title
last line: exactly {{.HashtagCount}} hashtags, mixing {{.Language}} and English`

	userPrompt = "Write the caption for this photo."
)

// PromptContext parameterises the system instruction.
type PromptContext struct {
	Language     string
	Focus        string
	HashtagCount int
}

// DefaultPrompt is the tone and format the account posts with.
var DefaultPrompt = PromptContext{
	Language:     "Japanese",
	Focus:        "color, light, structure, texture and urban elements",
	HashtagCount: 5,
}

var systemTmpl = template.Must(template.New("system").Parse(systemPromptTmplStr))

// GeminiConfig configures the AI caption strategy.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Prompt     PromptContext
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini asks a multimodal Gemini model to caption the image at its public URL.
type Gemini struct {
	client *genai.Client
	model  string
	system string
}

// NewGemini constructs the AI caption source.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, igpost.MissingEnvError{Provider: providerName, Variables: []string{"GEMINI_API_KEY"}}
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Prompt == (PromptContext{}) {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	}

	var buf bytes.Buffer
	if err := systemTmpl.Execute(&buf, cfg.Prompt); err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model, system: buf.String()}, nil
}

// Name identifies the strategy.
func (g *Gemini) Name() string { return providerName }

// SystemPrompt returns the rendered system instruction.
func (g *Gemini) SystemPrompt() string { return g.system }

// Caption issues a single GenerateContent call. Whatever the model returns is
// passed through trimmed; only transport failures, error statuses and empty
// answers count as failures.
func (g *Gemini) Caption(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Errorf("gemini: panic: %v", r))
		}
	}()

	if strings.TrimSpace(req.ImageURL) == "" {
		return Failed(errors.New("gemini: image url is required"))
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = igpost.MIMEType(req.ImageURL)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(userPrompt),
			genai.NewPartFromURI(req.ImageURL, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.system, genai.RoleUser),
	}

	logutil.Debugf("requesting caption: model=%s url=%s", g.model, req.ImageURL)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Failed(fmt.Errorf("gemini generate: %w", err))
	}
	if resp == nil {
		return Failed(errors.New("gemini generate: empty response"))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Failed(errors.New("gemini generate: response has no text"))
	}
	return Result{Text: text}
}
