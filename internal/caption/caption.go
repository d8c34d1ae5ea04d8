// Package caption produces the text posted alongside an image.
//
// Captioning is a soft dependency: a Source reports failure through Result
// and the caller decides which fallback text to use, so a failed caption
// never blocks publishing.
package caption

import (
	"context"
	"fmt"
	"strings"
)

const (
	// DefaultHashtags is appended by the static template.
	DefaultHashtags = "#archive #streetphotography #texture"

	// DefaultFallback is posted when the AI caption could not be produced.
	DefaultFallback = "archive\n.\n.\n" + DefaultHashtags
)

// Request carries what a Source may use to describe the image.
type Request struct {
	Filename string
	ImageURL string
	MIMEType string
}

// Result is either a caption or the reason none could be produced.
type Result struct {
	Text string
	Err  error
}

// Failed wraps err as an unsuccessful result.
func Failed(err error) Result {
	return Result{Err: err}
}

// OK reports whether the result carries usable text.
func (r Result) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Text) != ""
}

// Or returns the caption text, or fallback when the result failed.
func (r Result) Or(fallback string) string {
	if r.OK() {
		return r.Text
	}
	return fallback
}

// Source produces caption text for an image.
type Source interface {
	Name() string
	Caption(ctx context.Context, req Request) Result
}

// Static fills a fixed template with the filename. It never fails.
type Static struct {
	Hashtags string
}

// Name identifies the strategy.
func (Static) Name() string { return "static" }

// Caption renders "<filename>\n.\n.\n<hashtags>".
func (s Static) Caption(_ context.Context, req Request) Result {
	tags := strings.TrimSpace(s.Hashtags)
	if tags == "" {
		tags = DefaultHashtags
	}
	return Result{Text: fmt.Sprintf("%s\n.\n.\n%s", req.Filename, tags)}
}
