// Package pipeline runs one posting pass: pick a pending image, resolve its
// public URL, caption it, publish it, then remove it from the queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/blacktop/igpost/internal/caption"
	"github.com/blacktop/igpost/internal/igpost"
	"github.com/blacktop/igpost/internal/igpost/instagram"
	"github.com/blacktop/igpost/internal/logutil"
	"github.com/blacktop/igpost/internal/queue"
)

// Outcome is how a successful run ended.
type Outcome int

const (
	OutcomeNoWork Outcome = iota
	OutcomePublished
	OutcomeDryRun
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoWork:
		return "no-work"
	case OutcomePublished:
		return "published"
	case OutcomeDryRun:
		return "dry-run"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Resolver maps a local path to its public URL.
type Resolver interface {
	Resolve(path string) (string, error)
}

// Publisher performs the remote publish of an image URL with a caption.
type Publisher interface {
	Publish(ctx context.Context, imageURL, caption string) (instagram.Result, error)
}

// Pipeline wires the stages together. Every collaborator is injected.
type Pipeline struct {
	Dir       string
	Resolver  Resolver
	Captioner caption.Source
	// Fallback replaces a caption the Captioner failed to produce.
	Fallback  string
	Publisher Publisher
	Mirrors   []igpost.Poster
	DryRun    bool

	Rand    *rand.Rand
	Remove  func(string) error
	Inspect func(string) (queue.Dimensions, error)
}

// Report describes what a run did.
type Report struct {
	Outcome    Outcome
	Asset      igpost.Asset
	ImageURL   string
	Caption    string
	CaptionErr error
	Result     instagram.Result
}

// Run executes a single pass. A nil error means the run needs no attention:
// either nothing was pending, the dry run completed, or the image was
// published and deleted. On error the local file is left in place.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report

	asset, err := queue.Next(p.Dir, p.Rand)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			logutil.Infof("no photos found in %s", p.Dir)
			return Report{Outcome: OutcomeNoWork}, nil
		}
		return report, fmt.Errorf("select image: %w", err)
	}
	report.Asset = asset
	logutil.Infof("selected image: %s", asset.Path)

	imageURL, err := p.Resolver.Resolve(asset.Path)
	if err != nil {
		return report, fmt.Errorf("resolve url: %w", err)
	}
	report.ImageURL = imageURL
	logutil.Infof("raw url: %s", imageURL)

	p.preflight(asset)

	report.Caption, report.CaptionErr = p.caption(ctx, asset, imageURL)

	if p.DryRun {
		logutil.Infof("[dry-run] would publish %s with caption %q", imageURL, report.Caption)
		for _, m := range p.Mirrors {
			logutil.Infof("[dry-run] would mirror to %s", m.Name())
		}
		logutil.Infof("[dry-run] would delete %s", asset.Path)
		report.Outcome = OutcomeDryRun
		return report, nil
	}

	result, err := p.Publisher.Publish(ctx, imageURL, report.Caption)
	report.Result = result
	if err != nil {
		logutil.Errorf("failed to post, keeping %s: %v", asset.Path, err)
		return report, fmt.Errorf("publish %s: %w", asset.Name, err)
	}

	p.mirror(ctx, igpost.Post{
		Caption:   report.Caption,
		ImagePath: asset.Path,
		ImageAlt:  firstLine(report.Caption),
	})

	logutil.Infof("deleting local file: %s", asset.Path)
	if err := queue.Finalize(asset, p.Remove); err != nil {
		return report, err
	}

	report.Outcome = OutcomePublished
	return report, nil
}

func (p *Pipeline) caption(ctx context.Context, asset igpost.Asset, imageURL string) (string, error) {
	fallback := p.Fallback
	if fallback == "" {
		fallback = caption.DefaultFallback
	}
	if p.Captioner == nil {
		return fallback, nil
	}

	res := p.Captioner.Caption(ctx, caption.Request{
		Filename: asset.Name,
		ImageURL: imageURL,
		MIMEType: asset.MIMEType,
	})
	if !res.OK() {
		reason := res.Err
		if reason == nil {
			reason = errors.New("empty caption")
		}
		logutil.Warnf("%s caption failed, using fallback: %v", p.Captioner.Name(), reason)
		return fallback, reason
	}

	logutil.Debugf("%s caption: %q", p.Captioner.Name(), res.Text)
	return res.Text, nil
}

// preflight only warns; the publishing API has the final say.
func (p *Pipeline) preflight(asset igpost.Asset) {
	if p.Inspect == nil {
		return
	}
	dims, err := p.Inspect(asset.Path)
	if err != nil {
		logutil.Warnf("could not inspect %s: %v", asset.Path, err)
		return
	}
	if !dims.Acceptable() {
		logutil.Warnf("%s is %dx%d (aspect %.2f); instagram may reject it", asset.Name, dims.Width, dims.Height, dims.Aspect())
	}
}

// mirror failures never change the outcome of a run.
func (p *Pipeline) mirror(ctx context.Context, post igpost.Post) {
	for _, m := range p.Mirrors {
		logutil.Infof("mirroring to %s...", m.Name())
		if err := m.Post(ctx, post); err != nil {
			logutil.Warnf("mirror to %s failed: %v", m.Name(), err)
			continue
		}
		logutil.Infof("mirrored to %s", m.Name())
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
