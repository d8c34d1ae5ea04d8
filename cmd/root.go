/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/blacktop/igpost/internal/caption"
	"github.com/blacktop/igpost/internal/config"
	"github.com/blacktop/igpost/internal/igpost"
	"github.com/blacktop/igpost/internal/igpost/bluesky"
	"github.com/blacktop/igpost/internal/igpost/instagram"
	"github.com/blacktop/igpost/internal/igpost/mastodon"
	"github.com/blacktop/igpost/internal/igpost/twitter"
	"github.com/blacktop/igpost/internal/logutil"
	"github.com/blacktop/igpost/internal/pipeline"
	"github.com/blacktop/igpost/internal/queue"
	"github.com/blacktop/igpost/internal/rawurl"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	photosDir    string
	captionMode  string
	mirrorsFlag  []string
	publishDelay time.Duration
	envFiles     []string
	dryRun       bool
	verbose      bool
)

const (
	captionAuto   = "auto"
	captionAI     = "ai"
	captionStatic = "static"
)

var supportedMirrors = map[string]struct{}{
	"bluesky":  {},
	"mastodon": {},
	"twitter":  {},
}

// Execute runs the root command. Interrupts cancel in-flight requests and the
// publish wait.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "igpost",
		Short: "Post one random photo from a folder to Instagram",
		Long: "igpost picks a random image from the photos directory, points Instagram at its raw " +
			"GitHub URL, captions it (optionally with Gemini) and deletes the file once the post is live. " +
			"Run it from a scheduler; a failed run keeps the file for the next attempt.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  igpost
  igpost --caption static --dry-run
  igpost --dir photos --mirror mastodon --mirror bluesky`,
	}

	cmd.Flags().StringVarP(&photosDir, "dir", "d", "", "Directory holding pending images (default $IGPOST_PHOTOS_DIR or ./photos)")
	cmd.Flags().StringVar(&captionMode, "caption", captionAuto, "Caption strategy: ai, static, or auto (ai when GEMINI_API_KEY is set)")
	cmd.Flags().StringSliceVar(&mirrorsFlag, "mirror", nil, "Also post to these networks after Instagram succeeds (twitter, mastodon, bluesky, or all)")
	cmd.Flags().DurationVar(&publishDelay, "publish-delay", instagram.DefaultPublishDelay, "Wait between creating and publishing the media container (negative disables)")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "Load environment variables from these files (default ./.env when present)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Select and caption an image without calling any API or deleting it")
	cmd.Flags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	logutil.SetVerbose(verbose)
	logutil.SetRunID(uuid.NewString())

	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	mode, err := normalizeCaptionMode(captionMode)
	if err != nil {
		return err
	}
	targets, err := normalizeTargets(mirrorsFlag)
	if err != nil {
		return err
	}

	dir := photosDir
	if dir == "" {
		dir = config.PhotosDir()
	}
	// an empty queue is not a failure, even on a runner without secrets
	queued, err := queue.Scan(dir)
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		logutil.Infof("no photos found in %s", dir)
		return nil
	}

	cfg, err := config.Load(config.Requirements{
		Graph: !dryRun,
		AI:    mode == captionAI && !dryRun,
	})
	if err != nil {
		return err
	}
	if mode == captionAuto {
		mode = captionStatic
		if cfg.AICaptions() {
			mode = captionAI
		}
	}
	if dryRun {
		mode = captionStatic
	}

	captioner, err := buildCaptioner(ctx, mode, cfg)
	if err != nil {
		return err
	}

	var (
		mirrors   []igpost.Poster
		publisher pipeline.Publisher
	)
	if dryRun {
		for _, target := range targets {
			logutil.Infof("[dry-run] would mirror to %s", target)
		}
	} else {
		mirrors, err = buildMirrors(ctx, targets)
		if err != nil {
			return err
		}
		publisher, err = instagram.New(instagram.Config{
			BaseURL:      cfg.GraphURL,
			APIVersion:   cfg.APIVersion,
			AccountID:    cfg.AccountID,
			AccessToken:  cfg.AccessToken,
			PublishDelay: publishDelay,
		})
		if err != nil {
			return err
		}
	}

	p := &pipeline.Pipeline{
		Dir: dir,
		Resolver: rawurl.Resolver{
			Repository: cfg.Repository,
			Branch:     cfg.Branch,
			Root:       cfg.RepoRoot,
		},
		Captioner: captioner,
		Fallback:  caption.DefaultFallback,
		Publisher: publisher,
		Mirrors:   mirrors,
		DryRun:    dryRun,
		Inspect:   queue.Inspect,
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	logutil.Infof("run finished: outcome=%s", report.Outcome)
	if report.Outcome == pipeline.OutcomePublished {
		fmt.Fprintf(cmd.OutOrStdout(), "published %s as %s\n", report.Asset.Name, report.Result.PostID)
	}
	return nil
}

func normalizeCaptionMode(value string) (string, error) {
	switch mode := strings.TrimSpace(strings.ToLower(value)); mode {
	case "", captionAuto:
		return captionAuto, nil
	case captionAI, "gemini":
		return captionAI, nil
	case captionStatic:
		return captionStatic, nil
	default:
		return "", fmt.Errorf("unsupported caption strategy %q", value)
	}
}

func buildCaptioner(ctx context.Context, mode string, cfg config.Config) (caption.Source, error) {
	if mode != captionAI {
		return caption.Static{}, nil
	}
	return caption.NewGemini(ctx, caption.GeminiConfig{
		APIKey: cfg.GeminiKey,
		Model:  cfg.GeminiModel,
	})
}

func normalizeTargets(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return sortedTargets([]string{"twitter", "mastodon", "bluesky"}), nil
		}
		if _, ok := supportedMirrors[raw]; !ok {
			return nil, fmt.Errorf("unsupported mirror %q", raw)
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}

	return sortedTargets(result), nil
}

func sortedTargets(targets []string) []string {
	out := append([]string(nil), targets...)
	sort.Strings(out)
	return out
}

func buildMirrors(ctx context.Context, targets []string) ([]igpost.Poster, error) {
	constructors := map[string]func(context.Context) (igpost.Poster, error){
		"bluesky":  bluesky.New,
		"mastodon": mastodon.New,
		"twitter":  twitter.New,
	}

	mirrors := make([]igpost.Poster, 0, len(targets))
	var errs []error
	for _, target := range targets {
		constructor, ok := constructors[target]
		if !ok {
			errs = append(errs, fmt.Errorf("mirror %q is not implemented", target))
			continue
		}
		poster, err := constructor(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		mirrors = append(mirrors, poster)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return mirrors, nil
}
