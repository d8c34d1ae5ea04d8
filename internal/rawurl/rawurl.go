// Package rawurl maps files committed to a repository onto the raw-content
// URLs a file host serves them from.
package rawurl

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultHost serves raw files for GitHub repositories.
const DefaultHost = "raw.githubusercontent.com"

// ErrOutsideRoot is returned for paths that do not live inside the checkout.
var ErrOutsideRoot = errors.New("rawurl: path is outside the repository root")

// Resolver builds https://<host>/<repository>/<branch>/<path> URLs, where
// path is taken relative to Root. An empty Root means the working directory.
type Resolver struct {
	Host       string
	Repository string
	Branch     string
	Root       string
}

// Resolve returns the public URL of path. Platform separators are always
// rewritten to forward slashes.
func (r Resolver) Resolve(path string) (string, error) {
	repo := strings.Trim(strings.TrimSpace(r.Repository), "/")
	branch := strings.Trim(strings.TrimSpace(r.Branch), "/")
	switch {
	case repo == "":
		return "", errors.New("rawurl: repository not configured")
	case branch == "":
		return "", errors.New("rawurl: branch not configured")
	case strings.TrimSpace(path) == "":
		return "", errors.New("rawurl: empty path")
	}

	host := strings.Trim(strings.TrimSpace(r.Host), "/")
	if host == "" {
		host = DefaultHost
	}

	rel, err := r.relative(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/%s/%s/%s", host, repo, branch, rel), nil
}

func (r Resolver) relative(path string) (string, error) {
	root := r.Root
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("rawurl: resolve root %s: %w", root, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("rawurl: resolve %s: %w", path, err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return rel, nil
}
