// Package queue treats a directory of images as the work queue: a file that
// is present is pending, a file that is gone has been posted.
package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blacktop/igpost/internal/igpost"
)

// ErrEmpty is returned when the directory holds no eligible image.
var ErrEmpty = errors.New("no pending images")

var extensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// Eligible reports whether name has one of the accepted image extensions,
// compared case-insensitively.
func Eligible(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scan lists the eligible images directly inside dir, sorted by path.
// Symlinks are followed; dangling links and directories are skipped.
// A directory that does not exist holds no work.
func Scan(dir string) ([]igpost.Asset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	assets := make([]igpost.Asset, 0, len(entries))
	for _, entry := range entries {
		if !Eligible(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !entry.Type().IsRegular() {
			// symlinks count when they point at a regular file
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		assets = append(assets, igpost.NewAsset(path))
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Path < assets[j].Path })

	return assets, nil
}

// Pick draws one asset uniformly at random.
func Pick(assets []igpost.Asset, rng *rand.Rand) (igpost.Asset, error) {
	if len(assets) == 0 {
		return igpost.Asset{}, ErrEmpty
	}
	if rng == nil {
		return assets[rand.IntN(len(assets))], nil
	}
	return assets[rng.IntN(len(assets))], nil
}

// Next scans dir and picks the asset to publish in this run.
func Next(dir string, rng *rand.Rand) (igpost.Asset, error) {
	assets, err := Scan(dir)
	if err != nil {
		return igpost.Asset{}, err
	}
	return Pick(assets, rng)
}

// Finalize removes a published asset so later scans no longer see it.
func Finalize(asset igpost.Asset, remove func(string) error) error {
	if remove == nil {
		remove = os.Remove
	}
	if err := remove(asset.Path); err != nil {
		return fmt.Errorf("delete %s: %w", asset.Path, err)
	}
	return nil
}
