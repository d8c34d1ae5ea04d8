package igpost

import (
	"context"
	"path/filepath"
	"strings"
)

// Asset is a pending image in the photos directory.
type Asset struct {
	Path     string
	Name     string
	MIMEType string
}

// NewAsset describes the file at path, inferring its MIME type from the extension.
func NewAsset(path string) Asset {
	return Asset{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: MIMEType(path),
	}
}

// MIMEType maps a supported image extension to its content type. Unsupported
// extensions return an empty string.
func MIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return ""
}

// Post is the content handed to mirror networks once Instagram accepted it.
type Post struct {
	Caption   string
	ImagePath string
	ImageAlt  string
}

// Poster abstracts a social network that can re-publish a post.
type Poster interface {
	Name() string
	Post(ctx context.Context, post Post) error
}
