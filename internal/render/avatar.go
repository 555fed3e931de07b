package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotPNG is returned when a profile image is neither declared nor shaped as PNG
var ErrNotPNG = errors.New("profile image is not a PNG")

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// ImageFetcher downloads a peer's profile image and its declared content type
type ImageFetcher interface {
	ProfileImage(ctx context.Context, url string) ([]byte, string, error)
}

// IsPNG reports whether b starts with the PNG file signature
func IsPNG(b []byte) bool {
	return bytes.HasPrefix(b, pngSignature)
}

// checkPNG accepts a declared image/png, or any body carrying the PNG signature
func checkPNG(url string, body []byte, contentType string) error {
	if strings.HasPrefix(strings.ToLower(contentType), "image/png") {
		return nil
	}
	if !IsPNG(body) {
		return fmt.Errorf("%w: content type %q from %s", ErrNotPNG, contentType, url)
	}
	logrus.Warnf("profile.png: unexpected Content-Type %q from %s, but it still looks like a PNG", contentType, url)
	return nil
}

// Avatars saves peer profile images under dir
type Avatars struct {
	fetcher ImageFetcher
	dir     string
}

// NewAvatars creates an avatar store writing into dir
func NewAvatars(fetcher ImageFetcher, dir string) *Avatars {
	return &Avatars{fetcher: fetcher, dir: dir}
}

// Save fetches url's profile image and writes it as <key>.png.
// Returns the written path, or "" when the peer has no usable image.
func (a *Avatars) Save(ctx context.Context, url, key string) string {
	body, contentType, err := a.fetcher.ProfileImage(ctx, url)
	if err != nil {
		logrus.Warnf("profile.png: no image from %s: %v", url, err)
		return ""
	}
	if err := checkPNG(url, body, contentType); err != nil {
		logrus.Warnf("profile.png: %v", err)
		return ""
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		logrus.Errorf("profile.png: failed to create %s: %v", a.dir, err)
		return ""
	}
	path := filepath.Join(a.dir, key+".png")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		logrus.Errorf("profile.png: failed to write %s: %v", path, err)
		return ""
	}

	return path
}
