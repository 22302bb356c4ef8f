package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bodul/loto/recognition"
)

// ImageSource hands over an image chosen by the player.
type ImageSource interface {
	Pick(ctx context.Context) (recognition.Image, error)
}

// ImageSourceFunc adapts a function to ImageSource.
type ImageSourceFunc func(ctx context.Context) (recognition.Image, error)

func (f ImageSourceFunc) Pick(ctx context.Context) (recognition.Image, error) { return f(ctx) }

// FileSource picks a local file. An empty Path is a cancelled pick; an
// unreadable file is a denied permission.
type FileSource struct {
	Path string
}

func (s FileSource) Pick(ctx context.Context) (recognition.Image, error) {
	if s.Path == "" {
		return recognition.Image{}, ErrPickCancelled
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return recognition.Image{}, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return recognition.Image{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return recognition.Image{}, fmt.Errorf("stat %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return recognition.Image{}, fmt.Errorf("%s is a directory", s.Path)
	}
	return recognition.Image{URI: s.Path}, nil
}
