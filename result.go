package svgif

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// Result is a converted animation.
type Result struct {
	ID     string // conversion job id
	Data   []byte // gif encoded animation
	MIME   string
	Width  int
	Height int
	Frames int // number of captured frames
}

// Size returns the size of the animation in bytes.
func (r *Result) Size() int { return len(r.Data) }

// WriteTo writes the animation to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Data)
	return int64(n), err
}

// Save writes the animation to the file at path.
func (r *Result) Save(path string) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".gif" && ext != "" {
		return fmt.Errorf("unable to save a gif animation as %s", ext)
	}
	return os.WriteFile(path, r.Data, 0o644)
}

// Poster decodes the first frame of the animation.
func (r *Result) Poster() (image.Image, error) {
	anim, err := gif.DecodeAll(bytes.NewReader(r.Data))
	if err != nil {
		return nil, fmt.Errorf("could not decode the animation: %w", err)
	}
	if len(anim.Image) == 0 {
		return nil, errors.New("the animation has no frames")
	}
	return anim.Image[0], nil
}

// EncodePoster encodes the first frame of the animation to w, in the image
// format matching the extension: .png, .jpg, .jpeg or .bmp.
func (r *Result) EncodePoster(w io.Writer, ext string) error {
	img, err := r.Poster()
	if err != nil {
		return err
	}
	switch strings.ToLower(ext) {
	case "", ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 100})
	case ".bmp":
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("unsupported poster format %q", ext)
}

// SavePoster writes the first frame of the animation to the file at path.
func (r *Result) SavePoster(path string) error {
	var buf bytes.Buffer
	if err := r.EncodePoster(&buf, filepath.Ext(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
