// Package loader fetches an SVG document and decodes it into a renderable
// asset. The document may come from an http(s) URL, a data URL, a local file
// or the standard input.
package loader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/esimov/svgif/svg"
	"github.com/esimov/svgif/utils"
	"github.com/hashicorp/go-hclog"
)

// StdinName is the source name standing for the standard input.
const StdinName = "-"

// DefaultMaxSize caps the size of the accepted documents.
const DefaultMaxSize = utils.DefaultMaxDownloadSize

// validateSize bounds the size of the probe render done on decoding.
const validateSize = 512

// ErrUnsupported is the cause reported for payloads which are not svg markup.
var ErrUnsupported = errors.New("the source is not an svg document")

// Error reports a source which could not be fetched or decoded.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unable to load %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Loader fetches and decodes documents.
type Loader struct {
	Client  *http.Client
	MaxSize int64
	Stdin   io.Reader
	Logger  hclog.Logger
}

// New returns a loader with the default limits.
func New(logger hclog.Logger) *Loader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Loader{
		Client:  http.DefaultClient,
		MaxSize: DefaultMaxSize,
		Stdin:   os.Stdin,
		Logger:  logger,
	}
}

// Load fetches source with the default loader.
func Load(ctx context.Context, source string) (*svg.Asset, error) {
	return New(nil).Load(ctx, source)
}

// Load fetches source and decodes it. There are no retries.
func (l *Loader) Load(ctx context.Context, source string) (*svg.Asset, error) {
	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, &Error{Source: shorten(source), Err: err}
	}
	return l.decode(source, data)
}

// LoadReader reads the document from r. The name only identifies the
// source in errors and logs.
func (l *Loader) LoadReader(ctx context.Context, name string, r io.Reader) (*svg.Asset, error) {
	data, err := l.read(ctx, r)
	if err != nil {
		return nil, &Error{Source: name, Err: err}
	}
	return l.decode(name, data)
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case source == "":
		return nil, errors.New("empty source")
	case utils.IsValidUrl(source):
		l.logger().Debug("downloading", "url", source)
		return utils.Download(ctx, l.Client, source, l.maxSize())
	case utils.IsDataUrl(source):
		return l.parseDataURL(source)
	case source == StdinName:
		if l.Stdin == nil {
			return nil, errors.New("no standard input")
		}
		return l.read(ctx, l.Stdin)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return l.read(ctx, f)
}

// read consumes r up to the size limit.
func (l *Loader) read(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := l.maxSize()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("the document exceeds the %s limit", humanize.IBytes(uint64(limit)))
	}
	return data, ctx.Err()
}

// parseDataURL decodes a data:[<mediatype>][;base64],<data> url.
func (l *Loader) parseDataURL(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	params := strings.Split(header, ";")
	if mt := strings.TrimSpace(params[0]); mt != "" && !strings.Contains(mt, "svg") && !strings.HasPrefix(mt, "text/") {
		return nil, fmt.Errorf("%w: media type %s", ErrUnsupported, mt)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(params[len(params)-1], "base64") {
		payload = strings.TrimRight(payload, "=")
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawURLEncoding.DecodeString(payload)
		}
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed data url: %w", err)
	}
	if int64(len(data)) > l.maxSize() {
		return nil, fmt.Errorf("the document exceeds the %s limit", humanize.IBytes(uint64(l.maxSize())))
	}
	return data, nil
}

// decode sniffs the payload, parses it and checks that the first frame renders.
func (l *Loader) decode(source string, data []byte) (*svg.Asset, error) {
	name := shorten(source)
	ctype := utils.DetectContentType(data)
	if ctype != "image/svg+xml" {
		return nil, &Error{Source: name, Err: fmt.Errorf("%w: detected %s", ErrUnsupported, ctype)}
	}

	start := time.Now()
	asset, err := svg.Parse(data)
	if err != nil {
		return nil, &Error{Source: name, Err: err}
	}

	w := utils.Clamp(int(asset.Width()+0.5), 1, validateSize)
	h := utils.Clamp(int(asset.Height()+0.5), 1, validateSize)
	if _, err := asset.Render(w, h, 0); err != nil {
		return nil, &Error{Source: name, Err: fmt.Errorf("unable to render the first frame: %w", err)}
	}

	duration, bounded := asset.Duration()
	l.logger().Debug("svg loaded",
		"source", name,
		"size", humanize.Bytes(uint64(len(data))),
		"width", asset.Width(),
		"height", asset.Height(),
		"animated", asset.Animated(),
		"duration", duration,
		"bounded", bounded,
		"elapsed", time.Since(start),
	)
	return asset, nil
}

func (l *Loader) maxSize() int64 {
	if l.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return l.MaxSize
}

func (l *Loader) logger() hclog.Logger {
	if l.Logger == nil {
		return hclog.NewNullLogger()
	}
	return l.Logger
}

// shorten keeps data urls readable in errors and logs.
func shorten(source string) string {
	if utils.IsDataUrl(source) && len(source) > 48 {
		return source[:45] + "..."
	}
	return source
}
