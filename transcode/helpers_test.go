package transcode

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io/fs"
	"sort"
	"sync"
	"testing"

	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/recorder"
	"github.com/stretchr/testify/require"
)

// pngPipe encodes n frames alternating between the given colors.
func pngPipe(t *testing.T, n, w, h int, colors ...color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), &image.Uniform{colors[i%len(colors)]}, image.Point{}, draw.Src)
		require.NoError(t, png.Encode(&buf, img))
	}
	return buf.Bytes()
}

func blobOf(data []byte, frames, fps int) *recorder.Blob {
	return &recorder.Blob{
		Data:      data,
		MIME:      recorder.MIMEType,
		Format:    recorder.Format,
		Codec:     recorder.Codec,
		FrameRate: fps,
		Frames:    frames,
	}
}

// fakeEngine is an in-memory engine whose command execution is scripted.
type fakeEngine struct {
	mu       sync.Mutex
	files    map[string][]byte
	calls    [][]string
	exec     func(e *fakeEngine, args []string) (int, error)
	logs     event.Bus[event.Log]
	progress event.Bus[event.Progress]
}

func newFakeEngine(exec func(e *fakeEngine, args []string) (int, error)) *fakeEngine {
	return &fakeEngine{files: make(map[string][]byte), exec: exec}
}

func (e *fakeEngine) StageFile(_ context.Context, name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = data
	return nil
}

func (e *fakeEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (e *fakeEngine) DeleteFile(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.files, name)
	return nil
}

func (e *fakeEngine) CreateDir(context.Context, string) error { return nil }

func (e *fakeEngine) ListDir(context.Context, string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for name := range e.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *fakeEngine) Exec(_ context.Context, args []string) (int, error) {
	e.mu.Lock()
	e.calls = append(e.calls, args)
	e.mu.Unlock()
	return e.exec(e, args)
}

func (e *fakeEngine) OnLog(fn func(event.Log)) func()           { return e.logs.Subscribe(fn) }
func (e *fakeEngine) OnProgress(fn func(event.Progress)) func() { return e.progress.Subscribe(fn) }
func (e *fakeEngine) Close() error                              { return nil }
