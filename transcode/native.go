package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"io/fs"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/esimov/svgif/event"
	"github.com/hashicorp/go-hclog"
	xdraw "golang.org/x/image/draw"
)

// defaultInputRate is the frame rate assumed for inputs without -framerate.
const defaultInputRate = 25

// NativeEngine is a pure Go engine with in-memory storage. It interprets the
// subset of ffmpeg arguments used by the job builder: png pipe and single
// image inputs, the fps, scale, palettegen, paletteuse, setpts and unsharp
// filters, and gif or png outputs.
type NativeEngine struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	logger   hclog.Logger
	logs     *event.Bus[event.Log]
	progress *event.Bus[event.Progress]
}

// NewNativeEngine returns an engine with empty storage.
func NewNativeEngine(logger hclog.Logger) *NativeEngine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &NativeEngine{
		files:    make(map[string][]byte),
		dirs:     map[string]bool{".": true},
		logger:   logger,
		logs:     event.NewBus[event.Log](),
		progress: event.NewBus[event.Progress](),
	}
}

func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// StageFile implements Engine.
func (e *NativeEngine) StageFile(_ context.Context, name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name = cleanName(name)
	if !e.dirs[dirOf(name)] {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrNotExist}
	}
	e.files[name] = bytes.Clone(data)
	return nil
}

// ReadFile implements Engine.
func (e *NativeEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.files[cleanName(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return bytes.Clone(data), nil
}

// DeleteFile implements Engine.
func (e *NativeEngine) DeleteFile(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name = cleanName(name)
	if _, ok := e.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(e.files, name)
	return nil
}

// CreateDir implements Engine.
func (e *NativeEngine) CreateDir(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for dir := cleanName(name); dir != "." && dir != ""; dir = dirOf(dir) {
		e.dirs[dir] = true
	}
	return nil
}

// ListDir implements Engine.
func (e *NativeEngine) ListDir(_ context.Context, name string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := cleanName(name)
	if dir == "" {
		dir = "."
	}
	if !e.dirs[dir] {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	var names []string
	for f := range e.files {
		if dirOf(f) == dir {
			names = append(names, path.Base(f))
		}
	}
	for d := range e.dirs {
		if d != "." && dirOf(d) == dir {
			names = append(names, path.Base(d))
		}
	}
	sort.Strings(names)
	return names, nil
}

func dirOf(name string) string {
	return path.Dir(name)
}

// OnLog implements Engine.
func (e *NativeEngine) OnLog(fn func(event.Log)) func() { return e.logs.Subscribe(fn) }

// OnProgress implements Engine.
func (e *NativeEngine) OnProgress(fn func(event.Progress)) func() { return e.progress.Subscribe(fn) }

// Close implements Engine by dropping the storage.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.files = make(map[string][]byte)
	e.dirs = map[string]bool{".": true}
	return nil
}

func (e *NativeEngine) log(format string, args ...any) {
	e.logs.Publish(event.Log{Type: "stderr", Message: fmt.Sprintf(format, args...)})
}

// Exec implements Engine. Processing errors are reported in the log and
// through a non-zero exit code, like the ffmpeg binary does.
func (e *NativeEngine) Exec(ctx context.Context, args []string) (int, error) {
	cmd, err := parseCommand(args)
	if err != nil {
		e.log("%v", err)
		return 1, nil
	}
	if err := e.exec(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		e.log("Error: %v", err)
		return 1, nil
	}
	return 0, nil
}

// input is one -i argument with the options preceding it.
type input struct {
	name      string
	format    string
	codec     string
	framerate int
}

// command is a parsed ffmpeg command line.
type command struct {
	inputs    []input
	vf        string
	complex   string
	loop      int
	codec     string
	output    string
	overwrite bool
}

// parseCommand interprets the supported ffmpeg options.
func parseCommand(args []string) (*command, error) {
	cmd := &command{}
	var pending input
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing argument for option '%s'", arg)
			}
			i++
			return args[i], nil
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			if cmd.output != "" {
				return nil, fmt.Errorf("multiple outputs are not supported: %s", arg)
			}
			cmd.output = arg
			continue
		}

		switch arg {
		case "-y":
			cmd.overwrite = true
		case "-n", "-hide_banner", "-nostdin", "-nostats":
		case "-progress", "-loglevel", "-v", "-stats_period", "-threads":
			if _, err := value(); err != nil {
				return nil, err
			}
		case "-f":
			v, err := value()
			if err != nil {
				return nil, err
			}
			pending.format = v
		case "-framerate", "-r":
			v, err := value()
			if err != nil {
				return nil, err
			}
			rate, err := strconv.Atoi(v)
			if err != nil || rate <= 0 {
				return nil, fmt.Errorf("invalid frame rate %q", v)
			}
			pending.framerate = rate
		case "-c:v", "-vcodec", "-codec:v":
			v, err := value()
			if err != nil {
				return nil, err
			}
			pending.codec = v
		case "-i":
			v, err := value()
			if err != nil {
				return nil, err
			}
			pending.name = v
			cmd.inputs = append(cmd.inputs, pending)
			pending = input{}
		case "-vf", "-filter:v":
			v, err := value()
			if err != nil {
				return nil, err
			}
			cmd.vf = v
		case "-filter_complex":
			v, err := value()
			if err != nil {
				return nil, err
			}
			cmd.complex = v
		case "-loop":
			v, err := value()
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < -1 {
				return nil, fmt.Errorf("invalid loop count %q", v)
			}
			cmd.loop = n
		default:
			return nil, fmt.Errorf("unrecognized option '%s'", strings.TrimPrefix(arg, "-"))
		}
	}
	// Options after the last input apply to the output.
	cmd.codec = pending.codec
	if len(cmd.inputs) == 0 {
		return nil, errors.New("at least one input file must be specified")
	}
	if cmd.output == "" {
		return nil, errors.New("at least one output file must be specified")
	}
	if cmd.vf != "" && cmd.complex != "" {
		return nil, errors.New("-vf and -filter_complex cannot be used together")
	}
	return cmd, nil
}

// clip is a decoded frame sequence with its presentation timestamps.
type clip struct {
	frames   []image.Image
	pts      []time.Duration
	frameDur time.Duration
}

func (c *clip) end() time.Duration {
	if len(c.pts) == 0 {
		return 0
	}
	return c.pts[len(c.pts)-1] + c.frameDur
}

func (e *NativeEngine) exec(ctx context.Context, cmd *command) error {
	clips := make(map[string]*clip)
	for i, in := range cmd.inputs {
		c, err := e.load(in)
		if err != nil {
			return err
		}
		e.log("Input #%d, %s, from '%s': %d frames", i, orDefault(in.format, "image2"), in.name, len(c.frames))
		clips[strconv.Itoa(i)+":v"] = c
	}

	graph := cmd.complex
	if graph == "" && cmd.vf != "" {
		graph = "[0:v]" + cmd.vf
	}

	out := clips["0:v"]
	if graph != "" {
		chains, err := parseGraph(graph)
		if err != nil {
			return err
		}
		for _, ch := range chains {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(ch.inputs) == 0 {
				ch.inputs = []string{"0:v"}
			}
			var in []*clip
			for _, label := range ch.inputs {
				c, ok := clips[label]
				if !ok {
					return fmt.Errorf("no such pad [%s] in the filtergraph", label)
				}
				in = append(in, c)
			}
			res, err := e.runChain(ctx, ch.filters, in)
			if err != nil {
				return err
			}
			if ch.output != "" {
				clips[ch.output] = res
			}
			out = res
		}
	}
	if len(out.frames) == 0 {
		return errors.New("output file is empty, nothing was encoded")
	}

	e.mu.Lock()
	_, exists := e.files[cleanName(cmd.output)]
	e.mu.Unlock()
	if exists && !cmd.overwrite {
		return fmt.Errorf("file '%s' already exists", cmd.output)
	}

	var (
		buf    bytes.Buffer
		format string
	)
	switch {
	case cmd.codec == "gif" || strings.EqualFold(path.Ext(cmd.output), ".gif"):
		format = "gif"
		if err := e.encodeGIF(&buf, out, cmd.loop); err != nil {
			return err
		}
	case cmd.codec == "png" || strings.EqualFold(path.Ext(cmd.output), ".png"):
		format = "png"
		if len(out.frames) > 1 {
			e.log("only the first of %d frames is written to '%s'", len(out.frames), cmd.output)
		}
		if err := png.Encode(&buf, out.frames[0]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unable to find a suitable output format for '%s'", cmd.output)
	}
	e.log("Output #0, %s, to '%s': %d frames", format, cmd.output, len(out.frames))
	e.progress.Publish(event.Progress{Time: out.end(), Progress: 1})

	return e.StageFile(ctx, cmd.output, buf.Bytes())
}

// load decodes an input from the storage.
func (e *NativeEngine) load(in input) (*clip, error) {
	e.mu.Lock()
	data, ok := e.files[cleanName(in.name)]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: No such file or directory", in.name)
	}

	rate := in.framerate
	if rate <= 0 {
		rate = defaultInputRate
	}
	c := &clip{frameDur: time.Second / time.Duration(rate)}

	chunks := [][]byte{data}
	if in.format == "image2pipe" {
		var err error
		if chunks, err = splitPNGs(data); err != nil {
			return nil, fmt.Errorf("%s: %w", in.name, err)
		}
	}
	for i, chunk := range chunks {
		img, _, err := image.Decode(bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("%s: unable to decode frame %d: %w", in.name, i, err)
		}
		c.frames = append(c.frames, img)
		c.pts = append(c.pts, time.Duration(i)*c.frameDur)
	}
	return c, nil
}

// runChain applies a filter chain. Only the first filter may take more than one input.
func (e *NativeEngine) runChain(ctx context.Context, filters []filter, in []*clip) (*clip, error) {
	cur := in[0]
	for i, f := range filters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			next *clip
			err  error
		)
		switch f.name {
		case "fps":
			next, err = filterFPS(f, cur)
		case "scale":
			next, err = filterScale(f, cur)
		case "palettegen":
			next, err = e.filterPalettegen(f, cur)
		case "paletteuse":
			if i != 0 || len(in) < 2 {
				return nil, errors.New("paletteuse requires an input stream and a palette stream")
			}
			next, err = e.filterPaletteuse(ctx, f, cur, in[1])
		case "setpts":
			next, err = filterSetPTS(f, cur)
		case "unsharp":
			e.log("unsharp is not supported by the native engine, skipped")
			next = cur
		default:
			return nil, fmt.Errorf("no such filter: '%s'", f.name)
		}
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// filterFPS resamples the clip to a constant frame rate by duplicating or
// dropping frames.
func filterFPS(f filter, c *clip) (*clip, error) {
	rate, err := f.intArg("fps", 0, 0)
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("fps: invalid frame rate %d", rate)
	}
	out := &clip{frameDur: time.Second / time.Duration(rate)}
	end := c.end()
	src := 0
	for k := 0; ; k++ {
		t := time.Duration(k) * out.frameDur
		if t >= end || len(c.frames) == 0 {
			break
		}
		for src+1 < len(c.pts) && c.pts[src+1] <= t {
			src++
		}
		out.frames = append(out.frames, c.frames[src])
		out.pts = append(out.pts, t)
	}
	return out, nil
}

// filterScale resizes every frame. -1 derives a dimension from the aspect
// ratio, -2 does the same rounding to an even value.
func filterScale(f filter, c *clip) (*clip, error) {
	if len(c.frames) == 0 {
		return c, nil
	}
	w, err := f.intArg("w", 0, -1)
	if err != nil {
		return nil, err
	}
	h, err := f.intArg("h", 1, -1)
	if err != nil {
		return nil, err
	}
	sb := c.frames[0].Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	derive := func(v, other, num, den int) int {
		if v >= 0 {
			return v
		}
		n := int(math.Round(float64(other) * float64(num) / float64(den)))
		if v == -2 && n%2 != 0 {
			n++
		}
		return max(1, n)
	}
	switch {
	case w < 0 && h < 0:
		w, h = sw, sh
	case w < 0:
		w = derive(w, h, sw, sh)
	case h < 0:
		h = derive(h, w, sh, sw)
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("scale: invalid size %dx%d", w, h)
	}

	flags := f.arg("flags", 2, "bicubic")
	scaled := make(map[image.Image]image.Image)
	out := &clip{pts: c.pts, frameDur: c.frameDur, frames: make([]image.Image, len(c.frames))}
	for i, frame := range c.frames {
		if s, ok := scaled[frame]; ok {
			out.frames[i] = s
			continue
		}
		s := resize(frame, w, h, flags)
		scaled[frame] = s
		out.frames[i] = s
	}
	return out, nil
}

// resize scales img with the scaler named by flags.
func resize(img image.Image, w, h int, flags string) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	switch flags {
	case "lanczos":
		return imaging.Resize(img, w, h, imaging.Lanczos)
	case "area":
		return imaging.Resize(img, w, h, imaging.Box)
	}
	var scaler xdraw.Scaler
	switch flags {
	case "neighbor":
		scaler = xdraw.NearestNeighbor
	case "bilinear", "fast_bilinear":
		scaler = xdraw.BiLinear
	default:
		scaler = xdraw.CatmullRom
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// filterPalettegen computes the palette of the whole clip.
func (e *NativeEngine) filterPalettegen(f filter, c *clip) (*clip, error) {
	maxColors, err := f.intArg("max_colors", 0, 256)
	if err != nil {
		return nil, err
	}
	if maxColors < 2 || maxColors > 256 {
		return nil, fmt.Errorf("palettegen: max_colors must be between 2 and 256")
	}
	mode := f.arg("stats_mode", -1, StatsFull)
	if mode == StatsSingle {
		e.log("palettegen: stats_mode=single computes a single palette with the native engine")
	}

	var (
		hist histogram
		prev *image.NRGBA
		last image.Image
	)
	for _, frame := range c.frames {
		if frame == last && mode == StatsDiff {
			continue
		}
		img := imaging.Clone(frame)
		if mode == StatsDiff && prev != nil {
			hist.add(img, prev)
		} else {
			hist.add(img, nil)
		}
		prev, last = img, frame
	}

	n := maxColors
	reserve := hist.transparent > 0
	if reserve {
		n--
	}
	pal := hist.medianCut(n)
	if reserve {
		pal = append(pal, color.NRGBA{})
	}
	e.log("palettegen: %d colors", len(pal))

	return &clip{
		frames:   []image.Image{paletteImage(pal)},
		pts:      []time.Duration{0},
		frameDur: c.end(),
	}, nil
}

// filterPaletteuse maps every frame onto the palette of the second input.
func (e *NativeEngine) filterPaletteuse(ctx context.Context, f filter, c, pal *clip) (*clip, error) {
	if len(pal.frames) == 0 {
		return nil, errors.New("paletteuse: empty palette stream")
	}
	p, transparent := readPalette(pal.frames[0])
	if len(p) == 0 {
		return nil, errors.New("paletteuse: palette has no entries")
	}

	dither := f.arg("dither", -1, "sierra2_4a")
	switch dither {
	case DitherBayer, DitherNone, DitherFloydSteinberg:
	case DitherSierra2, DitherSierra24A, DitherHeckbert:
		e.log("paletteuse: dither=%s falls back to floyd_steinberg with the native engine", dither)
		dither = DitherFloydSteinberg
	default:
		return nil, fmt.Errorf("paletteuse: unknown dither mode %q", dither)
	}
	scale, err := f.intArg("bayer_scale", -1, 2)
	if err != nil {
		return nil, err
	}
	if scale < 0 || scale > 5 {
		return nil, fmt.Errorf("paletteuse: bayer_scale must be between 0 and 5")
	}

	m := newMapper(p, transparent)
	out := &clip{pts: c.pts, frameDur: c.frameDur, frames: make([]image.Image, len(c.frames))}
	mapped := make(map[image.Image]image.Image)
	for i, frame := range c.frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if img, ok := mapped[frame]; ok {
			out.frames[i] = img
		} else {
			img := m.apply(imaging.Clone(frame), dither, scale)
			mapped[frame] = img
			out.frames[i] = img
		}
		e.progress.Publish(event.Progress{
			Time:     c.pts[i],
			Progress: float64(i+1) / float64(len(c.frames)),
		})
	}
	return out, nil
}

// filterSetPTS supports the K*PTS, PTS*K, PTS/K and PTS expressions.
func filterSetPTS(f filter, c *clip) (*clip, error) {
	expr := strings.ReplaceAll(f.arg("expr", 0, "PTS"), " ", "")
	factor := 1.0
	var err error
	switch {
	case expr == "PTS":
	case strings.HasSuffix(expr, "*PTS"):
		factor, err = strconv.ParseFloat(strings.TrimSuffix(expr, "*PTS"), 64)
	case strings.HasPrefix(expr, "PTS*"):
		factor, err = strconv.ParseFloat(strings.TrimPrefix(expr, "PTS*"), 64)
	case strings.HasPrefix(expr, "PTS/"):
		var div float64
		if div, err = strconv.ParseFloat(strings.TrimPrefix(expr, "PTS/"), 64); err == nil && div != 0 {
			factor = 1 / div
		}
	default:
		err = errors.New("unsupported expression")
	}
	if err != nil || factor <= 0 || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("setpts: invalid expression %q", expr)
	}

	out := &clip{
		frames:   c.frames,
		pts:      make([]time.Duration, len(c.pts)),
		frameDur: time.Duration(float64(c.frameDur) * factor),
	}
	for i, t := range c.pts {
		out.pts[i] = time.Duration(float64(t) * factor)
	}
	return out, nil
}

// encodeGIF writes the clip as an animated GIF. Frames which did not go
// through paletteuse are quantized to the web safe palette.
func (e *NativeEngine) encodeGIF(w *bytes.Buffer, c *clip, loop int) error {
	anim := &gif.GIF{LoopCount: loop}

	var fallback *mapper
	centis := func(t time.Duration) int {
		return int(math.Round(float64(t) / float64(10*time.Millisecond)))
	}
	for i, frame := range c.frames {
		p, ok := frame.(*image.Paletted)
		if !ok {
			if fallback == nil {
				e.log("gif: frames are not paletted, quantizing to the web safe palette")
				fallback = newMapper(palette.WebSafe, -1)
			}
			p = fallback.apply(imaging.Clone(frame), DitherFloydSteinberg, 0)
		}
		end := c.end()
		if i+1 < len(c.pts) {
			end = c.pts[i+1]
		}
		delay := max(1, centis(end)-centis(c.pts[i]))

		disposal := byte(gif.DisposalNone)
		if hasTransparent(p.Palette) {
			disposal = gif.DisposalBackground
		}
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, delay)
		anim.Disposal = append(anim.Disposal, disposal)
	}
	return gif.EncodeAll(w, anim)
}

func hasTransparent(p []color.Color) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a == 0 {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
