package transcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Fixed names of the files a job uses in the engine storage.
const (
	InputName   = "input"
	PaletteName = "palette.png"
	OutputName  = "output.gif"
)

// MIMEType is the media type of the transcoded output.
const MIMEType = "image/gif"

// Input describes how the staged input is demuxed.
type Input struct {
	Format    string // demuxer, e.g. image2pipe
	Codec     string // frame decoder, e.g. png
	FrameRate int
}

// Job describes the two-pass command sequence of a transcode.
// It is derived entirely from the input description and the parameters.
type Job struct {
	InputName   string
	PaletteName string
	OutputName  string
	Input       Input
	Params      Params
}

// NewJob returns a job using the fixed file names.
func NewJob(in Input, p Params) Job {
	return Job{
		InputName:   InputName,
		PaletteName: PaletteName,
		OutputName:  OutputName,
		Input:       in,
		Params:      p.WithDefaults(),
	}
}

// inputArgs returns the arguments demuxing the staged input.
func (j Job) inputArgs() []string {
	var args []string
	if j.Input.Format != "" {
		args = append(args, "-f", j.Input.Format)
	}
	if j.Input.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(j.Input.FrameRate))
	}
	if j.Input.Codec != "" {
		args = append(args, "-c:v", j.Input.Codec)
	}
	return append(args, "-i", j.InputName)
}

// scaleChain returns the frame rate and scaling filters shared by both passes.
func (j Job) scaleChain() string {
	p := j.Params
	return fmt.Sprintf("fps=%d,scale=%d:%d:flags=%s", p.FPS, p.Width, p.Height, p.ScaleFlags)
}

// PaletteArgs builds the arguments of the palette generation pass.
func (j Job) PaletteArgs() []string {
	p := j.Params
	args := j.inputArgs()
	args = append(args,
		"-vf", fmt.Sprintf("%s,palettegen=max_colors=%d:stats_mode=%s", j.scaleChain(), p.MaxColors, p.StatsMode),
		"-y", j.PaletteName,
	)
	return args
}

// EncodeArgs builds the arguments of the palette constrained encoding pass.
func (j Job) EncodeArgs() []string {
	p := j.Params

	var graph strings.Builder
	graph.WriteString("[0:v]")
	graph.WriteString(j.scaleChain())
	if p.Unsharp != "" {
		graph.WriteString(",unsharp=" + p.Unsharp)
	}
	graph.WriteString("[x];[x][1:v]paletteuse=dither=" + p.Dither)
	if p.Dither == DitherBayer {
		graph.WriteString(":bayer_scale=" + strconv.Itoa(p.BayerScale))
	}
	if p.PTSMultiplier != 1 {
		graph.WriteString(",setpts=" + strconv.FormatFloat(p.PTSMultiplier, 'f', -1, 64) + "*PTS")
	}

	args := j.inputArgs()
	args = append(args,
		"-i", j.PaletteName,
		"-filter_complex", graph.String(),
		"-loop", strconv.Itoa(p.Loop),
		"-c:v", "gif",
		"-y", j.OutputName,
	)
	return args
}
