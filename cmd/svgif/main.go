package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/esimov/svgif"
	"github.com/esimov/svgif/config"
	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/utils"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"
)

const HelpBanner = `
┌─┐┬  ┬┌─┐┬┌─┐
└─┐└┐┌┘│ ┬│├┤
└─┘ └┘ └─┘┴└

Animated SVG to looping GIF converter.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

var (
	// Flags
	source      = flag.String("in", pipeName, "Source: file, URL, data URL or - for stdin")
	destination = flag.String("out", pipeName, "Destination GIF file or - for stdout")
	poster      = flag.String("poster", "", "Save the first frame as a still image (.png, .jpg, .bmp)")
	profile     = flag.String("profile", "", "Conversion profile: "+strings.Join(config.Profiles(), ", "))
	configFile  = flag.String("config", "", "YAML configuration file")
	duration    = flag.Float64("duration", 0, "Capture duration in seconds")
	fps         = flag.Int("fps", 0, "Frame rate")
	width       = flag.Int("width", 0, "Output width, -1 keeps the aspect ratio")
	height      = flag.Int("height", 0, "Output height, -1 keeps the aspect ratio")
	strategy    = flag.String("strategy", "", "Capture strategy: still or live")
	engine      = flag.String("engine", "", "Transcode engine: auto, ffmpeg or native")
	dither      = flag.String("dither", "", "Dithering: bayer, floyd_steinberg, sierra2, sierra2_4a, heckbert or none")
	colors      = flag.Int("colors", 0, "Maximum number of palette colors")
	background  = flag.String("bg", "", "Background color, e.g. #ffffff")
	composite   = flag.String("comp", "", "Composite operation or blend mode used to draw the image")
	timeout     = flag.Duration("timeout", 0, "Conversion timeout, e.g. 2m")
	realtime    = flag.Bool("realtime", false, "Replay the still frames in real time")
	verbose     = flag.Bool("v", false, "Verbose logging")
)

func main() {
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := hclog.Warn
	if *verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "svgif",
		Level:  level,
		Output: os.Stderr,
	})

	cfg, err := config.Load(config.Options{Profile: *profile, File: *configFile})
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Unable to load the configuration: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}
	applyFlags(cfg)

	if *destination != pipeName && strings.ToLower(filepath.Ext(*destination)) != ".gif" {
		log.Fatalf(utils.DecorateText("%v file type not supported, the destination should be a .gif file", utils.ErrorMessage), filepath.Ext(*destination))
	}
	if *source == pipeName && term.IsTerminal(int(os.Stdin.Fd())) {
		flag.Usage()
		log.Fatal(utils.DecorateText("\n`-` should be used with a pipe for stdin", utils.ErrorMessage))
	}
	if *destination == pipeName && term.IsTerminal(int(os.Stdout.Fd())) {
		flag.Usage()
		log.Fatal(utils.DecorateText("\n`-` should be used with a pipe for stdout", utils.ErrorMessage))
	}
	conv, err := svgif.New(svgif.Options{
		Config:    cfg,
		Composite: *composite,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf(
			utils.DecorateText("Invalid settings: %v", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
	}
	defer conv.Close()

	spinnerText := fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ SVGIF", utils.StatusMessage),
		utils.DecorateText("is converting the image...", utils.DefaultMessage))
	spinner := utils.NewSpinner(os.Stderr, spinnerText, time.Millisecond*100, true)

	conv.OnFrame(func(f event.Frame) {
		spinner.SetStatus(fmt.Sprintf("capturing frame %d/%d", f.Current, f.Total))
	})
	conv.OnProgress(func(p event.Progress) {
		spinner.SetStatus(fmt.Sprintf("%s %3.0f%%", p.Pass, p.Progress*100))
	})
	conv.OnLog(func(l event.Log) {
		logger.Trace(l.Message, "stream", l.Type)
	})

	// Capture CTRL-C signal and cancel the conversion.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	now := time.Now()
	spinner.Start()
	res, err := convert(ctx, conv, *source, *destination)
	spinner.StopMsg = fmt.Sprintf("%s %s\n",
		utils.DecorateText("⚡ SVGIF", utils.StatusMessage),
		utils.DecorateText("is converting the image... ✔", utils.DefaultMessage))
	if err != nil {
		spinner.StopMsg = ""
	}
	spinner.Stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if *poster != "" {
		if err := res.SavePoster(*poster); err != nil {
			log.Fatalf(
				utils.DecorateText("Unable to save the poster image: %v", utils.ErrorMessage),
				utils.DecorateText(err.Error(), utils.DefaultMessage),
			)
		}
	}

	if *destination != pipeName {
		fmt.Fprintf(os.Stderr, "\nThe animation has been saved as: %s %s(%dx%d, %s)\n",
			utils.DecorateText(filepath.Base(*destination), utils.SuccessMessage),
			utils.DefaultColor,
			res.Width, res.Height, utils.FormatSize(res.Size()),
		)
	}
	fmt.Fprintf(os.Stderr, "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
}

// applyFlags overrides the configuration with the flags set on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			cfg.Duration = *duration
		case "fps":
			cfg.FPS = *fps
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "strategy":
			cfg.Strategy = *strategy
		case "engine":
			cfg.Engine = *engine
		case "dither":
			cfg.Encoding.Dither = *dither
		case "colors":
			cfg.Encoding.MaxColors = *colors
		case "bg":
			cfg.Background = *background
		case "timeout":
			cfg.Timeout = *timeout
		case "realtime":
			cfg.Realtime = *realtime
		}
	})
}

// openDestination converts the destination path to a writable file.
// convert runs the conversion and writes the animation to out. The destination
// is only created once there is an animation to write.
func convert(ctx context.Context, conv *svgif.Converter, src, out string) (*svgif.Result, error) {
	res, err := conv.Convert(ctx, src)
	if err != nil {
		return nil, err
	}
	dst, err := openDestination(out)
	if err != nil {
		return nil, err
	}
	if c, ok := dst.(io.Closer); ok && dst != os.Stdout {
		defer c.Close()
	}
	if _, err := res.WriteTo(dst); err != nil {
		return nil, fmt.Errorf("unable to write the animation: %w", err)
	}
	return res, nil
}

func openDestination(out string) (io.Writer, error) {
	if out == pipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return nil, errors.New("`-` should be used with a pipe for stdout")
		}
		return os.Stdout, nil
	}
	dst, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to create the destination file: %v", err)
	}
	return dst, nil
}

// printError displays the reason of a failed conversion, with the engine
// output for transcode failures.
func printError(err error) {
	fmt.Fprintf(os.Stderr,
		utils.DecorateText("\nError converting the image: %s", utils.ErrorMessage),
		utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err.Error()), utils.DefaultMessage),
	)

	var terr *svgif.TranscodeError
	if errors.As(err, &terr) && len(terr.Logs) > 0 {
		logs := terr.Logs
		if len(logs) > 10 {
			logs = logs[len(logs)-10:]
		}
		fmt.Fprintf(os.Stderr, "\tEngine output:\n\t\t%s\n", strings.Join(logs, "\n\t\t"))
	}
	var tmerr *svgif.TimeoutError
	if errors.As(err, &tmerr) {
		fmt.Fprintf(os.Stderr, "\tConsider raising the -timeout value.\n")
	}
}
