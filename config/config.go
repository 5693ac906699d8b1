// Package config resolves the conversion settings. The built-in profiles are
// overlaid with an optional user YAML file, then with SVGIF_* environment
// variables, which can also be provided through .env files.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/esimov/svgif/sampler"
	"github.com/esimov/svgif/surface"
	"github.com/esimov/svgif/transcode"
	"github.com/esimov/svgif/utils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// DefaultProfile is the profile every other one inherits from.
const DefaultProfile = "default"

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "SVGIF_"

// DefaultEnvFiles are the dotenv files loaded when Options.EnvFiles is nil.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config holds the settings of a conversion.
type Config struct {
	Duration   float64       `yaml:"duration"` // seconds
	FPS        int           `yaml:"fps"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	Strategy   string        `yaml:"strategy"`
	Engine     string        `yaml:"engine"`
	Fit        string        `yaml:"fit"`
	Background string        `yaml:"background"`
	Realtime   bool          `yaml:"realtime"`
	Timeout    time.Duration `yaml:"timeout"`
	Encoding   Encoding      `yaml:"encoding"`
}

// Encoding holds the transcode tuning knobs. The output frame rate and size
// come from the capture settings.
type Encoding struct {
	ScaleFlags    string  `yaml:"scale_flags"`
	MaxColors     int     `yaml:"max_colors"`
	StatsMode     string  `yaml:"stats_mode"`
	Dither        string  `yaml:"dither"`
	BayerScale    int     `yaml:"bayer_scale"`
	PTSMultiplier float64 `yaml:"pts_multiplier"`
	Unsharp       string  `yaml:"unsharp"`
	Loop          int     `yaml:"loop"`
}

// Options controls the sources Load reads.
type Options struct {
	Profile  string              // profile name, SVGIF_PROFILE or the default one when empty
	File     string              // optional user YAML file
	EnvFiles []string            // dotenv files, DefaultEnvFiles when nil
	Getenv   func(string) string // environment lookup, os.Getenv when nil
}

func profiles() (map[string]yaml.Node, error) {
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(profilesYAML, &nodes); err != nil {
		return nil, fmt.Errorf("invalid built-in profiles: %w", err)
	}
	return nodes, nil
}

// Profiles returns the names of the built-in profiles.
func Profiles() []string {
	nodes, err := profiles()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns a built-in profile merged over the default one.
func Profile(name string) (*Config, error) {
	nodes, err := profiles()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultProfile
	}
	def, ok := nodes[DefaultProfile]
	if !ok {
		return nil, errors.New("missing default profile")
	}
	cfg := &Config{}
	if err := def.Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid default profile: %w", err)
	}
	if name == DefaultProfile {
		return cfg, nil
	}
	node, ok := nodes[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q, available profiles: %s", name, strings.Join(Profiles(), ", "))
	}
	if err := node.Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", name, err)
	}
	return cfg, nil
}

// Load resolves the configuration: profile, then user file, then environment.
func Load(opts Options) (*Config, error) {
	files := opts.EnvFiles
	if files == nil {
		files = DefaultEnvFiles
	}
	// Missing dotenv files are not an error.
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	name := opts.Profile
	if name == "" {
		name = getenv(EnvPrefix + "PROFILE")
	}
	cfg, err := Profile(name)
	if err != nil {
		return nil, err
	}

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", opts.File, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides the settings with the SVGIF_* variables which are set.
func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	lookup := func(key string, apply func(string) error) {
		v := strings.TrimSpace(getenv(EnvPrefix + key))
		if v == "" {
			return
		}
		if err := apply(v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		}
	}
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.Atoi(v); return err }
	}
	float := func(dst *float64) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.ParseFloat(v, 64); return err }
	}

	lookup("DURATION", float(&c.Duration))
	lookup("FPS", num(&c.FPS))
	lookup("WIDTH", num(&c.Width))
	lookup("HEIGHT", num(&c.Height))
	lookup("STRATEGY", str(&c.Strategy))
	lookup("ENGINE", str(&c.Engine))
	lookup("FIT", str(&c.Fit))
	lookup("BACKGROUND", str(&c.Background))
	lookup("REALTIME", func(v string) (err error) { c.Realtime, err = strconv.ParseBool(v); return err })
	lookup("TIMEOUT", func(v string) (err error) { c.Timeout, err = time.ParseDuration(v); return err })
	lookup("SCALE_FLAGS", str(&c.Encoding.ScaleFlags))
	lookup("MAX_COLORS", num(&c.Encoding.MaxColors))
	lookup("STATS_MODE", str(&c.Encoding.StatsMode))
	lookup("DITHER", str(&c.Encoding.Dither))
	lookup("BAYER_SCALE", num(&c.Encoding.BayerScale))
	lookup("PTS_MULTIPLIER", float(&c.Encoding.PTSMultiplier))
	lookup("UNSHARP", str(&c.Encoding.Unsharp))
	lookup("LOOP", num(&c.Encoding.Loop))

	return errors.Join(errs...)
}

// Request returns the capture request described by the configuration.
// A -1 dimension is left for the caller to derive from the image aspect ratio.
func (c *Config) Request() sampler.Request {
	return sampler.Request{
		DurationSeconds: c.Duration,
		FPS:             c.FPS,
		Width:           c.Width,
		Height:          c.Height,
	}
}

// Params returns the transcode parameters described by the configuration.
func (c *Config) Params() transcode.Params {
	return transcode.Params{
		FPS:           c.FPS,
		Width:         c.Width,
		Height:        c.Height,
		ScaleFlags:    c.Encoding.ScaleFlags,
		MaxColors:     c.Encoding.MaxColors,
		StatsMode:     c.Encoding.StatsMode,
		Dither:        c.Encoding.Dither,
		BayerScale:    c.Encoding.BayerScale,
		PTSMultiplier: c.Encoding.PTSMultiplier,
		Unsharp:       c.Encoding.Unsharp,
		Loop:          c.Encoding.Loop,
	}
}

// Validate checks the values which are not covered by the request and
// parameter validation of the conversion.
func (c *Config) Validate() error {
	if !utils.Contains([]string{"", sampler.Still, sampler.Live}, c.Strategy) {
		return fmt.Errorf("unknown capture strategy %q", c.Strategy)
	}
	if !utils.Contains([]string{"", transcode.EngineAuto, transcode.EngineFFmpeg, transcode.EngineNative}, c.Engine) {
		return fmt.Errorf("unknown transcode engine %q", c.Engine)
	}
	if !utils.Contains([]string{"", string(surface.FitContain), string(surface.FitStretch), string(surface.FitNone)}, c.Fit) {
		return fmt.Errorf("unknown fit mode %q", c.Fit)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", c.Timeout)
	}
	return nil
}
