package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/esimov/svgif/sampler"
	"github.com/esimov/svgif/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestConfig_Profiles(t *testing.T) {
	assert.Equal(t, []string{"default", "hd60", "preview", "slowmo", "smooth"}, Profiles())

	def, err := Profile("")
	require.NoError(t, err)
	assert.Equal(t, 5.0, def.Duration)
	assert.Equal(t, 10, def.FPS)
	assert.Equal(t, 1920, def.Width)
	assert.Equal(t, 1080, def.Height)
	assert.Equal(t, "still", def.Strategy)
	assert.NoError(t, def.Validate())

	// Encoding parameters of the default profile are the transcode defaults.
	assert.Equal(t, transcode.DefaultParams(), def.Params())

	preview, err := Profile("preview")
	require.NoError(t, err)
	assert.Equal(t, 15, preview.FPS)
	assert.Equal(t, 640, preview.Width)
	assert.Equal(t, 360, preview.Height)
	assert.Equal(t, 128, preview.Encoding.MaxColors)
	// Inherited from the default profile.
	assert.Equal(t, 5.0, preview.Duration)
	assert.Equal(t, "bayer", preview.Encoding.Dither)

	for _, name := range Profiles() {
		cfg, err := Profile(name)
		require.NoError(t, err, name)
		assert.NoError(t, cfg.Validate(), name)
		p := cfg.Params()
		assert.NoError(t, p.Validate(), name)
		assert.True(t, cfg.FPS >= 10 && cfg.FPS <= 60, name)
	}

	_, err = Profile("cinema")
	assert.Error(t, err)
}

func TestConfig_Load(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "svgif.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
duration: 2.5
timeout: 30s
encoding:
  dither: none
  loop: -1
`), 0o600))

	cfg, err := Load(Options{
		Profile:  "smooth",
		File:     file,
		EnvFiles: []string{},
		Getenv: env(map[string]string{
			"SVGIF_WIDTH":       "800",
			"SVGIF_HEIGHT":      "600",
			"SVGIF_BAYER_SCALE": "0",
			"SVGIF_REALTIME":    "true",
		}),
	})
	require.NoError(t, err)

	// profile, then file, then environment
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, 2.5, cfg.Duration)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "none", cfg.Encoding.Dither)
	assert.Equal(t, -1, cfg.Encoding.Loop)
	assert.Equal(t, "diff", cfg.Encoding.StatsMode)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
	assert.Equal(t, 0, cfg.Encoding.BayerScale)
	assert.True(t, cfg.Realtime)

	req := cfg.Request()
	assert.Equal(t, 75, req.TotalFrames())
}

func TestConfig_ProfileFromEnv(t *testing.T) {
	cfg, err := Load(Options{
		EnvFiles: []string{},
		Getenv:   env(map[string]string{"SVGIF_PROFILE": "hd60"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, "floyd_steinberg", cfg.Encoding.Dither)
}

func TestConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("SVGIF_DOTENV_PROBE=1\n"), 0o600))

	_, err := Load(Options{EnvFiles: []string{dotenv, filepath.Join(dir, "missing.env")}, Getenv: env(nil)})
	require.NoError(t, err)
	assert.Equal(t, "1", os.Getenv("SVGIF_DOTENV_PROBE"))
	require.NoError(t, os.Unsetenv("SVGIF_DOTENV_PROBE"))
}

func TestConfig_Errors(t *testing.T) {
	_, err := Load(Options{
		EnvFiles: []string{},
		Getenv:   env(map[string]string{"SVGIF_FPS": "ten", "SVGIF_TIMEOUT": "soon"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SVGIF_FPS")
	assert.Contains(t, err.Error(), "SVGIF_TIMEOUT")

	_, err = Load(Options{File: filepath.Join(t.TempDir(), "missing.yaml"), EnvFiles: []string{}, Getenv: env(nil)})
	assert.Error(t, err)

	cfg, err := Profile(DefaultProfile)
	require.NoError(t, err)
	cfg.Strategy = "burst"
	assert.Error(t, cfg.Validate())

	cfg.Strategy = "live"
	cfg.Engine = "gpu"
	assert.Error(t, cfg.Validate())
}

func TestConfig_EmptyNamesUseDefaults(t *testing.T) {
	cfg := &Config{Duration: 1, FPS: 10, Width: 64, Height: 64}
	assert.NoError(t, cfg.Validate())

	strategy, err := sampler.New(cfg.Strategy, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &sampler.StillFrames{}, strategy)
}
