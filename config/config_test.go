package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 640, c.Width)
	assert.Equal(t, 480, c.Height)
	assert.True(t, c.Debug)
	assert.Equal(t, "triangle.vert.wgsl", c.VertexShader)
	assert.Equal(t, "triangle.frag.wgsl", c.PixelShader)
	require.NoError(t, c.Validate())
}

func TestDecode(t *testing.T) {
	c := Default()
	err := c.Decode(strings.NewReader(`
width = 800
debug = false
log_level = "debug"
`))
	require.NoError(t, err)

	assert.Equal(t, 800, c.Width)
	assert.Equal(t, 480, c.Height)
	assert.False(t, c.Debug)

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestDecode_ClearColor(t *testing.T) {
	c := Default()
	assert.Equal(t, math32.Color4{R: 0, G: 0, B: 0, A: 1}, c.ClearColor)

	err := c.Decode(strings.NewReader("clear_color = { r = 0.0, g = 0.2, b = 0.4, a = 1.0 }\n"))
	require.NoError(t, err)
	assert.Equal(t, math32.Color4{R: 0, G: 0.2, B: 0.4, A: 1}, c.ClearColor)
	require.NoError(t, c.Validate())

	c.ClearColor.G = 2
	assert.Error(t, c.Validate())
}

func TestDecode_UnknownKey(t *testing.T) {
	c := Default()
	err := c.Decode(strings.NewReader("vsync = true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vsync")
}

func TestProcessCommandLineArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triangle.toml")
	require.NoError(t, os.WriteFile(path, []byte("title = \"from file\"\nwidth = 320\n"), 0o644))

	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name:  "no args",
			args:  nil,
			check: func(t *testing.T, c Config) { assert.Equal(t, Default(), c) },
		},
		{
			name: "size and debug",
			args: []string{"--size", "1024x768", "--no-debug"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, 1024, c.Width)
				assert.Equal(t, 768, c.Height)
				assert.False(t, c.Debug)
			},
		},
		{
			name: "flags override file",
			args: []string{"--size", "100x50", "--config", path, "--shaders", "assets"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "from file", c.Title)
				assert.Equal(t, 100, c.Width)
				assert.Equal(t, "assets", c.ShaderDir)
			},
		},
		{name: "bad size", args: []string{"--size", "wide"}, wantErr: true},
		{name: "zero size", args: []string{"--size", "0x480"}, wantErr: true},
		{name: "missing value", args: []string{"--shaders"}, wantErr: true},
		{name: "bad log level", args: []string{"--log-level", "loud"}, wantErr: true},
		{name: "unknown option", args: []string{"--fullscreen"}, wantErr: true},
		{name: "missing file", args: []string{"--config", filepath.Join(dir, "none.toml")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			var out bytes.Buffer
			err := c.ProcessCommandLineArgs(tt.args, &out)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestProcessCommandLineArgs_Help(t *testing.T) {
	c := Default()
	var out bytes.Buffer

	err := c.ProcessCommandLineArgs([]string{"--help"}, &out)
	assert.True(t, errors.Is(err, ErrHelp))
	assert.Contains(t, out.String(), "--no-debug")
}
