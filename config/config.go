// Package config holds the settings of the triangle host.
//
// Values are resolved in three layers: Default, then an optional TOML file, then the
// command line.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
	"github.com/pelletier/go-toml/v2"
)

// ErrHelp is returned by ProcessCommandLineArgs after the option list was printed.
var ErrHelp = errors.New("help requested")

type Config struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	// Debug enables the Vulkan validation layer.
	Debug bool `toml:"debug"`

	ShaderDir    string `toml:"shader_dir"`
	VertexShader string `toml:"vertex_shader"`
	PixelShader  string `toml:"pixel_shader"`

	// ClearColor fills the back buffer behind the triangle, written as an inline table
	// such as { r = 0.0, g = 0.2, b = 0.4, a = 1.0 }.
	ClearColor math32.Color4 `toml:"clear_color"`

	// StatsInterval is the number of frames between two statistics records. 0 disables them.
	StatsInterval int    `toml:"stats_interval"`
	LogLevel      string `toml:"log_level"`
}

func Default() Config {
	return Config{
		Title:         "Hello Triangle",
		Width:         640,
		Height:        480,
		Debug:         true,
		ShaderDir:     "shaders",
		VertexShader:  "triangle.vert.wgsl",
		PixelShader:   "triangle.frag.wgsl",
		ClearColor:    math32.Color4{R: 0, G: 0, B: 0, A: 1},
		StatsInterval: 120,
		LogLevel:      "info",
	}
}

// Decode overlays the TOML document in r on c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	err := toml.NewDecoder(r).DisallowUnknownFields().Decode(c)
	if err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.Newf("unknown config keys:\n%s", strict.String())
		}
		return errors.Wrap(err, "decode config")
	}
	return nil
}

// LoadFile overlays the TOML file at path on c.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	return errors.Wrapf(c.Decode(f), "load %s", path)
}

// ProcessCommandLineArgs applies the host options in args, which excludes the program
// name. A --config file is loaded before the other options regardless of its position.
func (c *Config) ProcessCommandLineArgs(args []string, out io.Writer) error {
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			if i+1 >= len(args) {
				return errors.New("--config needs a file path")
			}
			err := c.LoadFile(args[i+1])
			if err != nil {
				return err
			}
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", errors.Newf("%s needs a value", arg)
			}
			i++
			return args[i], nil
		}

		switch arg {
		case "--config":
			i++
		case "--no-debug":
			c.Debug = false
		case "--size":
			v, err := value()
			if err != nil {
				return err
			}
			c.Width, c.Height, err = parseSize(v)
			if err != nil {
				return err
			}
		case "--shaders":
			v, err := value()
			if err != nil {
				return err
			}
			c.ShaderDir = v
		case "--log-level":
			v, err := value()
			if err != nil {
				return err
			}
			c.LogLevel = v
		case "--help", "-h":
			printHelp(out)
			return ErrHelp
		default:
			fmt.Fprintf(out, "\nUnrecognized option: %s\n", arg)
			fmt.Fprintln(out, "\nUse --help or -h for option list.")
			return errors.Newf("unrecognized option %q", arg)
		}
	}

	return c.Validate()
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "\nOptions")
	fmt.Fprintln(out, "\t--config <file>")
	fmt.Fprintln(out, "\t\tLoad settings from a TOML file")
	fmt.Fprintln(out, "\t--no-debug")
	fmt.Fprintln(out, "\t\tDo not enable the validation layer")
	fmt.Fprintln(out, "\t--size <width>x<height>")
	fmt.Fprintln(out, "\t\tWindow client size")
	fmt.Fprintln(out, "\t--shaders <dir>")
	fmt.Fprintln(out, "\t\tDirectory holding the shader sources")
	fmt.Fprintln(out, "\t--log-level <debug|info|warn|error>")
}

func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, errors.Newf("size %q is not <width>x<height>", s)
	}

	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "size %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "size %q", s)
	}
	return width, height, nil
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Width, c.Height)
	}
	if c.VertexShader == "" || c.PixelShader == "" {
		return errors.New("vertex and pixel shader files must be set")
	}
	if c.StatsInterval < 0 {
		return errors.Newf("stats interval %d is negative", c.StatsInterval)
	}
	for _, v := range []float32{c.ClearColor.R, c.ClearColor.G, c.ClearColor.B, c.ClearColor.A} {
		if v < 0 || v > 1 {
			return errors.Newf("clear color %v has a component outside [0,1]", c.ClearColor)
		}
	}
	_, err := c.Level()
	return err
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return 0, errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	return level, nil
}
