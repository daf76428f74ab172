// Package shader loads the vertex and pixel shader sources and compiles them to SPIR-V.
//
// Sources are WGSL; each file exposes one entry function named main. Both stages are
// compiled concurrently at startup and a failure names the stage and file it came from.
package shader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/triangle/gfx"
)

// EntryPoint is the entry function every shader file must define.
const EntryPoint = "main"

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

type Stage int

const (
	StageVertex Stage = iota
	StagePixel
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Profile is the stage/model label the stage is compiled for.
func (s Stage) Profile() string {
	switch s {
	case StageVertex:
		return "vs_5_0"
	case StagePixel:
		return "ps_5_0"
	}
	return ""
}

// CompileError reports a shader that could not be read or compiled.
type CompileError struct {
	Stage Stage
	File  string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s shader %s (%s): %v", e.Stage, e.File, e.Stage.Profile(), e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Program is the compiled vertex and pixel stage pair.
type Program struct {
	Vertex gfx.ShaderBytecode
	Pixel  gfx.ShaderBytecode
}

// Compiler compiles the two shader files found in FS.
type Compiler struct {
	FS     fs.FS
	Vertex string
	Pixel  string
}

// NewCompiler reads shaders from dir on disk.
func NewCompiler(dir, vertex, pixel string) *Compiler {
	return &Compiler{
		FS:     os.DirFS(dir),
		Vertex: vertex,
		Pixel:  pixel,
	}
}

func (c *Compiler) file(stage Stage) string {
	if stage == StageVertex {
		return c.Vertex
	}
	return c.Pixel
}

// Compile builds both stages. When both fail the vertex stage is reported.
func (c *Compiler) Compile() (Program, error) {
	stages := []Stage{StageVertex, StagePixel}
	codes := make([][]uint32, len(stages))
	errs := make([]error, len(stages))

	var g errgroup.Group
	for i, stage := range stages {
		g.Go(func() error {
			codes[i], errs[i] = c.compileStage(stage)
			return errs[i]
		})
	}

	if g.Wait() != nil {
		for _, err := range errs {
			if err != nil {
				return Program{}, err
			}
		}
	}

	return Program{
		Vertex: gfx.ShaderBytecode{Code: codes[0], EntryPoint: EntryPoint},
		Pixel:  gfx.ShaderBytecode{Code: codes[1], EntryPoint: EntryPoint},
	}, nil
}

func (c *Compiler) compileStage(stage Stage) ([]uint32, error) {
	file := c.file(stage)
	fail := func(err error) error {
		return &CompileError{Stage: stage, File: file, Err: err}
	}

	source, err := fs.ReadFile(c.FS, path.Clean(file))
	if err != nil {
		return nil, fail(err)
	}
	if strings.TrimSpace(string(source)) == "" {
		return nil, fail(errors.New("empty shader source"))
	}

	spirv, err := naga.Compile(string(source))
	if err != nil {
		return nil, fail(err)
	}

	code, err := BytesToBytecode(spirv)
	if err != nil {
		return nil, fail(err)
	}
	return code, nil
}

// BytesToBytecode converts little-endian SPIR-V bytes to words and checks the header.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, errors.Errorf("spir-v length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != SPIRVMagic {
		return nil, errors.Errorf("invalid spir-v magic 0x%08X", byteCode[0])
	}
	return byteCode, nil
}
