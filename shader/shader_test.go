package shader

import (
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_ShippedShaders(t *testing.T) {
	c := NewCompiler("../triangle/shaders", "triangle.vert.wgsl", "triangle.frag.wgsl")

	program, err := c.Compile()
	require.NoError(t, err)

	for _, code := range [][]uint32{program.Vertex.Code, program.Pixel.Code} {
		require.NotEmpty(t, code)
		assert.Equal(t, uint32(SPIRVMagic), code[0])
	}
	assert.Equal(t, EntryPoint, program.Vertex.EntryPoint)
	assert.Equal(t, EntryPoint, program.Pixel.EntryPoint)
}

func TestCompile_Failures(t *testing.T) {
	const vertex = `@vertex
fn main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0);
}
`

	tests := []struct {
		name      string
		files     fstest.MapFS
		wantStage Stage
		wantFile  string
	}{
		{
			name: "malformed pixel shader",
			files: fstest.MapFS{
				"v.wgsl": {Data: []byte(vertex)},
				"p.wgsl": {Data: []byte("@fragment fn main( -> {")},
			},
			wantStage: StagePixel,
			wantFile:  "p.wgsl",
		},
		{
			name: "missing vertex shader",
			files: fstest.MapFS{
				"p.wgsl": {Data: []byte("@fragment fn main( -> {")},
			},
			wantStage: StageVertex,
			wantFile:  "v.wgsl",
		},
		{
			name: "empty pixel shader",
			files: fstest.MapFS{
				"v.wgsl": {Data: []byte(vertex)},
				"p.wgsl": {Data: []byte("  \n")},
			},
			wantStage: StagePixel,
			wantFile:  "p.wgsl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Compiler{FS: tt.files, Vertex: "v.wgsl", Pixel: "p.wgsl"}

			_, err := c.Compile()
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.wantStage, ce.Stage)
			assert.Equal(t, tt.wantFile, ce.File)
			assert.Contains(t, err.Error(), tt.wantStage.Profile())
		})
	}
}

func TestBytesToBytecode(t *testing.T) {
	code, err := BytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRVMagic, 0x00010000}, code)

	_, err = BytesToBytecode([]byte{0x03, 0x02, 0x23})
	assert.Error(t, err)

	_, err = BytesToBytecode(nil)
	assert.Error(t, err)

	_, err = BytesToBytecode([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestStage(t *testing.T) {
	assert.Equal(t, "vertex", StageVertex.String())
	assert.Equal(t, "vs_5_0", StageVertex.Profile())
	assert.Equal(t, "pixel", StagePixel.String())
	assert.Equal(t, "ps_5_0", StagePixel.Profile())
}
