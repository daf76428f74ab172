package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/triangle/gfx"
)

// VertexStride is the byte size of one Vertex in the vertex buffer.
const VertexStride = 28

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec4
}

// Triangle is the geometry drawn every frame.
var Triangle = [3]Vertex{
	{Position: mgl32.Vec3{0, 0, 0}, Color: mgl32.Vec4{1, 1, 1, 1}},
	{Position: mgl32.Vec3{0, 1, 0}, Color: mgl32.Vec4{0, 1, 1, 1}},
	{Position: mgl32.Vec3{1, 0, 0}, Color: mgl32.Vec4{0, 1, 0, 1}},
}

// EncodeVertices packs vertices as tightly packed little-endian float32s.
func EncodeVertices(vertices []Vertex) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(vertices) * VertexStride)
	err := binary.Write(&buf, binary.LittleEndian, vertices)
	if err != nil {
		return nil, errors.Wrap(err, "encode vertices")
	}
	return buf.Bytes(), nil
}

func (c *Context) uploadTriangle() error {
	data, err := EncodeVertices(Triangle[:])
	if err != nil {
		return initError("EncodeVertices", err)
	}

	c.vertexBuffer, err = c.device.CreateCommittedResource(gfx.BufferDesc{
		Heap:         gfx.HeapTypeUpload,
		Size:         len(data),
		InitialState: gfx.ResourceStateGenericRead,
	})
	if err != nil {
		return initError("CreateCommittedResource", err)
	}

	// The CPU never reads this mapping.
	mapped, err := c.vertexBuffer.Map(&gfx.Range{})
	if err != nil {
		return initError("Map", err)
	}
	copy(mapped, data)
	c.vertexBuffer.Unmap(nil)

	c.vertexBufferView = gfx.VertexBufferView{
		BufferLocation: c.vertexBuffer.GPUVirtualAddress(),
		StrideInBytes:  VertexStride,
		SizeInBytes:    len(data),
	}
	return nil
}

// VertexData reads back the uploaded vertex bytes.
func (c *Context) VertexData() ([]byte, error) {
	if c.vertexBuffer == nil {
		return nil, ErrClosed
	}

	size := c.vertexBufferView.SizeInBytes
	mapped, err := c.vertexBuffer.Map(&gfx.Range{End: size})
	if err != nil {
		return nil, errors.Wrap(err, "map vertex buffer")
	}
	defer c.vertexBuffer.Unmap(&gfx.Range{})

	return append([]byte(nil), mapped[:size]...), nil
}
