package gfx

import (
	"math"
	"time"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8UNorm
	FormatB8G8R8A8UNorm
	FormatR32G32B32Float
	FormatR32G32B32A32Float
)

var formatNames = map[Format]string{
	FormatUnknown:           "UNKNOWN",
	FormatR8G8B8A8UNorm:     "R8G8B8A8_UNORM",
	FormatB8G8R8A8UNorm:     "B8G8R8A8_UNORM",
	FormatR32G32B32Float:    "R32G32B32_FLOAT",
	FormatR32G32B32A32Float: "R32G32B32A32_FLOAT",
}

func (f Format) String() string {
	name, ok := formatNames[f]
	if !ok {
		return "Format(?)"
	}
	return name
}

// Size is the byte width of one element of the format.
func (f Format) Size() int {
	switch f {
	case FormatR8G8B8A8UNorm, FormatB8G8R8A8UNorm:
		return 4
	case FormatR32G32B32Float:
		return 12
	case FormatR32G32B32A32Float:
		return 16
	}
	return 0
}

type CommandListType int

const (
	CommandListDirect CommandListType = iota
)

func (t CommandListType) String() string {
	if t == CommandListDirect {
		return "DIRECT"
	}
	return "CommandListType(?)"
}

type ResourceState int

const (
	ResourceStateCommon ResourceState = iota
	ResourceStatePresent
	ResourceStateRenderTarget
	ResourceStateGenericRead
)

var resourceStateNames = map[ResourceState]string{
	ResourceStateCommon:       "COMMON",
	ResourceStatePresent:      "PRESENT",
	ResourceStateRenderTarget: "RENDER_TARGET",
	ResourceStateGenericRead:  "GENERIC_READ",
}

func (s ResourceState) String() string {
	name, ok := resourceStateNames[s]
	if !ok {
		return "ResourceState(?)"
	}
	return name
}

type SwapEffect int

const (
	SwapEffectFlipDiscard SwapEffect = iota
)

type DescriptorHeapType int

const (
	DescriptorHeapRTV DescriptorHeapType = iota
)

type HeapType int

const (
	HeapTypeUpload HeapType = iota
)

type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
)

type PrimitiveTopologyType int

const (
	PrimitiveTopologyTypeTriangle PrimitiveTopologyType = iota
)

type FillMode int

const (
	FillModeSolid FillMode = iota
	FillModeWireframe
)

type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type Blend int

const (
	BlendZero Blend = iota
	BlendOne
)

type BlendOp int

const (
	BlendOpAdd BlendOp = iota
)

type ColorWriteMask uint8

const (
	ColorWriteRed ColorWriteMask = 1 << iota
	ColorWriteGreen
	ColorWriteBlue
	ColorWriteAlpha

	ColorWriteAll = ColorWriteRed | ColorWriteGreen | ColorWriteBlue | ColorWriteAlpha
)

type RootSignatureFlags uint32

const (
	RootSignatureFlagNone                       RootSignatureFlags = 0
	RootSignatureAllowInputAssemblerInputLayout RootSignatureFlags = 1 << 0
)

// DefaultSampleMask enables every sample.
const DefaultSampleMask = math.MaxUint32

// Infinite blocks a fence event wait until it is signalled.
const Infinite time.Duration = -1

type Viewport struct {
	TopLeftX, TopLeftY float32
	Width, Height      float32
	MinDepth, MaxDepth float32
}

type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Range is a byte range inside a mapped resource. An empty range declares that the CPU
// will not read the mapping.
type Range struct {
	Begin, End int
}

func (r Range) Empty() bool { return r.End <= r.Begin }

type SwapChainDesc struct {
	Width, Height int
	Format        Format
	BufferCount   int
	SwapEffect    SwapEffect
	SampleCount   int
}

type DescriptorHeapDesc struct {
	Type           DescriptorHeapType
	NumDescriptors int
	ShaderVisible  bool
}

// CPUDescriptorHandle addresses one slot of a descriptor heap.
type CPUDescriptorHandle struct {
	Heap DescriptorHeap
	Slot int
}

type BufferDesc struct {
	Heap         HeapType
	Size         int
	InitialState ResourceState
}

type VertexBufferView struct {
	BufferLocation uint64
	StrideInBytes  int
	SizeInBytes    int
}

type InputElementDesc struct {
	SemanticName      string
	SemanticIndex     int
	Format            Format
	InputSlot         int
	AlignedByteOffset int
}

type ShaderBytecode struct {
	Code       []uint32
	EntryPoint string
}

type RasterizerDesc struct {
	FillMode              FillMode
	CullMode              CullMode
	FrontCounterClockwise bool
	DepthClipEnable       bool
	MultisampleEnable     bool
}

type RenderTargetBlendDesc struct {
	BlendEnable           bool
	SrcBlend, DestBlend   Blend
	BlendOp               BlendOp
	SrcBlendAlpha         Blend
	DestBlendAlpha        Blend
	BlendOpAlpha          BlendOp
	RenderTargetWriteMask ColorWriteMask
}

type BlendDesc struct {
	AlphaToCoverageEnable bool
	RenderTarget          RenderTargetBlendDesc
}

type DepthStencilDesc struct {
	DepthEnable   bool
	StencilEnable bool
}

type RootSignatureDesc struct {
	NumParameters     int
	NumStaticSamplers int
	Flags             RootSignatureFlags
}

type GraphicsPipelineDesc struct {
	RootSignature         RootSignature
	VS, PS                ShaderBytecode
	InputLayout           []InputElementDesc
	Rasterizer            RasterizerDesc
	Blend                 BlendDesc
	DepthStencil          DepthStencilDesc
	SampleMask            uint32
	PrimitiveTopologyType PrimitiveTopologyType
	RTVFormats            []Format
	SampleCount           int
}

// TransitionBarrier declares that Resource moves from StateBefore to StateAfter.
type TransitionBarrier struct {
	Resource    Resource
	StateBefore ResourceState
	StateAfter  ResourceState
}

// Transition builds a TransitionBarrier.
func Transition(res Resource, before, after ResourceState) TransitionBarrier {
	return TransitionBarrier{Resource: res, StateBefore: before, StateAfter: after}
}
