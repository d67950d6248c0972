package renderer

import (
	"github.com/google/uuid"
)

// Resource is the closed set of payloads a store slot can hold. Every
// consumption site type-switches over the four concrete payloads; adding a
// kind means extending those switches, which the compiler localizes.
type Resource interface {
	isResource()
	// DebugID is a stable identity for log output, independent of slot reuse.
	DebugID() uuid.UUID
	setDebugID(id uuid.UUID)
}

// Buffer is a GPU buffer resource: vertex, index, uniform or staging
// storage, backed by one device allocation for its whole lifetime. Resizing
// is not supported; a differently-sized buffer is a new resource.
type Buffer struct {
	Size        uint64
	Usage       BufferUsage
	Allocation  Allocation
	HostVisible bool

	id uuid.UUID
}

func (b *Buffer) isResource()        {}
func (b *Buffer) DebugID() uuid.UUID { return b.id }
func (b *Buffer) setDebugID(id uuid.UUID) { b.id = id }

// Image is a GPU image resource. Layout is a small state machine advanced
// only by transitions recorded into command buffers; sampling an image in a
// non-shader-readable layout is illegal and CanTransition guards recording.
type Image struct {
	Extent      Extent
	Format      ImageFormat
	MipLevels   uint32
	SampleCount uint32
	Layout      ImageLayout
	Allocation  Allocation

	id uuid.UUID
}

func (i *Image) isResource()        {}
func (i *Image) DebugID() uuid.UUID { return i.id }
func (i *Image) setDebugID(id uuid.UUID) { i.id = id }

// CanTransition reports whether moving the image to the given layout is a
// legal step of the layout state machine.
func (i *Image) CanTransition(to ImageLayout) bool {
	if to == LayoutUndefined || to == i.Layout {
		return false
	}
	switch i.Layout {
	case LayoutUndefined:
		// Any first transition is allowed; contents are discarded.
		return true
	case LayoutTransferDst:
		return to == LayoutShaderReadOnly || to == LayoutColorAttachment || to == LayoutDepthAttachment
	case LayoutShaderReadOnly:
		return to == LayoutTransferDst
	case LayoutColorAttachment:
		return to == LayoutShaderReadOnly || to == LayoutPresent
	case LayoutDepthAttachment:
		return false
	case LayoutPresent:
		return to == LayoutColorAttachment
	}
	return false
}

// VertexAttribute describes one element of the vertex input layout.
type VertexAttribute struct {
	Location uint32
	Offset   uint32
	Format   ImageFormat
}

// VertexLayout describes how vertex buffer bytes map to shader inputs.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// BlendMode is the fixed-function color blend state of a pipeline.
type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
)

// PipelineConfig is everything needed to build a pipeline, kept on the
// payload so surface-dependent pipelines can be rebuilt in place after a
// resize without invalidating client handles.
type PipelineConfig struct {
	// Precompiled SPIR-V blobs; the core treats them as opaque.
	VertexShader   []byte
	FragmentShader []byte

	VertexLayout VertexLayout
	DepthTest    bool
	DepthWrite   bool
	SampleCount  uint32
	Blend        BlendMode
	// SurfaceDependent pipelines are recreated when the surface format or
	// extent changes.
	SurfaceDependent bool
}

// Pipeline is an immutable pipeline resource. A state change requires
// creating a new Pipeline and retiring the old one, except for the in-place
// rebuild performed by Resize.
type Pipeline struct {
	Config PipelineConfig
	// Native is the backend pipeline object.
	Native interface{}

	id uuid.UUID
}

func (p *Pipeline) isResource()        {}
func (p *Pipeline) DebugID() uuid.UUID { return p.id }
func (p *Pipeline) setDebugID(id uuid.UUID) { p.id = id }

// DescriptorSet is an opaque backend binding-set resource.
type DescriptorSet struct {
	Native interface{}

	id uuid.UUID
}

func (d *DescriptorSet) isResource()        {}
func (d *DescriptorSet) DebugID() uuid.UUID { return d.id }
func (d *DescriptorSet) setDebugID(id uuid.UUID) { d.id = id }
