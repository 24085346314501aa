package renderer

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// RendererBackend is a device the render graph runs on plus the factory for
// the objects passes bind.
type RendererBackend interface {
	metadata.Device
	CreateTexture(name string, format metadata.Format, width, height uint32) (metadata.Texture, error)
	CreateBuffer(name string, size uint64) (metadata.Buffer, error)
	CreateRootSignature(name string, pushConstantSize uint32) (metadata.RootSignature, error)
	// CreatePipeline builds a graphics pipeline compatible with the
	// attachments of target.
	CreatePipeline(name string, root metadata.RootSignature, target *metadata.RenderingDesc) (metadata.Pipeline, error)
	CreateComputePipeline(name string, root metadata.RootSignature) (metadata.ComputePipeline, error)
	Shutdown() error
}

type RendererType uint8

const (
	Recorder RendererType = iota
	Vulkan
)

func (t RendererType) String() string {
	switch t {
	case Recorder:
		return config.BackendRecorder
	case Vulkan:
		return config.BackendVulkan
	}
	return "unknown"
}

func ParseRendererType(name string) (RendererType, error) {
	switch name {
	case config.BackendRecorder:
		return Recorder, nil
	case config.BackendVulkan:
		return Vulkan, nil
	}
	return 0, fmt.Errorf("unknown renderer backend %q", name)
}

// NewBackend opens the device named by the run configuration. Both backends
// expose a compute queue when the hardware has one, so async compute can be
// toggled at runtime.
func NewBackend(cfg *config.Config) (RendererBackend, error) {
	t, err := ParseRendererType(cfg.Run.Backend)
	if err != nil {
		return nil, err
	}
	switch t {
	case Vulkan:
		return newVulkanBackend(cfg)
	default:
		return newRecorderBackend(), nil
	}
}
