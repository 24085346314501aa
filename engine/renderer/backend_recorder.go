package renderer

import (
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
)

type recorderBackend struct {
	*recorder.Device
}

func newRecorderBackend() *recorderBackend {
	return &recorderBackend{Device: recorder.New(true)}
}

func (b *recorderBackend) CreateTexture(name string, format metadata.Format, width, height uint32) (metadata.Texture, error) {
	return recorder.NewTexture(name, format, width, height), nil
}

func (b *recorderBackend) CreateBuffer(name string, size uint64) (metadata.Buffer, error) {
	return recorder.NewBuffer(name, size), nil
}

func (b *recorderBackend) CreateRootSignature(name string, pushConstantSize uint32) (metadata.RootSignature, error) {
	return recorder.NewRootSignature(name), nil
}

func (b *recorderBackend) CreatePipeline(name string, root metadata.RootSignature, target *metadata.RenderingDesc) (metadata.Pipeline, error) {
	return recorder.NewPipeline(name), nil
}

func (b *recorderBackend) CreateComputePipeline(name string, root metadata.RootSignature) (metadata.ComputePipeline, error) {
	return recorder.NewPipeline(name), nil
}

func (b *recorderBackend) Shutdown() error { return nil }
