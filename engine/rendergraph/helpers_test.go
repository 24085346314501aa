package rendergraph

import (
	"testing"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/recorder"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, async bool) (*RenderGraph, *recorder.Device) {
	t.Helper()
	dev := recorder.New(async)
	g, err := New(dev, &Config{Name: "test", AsyncCompute: async, FramesInFlight: 2})
	require.NoError(t, err)
	return g, dev
}

func newTexture(t *testing.T, g *RenderGraph, name string, desc TextureDesc) TextureHandle {
	t.Helper()
	h, err := g.CreateTexture(recorder.NewTexture(name, metadata.FormatRGBA8Unorm, 640, 480), desc)
	require.NoError(t, err)
	return h
}

func newDepth(t *testing.T, g *RenderGraph, name string) TextureHandle {
	t.Helper()
	h, err := g.CreateTexture(recorder.NewTexture(name, metadata.FormatD32Float, 640, 480), TextureDesc{})
	require.NoError(t, err)
	return h
}

func newBuffer(t *testing.T, g *RenderGraph, name string, desc BufferDesc) BufferHandle {
	t.Helper()
	h, err := g.CreateBuffer(recorder.NewBuffer(name, 1024), desc)
	require.NoError(t, err)
	return h
}

func colorOut(h TextureHandle) TextureAttachment {
	return TextureAttachment{Texture: h.Initial(), Usage: AttachmentUsageGraphics, Access: AttachmentAccessWrite}
}

func colorIn(h TextureHandle) TextureAttachment {
	return TextureAttachment{Texture: h.Initial(), Usage: AttachmentUsageGraphics, Access: AttachmentAccessRead}
}

func bufOut(h BufferHandle, usage AttachmentUsage) BufferAttachment {
	return BufferAttachment{Buffer: h.Initial(), Usage: usage, Access: AttachmentAccessWrite}
}

func bufIn(h BufferHandle, usage AttachmentUsage) BufferAttachment {
	return BufferAttachment{Buffer: h.Initial(), Usage: usage, Access: AttachmentAccessRead}
}

func runFrame(t *testing.T, g *RenderGraph) {
	t.Helper()
	require.NoError(t, g.Execute())
	require.NoError(t, g.Submit())
}

// submitted returns the submit events of one queue in order.
func submitted(dev *recorder.Device, q metadata.QueueFamily) []recorder.Event {
	var out []recorder.Event
	for _, e := range dev.Events() {
		if e.Kind == recorder.EventSubmit && e.Queue == q {
			out = append(out, e)
		}
	}
	return out
}

func barriers(cmds []recorder.Command) []recorder.Command {
	var out []recorder.Command
	for _, c := range cmds {
		if c.Op == recorder.OpBarrier {
			out = append(out, c)
		}
	}
	return out
}

func countKind(events []recorder.Event, kind recorder.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// levelPosition locates a pass in the submission order.
type levelPosition struct {
	order int
	index int
}

func positions(g *RenderGraph) map[Pass]levelPosition {
	out := make(map[Pass]levelPosition)
	for oi, ref := range g.SubmissionOrder() {
		s := g.Schedule(ref.Queue)
		lvl := s.Levels[ref.Level]
		for i := lvl.Start; i < lvl.End; i++ {
			out[s.Passes[i].Pass] = levelPosition{order: oi, index: i}
		}
	}
	return out
}

// requireTopological checks that every producer of an instance a pass reads
// is placed before that pass.
func requireTopological(t *testing.T, g *RenderGraph) {
	t.Helper()
	pos := positions(g)
	producers := make(map[instanceKey][]Pass)
	for _, p := range g.Passes() {
		for _, att := range textureWrites(p) {
			producers[textureKey(att.Texture)] = append(producers[textureKey(att.Texture)], p)
		}
		for _, att := range bufferWrites(p) {
			producers[bufferKey(att.Buffer)] = append(producers[bufferKey(att.Buffer)], p)
		}
	}
	for _, p := range g.Passes() {
		var keys []instanceKey
		for _, att := range textureReads(p) {
			keys = append(keys, textureKey(att.Texture))
		}
		for _, att := range bufferReads(p) {
			keys = append(keys, bufferKey(att.Buffer))
		}
		for _, k := range keys {
			for _, pr := range producers[k] {
				if pr == p {
					continue
				}
				a, b := pos[pr], pos[p]
				before := a.order < b.order || (a.order == b.order && a.index < b.index)
				require.Truef(t, before, "%s must come after its producer %s", p.Name(), pr.Name())
			}
		}
	}
}
