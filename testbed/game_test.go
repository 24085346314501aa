package testbed

import (
	"context"
	"testing"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTestbed(t *testing.T, async bool) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Graph.AsyncCompute = async

	e, err := engine.New(NewTestGame(cfg, "").Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { assert.NoError(t, e.Shutdown()) })
	require.NoError(t, e.Run(context.Background()))
	return e
}

func TestClusteringRunsOnComputeQueue(t *testing.T) {
	e := runTestbed(t, true)

	queues := map[string]metadata.QueueFamily{}
	for _, p := range e.Renderer().Graph().Passes() {
		queues[p.Name()] = p.Queue()
	}
	for _, name := range []string{"build-clusters", "filter-clusters", "tighten-bounds", "cull-lights"} {
		assert.Equal(t, metadata.QueueFamilyCompute, queues[name], name)
	}
	for _, name := range []string{"depth-prepass", "shadows", "forward-shading", "tonemap"} {
		assert.Equal(t, metadata.QueueFamilyGraphics, queues[name], name)
	}

	last := e.Metrics().Last
	assert.Positive(t, last.Waits)
	assert.Positive(t, last.Releases)
	assert.Equal(t, uint64(3), e.Metrics().TotalFrames)
}

func TestClusteringFallsBackToGraphicsQueue(t *testing.T) {
	e := runTestbed(t, false)

	for _, p := range e.Renderer().Graph().Passes() {
		assert.Equal(t, metadata.QueueFamilyGraphics, p.Queue(), p.Name())
	}
	assert.Zero(t, e.Metrics().Last.Waits)
	assert.Zero(t, e.Metrics().Last.Releases)
}
