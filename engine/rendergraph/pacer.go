package rendergraph

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/framegraph/engine/containers"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// frameTarget is the fence value each queue reaches when a frame is done.
type frameTarget struct {
	frame  uint64
	values [metadata.QueueFamilyCount]uint64
	used   [metadata.QueueFamilyCount]bool
}

func (t frameTarget) wait(fences [metadata.QueueFamilyCount]metadata.Fence, timeout time.Duration) error {
	for q := metadata.QueueFamilyGraphics; q < metadata.QueueFamilyCount; q++ {
		if !t.used[q] {
			continue
		}
		if err := fences[q].Wait(t.values[q], timeout); err != nil {
			return fmt.Errorf("render graph: frame %d waiting %s fence for %d: %w", t.frame, q, t.values[q], err)
		}
	}
	return nil
}

// framePacer bounds the number of frames the GPU may still be working on.
type framePacer struct {
	inFlight *containers.RingQueue[frameTarget]
	timeout  time.Duration
}

func newFramePacer(framesInFlight int, timeout time.Duration) *framePacer {
	return &framePacer{
		inFlight: containers.NewRingQueue[frameTarget](framesInFlight),
		timeout:  timeout,
	}
}

// throttle blocks until a frame slot is free.
func (p *framePacer) throttle(fences [metadata.QueueFamilyCount]metadata.Fence) error {
	for p.inFlight.IsFull() {
		t, err := p.inFlight.Dequeue()
		if err != nil {
			return err
		}
		if err := t.wait(fences, p.timeout); err != nil {
			return err
		}
	}
	return nil
}

func (p *framePacer) track(t frameTarget) error {
	return p.inFlight.Enqueue(t)
}

// drain waits for every frame still in flight.
func (p *framePacer) drain(fences [metadata.QueueFamilyCount]metadata.Fence) error {
	for !p.inFlight.IsEmpty() {
		t, err := p.inFlight.Dequeue()
		if err != nil {
			return err
		}
		if err := t.wait(fences, p.timeout); err != nil {
			return err
		}
	}
	return nil
}

func (p *framePacer) inFlightFrames() int {
	return p.inFlight.Len()
}
