package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// LevelRef names one level of one queue.
type LevelRef struct {
	Queue metadata.QueueFamily
	Level int
}

// interleave merges the per-queue level lists into one recording and
// submission order. A level becomes eligible once the level it waits on has
// been placed; between two eligible levels the lower fence goes first and
// graphics wins ties.
func interleave(scheds *[metadata.QueueFamilyCount]Schedule) ([]LevelRef, error) {
	var cursor [metadata.QueueFamilyCount]int
	total := 0
	for q := range scheds {
		total += len(scheds[q].Levels)
	}

	eligible := func(q metadata.QueueFamily) bool {
		levels := scheds[q].Levels
		if cursor[q] >= len(levels) {
			return false
		}
		return levels[cursor[q]].WaitLevel < cursor[q.Other()]
	}

	order := make([]LevelRef, 0, total)
	for len(order) < total {
		gfx, cmp := eligible(metadata.QueueFamilyGraphics), eligible(metadata.QueueFamilyCompute)
		var q metadata.QueueFamily
		switch {
		case gfx && cmp:
			q = metadata.QueueFamilyGraphics
			gl := scheds[metadata.QueueFamilyGraphics].Levels[cursor[metadata.QueueFamilyGraphics]]
			cl := scheds[metadata.QueueFamilyCompute].Levels[cursor[metadata.QueueFamilyCompute]]
			if cl.Fence < gl.Fence {
				q = metadata.QueueFamilyCompute
			}
		case gfx:
			q = metadata.QueueFamilyGraphics
		case cmp:
			q = metadata.QueueFamilyCompute
		default:
			return nil, &GraphError{Kind: ErrCycleDetected, Detail: "queue interleaving stalled"}
		}
		order = append(order, LevelRef{Queue: q, Level: cursor[q]})
		cursor[q]++
	}
	return order, nil
}

// submission is one command list handed to a queue, with the fence traffic
// around it.
type submission struct {
	queue  metadata.QueueFamily
	list   metadata.CommandList
	level  int
	signal bool
	waits  []*submission
	// value is the fence value signaled after the list, assigned at submit.
	value uint64
}

func (s *submission) waitFor(other *submission) {
	for _, w := range s.waits {
		if w == other {
			return
		}
	}
	s.waits = append(s.waits, other)
}

// frameRecord is everything recorded for one frame before submission.
type frameRecord struct {
	slot      int
	plan      []*submission
	prologues [metadata.QueueFamilyCount]*submission
	latest    [metadata.QueueFamilyCount]*submission
	counters  core.FrameCounters
}

func (g *RenderGraph) record(fr *frameRecord) error {
	var byLevel [metadata.QueueFamilyCount][]*submission
	for q := range g.schedules {
		byLevel[q] = make([]*submission, len(g.schedules[q].Levels))
	}

	for _, ref := range g.order {
		lvl := g.schedules[ref.Queue].Levels[ref.Level]
		cl := g.lists[fr.slot][ref.Queue][ref.Level]
		if err := cl.Begin(); err != nil {
			return fmt.Errorf("render graph: beginning %q: %w", cl.Name(), err)
		}

		sub := &submission{
			queue:  ref.Queue,
			list:   cl,
			level:  ref.Level,
			signal: lvl.Action.Has(PassActionSignal),
		}
		if lvl.Action.Has(PassActionWait) {
			sub.waitFor(byLevel[ref.Queue.Other()][lvl.WaitLevel])
		}
		byLevel[ref.Queue][ref.Level] = sub
		fr.plan = append(fr.plan, sub)
		fr.latest[ref.Queue] = sub

		if err := g.recordLevel(fr, sub, lvl); err != nil {
			return err
		}
	}

	// lists are ended last since a later level may still append releases
	for _, sub := range fr.submissions() {
		if err := sub.list.End(); err != nil {
			return fmt.Errorf("render graph: ending %q: %w", sub.list.Name(), err)
		}
	}
	fr.counters.Levels = len(g.order)
	return nil
}

// submissions lists the prologues followed by the levels in interleaved order.
func (fr *frameRecord) submissions() []*submission {
	out := make([]*submission, 0, len(fr.plan)+len(fr.prologues))
	for _, p := range fr.prologues {
		if p != nil {
			out = append(out, p)
		}
	}
	return append(out, fr.plan...)
}

// releaseOwner returns the submission that relinquishes ownership on q: the
// latest level recorded on q this frame or, before any, q's prologue list.
func (g *RenderGraph) releaseOwner(fr *frameRecord, q metadata.QueueFamily) (*submission, error) {
	if s := fr.latest[q]; s != nil {
		return s, nil
	}
	if s := fr.prologues[q]; s != nil {
		return s, nil
	}
	cl, err := g.prologueList(fr.slot, q)
	if err != nil {
		return nil, err
	}
	if err := cl.Begin(); err != nil {
		return nil, fmt.Errorf("render graph: beginning %q: %w", cl.Name(), err)
	}
	fr.prologues[q] = &submission{queue: q, list: cl, level: -1}
	return fr.prologues[q], nil
}

// submit hands the recorded lists to their queues. Waits are queue-side; the
// only host blocking happens in the frame pacer.
func (g *RenderGraph) submit(fr *frameRecord) (frameTarget, error) {
	target := frameTarget{frame: g.frameIndex}

	for _, sub := range fr.submissions() {
		queue := g.device.Queue(sub.queue)
		for _, w := range sub.waits {
			if err := queue.WaitForFence(g.fences[w.queue], w.value); err != nil {
				return target, fmt.Errorf("render graph: %s queue waiting on %s fence %d: %w", sub.queue, w.queue, w.value, err)
			}
			fr.counters.Waits++
		}
		if err := queue.ExecuteCommandLists(sub.list); err != nil {
			return target, fmt.Errorf("render graph: submitting %q: %w", sub.list.Name(), err)
		}
		fr.counters.Submissions++
		target.used[sub.queue] = true

		if sub.signal {
			g.fenceValues[sub.queue]++
			sub.value = g.fenceValues[sub.queue]
			if err := queue.SignalFence(g.fences[sub.queue], sub.value); err != nil {
				return target, fmt.Errorf("render graph: %s queue signaling %d: %w", sub.queue, sub.value, err)
			}
			fr.counters.Signals++
		}
	}

	// frame pacing, not counted in the frame's signals
	for q := metadata.QueueFamilyGraphics; q < metadata.QueueFamilyCount; q++ {
		if !target.used[q] {
			continue
		}
		g.fenceValues[q]++
		target.values[q] = g.fenceValues[q]
		if err := g.device.Queue(q).SignalFence(g.fences[q], target.values[q]); err != nil {
			return target, fmt.Errorf("render graph: %s queue signaling frame end %d: %w", q, target.values[q], err)
		}
	}
	return target, nil
}
