package rendergraph

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"golang.org/x/exp/constraints"
)

// PassAction is the synchronization a level performs around its submission.
type PassAction uint8

const (
	PassActionNone   PassAction = 0
	PassActionSignal PassAction = 1 << 0
	PassActionWait   PassAction = 1 << 1
)

func (a PassAction) Has(b PassAction) bool { return a&b != 0 }

func (a PassAction) String() string {
	switch a {
	case PassActionNone:
		return "none"
	case PassActionSignal:
		return "signal"
	case PassActionWait:
		return "wait"
	case PassActionSignal | PassActionWait:
		return "signal|wait"
	}
	return "unknown"
}

type ScheduledPass struct {
	Pass  Pass
	Fence uint64
}

// Level is a run of passes recorded into one command list.
type Level struct {
	Start, End int
	Action     PassAction
	// Fence is the highest fence value of the passes in the level.
	Fence uint64
	// WaitLevel indexes the level on the other queue this one waits for, or -1.
	WaitLevel int
	iteration int
}

func (l Level) Len() int { return l.End - l.Start }

// Schedule is the compiled order of one queue.
type Schedule struct {
	Queue  metadata.QueueFamily
	Passes []ScheduledPass
	Levels []Level
}

type instanceKey struct {
	buffer  bool
	index   int
	version uint32
}

func textureKey(i TextureInstance) instanceKey {
	return instanceKey{index: i.Texture.index(), version: i.Version}
}

func bufferKey(i BufferInstance) instanceKey {
	return instanceKey{buffer: true, index: i.Buffer.index(), version: i.Version}
}

func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// sorter orders the declared passes into per-queue levels.
type sorter struct {
	graph     *RenderGraph
	passes    []Pass
	async     bool
	producers map[instanceKey][]Pass
	reads     map[Pass][]instanceKey
}

func newSorter(g *RenderGraph) *sorter {
	return &sorter{
		graph:     g,
		passes:    g.passes,
		async:     g.asyncCompute,
		producers: make(map[instanceKey][]Pass),
		reads:     make(map[Pass][]instanceKey, len(g.passes)),
	}
}

func (s *sorter) queueFor(p Pass) metadata.QueueFamily {
	if _, ok := p.(*ComputePass); ok && s.async {
		return metadata.QueueFamilyCompute
	}
	return metadata.QueueFamilyGraphics
}

func (s *sorter) index() {
	for _, p := range s.passes {
		p.base().resetSchedule()
		p.base().queue = s.queueFor(p)
		for _, att := range textureWrites(p) {
			k := textureKey(att.Texture)
			s.producers[k] = append(s.producers[k], p)
		}
		for _, att := range bufferWrites(p) {
			k := bufferKey(att.Buffer)
			s.producers[k] = append(s.producers[k], p)
		}
	}
	for _, p := range s.passes {
		var keys []instanceKey
		for _, att := range textureReads(p) {
			keys = append(keys, textureKey(att.Texture))
		}
		for _, att := range bufferReads(p) {
			keys = append(keys, bufferKey(att.Buffer))
		}
		s.reads[p] = keys
	}
}

// checkDangling rejects reads of versions no pass ever writes. Version 0 with
// no producer is the contents the resource was registered with.
func (s *sorter) checkDangling() error {
	for _, p := range s.passes {
		for _, k := range s.reads[p] {
			if k.version == 0 || len(s.otherProducers(k, p)) > 0 {
				continue
			}
			return &GraphError{
				Kind:     ErrDanglingDependency,
				Pass:     p.Name(),
				Resource: s.resourceName(k),
				Detail:   fmt.Sprintf("version %d is never written", k.version),
			}
		}
	}
	return nil
}

func (s *sorter) otherProducers(k instanceKey, self Pass) []Pass {
	var out []Pass
	for _, pr := range s.producers[k] {
		if pr != self {
			out = append(out, pr)
		}
	}
	return out
}

func (s *sorter) resourceName(k instanceKey) string {
	if k.buffer {
		return s.graph.buffers[k.index].buffer.Name()
	}
	return s.graph.textures[k.index].texture.Name()
}

// ready reports whether every producer of what p reads is scheduled and
// visible from queue q in iteration iter, and returns the fence value p gets.
func (s *sorter) ready(p Pass, q metadata.QueueFamily, iter int) (uint64, bool) {
	var fence uint64
	for _, k := range s.reads[p] {
		for _, pr := range s.otherProducers(k, p) {
			b := pr.base()
			if !b.scheduled {
				return 0, false
			}
			if b.queue != q {
				// levels of the two queues in one iteration run concurrently
				if b.iteration == iter {
					return 0, false
				}
				fence = maxOf(fence, b.fence+1)
				continue
			}
			fence = maxOf(fence, b.fence)
		}
	}
	return fence, true
}

func (s *sorter) markCrossQueue(p Pass) {
	b := p.base()
	seen := make(map[Pass]bool)
	for _, k := range s.reads[p] {
		for _, pr := range s.otherProducers(k, p) {
			if pr.base().queue == b.queue || seen[pr] {
				continue
			}
			seen[pr] = true
			pr.base().signal = true
			b.waitsOn = append(b.waitsOn, pr)
		}
	}
}

// sort runs the ready-set expansion. Each iteration visits the graphics queue
// then the compute queue, each in declaration order; a pass sees same-queue
// outputs from earlier in the iteration and other-queue outputs from earlier
// iterations only.
func (s *sorter) sort() ([metadata.QueueFamilyCount]Schedule, error) {
	var out [metadata.QueueFamilyCount]Schedule
	out[metadata.QueueFamilyGraphics].Queue = metadata.QueueFamilyGraphics
	out[metadata.QueueFamilyCompute].Queue = metadata.QueueFamilyCompute

	s.index()
	if err := s.checkDangling(); err != nil {
		return out, err
	}

	remaining := len(s.passes)
	for iter := 0; remaining > 0; iter++ {
		progress := false
		for q := metadata.QueueFamilyGraphics; q < metadata.QueueFamilyCount; q++ {
			sched := &out[q]
			start := len(sched.Passes)
			for _, p := range s.passes {
				b := p.base()
				if b.scheduled || b.queue != q {
					continue
				}
				fence, ok := s.ready(p, q, iter)
				if !ok {
					continue
				}
				b.scheduled = true
				b.iteration = iter
				b.fence = fence
				s.markCrossQueue(p)
				sched.Passes = append(sched.Passes, ScheduledPass{Pass: p, Fence: fence})
				remaining--
				progress = true
			}
			if len(sched.Passes) > start {
				sched.Levels = append(sched.Levels, Level{Start: start, End: len(sched.Passes), WaitLevel: -1, iteration: iter})
			}
		}
		if !progress {
			return out, s.cycleError()
		}
	}

	for q := range out {
		out[q].Levels = splitSignals(out[q])
	}
	attachWaits(&out)
	return out, nil
}

func (s *sorter) cycleError() error {
	var names []string
	for _, p := range s.passes {
		if !p.base().scheduled {
			names = append(names, p.Name())
		}
	}
	return &GraphError{
		Kind:   ErrCycleDetected,
		Pass:   names[0],
		Detail: "unschedulable passes: " + strings.Join(names, ", "),
	}
}

// splitSignals places the Signal action on the last pass of each level whose
// output crosses queues, splitting the level after it when it is not the last.
func splitSignals(sched Schedule) []Level {
	var levels []Level
	for _, lvl := range sched.Levels {
		last := -1
		for i := lvl.Start; i < lvl.End; i++ {
			if sched.Passes[i].Pass.Signals() {
				last = i
			}
		}
		switch {
		case last < 0:
			levels = append(levels, lvl)
		case last == lvl.End-1:
			lvl.Action |= PassActionSignal
			levels = append(levels, lvl)
		default:
			head, tail := lvl, lvl
			head.End, head.Action = last+1, PassActionSignal
			tail.Start = last + 1
			levels = append(levels, head, tail)
		}
	}
	for i := range levels {
		for j := levels[i].Start; j < levels[i].End; j++ {
			levels[i].Fence = maxOf(levels[i].Fence, sched.Passes[j].Fence)
		}
	}
	return levels
}

// attachWaits gives every level holding a pass with a cross-queue producer a
// Wait on the latest producing level of the other queue.
func attachWaits(out *[metadata.QueueFamilyCount]Schedule) {
	levelOf := make(map[Pass]int)
	for q := range out {
		for li, lvl := range out[q].Levels {
			for i := lvl.Start; i < lvl.End; i++ {
				levelOf[out[q].Passes[i].Pass] = li
			}
		}
	}
	for q := range out {
		sched := &out[q]
		for li := range sched.Levels {
			lvl := &sched.Levels[li]
			for i := lvl.Start; i < lvl.End; i++ {
				for _, pr := range sched.Passes[i].Pass.base().waitsOn {
					lvl.WaitLevel = maxOf(lvl.WaitLevel, levelOf[pr])
					lvl.Action |= PassActionWait
				}
			}
		}
	}
}
