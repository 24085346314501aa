package recorder

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

var (
	ErrForeignObject  = errors.New("object was not created by this device")
	ErrWrongQueue     = errors.New("command list submitted to the wrong queue family")
	ErrListNotEnded   = errors.New("command list submitted while recording")
	ErrSignalNotAhead = errors.New("fence signal does not advance the fence")
)

type EventKind uint8

const (
	EventSubmit EventKind = iota
	EventSignal
	EventWait
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventSignal:
		return "signal"
	case EventWait:
		return "wait"
	}
	return "unknown"
}

// Event is one queue operation in submission order.
type Event struct {
	Kind     EventKind
	Queue    metadata.QueueFamily
	List     string
	Commands []Command
	Fence    int
	Value    uint64
	// Satisfied is set on waits whose value was already signaled when the
	// wait was queued.
	Satisfied bool
}

// Device is a metadata.Device that executes nothing: submitted lists are
// appended to a trace and signals complete immediately.
type Device struct {
	mu         sync.Mutex
	queues     [metadata.QueueFamilyCount]*Queue
	fences     []*Fence
	lists      []*CommandList
	events     []Event
	failSubmit error
	stalled    [metadata.QueueFamilyCount]bool
}

// New creates a device with a graphics queue and, when asyncCompute is set,
// a compute queue.
func New(asyncCompute bool) *Device {
	d := &Device{}
	d.queues[metadata.QueueFamilyGraphics] = &Queue{family: metadata.QueueFamilyGraphics, device: d}
	if asyncCompute {
		d.queues[metadata.QueueFamilyCompute] = &Queue{family: metadata.QueueFamilyCompute, device: d}
	}
	return d
}

func (d *Device) Queue(family metadata.QueueFamily) metadata.Queue {
	if family >= metadata.QueueFamilyCount || d.queues[family] == nil {
		return nil
	}
	return d.queues[family]
}

func (d *Device) CreateCommandList(family metadata.QueueFamily, frameSlot int, name string) (metadata.CommandList, error) {
	if d.Queue(family) == nil {
		return nil, fmt.Errorf("recorder: %s: %w", family, core.ErrQueueNotAvailable)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cl := &CommandList{name: name, family: family, slot: frameSlot}
	d.lists = append(d.lists, cl)
	return cl, nil
}

func (d *Device) CreateFence(initial uint64) (metadata.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &Fence{id: len(d.fences), value: initial}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *Device) WaitIdle() error { return nil }

// FailNextSubmit makes the next ExecuteCommandLists return err.
func (d *Device) FailNextSubmit(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSubmit = err
}

// StallQueue stops signals queued on family from ever completing, as on a
// hung GPU. The signal events are still traced.
func (d *Device) StallQueue(family metadata.QueueFamily) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalled[family] = true
}

func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// ResetEvents clears the trace, keeping lists and fences.
func (d *Device) ResetEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

func (d *Device) Lists() []*CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandList(nil), d.lists...)
}

func (d *Device) Fences() []*Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Fence(nil), d.fences...)
}

func (d *Device) record(e Event) {
	d.events = append(d.events, e)
}

// Dump writes the trace in a line oriented form.
func (d *Device) Dump(w io.Writer) error {
	for _, e := range d.Events() {
		var err error
		switch e.Kind {
		case EventSubmit:
			_, err = fmt.Fprintf(w, "%-8s %-7s %s (%d commands)\n", e.Queue, e.Kind, e.List, len(e.Commands))
			for _, c := range e.Commands {
				if err != nil {
					break
				}
				_, err = fmt.Fprintf(w, "%18s%s\n", "", describe(c))
			}
		default:
			_, err = fmt.Fprintf(w, "%-8s %-7s fence %d -> %d\n", e.Queue, e.Kind, e.Fence, e.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func describe(c Command) string {
	switch c.Op {
	case OpBarrier:
		s := fmt.Sprintf("barrier %s -> %s", c.Src, c.Dst)
		for _, t := range c.Textures {
			s += fmt.Sprintf(" [%s %s->%s %s->%s q %s->%s]", t.Texture.Name(), t.OldLayout, t.NewLayout, t.SrcAccess, t.DstAccess, t.SrcQueue, t.DstQueue)
		}
		for _, b := range c.Buffers {
			s += fmt.Sprintf(" [%s %s->%s q %s->%s]", b.Buffer.Name(), b.SrcAccess, b.DstAccess, b.SrcQueue, b.DstQueue)
		}
		return s
	case OpBeginRendering:
		return fmt.Sprintf("begin-rendering %s %dx%d colors=%d depth=%t", c.Name, c.Rendering.Area.Width, c.Rendering.Area.Height, len(c.Rendering.Colors), c.Rendering.DepthStencil != nil)
	case OpSetPipeline, OpSetComputePipeline, OpSetRootSignature:
		return fmt.Sprintf("%s %s", c.Op, c.Name)
	case OpDraw, OpDispatch:
		return fmt.Sprintf("%s %v", c.Op, c.Args)
	}
	return c.Op.String()
}

type Queue struct {
	family metadata.QueueFamily
	device *Device
}

func (q *Queue) Family() metadata.QueueFamily { return q.family }

func (q *Queue) ExecuteCommandLists(lists ...metadata.CommandList) error {
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failSubmit; err != nil {
		d.failSubmit = nil
		return err
	}
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("recorder: %s: %w", l.Name(), ErrForeignObject)
		}
		if cl.family != q.family {
			return fmt.Errorf("recorder: %s on %s queue: %w", cl.name, q.family, ErrWrongQueue)
		}
		if cl.recording {
			return fmt.Errorf("recorder: %s: %w", cl.name, ErrListNotEnded)
		}
		d.record(Event{Kind: EventSubmit, Queue: q.family, List: cl.name, Commands: cl.Commands()})
	}
	return nil
}

func (q *Queue) SignalFence(f metadata.Fence, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("recorder: signal: %w", ErrForeignObject)
	}
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()
	fence.mu.Lock()
	defer fence.mu.Unlock()
	if value <= fence.value {
		return fmt.Errorf("recorder: fence %d at %d signaled to %d: %w", fence.id, fence.value, value, ErrSignalNotAhead)
	}
	if !d.stalled[q.family] {
		fence.value = value
	}
	d.record(Event{Kind: EventSignal, Queue: q.family, Fence: fence.id, Value: value})
	return nil
}

func (q *Queue) WaitForFence(f metadata.Fence, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("recorder: wait: %w", ErrForeignObject)
	}
	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Event{Kind: EventWait, Queue: q.family, Fence: fence.id, Value: value, Satisfied: fence.CompletedValue() >= value})
	return nil
}

func (q *Queue) WaitIdle() error { return nil }

// Fence completes a value as soon as it is signaled.
type Fence struct {
	mu    sync.Mutex
	id    int
	value uint64
}

func (f *Fence) ID() int { return f.id }

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait fails immediately when the value was never signaled since nothing
// else could advance the fence.
func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	if f.CompletedValue() >= value {
		return nil
	}
	return fmt.Errorf("recorder: fence %d waiting for %d after %s: %w", f.id, value, timeout, core.ErrFenceTimeout)
}
