package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanQueue submits to one device queue. Fence waits are deferred into the
// wait list of its next submission.
type VulkanQueue struct {
	device *VulkanDevice
	family metadata.QueueFamily
	index  uint32
	handle vk.Queue

	waits []vk.Semaphore
	// semaphores already waited on, returned through the next signal
	consumed []vk.Semaphore
	// highest value waited on per fence
	waited map[*VulkanFence]uint64
}

func newVulkanQueue(vd *VulkanDevice, family metadata.QueueFamily, index uint32) *VulkanQueue {
	q := &VulkanQueue{
		device: vd,
		family: family,
		index:  index,
		waited: make(map[*VulkanFence]uint64),
	}
	vk.GetDeviceQueue(vd.LogicalDevice, index, 0, &q.handle)
	vd.context.locks.SetQueueFamily(index)
	return q
}

func (q *VulkanQueue) Family() metadata.QueueFamily { return q.family }

func (q *VulkanQueue) ExecuteCommandLists(lists ...metadata.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	submitted := make([]*VulkanCommandBuffer, 0, len(lists))
	for _, l := range lists {
		cb, ok := l.(*VulkanCommandBuffer)
		if !ok {
			return fmt.Errorf("command list %q: %w", l.Name(), errForeignObject)
		}
		if cb.family != q.family {
			return fmt.Errorf("vulkan: %s list %q submitted to the %s queue: %w",
				cb.family, cb.name, q.family, core.ErrSubmissionFailed)
		}
		if cb.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			return fmt.Errorf("vulkan: list %q is not ended: %w", cb.name, core.ErrSubmissionFailed)
		}
		buffers = append(buffers, cb.Handle)
		submitted = append(submitted, cb)
	}
	if err := q.submit(buffers, nil, nil); err != nil {
		return err
	}
	for _, cb := range submitted {
		cb.UpdateSubmitted()
	}
	return nil
}

func (q *VulkanQueue) SignalFence(f metadata.Fence, value uint64) error {
	vf, ok := f.(*VulkanFence)
	if !ok {
		return fmt.Errorf("signal fence: %w", errForeignObject)
	}
	vd := q.device

	vf.mutex.Lock()
	defer vf.mutex.Unlock()
	if value <= vf.signaled {
		return fmt.Errorf("vulkan: fence value %d is not ahead of %d: %w", value, vf.signaled, core.ErrSubmissionFailed)
	}

	sem, err := vd.acquireSemaphore()
	if err != nil {
		return err
	}
	fence, err := vd.acquireSignalFence()
	if err != nil {
		vd.releaseSemaphore(sem, true)
		return err
	}
	if err := q.submit(nil, []vk.Semaphore{sem}, fence); err != nil {
		vd.releaseSemaphore(sem, true)
		vd.releaseSignalFence(fence)
		return err
	}
	// includes the waits the signal submission itself took
	consumed := q.consumed
	q.consumed = nil

	vf.signaled = value
	vf.pending = append(vf.pending, &fenceSignal{
		value:     value,
		fence:     fence,
		semaphore: sem,
		consumed:  consumed,
	})
	return nil
}

func (q *VulkanQueue) WaitForFence(f metadata.Fence, value uint64) error {
	vf, ok := f.(*VulkanFence)
	if !ok {
		return fmt.Errorf("wait for fence: %w", errForeignObject)
	}
	if q.waited[vf] >= value {
		return nil
	}

	vf.mutex.Lock()
	defer vf.mutex.Unlock()
	vf.poll()
	if vf.completed >= value {
		q.waited[vf] = value
		return nil
	}
	s := vf.signalFor(value)
	if s == nil {
		return fmt.Errorf("vulkan: waiting for fence value %d that was never signaled: %w", value, core.ErrSubmissionFailed)
	}
	if !s.waited {
		s.waited = true
		q.waits = append(q.waits, s.semaphore)
	}
	q.waited[vf] = s.value
	return nil
}

func (q *VulkanQueue) WaitIdle() error {
	return q.device.context.locks.SafeQueueCall(q.index, func() error {
		return vulkanError("waiting for queue idle", vk.QueueWaitIdle(q.handle))
	})
}

// submit issues one batch carrying the pending waits.
func (q *VulkanQueue) submit(buffers []vk.CommandBuffer, signals []vk.Semaphore, fence vk.Fence) error {
	if len(buffers) == 0 && len(signals) == 0 && len(q.waits) == 0 {
		return nil
	}
	stages := make([]vk.PipelineStageFlags, len(q.waits))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(q.waits)),
		PWaitSemaphores:      q.waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	err := q.device.context.locks.SafeQueueCall(q.index, func() error {
		return vulkanError("submitting to the "+q.family.String()+" queue",
			vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
	if err != nil {
		return err
	}
	q.consumed = append(q.consumed, q.waits...)
	q.waits = nil
	return nil
}
