package vulkan

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// fenceSignal is one queued signal of a timeline value. The host observes it
// through fence, another queue through semaphore.
type fenceSignal struct {
	value     uint64
	fence     vk.Fence
	semaphore vk.Semaphore
	// set once a queue consumed the semaphore
	waited bool
	// semaphores the signaling queue waited on before this signal; they are
	// unsignaled and reusable once fence completes
	consumed []vk.Semaphore
}

// VulkanFence emulates a timeline on Vulkan 1.0: every signal is an empty
// submission carrying a binary semaphore and a host fence, kept in
// ascending value order until it completes.
type VulkanFence struct {
	device *VulkanDevice

	mutex     sync.Mutex
	completed uint64
	// highest value queued so far
	signaled uint64
	pending  []*fenceSignal
}

func newVulkanFence(vd *VulkanDevice, initial uint64) *VulkanFence {
	return &VulkanFence{
		device:    vd,
		completed: initial,
		signaled:  initial,
	}
}

func (vf *VulkanFence) CompletedValue() uint64 {
	vf.mutex.Lock()
	defer vf.mutex.Unlock()
	vf.poll()
	return vf.completed
}

// poll retires signals in order until it hits one still in flight.
func (vf *VulkanFence) poll() {
	for len(vf.pending) > 0 {
		s := vf.pending[0]
		if vk.GetFenceStatus(vf.device.LogicalDevice, s.fence) != vk.Success {
			return
		}
		vf.completed = s.value
		vf.retire(s)
		vf.pending = vf.pending[1:]
	}
}

func (vf *VulkanFence) retire(s *fenceSignal) {
	vd := vf.device
	vd.releaseSignalFence(s.fence)
	for _, sem := range s.consumed {
		vd.releaseSemaphore(sem, true)
	}
	// A semaphore another queue still waits on comes back through that
	// queue's next signal.
	if !s.waited {
		vd.releaseSemaphore(s.semaphore, false)
	}
	s.consumed = nil
}

func (vf *VulkanFence) Wait(value uint64, timeout time.Duration) error {
	vf.mutex.Lock()
	defer vf.mutex.Unlock()

	vf.poll()
	if vf.completed >= value {
		return nil
	}
	s := vf.signalFor(value)
	if s == nil {
		return fmt.Errorf("vulkan: value %d was never signaled: %w", value, core.ErrFenceTimeout)
	}
	res := vk.WaitForFences(vf.device.LogicalDevice, 1, []vk.Fence{s.fence}, vk.True, uint64(timeout.Nanoseconds()))
	if res != vk.Success {
		return vulkanError(fmt.Sprintf("waiting for fence value %d", value), res)
	}
	vf.poll()
	return nil
}

// signalFor returns the first queued signal reaching value. Signals of one
// queue complete in submission order, so waiting on it covers value.
func (vf *VulkanFence) signalFor(value uint64) *fenceSignal {
	for _, s := range vf.pending {
		if s.value >= value {
			return s
		}
	}
	return nil
}

func (vf *VulkanFence) destroy() {
	vf.mutex.Lock()
	defer vf.mutex.Unlock()
	for _, s := range vf.pending {
		vf.retire(s)
	}
	vf.pending = nil
}
