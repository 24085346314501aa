package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

var (
	errNoPhysicalDevice = errors.New("vulkan: no physical device with a graphics queue")
	errForeignObject    = errors.New("vulkan: object was not created by this device")
)

var (
	loaderOnce sync.Once
	loaderErr  error
)

// Options selects how the device is brought up.
type Options struct {
	ApplicationName string
	// AsyncCompute requests a dedicated compute queue family. Without one the
	// device exposes only the graphics queue.
	AsyncCompute bool
	// Validation enables the Khronos validation layer and routes its reports
	// to the engine logger.
	Validation bool
}

// VulkanDevice implements metadata.Device on top of one logical device with
// a graphics queue and, when the hardware has one, a dedicated compute queue.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Properties     vk.PhysicalDeviceProperties

	GraphicsQueueIndex int32
	ComputeQueueIndex  int32

	families queueFamilyIndices
	queues   [metadata.QueueFamilyCount]*VulkanQueue

	renderpasses *renderpassCache
	framebuffers *framebufferCache

	mutex      sync.Mutex
	lists      []*VulkanCommandBuffer
	fences     []*VulkanFence
	semaphores []vk.Semaphore
	signals    []vk.Fence
}

func loadVulkan() error {
	loaderOnce.Do(func() {
		vk.SetDefaultGetInstanceProcAddr()
		loaderErr = vk.Init()
	})
	return loaderErr
}

// NewDevice creates the instance, picks a physical device and creates the
// logical device with its queues.
func NewDevice(opts Options) (*VulkanDevice, error) {
	if err := loadVulkan(); err != nil {
		return nil, fmt.Errorf("vulkan: loading the driver: %w", err)
	}

	vd := &VulkanDevice{
		context: &VulkanContext{
			locks: NewVulkanLockPool(),
		},
		GraphicsQueueIndex: -1,
		ComputeQueueIndex:  -1,
	}
	vd.context.Device = vd
	vd.renderpasses = newRenderpassCache(vd)
	vd.framebuffers = newFramebufferCache(vd)

	if err := vd.createInstance(opts); err != nil {
		vd.Destroy()
		return nil, err
	}
	if err := vd.selectPhysicalDevice(opts.AsyncCompute); err != nil {
		vd.Destroy()
		return nil, err
	}
	if err := vd.createLogicalDevice(); err != nil {
		vd.Destroy()
		return nil, err
	}
	return vd, nil
}

func (vd *VulkanDevice) createInstance(opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.ApplicationName),
		PEngineName:        VulkanSafeString("framegraph"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	layers := []string{}
	if opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		if err := checkLayers(layers); err != nil {
			return err
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, vd.context.Allocator, &vd.context.Instance); res != vk.Success {
		return vulkanError("creating instance", res)
	}
	if err := vk.InitInstance(vd.context.Instance); err != nil {
		return fmt.Errorf("vulkan: loading instance functions: %w", err)
	}
	core.LogInfo("Vulkan Instance created.")

	if opts.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(vd.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return vulkanError("creating debug report callback", res)
		}
		vd.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return vulkanError("enumerating layers", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return vulkanError("enumerating layers", res)
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			end := FindFirstZeroInByteArray(available[i].LayerName[:])
			if name == string(available[i].LayerName[:end]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("vulkan: required validation layer is missing: %s", name)
		}
	}
	return nil
}

type physicalDeviceCandidate struct {
	handle     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	graphics   int32
	compute    int32
	score      int
}

// selectPhysicalDevice prefers discrete GPUs and, when async compute is
// requested, devices that expose a compute family without graphics support.
func (vd *VulkanDevice) selectPhysicalDevice(asyncCompute bool) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(vd.context.Instance, &count, nil); res != vk.Success {
		return vulkanError("enumerating physical devices", res)
	}
	if count == 0 {
		return errNoPhysicalDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(vd.context.Instance, &count, devices); res != vk.Success {
		return vulkanError("enumerating physical devices", res)
	}

	var best *physicalDeviceCandidate
	for _, device := range devices {
		c := inspectPhysicalDevice(device)
		if c.graphics < 0 {
			continue
		}
		if c.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			c.score += 100
		}
		if asyncCompute && c.compute >= 0 {
			c.score += 10
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		return errNoPhysicalDevice
	}

	vd.PhysicalDevice = best.handle
	vd.Properties = best.properties
	vd.GraphicsQueueIndex = best.graphics
	if asyncCompute {
		vd.ComputeQueueIndex = best.compute
	}

	name := vk.ToString(best.properties.DeviceName[:])
	core.LogInfo("Selected device: '%s'.", name)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(best.properties.ApiVersion).Major(),
		vk.Version(best.properties.ApiVersion).Minor(),
		vk.Version(best.properties.ApiVersion).Patch(),
	)
	if asyncCompute && vd.ComputeQueueIndex < 0 {
		core.LogWarn("Device '%s' has no dedicated compute queue, compute passes run on the graphics queue.", name)
	}
	return nil
}

func inspectPhysicalDevice(device vk.PhysicalDevice) *physicalDeviceCandidate {
	c := &physicalDeviceCandidate{handle: device, graphics: -1, compute: -1}
	vk.GetPhysicalDeviceProperties(device, &c.properties)
	c.properties.Deref()

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		switch {
		case flags&vk.QueueGraphicsBit != 0:
			if c.graphics < 0 {
				c.graphics = int32(i)
			}
		case flags&vk.QueueComputeBit != 0:
			if c.compute < 0 {
				c.compute = int32(i)
			}
		}
	}
	return c
}

func (vd *VulkanDevice) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	indices := []uint32{uint32(vd.GraphicsQueueIndex)}
	if vd.ComputeQueueIndex >= 0 {
		indices = append(indices, uint32(vd.ComputeQueueIndex))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{}
	if vd.hasDeviceExtension("VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if res := vk.CreateDevice(vd.PhysicalDevice, &deviceCreateInfo, vd.context.Allocator, &vd.LogicalDevice); res != vk.Success {
		return vulkanError("creating logical device", res)
	}
	core.LogInfo("Logical device created.")

	vd.families[metadata.QueueFamilyGraphics] = uint32(vd.GraphicsQueueIndex)
	vd.families[metadata.QueueFamilyCompute] = uint32(vd.GraphicsQueueIndex)
	vd.queues[metadata.QueueFamilyGraphics] = newVulkanQueue(vd, metadata.QueueFamilyGraphics, uint32(vd.GraphicsQueueIndex))
	if vd.ComputeQueueIndex >= 0 {
		vd.families[metadata.QueueFamilyCompute] = uint32(vd.ComputeQueueIndex)
		vd.queues[metadata.QueueFamilyCompute] = newVulkanQueue(vd, metadata.QueueFamilyCompute, uint32(vd.ComputeQueueIndex))
	}
	core.LogInfo("Queues obtained.")
	return nil
}

func (vd *VulkanDevice) hasDeviceExtension(name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(vd.PhysicalDevice, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(vd.PhysicalDevice, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if string(available[i].ExtensionName[:end]) == name {
			return true
		}
	}
	return false
}

func (vd *VulkanDevice) Queue(family metadata.QueueFamily) metadata.Queue {
	if family >= metadata.QueueFamilyCount || vd.queues[family] == nil {
		return nil
	}
	return vd.queues[family]
}

func (vd *VulkanDevice) CreateCommandList(family metadata.QueueFamily, frameSlot int, name string) (metadata.CommandList, error) {
	if vd.Queue(family) == nil {
		return nil, fmt.Errorf("vulkan: command list %q: %w", name, core.ErrQueueNotAvailable)
	}
	cb, err := NewVulkanCommandBuffer(vd, family, frameSlot, name)
	if err != nil {
		return nil, err
	}
	vd.mutex.Lock()
	vd.lists = append(vd.lists, cb)
	vd.mutex.Unlock()
	return cb, nil
}

func (vd *VulkanDevice) CreateFence(initial uint64) (metadata.Fence, error) {
	f := newVulkanFence(vd, initial)
	vd.mutex.Lock()
	vd.fences = append(vd.fences, f)
	vd.mutex.Unlock()
	return f, nil
}

// WaitIdle blocks until both queues drained and retires every pending
// fence signal.
func (vd *VulkanDevice) WaitIdle() error {
	if res := vk.DeviceWaitIdle(vd.LogicalDevice); res != vk.Success {
		return vulkanError("waiting for device idle", res)
	}
	vd.mutex.Lock()
	fences := append([]*VulkanFence(nil), vd.fences...)
	vd.mutex.Unlock()
	for _, f := range fences {
		f.CompletedValue()
	}
	return nil
}

// Destroy waits for the device and releases everything it created.
func (vd *VulkanDevice) Destroy() {
	if vd.LogicalDevice != nil {
		vk.DeviceWaitIdle(vd.LogicalDevice)

		for _, f := range vd.fences {
			f.destroy()
		}
		for _, cb := range vd.lists {
			cb.Destroy()
		}
		vd.fences, vd.lists = nil, nil

		vd.context.locks.SafeCall(SynchronizationManagement, func() error {
			for _, s := range vd.semaphores {
				vk.DestroySemaphore(vd.LogicalDevice, s, vd.context.Allocator)
			}
			for _, f := range vd.signals {
				vk.DestroyFence(vd.LogicalDevice, f, vd.context.Allocator)
			}
			vd.semaphores, vd.signals = nil, nil
			return nil
		})

		vd.framebuffers.destroy()
		vd.renderpasses.destroy()

		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(vd.LogicalDevice, vd.context.Allocator)
		vd.LogicalDevice = nil
	}
	vd.queues = [metadata.QueueFamilyCount]*VulkanQueue{}
	vd.PhysicalDevice = nil
	vd.GraphicsQueueIndex, vd.ComputeQueueIndex = -1, -1

	if vd.context.debugMessenger != nil {
		vk.DestroyDebugReportCallback(vd.context.Instance, vd.context.debugMessenger, nil)
		vd.context.debugMessenger = nil
	}
	if vd.context.Instance != nil {
		vk.DestroyInstance(vd.context.Instance, vd.context.Allocator)
		vd.context.Instance = nil
	}
}

// acquireSemaphore returns an unsignaled binary semaphore.
func (vd *VulkanDevice) acquireSemaphore() (vk.Semaphore, error) {
	var s vk.Semaphore
	err := vd.context.locks.SafeCall(SynchronizationManagement, func() error {
		if n := len(vd.semaphores); n > 0 {
			s = vd.semaphores[n-1]
			vd.semaphores = vd.semaphores[:n-1]
			return nil
		}
		info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		return vulkanError("creating semaphore", vk.CreateSemaphore(vd.LogicalDevice, &info, vd.context.Allocator, &s))
	})
	return s, err
}

// releaseSemaphore takes back a semaphore. Only semaphores whose signal was
// consumed by a wait are unsignaled again and can be reused.
func (vd *VulkanDevice) releaseSemaphore(s vk.Semaphore, waited bool) {
	vd.context.locks.SafeCall(SynchronizationManagement, func() error {
		if waited {
			vd.semaphores = append(vd.semaphores, s)
		} else {
			vk.DestroySemaphore(vd.LogicalDevice, s, vd.context.Allocator)
		}
		return nil
	})
}

// acquireSignalFence returns an unsignaled host fence.
func (vd *VulkanDevice) acquireSignalFence() (vk.Fence, error) {
	var f vk.Fence
	err := vd.context.locks.SafeCall(SynchronizationManagement, func() error {
		if n := len(vd.signals); n > 0 {
			f = vd.signals[n-1]
			vd.signals = vd.signals[:n-1]
			return nil
		}
		info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
		return vulkanError("creating fence", vk.CreateFence(vd.LogicalDevice, &info, vd.context.Allocator, &f))
	})
	return f, err
}

func (vd *VulkanDevice) releaseSignalFence(f vk.Fence) {
	vd.context.locks.SafeCall(SynchronizationManagement, func() error {
		if res := vk.ResetFences(vd.LogicalDevice, 1, []vk.Fence{f}); res != vk.Success {
			vk.DestroyFence(vd.LogicalDevice, f, vd.context.Allocator)
			return nil
		}
		vd.signals = append(vd.signals, f)
		return nil
	})
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
