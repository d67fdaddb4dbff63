package render

import (
	"fmt"
	"math"

	"github.com/vulkan-go/vulkan"
)

// engineName is reported to the driver in the instance application info,
// NUL-terminated for the binding.
const engineName = "vulkano-bufferless\x00"

// Context owns the instance, surface, and device handles everything else in
// this package renders through. It is immutable once NewContext returns and
// lives for the whole process.
type Context struct {
	instance    vulkan.Instance
	gpu         vulkan.PhysicalDevice
	device      vulkan.Device
	queue       vulkan.Queue
	queueFamily uint32
	surface     vulkan.Surface

	gpuName string
	gpuType vulkan.PhysicalDeviceType
}

// NewContext creates the Vulkan instance and surface for platform, then
// selects the first physical device that exposes a queue family capable of
// both graphics and presentation to that surface. A single queue from that
// family handles every submission and present.
func NewContext(platform Platform, appName string) (*Context, error) {
	ctx := &Context{}

	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   appName + "\x00",
		ApplicationVersion: vulkan.MakeVersion(1, 0, 0),
		PEngineName:        engineName,
		EngineVersion:      vulkan.MakeVersion(1, 0, 0),
		ApiVersion:         vulkan.ApiVersion10,
	}

	extensions := platform.InstanceExtensions()
	instanceInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var instance vulkan.Instance
	if err := NewError(vulkan.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, fmt.Errorf("creating instance: %w", err)
	}
	ctx.instance = instance
	vulkan.InitInstance(instance)

	surface, err := platform.CreateSurface(instance)
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("creating surface: %w", err)
	}
	ctx.surface = surface

	if err := ctx.pickDevice(); err != nil {
		ctx.Destroy()
		return nil, err
	}

	if err := ctx.createDevice(); err != nil {
		ctx.Destroy()
		return nil, err
	}

	return ctx, nil
}

// pickDevice selects the first enumerated physical device with a queue family
// that supports graphics and can present to the context surface.
func (c *Context) pickDevice() error {
	var count uint32
	if err := NewError(vulkan.EnumeratePhysicalDevices(c.instance, &count, nil)); err != nil {
		return fmt.Errorf("counting physical devices: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("no device available")
	}

	gpus := make([]vulkan.PhysicalDevice, count)
	if err := NewError(vulkan.EnumeratePhysicalDevices(c.instance, &count, gpus)); err != nil {
		return fmt.Errorf("enumerating physical devices: %w", err)
	}

	for _, gpu := range gpus {
		family, ok := c.findQueueFamily(gpu)
		if !ok {
			continue
		}

		var props vulkan.PhysicalDeviceProperties
		vulkan.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()

		c.gpu = gpu
		c.queueFamily = family
		c.gpuName = vulkan.ToString(props.DeviceName[:])
		c.gpuType = props.DeviceType
		return nil
	}

	return fmt.Errorf("no device with a graphics queue that can present")
}

func (c *Context) findQueueFamily(gpu vulkan.PhysicalDevice) (uint32, bool) {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)

	families := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)

	for i, family := range families {
		family.Deref()
		if family.QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) == 0 {
			continue
		}

		var supported vulkan.Bool32
		res := vulkan.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), c.surface, &supported)
		if IsError(res) || !supported.B() {
			continue
		}
		return uint32(i), true
	}
	return 0, false
}

func (c *Context) createDevice() error {
	queueInfo := vulkan.DeviceQueueCreateInfo{
		SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	extensions := []string{vulkan.KhrSwapchainExtensionName + "\x00"}
	deviceInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vulkan.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var device vulkan.Device
	if err := NewError(vulkan.CreateDevice(c.gpu, &deviceInfo, nil, &device)); err != nil {
		return fmt.Errorf("creating logical device: %w", err)
	}
	c.device = device

	var queue vulkan.Queue
	vulkan.GetDeviceQueue(c.device, c.queueFamily, 0, &queue)
	c.queue = queue
	return nil
}

func (c *Context) Device() vulkan.Device {
	return c.device
}

func (c *Context) Queue() vulkan.Queue {
	return c.queue
}

func (c *Context) QueueFamily() uint32 {
	return c.queueFamily
}

func (c *Context) Surface() vulkan.Surface {
	return c.surface
}

// GPUName returns the marketing name of the selected physical device.
func (c *Context) GPUName() string {
	return c.gpuName
}

// GPUTypeName returns a printable name for the selected device's type.
func (c *Context) GPUTypeName() string {
	switch c.gpuType {
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return "IntegratedGpu"
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return "DiscreteGpu"
	case vulkan.PhysicalDeviceTypeVirtualGpu:
		return "VirtualGpu"
	case vulkan.PhysicalDeviceTypeCpu:
		return "Cpu"
	default:
		return "Other"
	}
}

// SurfaceCapabilities queries the surface capability descriptor with all
// nested extents dereferenced and ready to read.
func (c *Context) SurfaceCapabilities() (vulkan.SurfaceCapabilities, error) {
	var caps vulkan.SurfaceCapabilities
	res := vulkan.GetPhysicalDeviceSurfaceCapabilities(c.gpu, c.surface, &caps)
	if err := NewError(res); err != nil {
		return caps, fmt.Errorf("querying surface capabilities: %w", err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// WaitIdle blocks until the device has finished all submitted work. Required
// before destroying anything a queued frame might still reference.
func (c *Context) WaitIdle() {
	if c.device != nil {
		vulkan.DeviceWaitIdle(c.device)
	}
}

func (c *Context) Destroy() {
	if c.device != nil {
		vulkan.DeviceWaitIdle(c.device)
		vulkan.DestroyDevice(c.device, nil)
		c.device = nil
	}
	if c.surface != vulkan.NullSurface {
		vulkan.DestroySurface(c.instance, c.surface, nil)
		c.surface = vulkan.NullSurface
	}
	if c.instance != nil {
		vulkan.DestroyInstance(c.instance, nil)
		c.instance = nil
	}
}

// surfaceExtent resolves the target extent for chain (re)creation from the
// surface capability descriptor, falling back to the clamped framebuffer size
// when the surface reports an indeterminate current extent.
type surfaceExtent struct {
	ctx      *Context
	platform Platform
}

// NewSurfaceInfo wires a Context and its Platform into the extent source the
// frame executor consults before recreating the chain.
func NewSurfaceInfo(ctx *Context, platform Platform) SurfaceInfo {
	return surfaceExtent{ctx: ctx, platform: platform}
}

func (s surfaceExtent) CurrentExtent() (vulkan.Extent2D, error) {
	caps, err := s.ctx.SurfaceCapabilities()
	if err != nil {
		return vulkan.Extent2D{}, err
	}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent, nil
	}
	width, height := s.platform.FramebufferSize()
	hint := vulkan.Extent2D{Width: uint32(width), Height: uint32(height)}
	return clampExtent(hint, caps.MinImageExtent, caps.MaxImageExtent), nil
}
