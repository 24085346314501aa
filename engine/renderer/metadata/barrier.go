package metadata

/** @brief The part of a texture a barrier applies to. */
type SubresourceRange struct {
	Aspect     Aspect
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

/**
 * @brief A layout/access transition of a texture, optionally moving it
 * between queue families.
 */
type TextureBarrier struct {
	Texture   Texture
	Range     SubresourceRange
	OldLayout ResourceLayout
	NewLayout ResourceLayout
	SrcAccess AccessFlags
	DstAccess AccessFlags
	/** @brief QueueFamilyIgnored on both sides when ownership stays put. */
	SrcQueue QueueFamily
	DstQueue QueueFamily
}

/** @brief An access transition of a buffer range, optionally moving it between queue families. */
type BufferBarrier struct {
	Buffer    Buffer
	Offset    uint64
	Size      uint64
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcQueue  QueueFamily
	DstQueue  QueueFamily
}

// IsOwnershipTransfer reports whether the barrier moves the texture between queues.
func (b TextureBarrier) IsOwnershipTransfer() bool {
	return b.SrcQueue != b.DstQueue && b.SrcQueue != QueueFamilyIgnored
}

func (b BufferBarrier) IsOwnershipTransfer() bool {
	return b.SrcQueue != b.DstQueue && b.SrcQueue != QueueFamilyIgnored
}
