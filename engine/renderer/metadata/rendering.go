package metadata

type LoadOp uint8

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

/** @brief A rectangle in framebuffer space. */
type Area2D struct {
	X, Y          int32
	Width, Height uint32
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

/** @brief One attachment of a rendering scope. */
type RenderingAttachment struct {
	Texture Texture
	Format  Format
	Range   SubresourceRange
	Layout  ResourceLayout
	LoadOp  LoadOp
	StoreOp StoreOp
	Clear   ClearValue
}

/**
 * @brief Describes the attachments bound between BeginRendering and
 * EndRendering.
 */
type RenderingDesc struct {
	Name         string
	Area         Area2D
	Colors       []RenderingAttachment
	DepthStencil *RenderingAttachment
}
