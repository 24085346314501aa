package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// AttachmentUsage selects the layout/access policy applied to an attachment.
type AttachmentUsage uint8

const (
	AttachmentUsageGraphics AttachmentUsage = iota
	AttachmentUsageCompute
	AttachmentUsageCopy
	AttachmentUsageBlit
	// AttachmentUsagePassThrough threads a resource through a pass without a transition.
	AttachmentUsagePassThrough
)

func (u AttachmentUsage) String() string {
	switch u {
	case AttachmentUsageGraphics:
		return "graphics"
	case AttachmentUsageCompute:
		return "compute"
	case AttachmentUsageCopy:
		return "copy"
	case AttachmentUsageBlit:
		return "blit"
	case AttachmentUsagePassThrough:
		return "pass-through"
	}
	return "unknown"
}

type AttachmentAccess uint8

const (
	AttachmentAccessRead AttachmentAccess = iota
	AttachmentAccessWrite
	AttachmentAccessReadWrite
)

func (a AttachmentAccess) String() string {
	switch a {
	case AttachmentAccessRead:
		return "read"
	case AttachmentAccessWrite:
		return "write"
	case AttachmentAccessReadWrite:
		return "read-write"
	}
	return "unknown"
}

// TextureAttachment declares how a pass touches one texture instance.
// A zero Format falls back to the texture's own format.
type TextureAttachment struct {
	Texture TextureInstance
	Usage   AttachmentUsage
	Access  AttachmentAccess
	Format  metadata.Format
}

// BufferAttachment declares how a pass touches one buffer instance.
type BufferAttachment struct {
	Buffer BufferInstance
	Usage  AttachmentUsage
	Access AttachmentAccess
}

func inputLayout(u AttachmentUsage) metadata.ResourceLayout {
	switch u {
	case AttachmentUsageCopy:
		return metadata.ResourceLayoutTransferSrc
	case AttachmentUsageBlit:
		return metadata.ResourceLayoutGeneral
	}
	return metadata.ResourceLayoutShaderReadOnly
}

func outputLayout(u AttachmentUsage) metadata.ResourceLayout {
	switch u {
	case AttachmentUsageCompute:
		return metadata.ResourceLayoutGeneral
	case AttachmentUsageCopy, AttachmentUsageBlit:
		return metadata.ResourceLayoutTransferDst
	}
	return metadata.ResourceLayoutColorAttachment
}

func inputAccess(u AttachmentUsage) metadata.AccessFlags {
	switch u {
	case AttachmentUsageCompute:
		return metadata.AccessShaderRead | metadata.AccessShaderWrite
	case AttachmentUsageCopy, AttachmentUsageBlit:
		return metadata.AccessTransferRead
	}
	return metadata.AccessShaderRead
}

func outputAccess(u AttachmentUsage) metadata.AccessFlags {
	switch u {
	case AttachmentUsageCompute:
		return metadata.AccessShaderRead | metadata.AccessShaderWrite
	case AttachmentUsageCopy, AttachmentUsageBlit:
		return metadata.AccessTransferWrite
	}
	return metadata.AccessColorAttachmentWrite
}

func depthAccess(a AttachmentAccess) metadata.AccessFlags {
	if a == AttachmentAccessRead {
		return metadata.AccessDepthStencilRead
	}
	return metadata.AccessDepthStencilRead | metadata.AccessDepthStencilWrite
}

func loadOpFor(a AttachmentAccess) metadata.LoadOp {
	if a == AttachmentAccessWrite {
		return metadata.LoadOpClear
	}
	return metadata.LoadOpLoad
}

// Buffers have no attachment access of their own: graphics passes touch them
// from shaders.
func bufferInputAccess(u AttachmentUsage) metadata.AccessFlags {
	if u == AttachmentUsageGraphics {
		return metadata.AccessShaderRead
	}
	return inputAccess(u)
}

func bufferOutputAccess(u AttachmentUsage) metadata.AccessFlags {
	if u == AttachmentUsageGraphics {
		return metadata.AccessShaderWrite
	}
	return outputAccess(u)
}
