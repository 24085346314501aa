package metadata

import "strings"

/** @brief The memory layout a texture is in. */
type ResourceLayout uint8

const (
	ResourceLayoutUndefined ResourceLayout = iota
	ResourceLayoutGeneral
	ResourceLayoutColorAttachment
	ResourceLayoutDepthStencilAttachment
	ResourceLayoutDepthStencilReadOnly
	ResourceLayoutShaderReadOnly
	ResourceLayoutTransferSrc
	ResourceLayoutTransferDst
	ResourceLayoutPresent
)

var layoutNames = [...]string{
	ResourceLayoutUndefined:              "undefined",
	ResourceLayoutGeneral:                "general",
	ResourceLayoutColorAttachment:        "color-attachment",
	ResourceLayoutDepthStencilAttachment: "depth-stencil-attachment",
	ResourceLayoutDepthStencilReadOnly:   "depth-stencil-read-only",
	ResourceLayoutShaderReadOnly:         "shader-read-only",
	ResourceLayoutTransferSrc:            "transfer-src",
	ResourceLayoutTransferDst:            "transfer-dst",
	ResourceLayoutPresent:                "present",
}

func (l ResourceLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "unknown"
}

/** @brief Memory access bits. */
type AccessFlags uint32

const (
	AccessNone       AccessFlags = 0
	AccessShaderRead AccessFlags = 1 << (iota - 1)
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
)

var accessNames = []string{
	"shader-read",
	"shader-write",
	"color-attachment-read",
	"color-attachment-write",
	"depth-stencil-read",
	"depth-stencil-write",
	"transfer-read",
	"transfer-write",
}

// HasWrite reports whether any write bit is set.
func (a AccessFlags) HasWrite() bool {
	return a&(AccessShaderWrite|AccessColorAttachmentWrite|AccessDepthStencilWrite|AccessTransferWrite) != 0
}

func (a AccessFlags) String() string {
	return flagString(uint32(a), accessNames)
}

/** @brief Pipeline stage bits used as barrier scopes. */
type PipelineStage uint32

const (
	PipelineStageNone      PipelineStage = 0
	PipelineStageTopOfPipe PipelineStage = 1 << (iota - 1)
	PipelineStageDrawIndirect
	PipelineStageVertexShader
	PipelineStageEarlyFragmentTests
	PipelineStageFragmentShader
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageAllGraphics
	PipelineStageAllCommands
)

var stageNames = []string{
	"top-of-pipe",
	"draw-indirect",
	"vertex-shader",
	"early-fragment-tests",
	"fragment-shader",
	"late-fragment-tests",
	"color-attachment-output",
	"compute-shader",
	"transfer",
	"bottom-of-pipe",
	"all-graphics",
	"all-commands",
}

func (s PipelineStage) String() string {
	return flagString(uint32(s), stageNames)
}

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
