package metadata

type Format uint8

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Uint
	FormatR32Float
	FormatD16Unorm
	FormatD32Float
	FormatD24UnormS8Uint
)

func (f Format) IsDepth() bool {
	return f == FormatD16Unorm || f == FormatD32Float || f == FormatD24UnormS8Uint
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint
}

// Aspect derives the aspect mask a full-texture barrier needs.
func (f Format) Aspect() Aspect {
	switch {
	case f.HasStencil():
		return AspectDepth | AspectStencil
	case f.IsDepth():
		return AspectDepth
	}
	return AspectColor
}

/** @brief Image aspect bits. */
type Aspect uint8

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)
