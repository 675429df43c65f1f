package xgeom

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ElementMask is a bit set of attribute categories carried by a stream.
type ElementMask uint8

// Attribute categories.
const (
	ElementIndex ElementMask = 1 << iota
	ElementPosition
	ElementUV
	ElementColor
	ElementBoneIndex
	ElementBoneWeight
	ElementBTN
)

var elementNames = []string{"index", "position", "uv", "color", "bone-index", "bone-weight", "btn"}

// Has reports whether all bits of e are set in m.
func (m ElementMask) Has(e ElementMask) bool {
	return m&e == e
}

// String returns the set categories joined by '|'.
func (m ElementMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for i, name := range elementNames {
		if m&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Format is a symbolic vector encoding from the format catalog.
type Format uint8

// Catalog formats.
const (
	FormatFloat1D Format = iota
	FormatFloat2D
	FormatFloat3D
	FormatFloat4D
	FormatUint8x1Norm
	FormatUint8x4Norm
	FormatUint8x1
	FormatUint16x1
	FormatUint32x1
	FormatSint8x3Norm
	formatCount
)

// VectorInfo describes one catalog entry.
type VectorInfo struct {
	Dimensions  uint8 // components per vector
	ElementSize uint8 // bytes per component
	Int         bool
	Signed      bool
	Normalized  bool
}

var catalog = [formatCount]VectorInfo{
	FormatFloat1D:     {Dimensions: 1, ElementSize: 4, Signed: true},
	FormatFloat2D:     {Dimensions: 2, ElementSize: 4, Signed: true},
	FormatFloat3D:     {Dimensions: 3, ElementSize: 4, Signed: true},
	FormatFloat4D:     {Dimensions: 4, ElementSize: 4, Signed: true},
	FormatUint8x1Norm: {Dimensions: 1, ElementSize: 1, Int: true, Normalized: true},
	FormatUint8x4Norm: {Dimensions: 4, ElementSize: 1, Int: true, Normalized: true},
	FormatUint8x1:     {Dimensions: 1, ElementSize: 1, Int: true},
	FormatUint16x1:    {Dimensions: 1, ElementSize: 2, Int: true},
	FormatUint32x1:    {Dimensions: 1, ElementSize: 4, Int: true},
	FormatSint8x3Norm: {Dimensions: 3, ElementSize: 1, Int: true, Signed: true, Normalized: true},
}

var formatNames = [formatCount]string{
	"FLOAT_1D", "FLOAT_2D", "FLOAT_3D", "FLOAT_4D",
	"UINT8_1D_NORMALIZED", "UINT8_4D_NORMALIZED", "UINT8_1D",
	"UINT16_1D", "UINT32_1D", "SINT8_3D_NORMALIZED",
}

// Valid reports whether f is a catalog entry.
func (f Format) Valid() bool {
	return f < formatCount
}

// Info returns the catalog entry for f.
func (f Format) Info() VectorInfo {
	if !f.Valid() {
		return VectorInfo{}
	}
	return catalog[f]
}

// VectorSize returns the size in bytes of one vector.
func (f Format) VectorSize() uint32 {
	info := f.Info()
	return uint32(info.ElementSize) * uint32(info.Dimensions)
}

// Alignment returns the natural alignment of the element type.
func (f Format) Alignment() uint32 {
	return uint32(f.Info().ElementSize)
}

// String returns the catalog name.
func (f Format) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
	return formatNames[f]
}

// PutElement encodes one vector component into dst using format f.
// Normalized integers are quantized as round(v*255) or round(v*127).
func PutElement(dst []byte, f Format, v float64) {
	info := f.Info()
	switch {
	case !info.Int:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	case info.Normalized && info.Signed:
		dst[0] = byte(int8(clamp(math.Round(v*127), -127, 127)))
	case info.Normalized:
		dst[0] = uint8(clamp(math.Round(v*255), 0, 255))
	case info.ElementSize == 1:
		dst[0] = uint8(v)
	case info.ElementSize == 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	default:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	}
}

// Element decodes one vector component encoded with format f.
func Element(src []byte, f Format) float64 {
	info := f.Info()
	switch {
	case !info.Int:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	case info.Normalized && info.Signed:
		return float64(int8(src[0])) / 127
	case info.Normalized:
		return float64(src[0]) / 255
	case info.ElementSize == 1:
		return float64(src[0])
	case info.ElementSize == 2:
		return float64(binary.LittleEndian.Uint16(src))
	default:
		return float64(binary.LittleEndian.Uint32(src))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Align rounds n up to a multiple of a.
func Align(n, a uint32) uint32 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
