package compiler

import (
	"fmt"

	"github.com/flywave/go3d/vec3"

	"github.com/Faultbox/geomc/pkg/xgeom"
)

// pack allocates g.Data and writes every descriptor's category at its planned
// offset and stride. g must already carry the descriptor table and counts.
func pack(g *xgeom.Geom, a *assembly, l layout) error {
	g.Data = make([]byte, g.LayoutStreams())

	for i, info := range g.StreamInfos {
		stride := int(g.StreamStride(int(info.Stream)))
		size := int(info.Format.Info().ElementSize)
		dst := g.StreamInfoData(i)

		buf := make([]float64, 0, int(info.VectorCount)*int(info.Format.Info().Dimensions))
		for n := 0; n < int(g.StreamPopulation(int(info.Stream))); n++ {
			var err error
			buf, err = elementValues(buf[:0], info, a, l, n)
			if err != nil {
				return err
			}
			out := dst[n*stride:]
			for k, v := range buf {
				xgeom.PutElement(out[k*size:], info.Format, v)
			}
		}
	}
	return nil
}

// elementValues appends the components of element n of info's category.
func elementValues(buf []float64, info xgeom.StreamInfo, a *assembly, l layout, n int) ([]float64, error) {
	switch info.Elements {
	case xgeom.ElementIndex:
		return append(buf, float64(a.Indices[n])), nil

	case xgeom.ElementPosition:
		return appendVec3(buf, a.Vertices[n].Position), nil

	case xgeom.ElementUV:
		for _, c := range l.UVChannels {
			uv := a.Vertices[n].UV[c]
			buf = append(buf, float64(uv[0]), float64(uv[1]))
		}
		return buf, nil

	case xgeom.ElementColor:
		for _, b := range a.Vertices[n].Color {
			buf = append(buf, float64(b)/255)
		}
		return buf, nil

	case xgeom.ElementBoneWeight:
		for w := 0; w < int(info.VectorCount); w++ {
			buf = append(buf, float64(a.Vertices[n].Weights[w].Weight))
		}
		return buf, nil

	case xgeom.ElementBoneIndex:
		for w := 0; w < int(info.VectorCount); w++ {
			buf = append(buf, float64(a.Vertices[n].Weights[w].Bone))
		}
		return buf, nil

	case xgeom.ElementBTN:
		btn := a.Vertices[n].BTN
		buf = appendVec3(buf, btn.Binormal)
		buf = appendVec3(buf, btn.Tangent)
		return appendVec3(buf, btn.Normal), nil
	}
	return nil, fmt.Errorf("no writer for stream elements %s", info.Elements)
}

func appendVec3(buf []float64, v vec3.T) []float64 {
	return append(buf, float64(v[0]), float64(v[1]), float64(v[2]))
}
