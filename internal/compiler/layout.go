package compiler

import (
	"math"

	"github.com/Faultbox/geomc/internal/config"
	"github.com/Faultbox/geomc/pkg/xgeom"
)

// layout is the stream plan for one geometry.
type layout struct {
	Infos      []xgeom.StreamInfo
	NumStreams int
	// CompactedVertexSize is the interleaved vertex stride, 0 in
	// element-streams mode.
	CompactedVertexSize uint32
	// UVChannels lists the source UV channels written, in order.
	UVChannels []int
}

// planner appends descriptors in category order, opening physical streams
// as they are needed.
type planner struct {
	layout
	elementStreams bool
	maxAlign       uint32
}

func (p *planner) add(e xgeom.ElementMask, f xgeom.Format, vectors int, newStream bool) {
	info := xgeom.StreamInfo{
		Elements:    e,
		Format:      f,
		VectorCount: uint8(vectors),
	}
	if newStream || p.elementStreams || len(p.Infos) == 0 {
		p.NumStreams++
	} else {
		prev := p.Infos[len(p.Infos)-1]
		info.Offset = uint8(xgeom.Align(prev.End(), f.Alignment()))
	}
	info.Stream = uint8(p.NumStreams - 1)

	if e != xgeom.ElementIndex && f.Alignment() > p.maxAlign {
		p.maxAlign = f.Alignment()
	}
	p.Infos = append(p.Infos, info)
}

// planStreams decides which attribute categories are written, their formats
// and their placement. Categories come in a fixed order: index, position,
// UV, color, bone weight, bone index, BTN.
func planStreams(a *assembly, cfg *config.Config, numBones int) layout {
	streams := cfg.Streams
	cleanup := cfg.Cleanup
	p := &planner{elementStreams: streams.UseElementStreams}

	if len(a.Indices) > 0 {
		f := xgeom.FormatUint16x1
		if len(a.Indices) > math.MaxUint16 {
			f = xgeom.FormatUint32x1
		}
		p.add(xgeom.ElementIndex, f, 1, true)
	}

	if len(a.Vertices) == 0 {
		return p.layout
	}

	p.add(xgeom.ElementPosition, xgeom.FormatFloat3D, 1, true)

	for c := 0; c < a.NumUVs && c < config.MaxUVChannels; c++ {
		if !cleanup.RemoveUVs[c] {
			p.UVChannels = append(p.UVChannels, c)
		}
	}
	if len(p.UVChannels) > 0 {
		p.add(xgeom.ElementUV, xgeom.FormatFloat2D, len(p.UVChannels), streams.SeparatePosition)
	}

	// Position leaves the shared stream only once something follows it.
	separate := streams.SeparatePosition && len(p.UVChannels) == 0

	if a.HasColor && !cleanup.RemoveColor {
		p.add(xgeom.ElementColor, xgeom.FormatUint8x4Norm, 1, separate)
		separate = false
	}

	if a.NumWeights > 0 && !cleanup.RemoveBones {
		wf := xgeom.FormatFloat1D
		if streams.CompressWeights {
			wf = xgeom.FormatUint8x1Norm
		}
		p.add(xgeom.ElementBoneWeight, wf, a.NumWeights, separate)
		separate = false

		bf := xgeom.FormatUint16x1
		if streams.CompressWeights || numBones < 255 {
			bf = xgeom.FormatUint8x1
		}
		p.add(xgeom.ElementBoneIndex, bf, a.NumWeights, false)
	}

	if (a.HasNormal || a.HasBTN) && !cleanup.RemoveBTN {
		f := xgeom.FormatFloat3D
		if streams.CompressBTN {
			f = xgeom.FormatSint8x3Norm
		}
		p.add(xgeom.ElementBTN, f, 3, separate)
	}

	if !p.elementStreams {
		last := p.Infos[len(p.Infos)-1]
		p.CompactedVertexSize = xgeom.Align(last.End(), p.maxAlign)
	}
	return p.layout
}

// apply copies the plan into g's descriptor table.
func (l layout) apply(g *xgeom.Geom) {
	g.StreamInfos = l.Infos
	g.NumStreams = uint8(l.NumStreams)
	g.CompactedVertexSize = uint8(l.CompactedVertexSize)
	g.StreamTypes = 0
	for _, info := range l.Infos {
		g.StreamTypes |= info.Elements
	}
}
