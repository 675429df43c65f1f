package compiler

import (
	"github.com/flywave/go3d/vec3"
	"go.uber.org/zap"

	"github.com/Faultbox/geomc/pkg/meshopt"
	"github.com/Faultbox/geomc/pkg/xgeom"
)

// cacheProfile models one GPU vendor's post-transform cache.
type cacheProfile struct {
	Name          string
	CacheSize     int
	WarpSize      int
	PrimGroupSize int
}

var cacheProfiles = []cacheProfile{
	{"generic", meshopt.CacheSize, 0, 0},
	{"nvidia", 32, 32, 32},
	{"amd", 14, 64, 128},
	{"intel", 128, 0, 0},
}

// CacheStats is the vertex cache efficiency under one profile.
type CacheStats struct {
	Profile string
	ACMR    float32
	ATVR    float32
}

// Stats summarizes a compiled geometry and its optimizer diagnostics.
type Stats struct {
	Meshes     int
	Submeshes  int
	LODs       int
	Vertices   int
	Indices    int
	VertexSize int

	Cache     []CacheStats
	Overfetch float32
	Overdraw  float32
}

func analyze(g *xgeom.Geom, a *assembly) Stats {
	st := Stats{
		Meshes:    len(g.Meshes),
		Submeshes: len(g.Submeshes),
		LODs:      len(g.LODs),
		Vertices:  len(a.Vertices),
		Indices:   len(a.Indices),
	}
	for s := 0; s < int(g.NumStreams); s++ {
		if !streamCarriesIndices(g, s) {
			st.VertexSize += int(g.StreamStride(s))
		}
	}

	for _, p := range cacheProfiles {
		cs := meshopt.AnalyzeVertexCache(a.Indices, len(a.Vertices), p.CacheSize, p.WarpSize, p.PrimGroupSize)
		st.Cache = append(st.Cache, CacheStats{Profile: p.Name, ACMR: cs.ACMR, ATVR: cs.ATVR})
	}

	st.Overfetch = meshopt.AnalyzeVertexFetch(a.Indices, len(a.Vertices), st.VertexSize).Overfetch

	positions := make([]vec3.T, len(a.Vertices))
	for i := range a.Vertices {
		positions[i] = a.Vertices[i].Position
	}
	st.Overdraw = meshopt.AnalyzeOverdraw(a.Indices, positions).Overdraw
	return st
}

func streamCarriesIndices(g *xgeom.Geom, s int) bool {
	for _, info := range g.StreamInfos {
		if int(info.Stream) == s && info.Elements.Has(xgeom.ElementIndex) {
			return true
		}
	}
	return false
}

// Fields returns the stats as log fields.
func (s Stats) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("meshes", s.Meshes),
		zap.Int("submeshes", s.Submeshes),
		zap.Int("lods", s.LODs),
		zap.Int("vertices", s.Vertices),
		zap.Int("indices", s.Indices),
		zap.Int("vertex_size", s.VertexSize),
	}
	for _, c := range s.Cache {
		fields = append(fields,
			zap.Float32("acmr_"+c.Profile, c.ACMR),
			zap.Float32("atvr_"+c.Profile, c.ATVR))
	}
	return append(fields,
		zap.Float32("overfetch", s.Overfetch),
		zap.Float32("overdraw", s.Overdraw))
}
