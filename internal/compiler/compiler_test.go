package compiler

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/geomc/internal/config"
	"github.com/Faultbox/geomc/internal/importer"
	"github.com/Faultbox/geomc/pkg/grf/grftest"
	"github.com/Faultbox/geomc/pkg/raw3d"
	"github.com/Faultbox/geomc/pkg/xgeom"
)

// plainConfig returns the defaults without the forced vertex color.
func plainConfig() *config.Config {
	cfg := config.Default()
	cfg.Cleanup.ForceAddColorIfNone = false
	return cfg
}

func rawGrid(n int) *raw3d.Geom {
	g := &raw3d.Geom{
		Meshes:    []raw3d.Mesh{{Name: "grid"}},
		Materials: []raw3d.Material{{Name: "ground"}},
	}
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			g.Vertices = append(g.Vertices, raw3d.Vertex{
				Position: vec3.T{float32(x), float32(y), 0},
				NumUVs:   1,
				UV:       [raw3d.MaxUVs]vec2.T{{float32(x) / float32(n), float32(y) / float32(n)}},
			})
		}
	}
	row := n + 1
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			a := y*row + x
			g.Facets = append(g.Facets,
				raw3d.Facet{Vertex: [3]int{a, a + 1, a + row + 1}},
				raw3d.Facet{Vertex: [3]int{a, a + row + 1, a + row}})
		}
	}
	return g
}

func compile(t *testing.T, raw *raw3d.Geom, cfg *config.Config) *xgeom.Geom {
	t.Helper()
	c := New(nil)
	c.SetRaw(raw)
	require.NoError(t, c.Compile(cfg))
	return c.Geom()
}

func elements(g *xgeom.Geom) []xgeom.ElementMask {
	var out []xgeom.ElementMask
	for _, info := range g.StreamInfos {
		out = append(out, info.Elements)
	}
	return out
}

func TestCompile_PositionsOnlyQuad(t *testing.T) {
	g := compile(t, rawQuad(), plainConfig())

	require.Len(t, g.Meshes, 1)
	assert.Equal(t, "Master Mesh", g.Meshes[0].Name)
	assert.Equal(t, uint16(1), g.Meshes[0].NumLODs)
	assert.Len(t, g.Submeshes, 1)
	assert.Equal(t, uint32(4), g.NumVertices)
	assert.Equal(t, uint32(6), g.NumIndices)
	assert.Equal(t, uint16(1), g.NumMaterials)
	assert.Equal(t, []xgeom.ElementMask{xgeom.ElementIndex, xgeom.ElementPosition}, elements(g))
	assert.Equal(t, vec3.Box{Min: vec3.T{0, 0, 0}, Max: vec3.T{1, 1, 0}}, g.BBox)
	assert.Equal(t, 2, g.FaceCount())

	// The packed positions are the quad's corners.
	pos := g.FindStreamInfo(xgeom.ElementPosition)
	var corners []vec3.T
	for n := 0; n < int(g.NumVertices); n++ {
		v := g.Vector(pos, n)
		corners = append(corners, vec3.T{float32(v[0]), float32(v[1]), float32(v[2])})
	}
	assert.ElementsMatch(t, []vec3.T{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}, corners)
}

func TestCompile_QuadLODs(t *testing.T) {
	cfg := plainConfig()
	cfg.LOD.GenerateLODs = true
	cfg.LOD.MaxLODs = 3
	cfg.LOD.LODReduction = 0.5

	g := compile(t, rawQuad(), cfg)

	m := g.Meshes[0]
	assert.LessOrEqual(t, int(m.NumLODs)-1, 2)
	assert.Len(t, g.LODs, int(m.NumLODs))
}

func TestCompile_TwoMaterialsInterleaved(t *testing.T) {
	raw := rawQuad()
	raw.Materials = append(raw.Materials, raw3d.Material{Name: "moss"})
	raw.Facets[1].Material = 1

	g := compile(t, raw, config.Default())

	assert.Len(t, g.Submeshes, 2)
	assert.Equal(t, uint16(2), g.NumMaterials)
	assert.Equal(t, []xgeom.ElementMask{xgeom.ElementIndex, xgeom.ElementPosition, xgeom.ElementColor}, elements(g))

	// Position (12) and color (4), aligned to the float alignment.
	assert.Equal(t, uint8(2), g.NumStreams)
	assert.Equal(t, uint8(16), g.CompactedVertexSize)
	assert.Equal(t, uint32(16), g.StreamStride(1))

	// Forced white survives packing.
	color := g.FindStreamInfo(xgeom.ElementColor)
	assert.Equal(t, []float64{1, 1, 1, 1}, g.Vector(color, 0))
}

func TestCompile_UVRemoval(t *testing.T) {
	raw := rawQuad()
	for i := range raw.Vertices {
		v := &raw.Vertices[i]
		v.NumUVs = 4
		for c := 0; c < 4; c++ {
			v.UV[c] = vec2.T{v.Position[0] + float32(10*c), v.Position[1] + float32(10*c)}
		}
	}
	cfg := plainConfig()
	cfg.Cleanup.RemoveUVs = [config.MaxUVChannels]bool{false, false, true, true}

	g := compile(t, raw, cfg)

	uv := g.FindStreamInfo(xgeom.ElementUV)
	require.GreaterOrEqual(t, uv, 0)
	assert.Equal(t, uint8(2), g.StreamInfos[uv].VectorCount)

	pos := g.FindStreamInfo(xgeom.ElementPosition)
	for n := 0; n < int(g.NumVertices); n++ {
		p := g.Vector(pos, n)
		assert.Equal(t, []float64{p[0], p[1], p[0] + 10, p[1] + 10}, g.Vector(uv, n), "vertex %d", n)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	cfg := config.Default()
	cfg.LOD.GenerateLODs = true
	cfg.LOD.LODReduction = 0.5

	first, err := xgeom.Marshal(compile(t, rawGrid(8), cfg))
	require.NoError(t, err)
	second, err := xgeom.Marshal(compile(t, rawGrid(8), cfg))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompile_GridLODs(t *testing.T) {
	cfg := config.Default()
	cfg.LOD.GenerateLODs = true
	cfg.LOD.LODReduction = 0.5
	cfg.LOD.MaxLODs = 4

	g := compile(t, rawGrid(8), cfg)

	m := g.Meshes[0]
	require.Greater(t, m.NumLODs, uint16(1))

	prev := uint32(0)
	for i := 0; i < int(m.NumLODs); i++ {
		lod := g.LODs[int(m.LOD)+i]
		require.Equal(t, uint16(1), lod.NumSubmeshes)
		sm := g.Submeshes[lod.Submesh]
		if i > 0 {
			assert.LessOrEqual(t, sm.NumIndices, prev, "LOD %d", i)
		}
		prev = sm.NumIndices
	}

	for n, idx := range g.Indices() {
		require.Less(t, idx, g.NumVertices, "index %d", n)
	}
	// Only LOD 0 counts toward the face count.
	assert.Equal(t, 128, g.FaceCount())
}

func TestCompile_StreamInvariants(t *testing.T) {
	raw := rawGrid(4)
	for i := range raw.Vertices {
		v := &raw.Vertices[i]
		v.NumNormals = 1
		v.BTN[0].Normal = vec3.T{0, 0, 1}
		v.NumWeights = 1
		v.Weights[0] = raw3d.Weight{Bone: 0, Weight: 1}
	}
	raw.Bones = []raw3d.Bone{{Name: "root", Parent: -1}}

	for _, elementStreams := range []bool{false, true} {
		for _, separate := range []bool{false, true} {
			cfg := config.Default()
			cfg.Cleanup.RemoveBTN = false
			cfg.Cleanup.RemoveBones = false
			cfg.Streams.UseElementStreams = elementStreams
			cfg.Streams.SeparatePosition = separate

			g := compile(t, raw, cfg)
			require.NoError(t, g.Validate())

			for i, info := range g.StreamInfos {
				assert.Zero(t, uint32(info.Offset)%info.Alignment(), "descriptor %d", i)
				for j := i + 1; j < len(g.StreamInfos); j++ {
					other := g.StreamInfos[j]
					if other.Stream == info.Stream {
						assert.LessOrEqual(t, info.End(), uint32(other.Offset), "descriptors %d and %d", i, j)
					}
				}
			}
			for s := 0; s < int(g.NumStreams); s++ {
				assert.Zero(t, g.StreamOffsets[s]%xgeom.MaxAlignment, "stream %d", s)
			}
			assert.Zero(t, len(g.Data)%xgeom.MaxAlignment)
			if elementStreams {
				assert.Zero(t, g.CompactedVertexSize)
			}
		}
	}
}

// skinnedGrid is rawGrid(2) with two bone weights and a tangent frame on
// every vertex. Weights follow x, bone indices follow y.
func skinnedGrid(bones int) *raw3d.Geom {
	raw := rawGrid(2)
	raw.Bones = make([]raw3d.Bone, bones)
	for i := range raw.Vertices {
		v := &raw.Vertices[i]
		x, y := v.Position[0], v.Position[1]
		w := 0.2 + 0.3*x
		v.NumWeights = 2
		v.Weights[0] = raw3d.Weight{Bone: int32(y), Weight: w}
		v.Weights[1] = raw3d.Weight{Bone: int32(y) + 3, Weight: 1 - w}
		v.NumNormals = 1
		v.NumTangents = 1
		v.BTN[0] = raw3d.BTN{
			Binormal: vec3.T{1, 0, 0},
			Tangent:  vec3.T{0, 0.6, -0.8},
			Normal:   vec3.T{0, 0.8, 0.6},
		}
	}
	return raw
}

func TestCompile_SkinnedStreams(t *testing.T) {
	exact := func(v float64) float64 { return v }
	quantize := func(scale float64) func(float64) float64 {
		return func(v float64) float64 { return math.Round(v*scale) / scale }
	}

	tests := []struct {
		name     string
		compress bool
		bones    int
		formats  [3]xgeom.Format // weight, bone index, BTN
		weight   func(float64) float64
		btn      func(float64) float64
	}{
		{
			name:    "floats",
			bones:   300,
			formats: [3]xgeom.Format{xgeom.FormatFloat1D, xgeom.FormatUint16x1, xgeom.FormatFloat3D},
			weight:  exact,
			btn:     exact,
		},
		{
			name:     "compressed",
			compress: true,
			bones:    300,
			formats:  [3]xgeom.Format{xgeom.FormatUint8x1Norm, xgeom.FormatUint8x1, xgeom.FormatSint8x3Norm},
			weight:   quantize(255),
			btn:      quantize(127),
		},
		{
			name:    "few bones",
			bones:   6,
			formats: [3]xgeom.Format{xgeom.FormatFloat1D, xgeom.FormatUint8x1, xgeom.FormatFloat3D},
			weight:  exact,
			btn:     exact,
		},
	}

	frame := []float32{1, 0, 0, 0, 0.6, -0.8, 0, 0.8, 0.6}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := plainConfig()
			cfg.Cleanup.RemoveBTN = false
			cfg.Cleanup.RemoveBones = false
			cfg.Streams.CompressWeights = tt.compress
			cfg.Streams.CompressBTN = tt.compress

			g := compile(t, skinnedGrid(tt.bones), cfg)
			require.Equal(t, uint32(9), g.NumVertices)

			pos := g.FindStreamInfo(xgeom.ElementPosition)
			wi := g.FindStreamInfo(xgeom.ElementBoneWeight)
			bi := g.FindStreamInfo(xgeom.ElementBoneIndex)
			ti := g.FindStreamInfo(xgeom.ElementBTN)
			require.GreaterOrEqual(t, pos, 0)
			require.GreaterOrEqual(t, wi, 0)
			require.GreaterOrEqual(t, bi, 0)
			require.GreaterOrEqual(t, ti, 0)
			assert.Equal(t, tt.formats, [3]xgeom.Format{
				g.StreamInfos[wi].Format, g.StreamInfos[bi].Format, g.StreamInfos[ti].Format,
			})

			for n := 0; n < int(g.NumVertices); n++ {
				p := g.Vector(pos, n)
				x := float32(p[0])
				w := 0.2 + 0.3*x

				weights := g.Vector(wi, n)
				require.Len(t, weights, 2)
				assert.InDelta(t, tt.weight(float64(w)), weights[0], 1e-6, "vertex %d", n)
				assert.InDelta(t, tt.weight(float64(1-w)), weights[1], 1e-6, "vertex %d", n)

				assert.Equal(t, []float64{p[1], p[1] + 3}, g.Vector(bi, n), "vertex %d", n)

				btn := g.Vector(ti, n)
				require.Len(t, btn, len(frame))
				for k, c := range frame {
					assert.InDelta(t, tt.btn(float64(c)), btn[k], 1e-6, "vertex %d component %d", n, k)
				}
			}
		})
	}
}

func TestCompile_SourceUntouched(t *testing.T) {
	raw := rawQuad()
	before := raw.Clone()

	compile(t, raw, config.Default())

	assert.Equal(t, before, raw)
}

func TestCompile_UnsupportedCompressionWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := New(zap.New(core))
	c.SetRaw(rawQuad())

	cfg := plainConfig()
	cfg.Streams.CompressPosition = true
	cfg.Streams.CompressUV[1] = true
	require.NoError(t, c.Compile(cfg))

	assert.Equal(t, 1, logs.FilterMessage("position compression is not supported, writing floats").Len())
	assert.Equal(t, 1, logs.FilterMessage("UV compression is not supported, writing floats").Len())
}

func TestCompile_Stats(t *testing.T) {
	c := New(nil)
	c.SetRaw(rawGrid(4))
	require.NoError(t, c.Compile(config.Default()))

	st := c.Stats()
	assert.Equal(t, 1, st.Meshes)
	assert.Equal(t, 25, st.Vertices)
	assert.Equal(t, 96, st.Indices)
	assert.Equal(t, 24, st.VertexSize) // position, uv, color
	require.Len(t, st.Cache, len(cacheProfiles))
	assert.Equal(t, "generic", st.Cache[0].Profile)
	assert.Greater(t, st.Cache[0].ACMR, float32(0))
}

func TestCompile_Errors(t *testing.T) {
	c := New(nil)
	assert.ErrorIs(t, c.Compile(config.Default()), ErrNoSource)
	assert.ErrorIs(t, c.Serialize(filepath.Join(t.TempDir(), "out.xgeom")), ErrSerialize)

	err := c.Load(filepath.Join(t.TempDir(), "mesh.fbx"))
	assert.ErrorIs(t, err, ErrImport)
	assert.ErrorIs(t, err, importer.ErrUnsupportedFormat)

	raw := rawQuad()
	raw.Materials = make([]raw3d.Material, 1<<16)
	c.SetRaw(raw)
	assert.ErrorIs(t, c.Compile(config.Default()), ErrLimit)
}

func TestCompile_ContractViolation(t *testing.T) {
	raw := rawQuad()
	raw.Facets[1].Vertex[0] = 9

	c := New(nil)
	c.SetRaw(raw)
	// Normalization leaves bad indices for the builder to reject.
	cv := contractViolation(t, func() { c.Compile(plainConfig()) })
	assert.Contains(t, cv.Reason, "vertex index 9")
}

func TestSerialize_RoundTrip(t *testing.T) {
	c := New(nil)
	c.SetRaw(rawGrid(4))
	cfg := config.Default()
	cfg.LOD.GenerateLODs = true
	require.NoError(t, c.Compile(cfg))

	path := filepath.Join(t.TempDir(), "grid.xgeom")
	require.NoError(t, c.Serialize(path))

	back, err := xgeom.ReadFile(path)
	require.NoError(t, err)

	g := c.Geom()
	assert.Equal(t, g.Meshes, back.Meshes)
	assert.Equal(t, g.Submeshes, back.Submeshes)
	assert.Equal(t, g.LODs, back.LODs)
	assert.Equal(t, g.StreamInfos, back.StreamInfos)
	assert.Equal(t, g.StreamOffsets, back.StreamOffsets)
	assert.Equal(t, g.Data, back.Data)
	assert.Equal(t, g.NumIndices, back.NumIndices)
	assert.Equal(t, g.NumVertices, back.NumVertices)
	assert.Equal(t, g.CompactedVertexSize, back.CompactedVertexSize)
}

func TestSerialize_Failure(t *testing.T) {
	c := New(nil)
	c.SetRaw(rawQuad())
	require.NoError(t, c.Compile(config.Default()))

	dir := filepath.Join(t.TempDir(), "missing")
	err := c.Serialize(filepath.Join(dir, "out.xgeom"))
	assert.ErrorIs(t, err, ErrSerialize)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func writeGLB(t *testing.T, dir string) string {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2, 0, 2, 3})
	doc.Materials = []*gltf.Material{{Name: "tile"}}
	doc.Meshes = []*gltf.Mesh{{Name: "floor", Primitives: []*gltf.Primitive{
		{Attributes: map[string]uint32{"POSITION": pos}, Indices: gltf.Index(idx), Material: gltf.Index(0)},
	}}}

	path := filepath.Join(dir, "floor.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := plainConfig()
	cfg.Main.MeshAsset = writeGLB(t, dir)
	cfg.Cleanup.MergeMeshes = false

	require.NoError(t, New(nil).Run(cfg))

	g, err := xgeom.ReadFile(filepath.Join(dir, "floor.xgeom"))
	require.NoError(t, err)
	assert.Equal(t, 0, g.FindMesh("floor"))
	assert.Equal(t, uint32(4), g.NumVertices)
	assert.Equal(t, uint32(6), g.NumIndices)
}

func TestRun_MalformedGLB(t *testing.T) {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 7})
	doc.Meshes = []*gltf.Mesh{{Name: "broken", Primitives: []*gltf.Primitive{
		{Attributes: map[string]uint32{"POSITION": pos}, Indices: gltf.Index(idx)},
	}}}

	dir := t.TempDir()
	cfg := plainConfig()
	cfg.Main.MeshAsset = filepath.Join(dir, "broken.glb")
	require.NoError(t, gltf.SaveBinary(doc, cfg.Main.MeshAsset))

	var err error
	require.NotPanics(t, func() { err = New(nil).Run(cfg) })
	assert.ErrorIs(t, err, ErrImport)
	assert.ErrorIs(t, err, importer.ErrInvalidIndex)

	_, statErr := os.Stat(filepath.Join(dir, "broken.xgeom"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_InvalidConfig(t *testing.T) {
	assert.ErrorIs(t, New(nil).Run(config.Default()), config.ErrNoMeshAsset)
}

func TestRun_Archive(t *testing.T) {
	dir := t.TempDir()
	glb, err := os.ReadFile(writeGLB(t, dir))
	require.NoError(t, err)

	archive := filepath.Join(dir, "data.grf")
	require.NoError(t, grftest.WriteFile(archive, grftest.File{Name: `data\model\floor.glb`, Data: glb}))

	cfg := plainConfig()
	cfg.Main.MeshAsset = "data/model/floor.glb"
	cfg.Main.Archives = []string{archive}
	cfg.Main.Output = filepath.Join(dir, "floor.xgeom")

	c := New(nil)
	require.NoError(t, c.Run(cfg))
	assert.Nil(t, c.source)

	g, err := xgeom.ReadFile(cfg.Main.Output)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), g.NumIndices)

	cfg.Main.Archives = []string{filepath.Join(dir, "missing.grf")}
	assert.ErrorIs(t, New(nil).Run(cfg), ErrImport)

	cfg.Main.Archives = []string{archive}
	cfg.Main.MeshAsset = "data/model/missing.glb"
	assert.ErrorIs(t, New(nil).Run(cfg), ErrImport)
}
