package compiler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/flywave/go3d/vec3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/geomc/pkg/xgeom"
)

// triangle returns a submesh holding one triangle offset by x, with lods
// copies of it as LOD buffers.
func triangle(material int, x float32, lods int) submesh {
	sm := submesh{
		Material: material,
		Vertices: []vertex{
			{Position: vec3.T{x, 0, 0}},
			{Position: vec3.T{x + 1, 0, 0}},
			{Position: vec3.T{x, 1, 0}},
		},
		Indices: []uint32{0, 1, 2},
	}
	for i := 0; i < lods; i++ {
		sm.LODs = append(sm.LODs, lod{Indices: []uint32{0, 1, 2}})
	}
	return sm
}

func TestAssemble(t *testing.T) {
	long := strings.Repeat("n", 40)
	meshes := []mesh{
		{Name: "body", Submeshes: []submesh{triangle(0, 0, 2), triangle(1, 2, 1)}},
		{Name: long, Submeshes: []submesh{triangle(0, -4, 0)}},
	}

	a, err := assemble(meshes)
	require.NoError(t, err)

	assert.Equal(t, []xgeom.Mesh{
		{Name: "body", NumLODs: 3, LOD: 0, BBox: vec3.Box{Min: vec3.T{0, 0, 0}, Max: vec3.T{3, 1, 0}}},
		{Name: long[:xgeom.MeshNameSize-1], NumLODs: 1, LOD: 3, BBox: vec3.Box{Min: vec3.T{-4, 0, 0}, Max: vec3.T{-3, 1, 0}}},
	}, a.Meshes)

	assert.Equal(t, []xgeom.LOD{
		{Submesh: 0, NumSubmeshes: 2},
		{Submesh: 2, NumSubmeshes: 2},
		{Submesh: 4, NumSubmeshes: 1},
		{Submesh: 5, NumSubmeshes: 1},
	}, a.LODs)

	require.Len(t, a.Submeshes, 6)
	materials := []uint16{0, 1, 0, 1, 0, 0}
	for i, sm := range a.Submeshes {
		assert.Equal(t, uint32(3*i), sm.Index, "submesh %d", i)
		assert.Equal(t, uint32(3), sm.NumIndices, "submesh %d", i)
		assert.Equal(t, materials[i], sm.Material, "submesh %d", i)
	}

	assert.Equal(t, vec3.Box{Min: vec3.T{-4, 0, 0}, Max: vec3.T{3, 1, 0}}, a.BBox)
	assert.Len(t, a.Vertices, 9)
	assert.Len(t, a.Indices, 18)
}

func TestAssemble_BaseVertex(t *testing.T) {
	meshes := []mesh{
		{Name: "a", Submeshes: []submesh{triangle(0, 0, 1), triangle(0, 5, 1)}},
	}

	a, err := assemble(meshes)
	require.NoError(t, err)

	// Every LOD draws the same corners as LOD 0 of its submesh, whatever the
	// vertex order chosen for fetch.
	corners := func(s xgeom.Submesh) []vec3.T {
		var out []vec3.T
		for _, idx := range a.Indices[s.Index : s.Index+s.NumIndices] {
			require.Less(t, int(idx), len(a.Vertices))
			out = append(out, a.Vertices[idx].Position)
		}
		return out
	}
	assert.Equal(t, corners(a.Submeshes[0]), corners(a.Submeshes[2]))
	assert.Equal(t, corners(a.Submeshes[1]), corners(a.Submeshes[3]))
	assert.Equal(t, []vec3.T{{5, 0, 0}, {6, 0, 0}, {5, 1, 0}}, corners(a.Submeshes[1]))
}

func TestAssemble_Attributes(t *testing.T) {
	first := triangle(0, 0, 0)
	first.NumUVs = 1
	first.HasColor = true
	second := triangle(1, 0, 0)
	second.NumUVs = 3
	second.NumWeights = 2
	second.HasBTN = true

	a, err := assemble([]mesh{{Name: "m", Submeshes: []submesh{first, second}}})
	require.NoError(t, err)

	assert.Equal(t, 3, a.NumUVs)
	assert.Equal(t, 2, a.NumWeights)
	assert.True(t, a.HasColor)
	assert.False(t, a.HasNormal)
	assert.True(t, a.HasBTN)
}

func TestAssemble_Limit(t *testing.T) {
	m := mesh{Name: "many", Submeshes: make([]submesh, 1<<16)}
	_, err := assemble([]mesh{m})
	assert.ErrorIs(t, err, ErrLimit)
}

func TestLODTarget(t *testing.T) {
	tests := []struct {
		base      int
		reduction float32
		rank      int
		want      int
	}{
		{6, 0.5, 1, 3},
		{6, 0.5, 2, 0},
		{384, 0.5, 1, 192},
		{384, 0.5, 2, 96},
		{384, 0.7, 1, 267},
	}

	for _, tt := range tests {
		if got := lodTarget(tt.base, tt.reduction, tt.rank); got != tt.want {
			t.Errorf("lodTarget(%d, %g, %d) = %d, want %d", tt.base, tt.reduction, tt.rank, got, tt.want)
		}
	}
}

func TestMeshName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"crate", "crate"},
		{strings.Repeat("x", 31), strings.Repeat("x", 31)},
		{strings.Repeat("x", 40), strings.Repeat("x", 31)},
		{"a" + strings.Repeat("가", 11), "a" + strings.Repeat("가", 10)},
		{"ab" + strings.Repeat("가", 11), "ab" + strings.Repeat("가", 9)},
	}

	for _, tt := range tests {
		got := meshName(tt.name)
		assert.Equal(t, tt.want, got)
		assert.True(t, utf8.ValidString(got), "meshName(%q) = %q", tt.name, got)
		assert.Less(t, len(got), xgeom.MeshNameSize)
	}
}

// gridSubmesh returns an n×n planar quad grid.
func gridSubmesh(n int) submesh {
	var sm submesh
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			sm.Vertices = append(sm.Vertices, vertex{Position: vec3.T{float32(x), float32(y), 0}})
		}
	}
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			a := y*row + x
			sm.Indices = append(sm.Indices, a, a+1, a+row+1, a, a+row+1, a+row)
		}
	}
	return sm
}

func TestGenerateLODs(t *testing.T) {
	sm := gridSubmesh(8)
	generateLODs(&sm, 0.5, 4)

	require.NotEmpty(t, sm.LODs)
	assert.LessOrEqual(t, len(sm.LODs), 3)

	prev := len(sm.Indices)
	for i, l := range sm.LODs {
		assert.Less(t, len(l.Indices), prev, "LOD %d", i+1)
		assert.Zero(t, len(l.Indices)%3)
		for _, idx := range l.Indices {
			assert.Less(t, int(idx), len(sm.Vertices))
		}
		prev = len(l.Indices)
	}
	assert.Len(t, sm.Vertices, 81)
}

func TestGenerateLODs_Stops(t *testing.T) {
	tests := []struct {
		name    string
		sm      submesh
		maxLODs int
	}{
		{"single LOD", gridSubmesh(8), 1},
		{"border-only quad", gridSubmesh(1), 3},
		{"no triangles", submesh{}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := tt.sm
			generateLODs(&sm, 0.5, tt.maxLODs)
			assert.Empty(t, sm.LODs)
		})
	}
}
