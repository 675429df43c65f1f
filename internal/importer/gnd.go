package importer

import (
	"errors"
	"fmt"
	"os"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"github.com/Faultbox/geomc/pkg/raw3d"
)

// GND format errors.
var (
	ErrInvalidGNDMagic       = errors.New("invalid GND magic: expected 'GRGN'")
	ErrUnsupportedGNDVersion = errors.New("unsupported GND version")
	ErrTruncatedGNDData      = errors.New("truncated GND data")
	ErrInvalidGNDCount       = errors.New("invalid GND record count")
	ErrInvalidGNDDimensions  = errors.New("invalid GND dimensions")
)

const (
	gndMaxDimension = 1024
	gndSurfaceSize  = 40
	gndTileSize     = 28

	// Altitude differences below this don't get a wall.
	gndWallEpsilon = 0.001
)

// GNDVersion is the GND file version.
type GNDVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v GNDVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// GNDSurface is a textured quad face.
type GNDSurface struct {
	U          [4]float32
	V          [4]float32
	TextureID  int16 // -1 = no texture
	LightmapID int16
	Color      [4]uint8 // BGRA
}

// GNDTile is one ground cell.
type GNDTile struct {
	Altitude     [4]float32 // bottom-left, bottom-right, top-left, top-right; Y-down
	TopSurface   int32      // -1 = none
	FrontSurface int32
	RightSurface int32
}

// GNDGround is a parsed GND (ground) file. Lightmaps are skipped.
type GNDGround struct {
	Version  GNDVersion
	Width    uint32
	Height   uint32
	Zoom     float32 // tile edge length
	Textures []string
	Surfaces []GNDSurface
	Tiles    []GNDTile
}

// Tile returns the tile at x, y, or nil when out of bounds.
func (gnd *GNDGround) Tile(x, y int) *GNDTile {
	if x < 0 || y < 0 || x >= int(gnd.Width) || y >= int(gnd.Height) {
		return nil
	}
	return &gnd.Tiles[y*int(gnd.Width)+x]
}

// surface returns a surface that maps to a known texture, or nil.
func (gnd *GNDGround) surface(id int32) *GNDSurface {
	if id < 0 || int(id) >= len(gnd.Surfaces) {
		return nil
	}
	s := &gnd.Surfaces[id]
	if s.TextureID < 0 || int(s.TextureID) >= len(gnd.Textures) {
		return nil
	}
	return s
}

// ParseGND parses GND data from a byte slice. Versions 1.5 through 1.9 are
// supported.
func ParseGND(data []byte) (*GNDGround, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedGNDData
	}
	if string(data[:4]) != "GRGN" {
		return nil, ErrInvalidGNDMagic
	}

	r := &binReader{data: data, off: 4, errTruncated: ErrTruncatedGNDData, errCount: ErrInvalidGNDCount}
	gnd := &GNDGround{Version: GNDVersion{Major: r.u8(), Minor: r.u8()}}
	if gnd.Version.Major != 1 || gnd.Version.Minor < 5 || gnd.Version.Minor > 9 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGNDVersion, gnd.Version)
	}

	gnd.Width = r.u32()
	gnd.Height = r.u32()
	gnd.Zoom = r.f32()
	if r.err != nil {
		return nil, r.err
	}
	if gnd.Width == 0 || gnd.Height == 0 || gnd.Width > gndMaxDimension || gnd.Height > gndMaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGNDDimensions, gnd.Width, gnd.Height)
	}

	textureCount := r.u32()
	nameLen := r.checkCount(int64(r.u32()), 1)
	gnd.Textures = make([]string, r.checkCount(int64(textureCount), nameLen))
	for i := range gnd.Textures {
		gnd.Textures[i] = r.str(nameLen)
	}
	if r.err != nil {
		return nil, fmt.Errorf("reading textures: %w", r.err)
	}

	skipLightmaps(r)
	if r.err != nil {
		return nil, fmt.Errorf("reading lightmaps: %w", r.err)
	}

	gnd.Surfaces = make([]GNDSurface, r.count(gndSurfaceSize))
	for i := range gnd.Surfaces {
		s := &gnd.Surfaces[i]
		for k := range s.U {
			s.U[k] = r.f32()
		}
		for k := range s.V {
			s.V[k] = r.f32()
		}
		s.TextureID = r.i16()
		s.LightmapID = r.i16()
		copy(s.Color[:], r.next(4))
	}
	if r.err != nil {
		return nil, fmt.Errorf("reading surfaces: %w", r.err)
	}

	gnd.Tiles = make([]GNDTile, r.checkCount(int64(gnd.Width)*int64(gnd.Height), gndTileSize))
	for i := range gnd.Tiles {
		t := &gnd.Tiles[i]
		for k := range t.Altitude {
			t.Altitude[k] = r.f32()
		}
		t.TopSurface = r.i32()
		t.FrontSurface = r.i32()
		t.RightSurface = r.i32()
	}
	if r.err != nil {
		return nil, fmt.Errorf("reading tiles: %w", r.err)
	}
	return gnd, nil
}

// skipLightmaps steps over the lightmap block: count, width, height and
// cells, then per lightmap width*height*cells brightness bytes followed by
// three times as many color bytes.
func skipLightmaps(r *binReader) {
	count := r.u32()
	pixels := 1
	for _, dim := range []uint32{r.u32(), r.u32(), r.u32()} {
		n := r.checkCount(int64(dim), 1)
		if n == 0 {
			pixels = 0
			continue
		}
		pixels = r.checkCount(int64(pixels)*int64(n), 1)
	}
	r.next(r.checkCount(int64(count), pixels*4) * pixels * 4)
}

// ParseGNDFile parses a GND file from disk.
func ParseGNDFile(path string) (*GNDGround, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading GND file: %w", err)
	}
	return ParseGND(data)
}

// GND imports Ragnarok Online ground meshes. The whole ground becomes one raw
// mesh named "ground" and each ground texture a raw material.
type GND struct{}

// Import reads a GND file.
func (GND) Import(path string) (*raw3d.Geom, error) {
	gnd, err := ParseGNDFile(path)
	if err != nil {
		return nil, err
	}
	return gnd.Raw(), nil
}

// Decode parses GND data.
func (GND) Decode(data []byte) (*raw3d.Geom, error) {
	gnd, err := ParseGND(data)
	if err != nil {
		return nil, err
	}
	return gnd.Raw(), nil
}

// Raw builds the ground mesh: a top quad per textured tile, plus walls where
// a tile's edge doesn't meet its front or right neighbor. Altitudes are
// negated so the result is Y-up.
func (gnd *GNDGround) Raw() *raw3d.Geom {
	g := &raw3d.Geom{Meshes: []raw3d.Mesh{{Name: "ground"}}}
	for _, tex := range gnd.Textures {
		g.Materials = append(g.Materials, raw3d.Material{Name: tex})
	}
	if len(g.Materials) == 0 {
		g.Materials = append(g.Materials, raw3d.Material{Name: "default"})
	}

	size := gnd.Zoom
	for y := 0; y < int(gnd.Height); y++ {
		for x := 0; x < int(gnd.Width); x++ {
			tile := gnd.Tile(x, y)
			baseX := float32(x) * size
			baseZ := float32(y) * size
			corners := [4]vec3.T{
				{baseX, -tile.Altitude[0], baseZ + size},
				{baseX + size, -tile.Altitude[1], baseZ + size},
				{baseX, -tile.Altitude[2], baseZ},
				{baseX + size, -tile.Altitude[3], baseZ},
			}

			if s := gnd.surface(tile.TopSurface); s != nil {
				e1 := vec3.Sub(&corners[1], &corners[0])
				e2 := vec3.Sub(&corners[2], &corners[0])
				normal := vec3.Cross(&e1, &e2)
				if normal.Length() < 1e-4 {
					normal = vec3.T{0, 1, 0}
				} else {
					normal.Normalize()
				}
				color := raw3d.Color{s.Color[2], s.Color[1], s.Color[0], s.Color[3]}
				uvs := [4]vec2.T{{s.U[2], s.V[2]}, {s.U[3], s.V[3]}, {s.U[0], s.V[0]}, {s.U[1], s.V[1]}}
				addQuad(g, int(s.TextureID), corners, uvs, normal, color, [6]int{0, 1, 2, 2, 1, 3})
			}

			if next := gnd.Tile(x, y+1); next != nil &&
				(absf(tile.Altitude[0]-next.Altitude[2]) > gndWallEpsilon ||
					absf(tile.Altitude[1]-next.Altitude[3]) > gndWallEpsilon) {
				wall := [4]vec3.T{
					corners[0],
					corners[1],
					{baseX, -next.Altitude[2], baseZ + size},
					{baseX + size, -next.Altitude[3], baseZ + size},
				}
				gnd.addWall(g, tile, tile.FrontSurface, wall, vec3.T{0, 0, -1})
			}

			if next := gnd.Tile(x+1, y); next != nil &&
				(absf(tile.Altitude[1]-next.Altitude[0]) > gndWallEpsilon ||
					absf(tile.Altitude[3]-next.Altitude[2]) > gndWallEpsilon) {
				wall := [4]vec3.T{
					corners[3],
					corners[1],
					{baseX + size, -next.Altitude[2], baseZ},
					{baseX + size, -next.Altitude[0], baseZ + size},
				}
				gnd.addWall(g, tile, tile.RightSurface, wall, vec3.T{1, 0, 0})
			}
		}
	}
	return g
}

// addWall adds a wall quad textured with its own surface, or with the tile's
// top texture stretched over the quad when it has none.
func (gnd *GNDGround) addWall(g *raw3d.Geom, tile *GNDTile, surface int32, corners [4]vec3.T, normal vec3.T) {
	var uvs [4]vec2.T
	s := gnd.surface(surface)
	if s != nil {
		for k := range uvs {
			uvs[k] = vec2.T{s.U[k], s.V[k]}
		}
	} else if s = gnd.surface(tile.TopSurface); s != nil {
		uvs = [4]vec2.T{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	} else {
		return
	}
	addQuad(g, int(s.TextureID), corners, uvs, normal, raw3d.White, [6]int{0, 2, 1, 1, 2, 3})
}

func addQuad(g *raw3d.Geom, material int, corners [4]vec3.T, uvs [4]vec2.T, normal vec3.T, color raw3d.Color, order [6]int) {
	base := len(g.Vertices)
	for k := range corners {
		v := raw3d.Vertex{Position: corners[k], NumUVs: 1, NumColors: 1, NumNormals: 1}
		v.UV[0] = uvs[k]
		v.Colors[0] = color
		v.BTN[0].Normal = normal
		g.Vertices = append(g.Vertices, v)
	}
	for t := 0; t < 2; t++ {
		g.Facets = append(g.Facets, raw3d.Facet{
			Mesh:     0,
			Material: material,
			Vertex:   [3]int{base + order[t*3], base + order[t*3+1], base + order[t*3+2]},
		})
	}
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
