package importer

import (
	"errors"
	"fmt"
	"os"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/geomc/pkg/raw3d"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidRSMCount       = errors.New("invalid RSM record count")
)

const rsmNameSize = 40

// RSMVersion is the RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// RSMTexCoord is a texture coordinate with its vertex color.
type RSMTexCoord struct {
	Color raw3d.Color // white before v1.2
	UV    vec2.T
}

// RSMFace is a triangle of a node.
type RSMFace struct {
	VertexIDs   [3]uint16
	TexCoordIDs [3]uint16
	TextureID   uint16 // index into the node's TextureIDs
	TwoSide     bool
}

// RSMNode is one node of the model hierarchy.
type RSMNode struct {
	Name       string
	Parent     string
	TextureIDs []int32 // indices into RSMModel.Textures

	Matrix   [9]float32 // column-major 3x3, applied to vertices only
	Offset   vec3.T     // applied to vertices only
	Position vec3.T
	RotAngle float32
	RotAxis  vec3.T
	Scale    vec3.T

	Vertices  []vec3.T
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	// RotKeys holds rotation keyframes as x, y, z, w quaternions.
	RotKeys [][4]float32
}

// RSMModel is a parsed RSM (Resource Model) file.
type RSMModel struct {
	Version    RSMVersion
	AnimLength int32
	Textures   []string
	RootNode   string
	Nodes      []RSMNode
}

// ParseRSM parses RSM data from a byte slice. Versions 1.1 through 1.5 are
// supported.
func ParseRSM(data []byte) (*RSMModel, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != "GRSM" {
		return nil, ErrInvalidRSMMagic
	}

	r := &binReader{data: data, off: 4, errTruncated: ErrTruncatedRSMData, errCount: ErrInvalidRSMCount}
	m := &RSMModel{Version: RSMVersion{Major: r.u8(), Minor: r.u8()}}
	if m.Version.Major != 1 || m.Version.Minor < 1 || m.Version.Minor > 5 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRSMVersion, m.Version)
	}

	m.AnimLength = r.i32()
	r.i32() // shading
	if m.Version.AtLeast(1, 4) {
		r.u8() // alpha
	}
	r.next(16) // reserved

	m.Textures = make([]string, r.count(rsmNameSize))
	for i := range m.Textures {
		m.Textures[i] = r.str(rsmNameSize)
	}
	m.RootNode = r.str(rsmNameSize)

	m.Nodes = make([]RSMNode, r.count(1))
	for i := range m.Nodes {
		parseRSMNode(r, m.Version, &m.Nodes[i])
		if r.err != nil {
			return nil, fmt.Errorf("parsing node %d: %w", i, r.err)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func parseRSMNode(r *binReader, version RSMVersion, node *RSMNode) {
	node.Name = r.str(rsmNameSize)
	node.Parent = r.str(rsmNameSize)

	node.TextureIDs = make([]int32, r.count(4))
	for i := range node.TextureIDs {
		node.TextureIDs[i] = r.i32()
	}

	for i := range node.Matrix {
		node.Matrix[i] = r.f32()
	}
	node.Offset = r.vec3()
	node.Position = r.vec3()
	node.RotAngle = r.f32()
	node.RotAxis = r.vec3()
	node.Scale = r.vec3()

	node.Vertices = make([]vec3.T, r.count(12))
	for i := range node.Vertices {
		node.Vertices[i] = r.vec3()
	}

	texCoordSize := 8
	if version.AtLeast(1, 2) {
		texCoordSize = 12
	}
	node.TexCoords = make([]RSMTexCoord, r.count(texCoordSize))
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		tc.Color = raw3d.White
		if version.AtLeast(1, 2) {
			copy(tc.Color[:], r.next(4))
		}
		tc.UV = vec2.T{r.f32(), r.f32()}
	}

	faceSize := 20
	if version.AtLeast(1, 2) {
		faceSize = 24
	}
	node.Faces = make([]RSMFace, r.count(faceSize))
	for i := range node.Faces {
		f := &node.Faces[i]
		for k := range f.VertexIDs {
			f.VertexIDs[k] = r.u16()
		}
		for k := range f.TexCoordIDs {
			f.TexCoordIDs[k] = r.u16()
		}
		f.TextureID = r.u16()
		r.u16() // padding
		f.TwoSide = r.i32() != 0
		if version.AtLeast(1, 2) {
			r.i32() // smoothing group
		}
	}

	// Position keyframes before v1.5: frame + xyz.
	if !version.AtLeast(1, 5) {
		r.next(r.count(16) * 16)
	}

	node.RotKeys = make([][4]float32, r.count(20))
	for i := range node.RotKeys {
		r.i32() // frame
		node.RotKeys[i] = [4]float32{r.f32(), r.f32(), r.f32(), r.f32()}
	}

	// Scale keyframes from v1.5: frame + xyz.
	if version.AtLeast(1, 5) {
		r.next(r.count(16) * 16)
	}
}

// ParseRSMFile parses an RSM file from disk.
func ParseRSMFile(path string) (*RSMModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RSM file: %w", err)
	}
	return ParseRSM(data)
}

// NodeByName returns a node by its name, or nil if not found.
func (m *RSMModel) NodeByName(name string) *RSMNode {
	for i := range m.Nodes {
		if m.Nodes[i].Name == name {
			return &m.Nodes[i]
		}
	}
	return nil
}

// RSM imports Ragnarok Online models. Each node becomes a raw mesh in its
// rest pose and each model texture a raw material. Two-sided faces get a
// reversed back face.
type RSM struct{}

// Import reads an RSM file.
func (RSM) Import(path string) (*raw3d.Geom, error) {
	m, err := ParseRSMFile(path)
	if err != nil {
		return nil, err
	}
	return m.Raw(), nil
}

// Decode parses RSM data.
func (RSM) Decode(data []byte) (*raw3d.Geom, error) {
	m, err := ParseRSM(data)
	if err != nil {
		return nil, err
	}
	return m.Raw(), nil
}

// Raw converts the model's rest pose into a raw mesh.
func (m *RSMModel) Raw() *raw3d.Geom {
	g := &raw3d.Geom{}
	for _, tex := range m.Textures {
		g.Materials = append(g.Materials, raw3d.Material{Name: tex})
	}
	if len(g.Materials) == 0 {
		g.Materials = append(g.Materials, raw3d.Material{Name: "default"})
	}

	for ni := range m.Nodes {
		node := &m.Nodes[ni]
		g.Meshes = append(g.Meshes, raw3d.Mesh{Name: node.Name})

		for _, face := range node.Faces {
			if !faceInRange(node, face) {
				continue
			}
			material := 0
			if int(face.TextureID) < len(node.TextureIDs) {
				if t := int(node.TextureIDs[face.TextureID]); t >= 0 && t < len(g.Materials) {
					material = t
				}
			}

			m.addFace(g, node, face, ni, material, [3]int{0, 1, 2})
			if face.TwoSide {
				m.addFace(g, node, face, ni, material, [3]int{2, 1, 0})
			}
		}
	}
	return g
}

func faceInRange(node *RSMNode, face RSMFace) bool {
	for k := 0; k < 3; k++ {
		if int(face.VertexIDs[k]) >= len(node.Vertices) || int(face.TexCoordIDs[k]) >= len(node.TexCoords) {
			return false
		}
	}
	return true
}

func (m *RSMModel) addFace(g *raw3d.Geom, node *RSMNode, face RSMFace, mesh, material int, corners [3]int) {
	var f raw3d.Facet
	f.Mesh = mesh
	f.Material = material
	for k, c := range corners {
		pos := m.transform(node, node.Vertices[face.VertexIDs[c]])
		// RSM is Y-down.
		pos[1] = -pos[1]

		tc := node.TexCoords[face.TexCoordIDs[c]]
		v := raw3d.Vertex{Position: pos, NumUVs: 1, NumColors: 1}
		v.UV[0] = tc.UV
		v.Colors[0] = tc.Color

		f.Vertex[k] = len(g.Vertices)
		g.Vertices = append(g.Vertices, v)
	}
	g.Facets = append(g.Facets, f)
}

// transform maps a node-space vertex to model space: the node's vertex
// matrix and offset, then the node's placement and that of every ancestor.
func (m *RSMModel) transform(node *RSMNode, v vec3.T) vec3.T {
	a := node.Matrix
	p := r3.Vec{
		X: float64(a[0]*v[0] + a[3]*v[1] + a[6]*v[2] + node.Offset[0]),
		Y: float64(a[1]*v[0] + a[4]*v[1] + a[7]*v[2] + node.Offset[1]),
		Z: float64(a[2]*v[0] + a[5]*v[1] + a[8]*v[2] + node.Offset[2]),
	}

	visited := make(map[string]bool)
	for n := node; n != nil && !visited[n.Name]; {
		visited[n.Name] = true
		p = place(n, p)
		if n.Parent == "" || n.Parent == n.Name {
			break
		}
		n = m.NodeByName(n.Parent)
	}
	return vec3.T{float32(p.X), float32(p.Y), float32(p.Z)}
}

// place applies a node's scale, rotation and translation.
func place(n *RSMNode, p r3.Vec) r3.Vec {
	p = r3.Vec{X: p.X * float64(n.Scale[0]), Y: p.Y * float64(n.Scale[1]), Z: p.Z * float64(n.Scale[2])}

	if len(n.RotKeys) > 0 {
		k := n.RotKeys[0]
		q := quat.Number{Real: float64(k[3]), Imag: float64(k[0]), Jmag: float64(k[1]), Kmag: float64(k[2])}
		if abs := quat.Abs(q); abs > 0 {
			p = r3.Rotation(quat.Scale(1/abs, q)).Rotate(p)
		}
	} else if n.RotAngle != 0 {
		axis := r3.Vec{X: float64(n.RotAxis[0]), Y: float64(n.RotAxis[1]), Z: float64(n.RotAxis[2])}
		if r3.Norm(axis) > 1e-6 {
			p = r3.NewRotation(float64(n.RotAngle), r3.Unit(axis)).Rotate(p)
		}
	}

	return r3.Add(p, r3.Vec{X: float64(n.Position[0]), Y: float64(n.Position[1]), Z: float64(n.Position[2])})
}
