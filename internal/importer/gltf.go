package importer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/geomc/pkg/raw3d"
)

// glTF errors.
var (
	ErrNoPositions     = errors.New("glTF primitive has no POSITION attribute")
	ErrInvalidAccessor = errors.New("glTF accessor index out of range")
	ErrInvalidIndex    = errors.New("glTF vertex index out of range")
)

// GLTF imports glTF 2.0 assets (.gltf and .glb). Each glTF mesh becomes a raw
// mesh and each glTF material a raw material. Vertices stay in mesh space.
type GLTF struct{}

// Import reads a glTF file.
func (GLTF) Import(path string) (*raw3d.Geom, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading glTF file: %w", err)
	}
	return FromDocument(doc)
}

// Decode parses a glTF document held in memory. Buffers must be embedded,
// as in .glb files or data URIs.
func (GLTF) Decode(data []byte) (*raw3d.Geom, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decoding glTF: %w", err)
	}
	return FromDocument(doc)
}

// FromDocument converts a decoded glTF document.
func FromDocument(doc *gltf.Document) (*raw3d.Geom, error) {
	g := &raw3d.Geom{}

	for _, m := range doc.Materials {
		g.Materials = append(g.Materials, raw3d.Material{Name: m.Name})
	}
	defaultMaterial := -1

	for mi, m := range doc.Meshes {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("mesh%d", mi)
		}
		g.Meshes = append(g.Meshes, raw3d.Mesh{Name: name})

		for pi, p := range m.Primitives {
			if p.Mode != gltf.PrimitiveTriangles {
				continue
			}

			material := defaultMaterial
			if p.Material != nil && int(*p.Material) < len(g.Materials) {
				material = int(*p.Material)
			} else if material < 0 {
				defaultMaterial = len(g.Materials)
				material = defaultMaterial
				g.Materials = append(g.Materials, raw3d.Material{Name: "default"})
			}

			if err := readPrimitive(doc, p, g, mi, material); err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d: %w", name, pi, err)
			}
		}
	}

	if len(doc.Skins) > 0 {
		g.Bones = readSkeleton(doc, doc.Skins[0])
	}
	return g, nil
}

func accessor(doc *gltf.Document, idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccessor, idx)
	}
	return doc.Accessors[idx], nil
}

func readPrimitive(doc *gltf.Document, p *gltf.Primitive, g *raw3d.Geom, mesh, material int) error {
	posIdx, ok := p.Attributes["POSITION"]
	if !ok {
		return ErrNoPositions
	}
	acr, err := accessor(doc, posIdx)
	if err != nil {
		return err
	}
	positions, err := modeler.ReadPosition(doc, acr, nil)
	if err != nil {
		return fmt.Errorf("reading positions: %w", err)
	}

	base := len(g.Vertices)
	vertices := make([]raw3d.Vertex, len(positions))
	for i, pos := range positions {
		vertices[i].Position = vec3.T(pos)
	}

	if idx, ok := p.Attributes["NORMAL"]; ok {
		acr, err := accessor(doc, idx)
		if err != nil {
			return err
		}
		normals, err := modeler.ReadNormal(doc, acr, nil)
		if err != nil {
			return fmt.Errorf("reading normals: %w", err)
		}
		for i := 0; i < len(normals) && i < len(vertices); i++ {
			vertices[i].BTN[0].Normal = vec3.T(normals[i])
			vertices[i].NumNormals = 1
		}
	}

	if idx, ok := p.Attributes["TANGENT"]; ok {
		acr, err := accessor(doc, idx)
		if err != nil {
			return err
		}
		tangents, err := modeler.ReadTangent(doc, acr, nil)
		if err != nil {
			return fmt.Errorf("reading tangents: %w", err)
		}
		for i := 0; i < len(tangents) && i < len(vertices); i++ {
			v := &vertices[i]
			t := tangents[i]
			v.BTN[0].Tangent = vec3.T{t[0], t[1], t[2]}
			// w carries the handedness of the frame.
			b := vec3.Cross(&v.BTN[0].Normal, &v.BTN[0].Tangent)
			v.BTN[0].Binormal = *b.Scale(t[3])
			v.NumTangents = 1
		}
	}

	for c := 0; c < raw3d.MaxUVs; c++ {
		idx, ok := p.Attributes[fmt.Sprintf("TEXCOORD_%d", c)]
		if !ok {
			break
		}
		acr, err := accessor(doc, idx)
		if err != nil {
			return err
		}
		uvs, err := modeler.ReadTextureCoord(doc, acr, nil)
		if err != nil {
			return fmt.Errorf("reading TEXCOORD_%d: %w", c, err)
		}
		for i := 0; i < len(uvs) && i < len(vertices); i++ {
			vertices[i].UV[c] = vec2.T(uvs[i])
			vertices[i].NumUVs = c + 1
		}
	}

	if idx, ok := p.Attributes["COLOR_0"]; ok {
		acr, err := accessor(doc, idx)
		if err != nil {
			return err
		}
		colors, err := modeler.ReadColor(doc, acr, nil)
		if err != nil {
			return fmt.Errorf("reading colors: %w", err)
		}
		for i := 0; i < len(colors) && i < len(vertices); i++ {
			vertices[i].Colors[0] = raw3d.Color(colors[i])
			vertices[i].NumColors = 1
		}
	}

	if err := readSkin(doc, p, vertices); err != nil {
		return err
	}

	var indices []uint32
	if p.Indices != nil {
		acr, err := accessor(doc, *p.Indices)
		if err != nil {
			return err
		}
		if indices, err = modeler.ReadIndices(doc, acr, nil); err != nil {
			return fmt.Errorf("reading indices: %w", err)
		}
		for i, idx := range indices {
			if int(idx) >= len(vertices) {
				return fmt.Errorf("%w: index %d is %d, vertex count %d", ErrInvalidIndex, i, idx, len(vertices))
			}
		}
	} else {
		indices = make([]uint32, len(vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	g.Vertices = append(g.Vertices, vertices...)
	for i := 0; i+2 < len(indices); i += 3 {
		g.Facets = append(g.Facets, raw3d.Facet{
			Mesh:     mesh,
			Material: material,
			Vertex:   [3]int{base + int(indices[i]), base + int(indices[i+1]), base + int(indices[i+2])},
		})
	}
	return nil
}

// readSkin fills the non-zero joint weights of each vertex.
func readSkin(doc *gltf.Document, p *gltf.Primitive, vertices []raw3d.Vertex) error {
	jointIdx, hasJoints := p.Attributes["JOINTS_0"]
	weightIdx, hasWeights := p.Attributes["WEIGHTS_0"]
	if !hasJoints || !hasWeights {
		return nil
	}

	acr, err := accessor(doc, jointIdx)
	if err != nil {
		return err
	}
	joints, err := modeler.ReadJoints(doc, acr, nil)
	if err != nil {
		return fmt.Errorf("reading joints: %w", err)
	}
	if acr, err = accessor(doc, weightIdx); err != nil {
		return err
	}
	weights, err := modeler.ReadWeights(doc, acr, nil)
	if err != nil {
		return fmt.Errorf("reading weights: %w", err)
	}

	for i := 0; i < len(vertices) && i < len(joints) && i < len(weights); i++ {
		v := &vertices[i]
		for k := 0; k < 4 && v.NumWeights < raw3d.MaxWeights; k++ {
			if weights[i][k] <= 0 {
				continue
			}
			v.Weights[v.NumWeights] = raw3d.Weight{Bone: int32(joints[i][k]), Weight: weights[i][k]}
			v.NumWeights++
		}
	}
	return nil
}

// readSkeleton returns the joints of skin in joint order.
func readSkeleton(doc *gltf.Document, skin *gltf.Skin) []raw3d.Bone {
	joint := make(map[uint32]int, len(skin.Joints))
	for i, n := range skin.Joints {
		joint[n] = i
	}

	bones := make([]raw3d.Bone, len(skin.Joints))
	for i := range bones {
		bones[i].Parent = -1
	}
	for i, n := range skin.Joints {
		if int(n) >= len(doc.Nodes) {
			continue
		}
		node := doc.Nodes[n]
		bones[i].Name = node.Name
		for _, child := range node.Children {
			if c, ok := joint[child]; ok {
				bones[c].Parent = i
			}
		}
	}
	return bones
}
