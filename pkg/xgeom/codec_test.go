package xgeom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/flywave/go3d/vec3"
)

func TestEncodeParse_RoundTrip(t *testing.T) {
	g := triangle()
	g.Meshes[0].BBox = vec3.Box{Min: vec3.T{0, 1, 2}, Max: vec3.T{2, 3, 4}}
	g.BBox = g.Meshes[0].BBox
	g.Submeshes[0].Material = 3
	g.LODs[0].ScreenArea = 0.5

	data, err := Marshal(g)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if !reflect.DeepEqual(got.Meshes, g.Meshes) {
		t.Errorf("meshes = %+v, want %+v", got.Meshes, g.Meshes)
	}
	if !reflect.DeepEqual(got.Submeshes, g.Submeshes) {
		t.Errorf("submeshes = %+v, want %+v", got.Submeshes, g.Submeshes)
	}
	if !reflect.DeepEqual(got.LODs, g.LODs) {
		t.Errorf("lods = %+v, want %+v", got.LODs, g.LODs)
	}
	if !reflect.DeepEqual(got.StreamInfos, g.StreamInfos) {
		t.Errorf("stream infos = %+v, want %+v", got.StreamInfos, g.StreamInfos)
	}
	if !bytes.Equal(got.Data, g.Data) {
		t.Error("packed data differs after round trip")
	}
	if got.StreamOffsets != g.StreamOffsets || got.BBox != g.BBox {
		t.Errorf("header = %v %+v, want %v %+v", got.StreamOffsets, got.BBox, g.StreamOffsets, g.BBox)
	}
	if got.NumIndices != 3 || got.NumVertices != 3 || got.NumMaterials != 1 ||
		got.NumStreams != 2 || got.CompactedVertexSize != 16 || got.StreamTypes != g.StreamTypes {
		t.Errorf("scalar fields differ: %+v", got)
	}
	if len(got.Bones) != 0 || len(got.DLists) != 0 {
		t.Errorf("expected empty bone and display-list tables, got %d and %d", len(got.Bones), len(got.DLists))
	}

	again, err := Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() of decoded asset: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("re-encoding a decoded asset changed its bytes")
	}
}

func TestParse_Errors(t *testing.T) {
	valid, err := Marshal(triangle())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:], 99)

	hugeCount := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(hugeCount[8:], 1<<30)

	// corrupt encodes a triangle whose tables disagree with each other.
	corrupt := func(mutate func(g *Geom)) []byte {
		g := triangle()
		mutate(g)
		data, err := Marshal(g)
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		return data
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty data", nil, ErrTruncated},
		{"invalid magic", append([]byte("XXXX"), valid[4:]...), ErrInvalidMagic},
		{"unsupported version", badVersion, ErrUnsupportedVersion},
		{"truncated tables", valid[:len(valid)-3], ErrTruncated},
		{"oversized table count", hugeCount, ErrTruncated},
		{"stream count past limit", corrupt(func(g *Geom) {
			g.NumStreams = 9
			g.StreamInfos[2].Stream = 8
		}), ErrInvalidLayout},
		{"descriptor past stream count", corrupt(func(g *Geom) { g.StreamInfos[2].Stream = 5 }), ErrInvalidLayout},
		{"mesh LODs past table", corrupt(func(g *Geom) { g.Meshes[0].NumLODs = 3 }), ErrInvalidIndex},
		{"LOD submeshes past table", corrupt(func(g *Geom) { g.LODs[0].Submesh = 1 }), ErrInvalidIndex},
		{"index past vertex count", corrupt(func(g *Geom) {
			PutElement(g.StreamInfoData(0), FormatUint16x1, 7)
		}), ErrInvalidIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Parse(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if g != nil {
				t.Errorf("Parse() returned a geometry along with error %v", err)
			}
		})
	}
}

func TestEncode_NameTooLong(t *testing.T) {
	g := triangle()
	g.Meshes[0].Name = strings.Repeat("x", MeshNameSize)
	if _, err := Marshal(g); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Marshal() error = %v, want %v", err, ErrNameTooLong)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tri.xgeom")

	if err := WriteFile(path, triangle()); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	g, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if g.FindMesh("tri") != 0 {
		t.Errorf("expected mesh 'tri' in written asset")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the asset in %s, found %d entries", dir, len(entries))
	}
}

func TestWriteFile_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tri.xgeom")

	g := triangle()
	g.Meshes[0].Name = strings.Repeat("x", 40)
	if err := WriteFile(path, g); err == nil {
		t.Fatal("expected error for overlong mesh name")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files after failed write, found %d", len(entries))
	}

	if err := WriteFile(filepath.Join(dir, "missing", "tri.xgeom"), triangle()); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}

func TestReadFile_NotFound(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.xgeom")); err == nil {
		t.Error("expected error for missing file")
	}
}
