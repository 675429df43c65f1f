// Package importer turns source mesh assets into raw triangle soups.
package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Faultbox/geomc/pkg/raw3d"
)

// ErrUnsupportedFormat is returned for assets no importer handles.
var ErrUnsupportedFormat = errors.New("unsupported asset format")

// Importer reads a source asset into a raw mesh.
type Importer interface {
	// Import reads the asset at path on disk.
	Import(path string) (*raw3d.Geom, error)
	// Decode parses an asset already read into memory.
	Decode(data []byte) (*raw3d.Geom, error)
}

// Reader provides asset bytes by path, e.g. from game archives.
type Reader interface {
	Read(path string) ([]byte, error)
}

// byExtension maps lower-case file extensions to importers.
var byExtension = map[string]Importer{
	".gltf": GLTF{},
	".glb":  GLTF{},
	".rsm":  RSM{},
	".gnd":  GND{},
}

// ForPath returns the importer for path's extension.
func ForPath(path string) (Importer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	imp, ok := byExtension[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return imp, nil
}

// Import reads path with the importer matching its extension.
func Import(path string) (*raw3d.Geom, error) {
	imp, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return imp.Import(path)
}

// ImportFrom reads path through r and decodes it with the importer matching
// its extension.
func ImportFrom(r Reader, path string) (*raw3d.Geom, error) {
	imp, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := r.Read(path)
	if err != nil {
		return nil, err
	}
	return imp.Decode(data)
}

// Extensions returns the supported file extensions, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
