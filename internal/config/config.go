// Package config handles geometry compiler descriptor loading and management.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MaxUVChannels is the number of UV sets a descriptor can address.
const MaxUVChannels = 4

// Validation errors.
var (
	ErrNoMeshAsset      = errors.New("descriptor has no mesh asset")
	ErrInvalidReduction = errors.New("lod reduction must be in (0, 1)")
	ErrInvalidMaxLODs   = errors.New("max lods must be at least 1")
)

// Config is a geometry compiler descriptor.
type Config struct {
	Main    MainConfig    `yaml:"main" toml:"main"`
	Cleanup CleanupConfig `yaml:"cleanup" toml:"cleanup"`
	LOD     LODConfig     `yaml:"lod" toml:"lod"`
	Streams StreamsConfig `yaml:"streams" toml:"streams"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// MainConfig names the source asset and the output.
type MainConfig struct {
	MeshAsset       string `yaml:"mesh_asset" toml:"mesh_asset"`
	UseSkeletonFile string `yaml:"use_skeleton_file" toml:"use_skeleton_file"` // asset whose bones replace the mesh's own
	Output          string `yaml:"output" toml:"output"`                       // defaults to MeshAsset with an .xgeom extension

	// Archives are GRF files searched for assets not found on disk, last
	// one first.
	Archives []string `yaml:"archives,omitempty" toml:"archives,omitempty"`
}

// CleanupConfig controls raw mesh normalization and attribute removal.
type CleanupConfig struct {
	MergeMeshes         bool                `yaml:"merge_meshes" toml:"merge_meshes"`
	RenameMesh          string              `yaml:"rename_mesh" toml:"rename_mesh"`
	ForceAddColorIfNone bool                `yaml:"force_add_color_if_none" toml:"force_add_color_if_none"`
	RemoveColor         bool                `yaml:"remove_color" toml:"remove_color"`
	RemoveUVs           [MaxUVChannels]bool `yaml:"remove_uvs" toml:"remove_uvs"`
	RemoveBTN           bool                `yaml:"remove_btn" toml:"remove_btn"`
	RemoveBones         bool                `yaml:"remove_bones" toml:"remove_bones"`
}

// LODConfig controls level-of-detail generation.
type LODConfig struct {
	GenerateLODs bool    `yaml:"generate_lods" toml:"generate_lods"`
	LODReduction float32 `yaml:"lod_reduction" toml:"lod_reduction"` // index count factor per LOD step
	MaxLODs      int     `yaml:"max_lods" toml:"max_lods"`           // LOD 0 included
}

// StreamsConfig controls the vertex stream layout and attribute encoding.
type StreamsConfig struct {
	UseElementStreams bool                `yaml:"use_element_streams" toml:"use_element_streams"`
	SeparatePosition  bool                `yaml:"separate_position" toml:"separate_position"`
	CompressPosition  bool                `yaml:"compress_position" toml:"compress_position"`
	CompressBTN       bool                `yaml:"compress_btn" toml:"compress_btn"`
	CompressUV        [MaxUVChannels]bool `yaml:"compress_uv" toml:"compress_uv"`
	CompressWeights   bool                `yaml:"compress_weights" toml:"compress_weights"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with the compiler's default options.
func Default() *Config {
	return &Config{
		Cleanup: CleanupConfig{
			MergeMeshes:         true,
			RenameMesh:          "Master Mesh",
			ForceAddColorIfNone: true,
			RemoveColor:         false,
			RemoveBTN:           true,
			RemoveBones:         true,
		},
		LOD: LODConfig{
			GenerateLODs: false,
			LODReduction: 0.7,
			MaxLODs:      5,
		},
		Streams: StreamsConfig{
			UseElementStreams: false,
			SeparatePosition:  false,
			CompressPosition:  false,
			CompressBTN:       true,
			CompressWeights:   true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports the first option that makes the descriptor unusable.
func (c *Config) Validate() error {
	if c.Main.MeshAsset == "" {
		return ErrNoMeshAsset
	}
	if c.LOD.LODReduction <= 0 || c.LOD.LODReduction >= 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidReduction, c.LOD.LODReduction)
	}
	if c.LOD.MaxLODs < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxLODs, c.LOD.MaxLODs)
	}
	return nil
}

// OutputPath returns the destination asset path.
func (c *Config) OutputPath() string {
	if c.Main.Output != "" {
		return c.Main.Output
	}
	return strings.TrimSuffix(c.Main.MeshAsset, filepath.Ext(c.Main.MeshAsset)) + ".xgeom"
}
