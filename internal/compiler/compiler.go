// Package compiler turns raw meshes into packed runtime geometry assets.
//
// A Compiler runs one asset at a time: Load reads the source mesh, Compile
// builds submeshes, LOD chains, the stream layout and the packed data, and
// Serialize writes the result. Compilers share no state, so independent
// compiles may run concurrently on separate instances.
package compiler

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/geomc/internal/assets"
	"github.com/Faultbox/geomc/internal/config"
	"github.com/Faultbox/geomc/internal/importer"
	"github.com/Faultbox/geomc/pkg/raw3d"
	"github.com/Faultbox/geomc/pkg/xgeom"
)

// Compiler is a single-asset geometry compile pipeline.
type Compiler struct {
	log    *zap.Logger
	source importer.Reader // nil reads assets straight from disk

	raw      *raw3d.Geom
	numBones int // bone count from a skeleton override, -1 when unset

	geom  *xgeom.Geom
	stats Stats
}

// New creates a compiler that logs to log. A nil log discards output.
func New(log *zap.Logger) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{log: log, numBones: -1}
}

// SetSource makes Load and LoadSkeleton read assets through r.
func (c *Compiler) SetSource(r importer.Reader) {
	c.source = r
}

func (c *Compiler) importAsset(path string) (*raw3d.Geom, error) {
	if c.source == nil {
		return importer.Import(path)
	}
	return importer.ImportFrom(c.source, path)
}

// Load imports the source mesh at path.
func (c *Compiler) Load(path string) error {
	g, err := c.importAsset(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrImport, path, err)
	}
	c.log.Debug("loaded mesh",
		zap.String("path", path),
		zap.Int("meshes", len(g.Meshes)),
		zap.Int("materials", len(g.Materials)),
		zap.Int("vertices", len(g.Vertices)),
		zap.Int("facets", len(g.Facets)))
	c.raw = g
	return nil
}

// LoadSkeleton imports path only for its bone table, which then decides the
// bone index format in place of the mesh's own bones.
func (c *Compiler) LoadSkeleton(path string) error {
	g, err := c.importAsset(path)
	if err != nil {
		return fmt.Errorf("%w: skeleton %s: %w", ErrImport, path, err)
	}
	c.numBones = len(g.Bones)
	c.log.Debug("loaded skeleton", zap.String("path", path), zap.Int("bones", c.numBones))
	return nil
}

// SetRaw uses g as the source mesh. The compiler does not modify g.
func (c *Compiler) SetRaw(g *raw3d.Geom) {
	c.raw = g
}

// Geom returns the last compiled geometry, or nil.
func (c *Compiler) Geom() *xgeom.Geom {
	return c.geom
}

// Stats returns the diagnostics of the last compile.
func (c *Compiler) Stats() Stats {
	return c.stats
}

// Compile builds the runtime geometry from the loaded mesh. A raw mesh that
// breaks the facet ordering contract panics with *ContractViolation.
func (c *Compiler) Compile(cfg *config.Config) error {
	if c.raw == nil {
		return ErrNoSource
	}
	if cfg.Streams.CompressPosition {
		c.log.Warn("position compression is not supported, writing floats")
	}
	for ch, on := range cfg.Streams.CompressUV {
		if on {
			c.log.Warn("UV compression is not supported, writing floats", zap.Int("channel", ch))
		}
	}

	raw := c.raw.Clone()
	if len(raw.Materials) > math.MaxUint16 {
		return fmt.Errorf("%w: %d materials", ErrLimit, len(raw.Materials))
	}

	if cfg.Cleanup.ForceAddColorIfNone {
		raw.ForceAddColorIfNone()
	}
	if cfg.Cleanup.MergeMeshes {
		raw.CollapseMeshes(cfg.Cleanup.RenameMesh)
	}
	raw.CleanMesh()
	raw.SortFacetsByMeshMaterial()

	meshes := buildMeshes(raw, c.log)

	for mi := range meshes {
		for si := range meshes[mi].Submeshes {
			sm := &meshes[mi].Submeshes[si]
			if cfg.LOD.GenerateLODs {
				generateLODs(sm, cfg.LOD.LODReduction, cfg.LOD.MaxLODs)
			}
			optimizeSubmesh(sm)
		}
	}

	a, err := assemble(meshes)
	if err != nil {
		return err
	}

	g := &xgeom.Geom{
		Meshes:       a.Meshes,
		Submeshes:    a.Submeshes,
		LODs:         a.LODs,
		BBox:         a.BBox,
		NumIndices:   uint32(len(a.Indices)),
		NumVertices:  uint32(len(a.Vertices)),
		NumMaterials: uint16(len(raw.Materials)),
	}

	numBones := c.numBones
	if numBones < 0 {
		numBones = len(raw.Bones)
	}
	l := planStreams(a, cfg, numBones)
	l.apply(g)

	if err := pack(g, a, l); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("compiled geometry is inconsistent: %w", err)
	}

	c.geom = g
	c.stats = analyze(g, a)
	c.log.Info("compiled geometry", c.stats.Fields()...)
	return nil
}

// Serialize writes the compiled geometry to path.
func (c *Compiler) Serialize(path string) error {
	if c.geom == nil {
		return fmt.Errorf("%w: nothing compiled", ErrSerialize)
	}
	if err := xgeom.WriteFile(path, c.geom); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialize, err)
	}
	c.log.Info("wrote geometry", zap.String("path", path), zap.Int("bytes", len(c.geom.Data)))
	return nil
}

// Run loads, compiles and serializes the asset cfg describes. Without a
// source set, the descriptor's archives are opened for the run.
func (c *Compiler) Run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.source == nil && len(cfg.Main.Archives) > 0 {
		src, err := assets.Open(c.log.Named("assets"), cfg.Main.Archives...)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrImport, err)
		}
		c.source = src
		defer func() {
			src.Close()
			c.source = nil
		}()
	}
	if err := c.Load(cfg.Main.MeshAsset); err != nil {
		return err
	}
	if cfg.Main.UseSkeletonFile != "" {
		if err := c.LoadSkeleton(cfg.Main.UseSkeletonFile); err != nil {
			return err
		}
	}
	if err := c.Compile(cfg); err != nil {
		return err
	}
	return c.Serialize(cfg.OutputPath())
}
