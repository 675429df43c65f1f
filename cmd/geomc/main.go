// geomc compiles mesh assets into packed runtime geometry.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/geomc/internal/assets"
	"github.com/Faultbox/geomc/internal/compiler"
	"github.com/Faultbox/geomc/internal/config"
	"github.com/Faultbox/geomc/internal/importer"
	"github.com/Faultbox/geomc/internal/logger"
	"github.com/Faultbox/geomc/pkg/grf"
	"github.com/Faultbox/geomc/pkg/xgeom"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "compile", "c":
		cmdCompile(args)
	case "batch":
		cmdBatch(args)
	case "info":
		cmdInfo(args)
	case "list", "ls":
		cmdList(args)
	case "init":
		cmdInit(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`geomc - geometry compiler

Usage:
  geomc <command> [options]

Commands:
  compile [options] [descriptor]     Compile one mesh asset
  batch [-j N] <descriptor>...       Compile several descriptors in parallel
  info <file.xgeom>                  Show a compiled geometry
  list [-all] <file.grf> [pattern]   List compilable assets in a GRF archive
  init [-asset path] <descriptor>    Write a default descriptor (.yaml or .toml)

Supported assets: %s

Examples:
  geomc compile -asset models/crate.glb -lods
  geomc compile crate.yaml
  geomc compile -grf data.grf -asset data/model/prontera/fountain.rsm -o fountain.xgeom
  geomc batch -j 4 assets/*.toml
  geomc list data.grf prontera
  geomc info models/crate.xgeom
`, strings.Join(importer.Extensions(), " "))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func cmdCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	var flags config.Flags
	flags.Register(fs)
	fs.Parse(args)

	cfg, err := config.Load(fs.Arg(0), &flags)
	if err != nil {
		fail("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fail("logger: %v", err)
	}
	defer logger.Sync()

	logger.Sugar.Debugf("descriptor: %+v", cfg)
	if err := compiler.New(logger.Named("compiler")).Run(cfg); err != nil {
		logger.Error("compile failed", zap.String("asset", cfg.Main.MeshAsset), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	jobs := fs.Int("j", runtime.NumCPU(), "Number of parallel compiles")
	debug := fs.Bool("debug", false, "Enable debug logging")
	logFile := fs.String("log-file", "", "Also write logs to this file")
	archives := fs.String("grf", "", "Comma-separated GRF archives shared by all descriptors, replacing their own")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: geomc batch [-j N] [-grf a.grf,b.grf] <descriptor>...")
		os.Exit(1)
	}

	level := "info"
	if *debug {
		level = "debug"
	}
	if err := logger.Init(level, *logFile); err != nil {
		fail("logger: %v", err)
	}
	defer logger.Sync()

	var src *assets.Source
	if list := config.SplitList(*archives); len(list) > 0 {
		var err error
		if src, err = assets.Open(logger.Named("assets"), list...); err != nil {
			fail("%v", err)
		}
		defer src.Close()
	}

	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))

	failed := make([]error, fs.NArg())
	for i, path := range fs.Args() {
		g.Go(func() error {
			failed[i] = compileDescriptor(path, src)
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(failed...); err != nil {
		logger.Error("batch failed", zap.Error(err))
		if src != nil {
			src.Close()
		}
		logger.Sync()
		os.Exit(1)
	}

	fields := []zap.Field{zap.Int("descriptors", fs.NArg())}
	if src != nil {
		hits, misses := src.Cache().Stats()
		fields = append(fields, zap.Int("cache_hits", hits), zap.Int("cache_misses", misses))
	}
	logger.Info("batch done", fields...)
}

// compileDescriptor runs one descriptor on its own compiler. A non-nil src
// replaces the descriptor's archives.
func compileDescriptor(path string, src *assets.Source) error {
	log := logger.Named("compiler").With(zap.String("descriptor", path))

	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	c := compiler.New(log)
	if src != nil {
		c.SetSource(src)
	}
	if err := c.Run(cfg); err != nil {
		log.Error("compile failed", zap.Error(err))
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: geomc info <file.xgeom>")
		os.Exit(1)
	}

	g, err := xgeom.ReadFile(args[0])
	if err != nil {
		fail("%v", err)
	}

	fmt.Printf("Geometry:  %s\n", args[0])
	fmt.Printf("Vertices:  %d\n", g.NumVertices)
	fmt.Printf("Indices:   %d\n", g.NumIndices)
	fmt.Printf("Faces:     %d\n", g.FaceCount())
	fmt.Printf("Materials: %d\n", g.NumMaterials)
	fmt.Printf("Data:      %d bytes\n", len(g.Data))
	fmt.Printf("BBox:      %v - %v\n", g.BBox.Min, g.BBox.Max)
	fmt.Println()

	fmt.Println("Meshes:")
	for _, m := range g.Meshes {
		fmt.Printf("  %-31s lods %d\n", m.Name, m.NumLODs)
		for l := 0; l < int(m.NumLODs); l++ {
			lod := g.LODs[int(m.LOD)+l]
			fmt.Printf("    LOD %d:", l)
			for s := 0; s < int(lod.NumSubmeshes); s++ {
				sm := g.Submeshes[int(lod.Submesh)+s]
				fmt.Printf(" [material %d, %d tris]", sm.Material, sm.NumIndices/3)
			}
			fmt.Println()
		}
	}
	fmt.Println()

	fmt.Printf("Streams (%d, compacted vertex size %d):\n", g.NumStreams, g.CompactedVertexSize)
	for _, info := range g.StreamInfos {
		fmt.Printf("  stream %d  offset %3d  %-12s %-20s x%d\n",
			info.Stream, info.Offset, info.Elements, info.Format, info.VectorCount)
	}
	for s := 0; s < int(g.NumStreams); s++ {
		fmt.Printf("  stream %d: %d bytes at %d, stride %d\n",
			s, g.StreamSize(s), g.StreamOffsets[s], g.StreamStride(s))
	}
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	all := fs.Bool("all", false, "List every file, not only compilable assets")
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: geomc list [-all] [-n N] <file.grf> [pattern]")
		os.Exit(1)
	}

	archive, err := grf.Open(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}
	defer archive.Close()

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for _, f := range archive.List() {
		if !*all {
			if _, err := importer.ForPath(f); err != nil {
				continue
			}
		}
		if pattern != "" {
			matched, _ := filepath.Match(pattern, filepath.Base(f))
			if !matched && !strings.Contains(f, pattern) {
				continue
			}
		}
		fmt.Println(f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	fmt.Fprintf(os.Stderr, "\n(%d files)\n", count)
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	asset := fs.String("asset", "", "Source mesh asset")
	force := fs.Bool("f", false, "Overwrite an existing descriptor")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: geomc init [-asset path] <descriptor>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	if _, err := os.Stat(path); err == nil && !*force {
		fail("%s already exists (use -f to overwrite)", path)
	}

	cfg := config.Default()
	cfg.Main.MeshAsset = *asset
	if err := cfg.SaveTo(path); err != nil {
		fail("%v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}
