package config

import (
	"flag"
	"strings"
)

// Flags holds command-line overrides for a descriptor. Zero values leave
// the descriptor untouched.
type Flags struct {
	Config           string
	Asset            string
	Output           string
	Debug            bool
	LODs             bool
	MaxLODs          int
	Reduction        float64
	ElementStreams   bool
	SeparatePosition bool
	LogFile          string
	Archives         string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to descriptor file (.yaml, .yml or .toml)")
	fs.StringVar(&f.Asset, "asset", "", "Source mesh asset")
	fs.StringVar(&f.Output, "o", "", "Output geometry file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.LODs, "lods", false, "Generate LODs")
	fs.IntVar(&f.MaxLODs, "max-lods", 0, "Maximum number of LODs, LOD 0 included")
	fs.Float64Var(&f.Reduction, "reduction", 0, "Index count factor per LOD step")
	fs.BoolVar(&f.ElementStreams, "element-streams", false, "Give every attribute its own stream")
	fs.BoolVar(&f.SeparatePosition, "separate-position", false, "Put positions in their own stream")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file")
	fs.StringVar(&f.Archives, "grf", "", "Comma-separated GRF archives to read assets from")
}

// apply applies flag overrides to the descriptor.
func (f *Flags) apply(cfg *Config) {
	if f.Asset != "" {
		cfg.Main.MeshAsset = f.Asset
	}
	if f.Output != "" {
		cfg.Main.Output = f.Output
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LODs {
		cfg.LOD.GenerateLODs = true
	}
	if f.MaxLODs > 0 {
		cfg.LOD.MaxLODs = f.MaxLODs
	}
	if f.Reduction > 0 {
		cfg.LOD.LODReduction = float32(f.Reduction)
	}
	if f.ElementStreams {
		cfg.Streams.UseElementStreams = true
	}
	if f.SeparatePosition {
		cfg.Streams.SeparatePosition = true
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	cfg.Main.Archives = append(cfg.Main.Archives, SplitList(f.Archives)...)
}

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
