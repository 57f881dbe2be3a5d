// Package engineconfig loads Ember's own runtime configuration: worker
// pool sizes, compaction thresholds, fusion weights, and BM25/vector
// defaults. This is distinct from the per-index schema file (§6, TOML,
// see internal/schema) — engineconfig governs how the engine runs, not
// what fields a given index has.
package engineconfig

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/emberdb/ember/internal/errkind"
)

// Config is the complete engine runtime configuration, loaded from an
// optional YAML file and overridden by EMBER_* environment variables.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	BM25        BM25Config        `yaml:"bm25"`
	Vector      VectorConfig      `yaml:"vector"`
	Fusion      FusionConfig      `yaml:"fusion"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Compaction  CompactionConfig  `yaml:"compaction"`
}

// StorageConfig controls where and how index state is persisted.
type StorageConfig struct {
	// Root is the directory holding schema.toml, manifest, wal/,
	// segments/, vectors/, documents/ and metadata/ (§6).
	Root string `yaml:"root"`
	// SearcherCacheSize bounds the engine's LRU of resolved equality-filter
	// id sets, which Commit purges (golang-lru).
	SearcherCacheSize int `yaml:"searcher_cache_size"`
}

// BM25Config carries the scorer tuning parameters (§4.4).
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// VectorConfig selects the default ANN algorithm and its parameters for
// newly opened vector fields (§4.8-§4.10). Per-field overrides live in
// the schema file, not here.
type VectorConfig struct {
	Algorithm      string  `yaml:"algorithm"` // "flat", "hnsw", "ivf"
	HNSWM          int     `yaml:"hnsw_m"`
	HNSWEfConstruct int    `yaml:"hnsw_ef_construction"`
	HNSWEfSearch   int     `yaml:"hnsw_ef_search"`
	IVFNClusters   int     `yaml:"ivf_n_clusters"`
	IVFNProbe      int     `yaml:"ivf_n_probe"`
}

// FusionConfig controls how lexical and vector result sets are combined
// into one ranked list (§4.14).
type FusionConfig struct {
	// Method is "rrf" or "weighted_sum".
	Method string `yaml:"method"`
	// RRFConstant is the k in 1/(k+rank) (§4.14); 60 is the usual default.
	RRFConstant int `yaml:"rrf_constant"`
	// LexicalWeight/VectorWeight apply under weighted_sum.
	LexicalWeight float64 `yaml:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`
}

// ConcurrencyConfig holds worker-pool sizes and a search time budget (§5).
// These values are loaded, defaulted and validated, but the engine does not
// read them: there is no index or query worker pool, BooleanQuery clauses
// run one after another, and searches run without a deadline.
type ConcurrencyConfig struct {
	// IndexWorkers is the configured number of index workers.
	IndexWorkers int `yaml:"index_workers"`
	// QueryParallelism is the configured per-query worker count.
	QueryParallelism int `yaml:"query_parallelism"`
	// SearchTimeoutMS is the configured millisecond search budget; 0
	// means no budget.
	SearchTimeoutMS int `yaml:"search_timeout_ms"`
}

// CompactionConfig governs when Optimize/Merge become eligible (§4.12).
type CompactionConfig struct {
	Enabled         bool    `yaml:"enabled"`
	OrphanThreshold float64 `yaml:"orphan_threshold"`
	MinOrphanCount  int     `yaml:"min_orphan_count"`
}

// Default returns the engine's built-in defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:              ".",
			SearcherCacheSize: 64,
		},
		BM25: BM25Config{K1: 1.2, B: 0.75},
		Vector: VectorConfig{
			Algorithm:       "hnsw",
			HNSWM:           16,
			HNSWEfConstruct: 200,
			HNSWEfSearch:    64,
			IVFNClusters:    16,
			IVFNProbe:       4,
		},
		Fusion: FusionConfig{
			Method:        "rrf",
			RRFConstant:   60,
			LexicalWeight: 0.5,
			VectorWeight:  0.5,
		},
		Concurrency: ConcurrencyConfig{
			IndexWorkers:     runtime.NumCPU(),
			QueryParallelism: runtime.NumCPU(),
			SearchTimeoutMS:  0,
		},
		Compaction: CompactionConfig{
			Enabled:         true,
			OrphanThreshold: 0.2,
			MinOrphanCount:  100,
		},
	}
}

// Load reads path (if it exists) over the defaults and applies EMBER_*
// environment overrides, then validates the result. A missing path is
// not an error: the defaults alone are valid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errkind.Wrap(errkind.InvalidConfig, "engineconfig.load", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, errkind.Wrap(errkind.Io, "engineconfig.load", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments tune the engine without
// rewriting the YAML file, mirroring the teacher's AMANMCP_* convention.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMBER_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fusion.RRFConstant = n
		}
	}
	if v := os.Getenv("EMBER_FUSION_METHOD"); v != "" {
		c.Fusion.Method = v
	}
	if v := os.Getenv("EMBER_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency.IndexWorkers = n
		}
	}
	if v := os.Getenv("EMBER_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.BM25.K1 < 0 {
		return errkind.New(errkind.InvalidConfig, "engineconfig.validate", "bm25.k1 must be >= 0")
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return errkind.New(errkind.InvalidConfig, "engineconfig.validate", "bm25.b must be in [0,1]")
	}
	switch c.Vector.Algorithm {
	case "flat", "hnsw", "ivf":
	default:
		return errkind.New(errkind.InvalidConfig, "engineconfig.validate", fmt.Sprintf("unknown vector.algorithm %q", c.Vector.Algorithm))
	}
	switch c.Fusion.Method {
	case "rrf", "weighted_sum":
	default:
		return errkind.New(errkind.InvalidConfig, "engineconfig.validate", fmt.Sprintf("unknown fusion.method %q", c.Fusion.Method))
	}
	if c.Fusion.RRFConstant <= 0 {
		return errkind.New(errkind.InvalidConfig, "engineconfig.validate", "fusion.rrf_constant must be > 0")
	}
	if c.Concurrency.IndexWorkers <= 0 {
		return errkind.New(errkind.InvalidConfig, "engineconfig.validate", "concurrency.index_workers must be > 0")
	}
	return nil
}
