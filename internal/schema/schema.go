// Package schema loads the human-editable schema.toml file (§6): a
// mapping from field name to a FieldOption variant, plus the
// default_fields list used by unqualified query terms.
package schema

import (
	"github.com/BurntSushi/toml"

	"github.com/emberdb/ember/internal/errkind"
)

// VectorAlgorithm names which ANN structure a vector field uses.
type VectorAlgorithm string

const (
	VectorFlat VectorAlgorithm = "flat"
	VectorHNSW VectorAlgorithm = "hnsw"
	VectorIVF  VectorAlgorithm = "ivf"
)

// rawFieldOption mirrors the on-disk TOML shape for one field. Every
// field is optional in the file; zero values pick per-kind defaults,
// applied by Decode.
type rawFieldOption struct {
	Kind string `toml:"kind"` // "text", "int", "float", "bool", "datetime", "bytes", "geo", "vector"

	Indexed     bool `toml:"indexed"`
	Stored      bool `toml:"stored"`
	TermVectors bool `toml:"term_vectors"`

	// Vector-only fields.
	Algorithm      VectorAlgorithm `toml:"algorithm"`
	Dimension      int             `toml:"dimension"`
	Metric         string          `toml:"metric"` // "cosine", "l2", "dot", "manhattan"
	BaseWeight     float64         `toml:"base_weight"`
	Quantization   string          `toml:"quantization"`
	HNSWM          int             `toml:"hnsw_m"`
	HNSWEfConstruct int            `toml:"hnsw_ef_construction"`
	IVFNClusters   int             `toml:"ivf_n_clusters"`
	IVFNProbe      int             `toml:"ivf_n_probe"`
}

// FieldOption is the decoded per-field indexing policy (§3). A field may
// carry both Lexical and Vector options at once (a hybrid field).
type FieldOption struct {
	Name string

	Lexical *LexicalOption
	Vector  *VectorOption
}

// LexicalOption configures a text/numeric/bool/datetime/bytes/geo field
// on the lexical side.
type LexicalOption struct {
	Kind        string
	Indexed     bool
	Stored      bool
	TermVectors bool
}

// VectorOption configures a dense-vector field (§4.8-§4.10).
type VectorOption struct {
	Algorithm    VectorAlgorithm
	Dimension    int
	Metric       string
	BaseWeight   float64
	Quantization string
	HNSWM        int
	HNSWEfConstruct int
	IVFNClusters int
	IVFNProbe    int
}

// fileSchema mirrors the full TOML document.
type fileSchema struct {
	DefaultFields []string                  `toml:"default_fields"`
	Fields        map[string]rawFieldOption `toml:"fields"`
}

// Schema is the parsed schema.toml: field options plus the default
// field list consulted by unqualified query terms (§6).
type Schema struct {
	DefaultFields []string
	Fields        map[string]*FieldOption
}

// Decode parses TOML data into a Schema, applying Flat as the default
// vector algorithm and Cosine as the default metric when unspecified.
func Decode(data []byte) (*Schema, error) {
	var fs fileSchema
	if _, err := toml.Decode(string(data), &fs); err != nil {
		return nil, errkind.Wrap(errkind.InvalidConfig, "schema.decode", err)
	}

	s := &Schema{DefaultFields: fs.DefaultFields, Fields: make(map[string]*FieldOption, len(fs.Fields))}
	for name, raw := range fs.Fields {
		opt := &FieldOption{Name: name}
		if raw.Kind == "vector" || raw.Dimension > 0 {
			algo := raw.Algorithm
			if algo == "" {
				algo = VectorFlat
			}
			metric := raw.Metric
			if metric == "" {
				metric = "cosine"
			}
			opt.Vector = &VectorOption{
				Algorithm:       algo,
				Dimension:       raw.Dimension,
				Metric:          metric,
				BaseWeight:      raw.BaseWeight,
				Quantization:    raw.Quantization,
				HNSWM:           raw.HNSWM,
				HNSWEfConstruct: raw.HNSWEfConstruct,
				IVFNClusters:    raw.IVFNClusters,
				IVFNProbe:       raw.IVFNProbe,
			}
		}
		if raw.Kind != "" && raw.Kind != "vector" {
			opt.Lexical = &LexicalOption{
				Kind:        raw.Kind,
				Indexed:     raw.Indexed,
				Stored:      raw.Stored,
				TermVectors: raw.TermVectors,
			}
		}
		if opt.Lexical == nil && opt.Vector == nil {
			return nil, errkind.New(errkind.InvalidConfig, "schema.decode", "field \""+name+"\" has no kind")
		}
		s.Fields[name] = opt
	}
	return s, nil
}

// Load reads and decodes the schema file at path.
func Load(path string) (*Schema, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Io, "schema.load", err)
	}
	return Decode(data)
}

// Encode serializes a Schema back to TOML, used when a caller programmatically
// builds a schema and wants to persist it as schema.toml.
func Encode(s *Schema) ([]byte, error) {
	fs := fileSchema{DefaultFields: s.DefaultFields, Fields: make(map[string]rawFieldOption, len(s.Fields))}
	for name, opt := range s.Fields {
		var raw rawFieldOption
		if opt.Lexical != nil {
			raw.Kind = opt.Lexical.Kind
			raw.Indexed = opt.Lexical.Indexed
			raw.Stored = opt.Lexical.Stored
			raw.TermVectors = opt.Lexical.TermVectors
		}
		if opt.Vector != nil {
			if raw.Kind == "" {
				raw.Kind = "vector"
			}
			raw.Algorithm = opt.Vector.Algorithm
			raw.Dimension = opt.Vector.Dimension
			raw.Metric = opt.Vector.Metric
			raw.BaseWeight = opt.Vector.BaseWeight
			raw.Quantization = opt.Vector.Quantization
			raw.HNSWM = opt.Vector.HNSWM
			raw.HNSWEfConstruct = opt.Vector.HNSWEfConstruct
			raw.IVFNClusters = opt.Vector.IVFNClusters
			raw.IVFNProbe = opt.Vector.IVFNProbe
		}
		fs.Fields[name] = raw
	}
	return encodeTOML(fs)
}
