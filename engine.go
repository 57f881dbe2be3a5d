package ember

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emberdb/ember/internal/docstore"
	"github.com/emberdb/ember/internal/engineconfig"
	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/lexical"
	"github.com/emberdb/ember/internal/logging"
	"github.com/emberdb/ember/internal/schema"
	"github.com/emberdb/ember/internal/storage"
	"github.com/emberdb/ember/internal/value"
	"github.com/emberdb/ember/internal/vector"
	"github.com/emberdb/ember/internal/wal"
)

// Engine ties the document store, the lexical index, one vector index per
// vector field, the write-ahead log, and deletion bookkeeping together
// behind a single-writer API (§5): one process holds the directory's
// flock for writing. Within the process, searches share mu's read lock and
// run concurrently with each other; every write holds mu exclusively, so a
// search waits for a write in flight.
type Engine struct {
	mu sync.RWMutex

	root   string
	lock   *flock.Flock
	cfg    *engineconfig.Config
	schema *schema.Schema
	logger *slog.Logger
	cleanupLog func()

	docs     *docstore.Store
	lex      *lexical.InvertedIndex
	vectors  map[string]*vector.VectorIndex
	wal      *wal.WAL

	generation  int
	filterCache *lru.Cache[string, []uint64]
}

// Open creates or reopens an Ember index rooted at dir (§6's directory
// layout: ember.yaml, schema.toml, documents/, segments/, vectors/<field>/,
// wal/). Only one Engine may hold dir open for writing at a time; Open
// fails fast if another process already holds the lock rather than
// blocking (§5).
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Io, "ember.open", err)
	}

	lock := flock.New(filepath.Join(dir, ".ember.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errkind.Wrap(errkind.Io, "ember.open", err)
	}
	if !locked {
		return nil, errkind.New(errkind.InvalidConfig, "ember.open", "directory is already open for writing by another process")
	}

	cfg, err := engineconfig.Load(filepath.Join(dir, "ember.yaml"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	sch, err := loadOrEmptySchema(filepath.Join(dir, "schema.toml"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	logger, cleanupLog, err := logging.Setup(logging.Config{Level: "info", WriteToStderr: true})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	docsBackend, err := storage.NewFileBackend(filepath.Join(dir, "documents"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	docs, err := docstore.Open(docsBackend, 0)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	lexBackend, err := storage.NewFileBackend(filepath.Join(dir, "segments"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	lex, err := lexical.Open(lexBackend, lexical.SimpleAnalyzer{})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	vectors := make(map[string]*vector.VectorIndex)
	for name, opt := range sch.Fields {
		if opt.Vector == nil {
			continue
		}
		vBackend, err := storage.NewFileBackend(filepath.Join(dir, "vectors", name))
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		vi, err := vector.Open(vBackend, vectorConfigFromField(opt.Vector, cfg))
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		vectors[name] = vi
	}

	walBackend, err := storage.NewFileBackend(filepath.Join(dir, "wal"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	w, entries, err := wal.Open(walBackend, "wal.log")
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	filterCache, _ := lru.New[string, []uint64](cacheSize(cfg.Storage.SearcherCacheSize))

	e := &Engine{
		root:        dir,
		lock:        lock,
		cfg:         cfg,
		schema:      sch,
		logger:      logger,
		cleanupLog:  cleanupLog,
		docs:        docs,
		lex:         lex,
		vectors:     vectors,
		wal:         w,
		filterCache: filterCache,
	}

	// Entries still in the WAL at open time are exactly the buffered writes
	// that never made it through a successful Commit in the previous
	// session (Commit truncates the log on success, §4.13): replay them
	// through the same staging path live writes use, restoring the
	// lexical/vector in-memory state. docstore already reloaded its own
	// flushed segments in docstore.Open above; it did not reload these
	// buffered documents (they were never flushed), so replay also
	// restores them into docstore under their original ids.
	for _, entry := range entries {
		switch entry.Op {
		case wal.OpAdd, wal.OpUpsert:
			doc, err := docstore.DecodeDocument(entry.Payload)
			if err != nil {
				_ = lock.Unlock()
				return nil, err
			}
			e.docs.AppendWithID(docstore.DocID(entry.DocID), doc, false)
			e.stageDocument(entry.DocID, doc)
		case wal.OpDelete:
			e.applyDelete(docstore.DocID(entry.DocID))
		}
	}

	e.logger.Info("engine opened", "root", dir, "replayed_entries", len(entries))
	return e, nil
}

func loadOrEmptySchema(path string) (*schema.Schema, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &schema.Schema{Fields: make(map[string]*schema.FieldOption)}, nil
		}
		return nil, errkind.Wrap(errkind.Io, "ember.open", err)
	}
	return schema.Load(path)
}

func cacheSize(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func vectorConfigFromField(opt *schema.VectorOption, cfg *engineconfig.Config) vector.Config {
	metric, ok := vector.MetricByName(normalizeMetricName(opt.Metric))
	if !ok {
		metric = vector.Cosine
	}
	vc := vector.Config{Dim: opt.Dimension, Metric: metric, Seed: 1}
	switch opt.Algorithm {
	case schema.VectorIVF:
		vc.Algorithm = vector.AlgoIVF
	case schema.VectorHNSW:
		vc.Algorithm = vector.AlgoHNSW
	default:
		vc.Algorithm = vector.AlgoFlat
	}
	hnsw := vector.DefaultHNSWParams()
	if opt.HNSWM > 0 {
		hnsw.M = opt.HNSWM
	} else if cfg.Vector.HNSWM > 0 {
		hnsw.M = cfg.Vector.HNSWM
	}
	if opt.HNSWEfConstruct > 0 {
		hnsw.EfConstruction = opt.HNSWEfConstruct
	} else if cfg.Vector.HNSWEfConstruct > 0 {
		hnsw.EfConstruction = cfg.Vector.HNSWEfConstruct
	}
	if cfg.Vector.HNSWEfSearch > 0 {
		hnsw.EfSearch = cfg.Vector.HNSWEfSearch
	}
	vc.HNSW = hnsw

	ivf := vector.DefaultIVFParams()
	if opt.IVFNClusters > 0 {
		ivf.NClusters = opt.IVFNClusters
	} else if cfg.Vector.IVFNClusters > 0 {
		ivf.NClusters = cfg.Vector.IVFNClusters
	}
	if opt.IVFNProbe > 0 {
		ivf.NProbe = opt.IVFNProbe
	} else if cfg.Vector.IVFNProbe > 0 {
		ivf.NProbe = cfg.Vector.IVFNProbe
	}
	vc.IVF = ivf
	return vc
}

// normalizeMetricName maps the schema file's "dot" spelling onto the
// vector package's "inner_product" identifier; every other name passes
// through unchanged.
func normalizeMetricName(name string) string {
	if name == "dot" {
		return "inner_product"
	}
	return name
}

// Close releases the directory lock, closes the write-ahead log, and
// flushes any buffered log output. It does not Commit: uncommitted writes
// remain in the WAL for the next Open to replay.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cleanupLog != nil {
		e.cleanupLog()
	}
	walErr := e.wal.Close()
	lockErr := e.lock.Unlock()
	if walErr != nil {
		return errkind.Wrap(errkind.Io, "ember.close", walErr)
	}
	if lockErr != nil {
		return errkind.Wrap(errkind.Io, "ember.close", lockErr)
	}
	return nil
}

// AddDocument assigns doc a fresh DocID, durably logs it, and stages it
// into the lexical/vector in-memory structures. Get returns it at once;
// lexical search finds it only after Commit seals the staged segment.
// Until then the write survives a restart through WAL replay (§4.13).
func (e *Engine) AddDocument(doc *Document) (DocID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := docstore.EncodeDocument(doc)
	if err != nil {
		return 0, err
	}
	id := e.docs.Append(doc)
	// The WAL append is the durability point; only once it returns does the
	// write take effect in the lexical/vector structures (§4.13's ordering
	// guarantee — a crash between these two lines loses nothing, since
	// replay on reopen re-derives the in-memory effect from this entry).
	if _, err := e.wal.Append(wal.OpAdd, uint64(id), payload); err != nil {
		return 0, err
	}
	e.stageDocument(uint64(id), doc)
	return id, nil
}

// Upsert replaces any existing document with the same ExternalID: the
// prior doc id (if any) is marked deleted and the new one is added under
// a fresh id, matching the many-to-one external-id semantics docstore.Store
// already applies to its own index (§3).
func (e *Engine) Upsert(doc *Document) (DocID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var prev DocID
	var hadPrev bool
	if doc.ExternalID != "" {
		prev, hadPrev = e.docs.GetByExternalID(doc.ExternalID)
	}

	payload, err := docstore.EncodeDocument(doc)
	if err != nil {
		return 0, err
	}
	id := e.docs.Append(doc)
	if _, err := e.wal.Append(wal.OpUpsert, uint64(id), payload); err != nil {
		return 0, err
	}
	if hadPrev {
		if _, err := e.wal.Append(wal.OpDelete, uint64(prev), nil); err != nil {
			return 0, err
		}
		e.applyDelete(prev)
	}
	e.stageDocument(uint64(id), doc)
	return id, nil
}

// Delete logically removes id: it stops matching new searches immediately
// but its postings/vectors are only physically dropped by a later Optimize
// or Merge (§4.12).
func (e *Engine) Delete(id DocID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.wal.Append(wal.OpDelete, uint64(id), nil); err != nil {
		return err
	}
	e.applyDelete(id)
	return nil
}

func (e *Engine) applyDelete(id DocID) {
	e.docs.Remove(id)
	_ = e.lex.Delete(uint64(id))
	for _, vi := range e.vectors {
		vi.Delete(uint64(id))
	}
}

// stageDocument dispatches every field of doc into the subsystem(s) its
// schema.FieldOption names. A field absent from the schema is stored (it
// stays retrievable via Get/Search hydration) but is neither lexically nor
// vector-indexed — matching the "Stored" vs "Indexed" distinction (§3).
func (e *Engine) stageDocument(docID uint64, doc *docstore.Document) {
	for name, v := range doc.Fields {
		opt, ok := e.schema.Fields[name]
		if !ok {
			continue
		}
		if opt.Lexical != nil && opt.Lexical.Indexed {
			e.stageLexicalField(docID, name, opt.Lexical.Kind, v)
		}
		if opt.Vector != nil && v.Kind == value.KindVector {
			if vi := e.vectors[name]; vi != nil {
				_ = vi.Add(docID, v.Vector())
			}
		}
	}
}

func (e *Engine) stageLexicalField(docID uint64, field, kind string, v value.Value) {
	switch kind {
	case "text":
		e.lex.AddTextField(docID, field, v.Text())
	case "int", "float":
		if num, ok := v.AsNumeric(); ok {
			e.lex.AddNumericField(docID, field, num)
		}
	case "bool":
		n := 0.0
		if v.Bool() {
			n = 1
		}
		e.lex.AddNumericField(docID, field, n)
	case "datetime":
		e.lex.AddNumericField(docID, field, float64(v.DateTimeValue().Instant.Unix()))
	}
}

// Commit seals the active lexical segment, seals every vector field's
// active segment, flushes docstore's pending buffer, and truncates the WAL
// (§4.13). With nothing pending, the docstore and lexical layers skip
// their work, but every vector field still seals a new (possibly empty)
// segment, the WAL is reset, the generation advances and the filter cache
// is cleared.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.docs.Flush(); err != nil {
		return errkind.Wrap(errkind.Io, "ember.commit", err)
	}
	if err := e.lex.Commit(); err != nil {
		return err
	}
	for field, vi := range e.vectors {
		if err := vi.Commit(); err != nil {
			return errkind.Wrap(errkind.Io, "ember.commit."+field, err)
		}
	}
	if err := e.wal.Truncate(0); err != nil {
		return err
	}
	e.generation++
	e.filterCache.Purge()
	e.logger.Info("commit complete", "generation", e.generation)
	return nil
}

// Optimize compacts lexical segments past their deletion-ratio threshold
// (§4.12) and merges sealed vector segments. It is never called
// automatically — ShouldCompact tells a caller when it would be
// worthwhile, but scheduling that call is the caller's choice.
func (e *Engine) Optimize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.lex.Optimize(); err != nil {
		return err
	}
	for field, vi := range e.vectors {
		if err := vi.Merge(); err != nil {
			return errkind.Wrap(errkind.Io, "ember.optimize."+field, err)
		}
	}
	e.logger.Info("optimize complete")
	return nil
}

// ShouldCompact reports whether the deletion ratio across lexical segments
// has crossed the configured threshold (§4.12); a caller can poll this
// after a batch of deletes to decide whether to call Optimize. This checks
// the ratio directly rather than going through deletion.Manager's own
// cooldown-aware ShouldAutoCompact, since Engine has no background
// scheduler for Optimize to cool down between.
func (e *Engine) ShouldCompact() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.cfg.Compaction.Enabled {
		return false
	}
	dels := e.lex.Deletions()
	if dels.TotalDeleted() < uint64(e.cfg.Compaction.MinOrphanCount) {
		return false
	}
	return dels.GlobalRatio() >= e.cfg.Compaction.OrphanThreshold
}

// Get returns a single document by internal id, regardless of whether it
// has been committed to a segment yet.
func (e *Engine) Get(id DocID) (*Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs.Get(id)
}

// GetByExternalID returns the most recently ingested document under extID.
func (e *Engine) GetByExternalID(extID string) (*Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.docs.GetByExternalID(extID)
	if !ok {
		return nil, false
	}
	return e.docs.Get(id)
}

// Hit is one ranked search result.
type Hit struct {
	DocID      uint64
	ExternalID string
	Score      float64
	Document   *Document
}

// SearchResult is the outcome of a Search call.
type SearchResult struct {
	Hits      []Hit
	TotalHits int
	MaxScore  float64
}

// SearchRequest describes one query against the engine (§4.14). At least
// one of Query or (VectorField, VectorQuery) must be set; setting both
// fuses their result lists per Fusion (or the engine's configured default
// fusion method when Fusion is nil).
type SearchRequest struct {
	Query       Query
	VectorField string
	VectorQuery []float32

	Limit     int
	Overfetch float64

	// Filter keeps only hits whose indexed fields equal the given values
	// (resolved as §4.5's Filter occur, surfaced here for callers that
	// don't want to build a BooleanQuery by hand). It is applied to the
	// ranked candidate lists, not before ranking: lexical hits are
	// filtered after the Limit×Overfetch cut, and the vector search asks
	// for that many plus one per matching id before filtering, so a
	// matching document ranked outside that window is not returned.
	Filter map[string]DataValue

	Fusion *FusionConfig

	// Hydrate attaches the full Document to each Hit. Leave false to get
	// back only ids, external ids, and scores.
	Hydrate bool
}

// Search runs req against the lexical index, the named vector field, or
// both (fused per §4.14), and hydrates the top Limit hits.
func (e *Engine) Search(req SearchRequest) (*SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	overfetch := req.Overfetch
	if overfetch < 1 {
		overfetch = 1
	}
	fetchLimit := int(float64(limit) * overfetch)

	var allowed map[uint64]bool
	if len(req.Filter) > 0 {
		ids, err := e.resolveFilter(req.Filter)
		if err != nil {
			return nil, err
		}
		allowed = make(map[uint64]bool, len(ids))
		for _, id := range ids {
			allowed[id] = true
		}
	}

	haveLex := req.Query != nil
	haveVec := req.VectorField != "" && req.VectorQuery != nil
	if !haveLex && !haveVec {
		return nil, errkind.New(errkind.InvalidArgument, "ember.search", "request has neither a lexical Query nor a VectorQuery")
	}

	var lexList, vecList []RankedResult
	if haveLex {
		hits := e.lex.Search(req.Query, fetchLimit)
		for _, h := range hits {
			if allowed != nil && !allowed[h.DocID] {
				continue
			}
			lexList = append(lexList, RankedResult{DocID: h.DocID, Score: h.Score})
		}
	}
	if haveVec {
		vi, ok := e.vectors[req.VectorField]
		if !ok {
			return nil, errkind.New(errkind.InvalidArgument, "ember.search", fmt.Sprintf("unknown vector field %q", req.VectorField))
		}
		k := fetchLimit
		if allowed != nil {
			k += len(allowed)
		}
		metric := vi.Metric()
		for _, rec := range vi.Search(req.VectorQuery, k) {
			if allowed != nil && !allowed[rec.DocID] {
				continue
			}
			vecList = append(vecList, RankedResult{DocID: rec.DocID, Score: metric.Similarity(req.VectorQuery, rec.Vector)})
		}
	}

	var fused []RankedResult
	switch {
	case haveLex && haveVec:
		cfg := req.Fusion
		if cfg == nil {
			d := e.defaultFusionConfig()
			cfg = &d
		}
		fused = fuse(*cfg, lexList, vecList)
	case haveLex:
		fused = lexList
	default:
		fused = vecList
	}

	if len(fused) > limit {
		fused = fused[:limit]
	}

	result := &SearchResult{TotalHits: len(fused)}
	for _, r := range fused {
		hit := Hit{DocID: r.DocID, Score: r.Score}
		if doc, ok := e.docs.Get(docstore.DocID(r.DocID)); ok {
			hit.ExternalID = doc.ExternalID
			if req.Hydrate {
				hit.Document = doc
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	if len(result.Hits) > 0 {
		result.MaxScore = result.Hits[0].Score
	}
	return result, nil
}

func (e *Engine) defaultFusionConfig() FusionConfig {
	method := FusionRRF
	if e.cfg.Fusion.Method == "weighted_sum" {
		method = FusionWeightedSum
	}
	return FusionConfig{
		Method:        method,
		RRFConstant:   e.cfg.Fusion.RRFConstant,
		LexicalWeight: e.cfg.Fusion.LexicalWeight,
		VectorWeight:  e.cfg.Fusion.VectorWeight,
	}
}

// resolveFilter runs an equality filter as a Filter-occur BooleanQuery over
// the lexical index, caching the resolved id set per (generation, filter)
// key. A commit bumps the generation, so an older key can no longer be
// hit, and Commit also purges the whole cache.
func (e *Engine) resolveFilter(filter map[string]DataValue) ([]uint64, error) {
	key := fmt.Sprintf("%d:%s", e.generation, filterKey(filter))
	if ids, ok := e.filterCache.Get(key); ok {
		return ids, nil
	}
	q, err := e.buildFilterQuery(filter)
	if err != nil {
		return nil, err
	}
	hits := e.lex.Search(q, 0)
	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	e.filterCache.Add(key, ids)
	return ids, nil
}

func (e *Engine) buildFilterQuery(filter map[string]DataValue) (Query, error) {
	var clauses []Clause
	for field, v := range filter {
		switch v.Kind {
		case value.KindText:
			clauses = append(clauses, Clause{Query: lexical.NewTermQuery(field, v.Text()), Occur: Filter})
		default:
			num, ok := v.AsNumeric()
			if !ok {
				return nil, errkind.New(errkind.InvalidArgument, "ember.search", fmt.Sprintf("field %q has no equality-filterable representation", field))
			}
			clauses = append(clauses, Clause{
				Query: NewNumericRangeQuery(field, num, num, true, true, true, true),
				Occur: Filter,
			})
		}
	}
	return NewBooleanQuery(clauses...), nil
}

// filterKey builds a deterministic cache key from an (unordered) filter map.
func filterKey(filter map[string]DataValue) string {
	names := make([]string, 0, len(filter))
	for name := range filter {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		v := filter[name]
		fmt.Fprintf(&b, "%s=%d:", name, v.Kind)
		switch v.Kind {
		case value.KindText:
			b.WriteString(v.Text())
		default:
			if num, ok := v.AsNumeric(); ok {
				fmt.Fprintf(&b, "%v", num)
			}
		}
		b.WriteByte(';')
	}
	return b.String()
}
