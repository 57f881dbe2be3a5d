// Package ember is an embeddable hybrid search engine combining a BM25
// lexical index with Flat/HNSW/IVF vector indexes over a shared document
// corpus. Callers open an Engine against a directory, ingest Documents
// with a FieldOption-declared Schema, and search with a lexical Query, a
// vector query, or both fused together (RRF or weighted sum).
//
// The text-analysis pipeline, the embedding provider, the blob storage
// backend for raw payloads, and the query-DSL parser are external
// collaborators by design — Engine depends only on an Analyzer interface
// and pre-computed vectors supplied by the caller.
package ember
