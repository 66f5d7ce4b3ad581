package recordModel

import (
	"github.com/akolanti/BidExtract/internal/domain/commonModels"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
)

type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

type ModelParams struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// ExtractionRequest is one model call for one chunk. Fingerprint identifies
// identical requests within and across runs.
type ExtractionRequest struct {
	DocId           string             `json:"doc_id"`
	Chunk           commonModels.Chunk `json:"chunk"`
	Prompt          Prompt             `json:"prompt"`
	Params          ModelParams        `json:"params"`
	TemplateVersion string             `json:"template_version"`
	Fingerprint     string             `json:"fingerprint"`
	EstimatedTokens int                `json:"estimated_tokens"`
}

type FieldValue struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Chunk      int     `json:"chunk"`
	Malformed  bool    `json:"malformed,omitempty"`
}

// PartialRecord is what one chunk contributed. Absent fields are simply not in Fields.
type PartialRecord struct {
	Chunk    int                   `json:"chunk"`
	Fields   map[string]FieldValue `json:"fields"`
	Warnings []string              `json:"warnings,omitempty"`
}

// Discount scales every confidence by factor; used for low-confidence chunks.
func (p PartialRecord) Discount(factor float64) PartialRecord {
	out := PartialRecord{Chunk: p.Chunk, Fields: make(map[string]FieldValue, len(p.Fields)), Warnings: p.Warnings}
	for name, v := range p.Fields {
		v.Confidence *= factor
		out.Fields[name] = v
	}
	return out
}

// ChunkFailure is the terminal processing error recorded for a chunk.
type ChunkFailure struct {
	Chunk    int          `json:"chunk"`
	Kind     failure.Kind `json:"kind"`
	Message  string       `json:"message"`
	Attempts int          `json:"attempts,omitempty"`
}

type ResolvedField struct {
	Name       string       `json:"name"`
	Kind       FieldKind    `json:"kind"`
	Value      any          `json:"value,omitempty"`
	Resolved   bool         `json:"resolved"`
	Confidence float64      `json:"confidence"`
	Provenance []int        `json:"provenance,omitempty"`
	Candidates int          `json:"candidates"`
	Gap        failure.Kind `json:"gap,omitempty"`
}

// Record is the final per-document result handed to the export collaborators.
// Fields always holds every schema field in schema order.
type Record struct {
	DocId         string            `json:"doc_id"`
	Path          string            `json:"path"`
	State         runModel.DocState `json:"state"`
	Error         string            `json:"error,omitempty"`
	ErrorKind     failure.Kind      `json:"error_kind,omitempty"`
	Fields        []ResolvedField   `json:"fields"`
	ChunkCount    int               `json:"chunk_count"`
	ChunkFailures []ChunkFailure    `json:"chunk_failures,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

func (r Record) Field(name string) (ResolvedField, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ResolvedField{}, false
}

func (r Record) Unresolved() []string {
	var names []string
	for _, f := range r.Fields {
		if !f.Resolved {
			names = append(names, f.Name)
		}
	}
	return names
}

// UnresolvedRecord builds a Record for a document that produced no usable
// chunks, every field marked as a gap.
func UnresolvedRecord(schema Schema, docId, path string) Record {
	rec := Record{DocId: docId, Path: path, Fields: make([]ResolvedField, 0, len(schema.Fields))}
	for _, f := range schema.Fields {
		rec.Fields = append(rec.Fields, ResolvedField{Name: f.Name, Kind: f.Kind, Gap: failure.AggregationGap})
	}
	return rec
}
