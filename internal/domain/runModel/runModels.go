package runModel

import (
	"time"

	"github.com/akolanti/BidExtract/internal/domain/failure"
)

type DocState string

const (
	StatePending     DocState = "Pending"
	StateLoading     DocState = "Loading"
	StateSegmenting  DocState = "Segmenting"
	StateExtracting  DocState = "Extracting"
	StateAggregating DocState = "Aggregating"
	StateDone        DocState = "Done"
	StateFailed      DocState = "Failed"
)

var transitions = map[DocState][]DocState{
	StatePending:     {StateLoading, StateFailed},
	StateLoading:     {StateSegmenting, StateFailed},
	StateSegmenting:  {StateExtracting, StateFailed},
	StateExtracting:  {StateAggregating, StateFailed},
	StateAggregating: {StateDone, StateFailed},
}

// CanTransition reports whether a document may move from one state to the next.
// Done and Failed are terminal.
func CanTransition(from, to DocState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s DocState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

type DocumentOutcome struct {
	DocId            string       `json:"doc_id"`
	Path             string       `json:"path"`
	State            DocState     `json:"state"`
	ErrorKind        failure.Kind `json:"error_kind,omitempty"`
	Error            string       `json:"error,omitempty"`
	Chunks           int          `json:"chunks"`
	ChunkFailures    int          `json:"chunk_failures"`
	UnresolvedFields []string     `json:"unresolved_fields,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}

type RunSummary struct {
	BatchId    string            `json:"batch_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Processed  int               `json:"processed"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Documents  []DocumentOutcome `json:"documents"`
}

func (s RunSummary) HasFailures() bool {
	return s.Failed > 0
}

// NewBatchId formats t the way batch folders are named: YYYYMMDDTHHMMSS.
func NewBatchId(t time.Time) string {
	return t.Format("20060102T150405")
}
