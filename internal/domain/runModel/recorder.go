package runModel

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Recorder is the single point of mutation for a run's summary. Every method
// is safe for concurrent use by document workers.
type Recorder struct {
	mu        sync.Mutex
	summary   RunSummary
	docs      map[string]*DocumentOutcome
	order     []string
	finalized bool
	now       func() time.Time
}

func NewRecorder(batchId string, paths []string) *Recorder {
	r := &Recorder{
		docs: make(map[string]*DocumentOutcome, len(paths)),
		now:  time.Now,
	}
	r.summary = RunSummary{BatchId: batchId, StartedAt: r.now()}
	for _, p := range paths {
		if _, dup := r.docs[p]; dup {
			continue
		}
		r.docs[p] = &DocumentOutcome{DocId: p, Path: p, State: StatePending}
		r.order = append(r.order, p)
	}
	return r
}

// Transition moves a document to the next state. Illegal moves are rejected so
// a bug never silently rewrites a terminal outcome.
func (r *Recorder) Transition(docId string, to DocState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docId]
	if !ok {
		return fmt.Errorf("unknown document %q", docId)
	}
	if !CanTransition(doc.State, to) {
		return fmt.Errorf("document %q: illegal transition %s -> %s", docId, doc.State, to)
	}
	if doc.State == StatePending {
		doc.StartedAt = r.now()
	}
	doc.State = to
	return nil
}

func (r *Recorder) State(docId string) DocState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[docId]; ok {
		return doc.State
	}
	return ""
}

// Complete stores the terminal outcome. State must be Done or Failed.
func (r *Recorder) Complete(outcome DocumentOutcome) error {
	if !outcome.State.Terminal() {
		return fmt.Errorf("document %q: %s is not terminal", outcome.DocId, outcome.State)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[outcome.DocId]
	if !ok {
		return fmt.Errorf("unknown document %q", outcome.DocId)
	}
	if doc.State.Terminal() {
		return fmt.Errorf("document %q already finished as %s", outcome.DocId, doc.State)
	}
	if outcome.StartedAt.IsZero() {
		outcome.StartedAt = doc.StartedAt
	}
	if outcome.StartedAt.IsZero() {
		outcome.StartedAt = r.now()
	}
	outcome.FinishedAt = r.now()
	*doc = outcome
	r.summary.Processed++
	if outcome.State == StateDone {
		r.summary.Succeeded++
	} else {
		r.summary.Failed++
	}
	return nil
}

// Pending lists documents that have not reached a terminal state.
func (r *Recorder) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range r.order {
		if !r.docs[id].State.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// Finalize freezes the summary. Documents are listed in input order.
func (r *Recorder) Finalize() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.summary.FinishedAt = r.now()
		r.finalized = true
	}
	out := r.summary
	out.Documents = make([]DocumentOutcome, 0, len(r.order))
	for _, id := range r.order {
		d := *r.docs[id]
		d.UnresolvedFields = append([]string(nil), d.UnresolvedFields...)
		d.Warnings = append([]string(nil), d.Warnings...)
		out.Documents = append(out.Documents, d)
	}
	return out
}

// FailedDocuments returns the failed outcomes sorted by path.
func (s RunSummary) FailedDocuments() []DocumentOutcome {
	var out []DocumentOutcome
	for _, d := range s.Documents {
		if d.State == StateFailed {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
