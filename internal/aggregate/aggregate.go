package aggregate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

type Policy string

const (
	HighestConfidence Policy = config.PolicyHighestConfidence
	Earliest          Policy = config.PolicyEarliest
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HighestConfidence, nil
	case HighestConfidence, Earliest:
		return p, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// Aggregator merges per-chunk partial records into one Record per document.
type Aggregator struct {
	schema recordModel.Schema
	policy Policy
	logger *logger_i.Logger
}

func New(schema recordModel.Schema, policy Policy) *Aggregator {
	if policy == "" {
		policy = HighestConfidence
	}
	return &Aggregator{schema: schema, policy: policy, logger: logger_i.NewLogger("aggregate")}
}

type candidate struct {
	chunk int
	value recordModel.FieldValue
	key   string
}

// Aggregate resolves every schema field. The result does not depend on the
// order of partials or failures.
func (a *Aggregator) Aggregate(docId string, partials []recordModel.PartialRecord, failures []recordModel.ChunkFailure) recordModel.Record {
	sorted := slices.Clone(partials)
	slices.SortStableFunc(sorted, func(x, y recordModel.PartialRecord) int { return x.Chunk - y.Chunk })

	rec := recordModel.Record{
		DocId:         docId,
		Fields:        make([]recordModel.ResolvedField, 0, len(a.schema.Fields)),
		ChunkCount:    len(partials) + len(failures),
		ChunkFailures: slices.Clone(failures),
	}
	slices.SortStableFunc(rec.ChunkFailures, func(x, y recordModel.ChunkFailure) int { return x.Chunk - y.Chunk })

	for _, p := range sorted {
		rec.Warnings = append(rec.Warnings, p.Warnings...)
	}

	for _, spec := range a.schema.Fields {
		var cands []candidate
		for _, p := range sorted {
			if v, ok := p.Fields[spec.Name]; ok {
				cands = append(cands, candidate{chunk: p.Chunk, value: v, key: valueKey(v.Value)})
			}
		}
		field, warning := a.resolve(spec, cands)
		rec.Fields = append(rec.Fields, field)
		if warning != "" {
			rec.Warnings = append(rec.Warnings, warning)
		}
	}

	a.logger.Debug("aggregated document", "doc", docId, "partials", len(partials), "failures", len(failures), "unresolved", len(rec.Unresolved()))
	return rec
}

func (a *Aggregator) resolve(spec recordModel.FieldSpec, cands []candidate) (recordModel.ResolvedField, string) {
	field := recordModel.ResolvedField{Name: spec.Name, Kind: spec.Kind, Candidates: len(cands)}
	if len(cands) == 0 {
		field.Gap = failure.AggregationGap
		return field, ""
	}

	if spec.Kind == recordModel.KindList {
		if union, ok := unionList(field, cands); ok {
			return union, ""
		}
	}

	win := a.pick(cands)
	field.Value = win.value.Value
	field.Resolved = true
	field.Confidence = win.value.Confidence
	field.Provenance = []int{win.chunk}
	distinct := map[string]bool{win.key: true}
	for _, c := range cands {
		distinct[c.key] = true
		if c.chunk != win.chunk && c.key == win.key {
			field.Provenance = append(field.Provenance, c.chunk)
		}
	}

	if len(distinct) > 1 {
		return field, fmt.Sprintf("field %q: %d conflicting values, kept chunk %d (%s)", spec.Name, len(distinct), win.chunk, a.policy)
	}
	return field, ""
}

// unionList merges the items of every well-formed list candidate in chunk
// order, dropping repeats. Every such chunk is provenance; confidence is the
// highest among them.
func unionList(field recordModel.ResolvedField, cands []candidate) (recordModel.ResolvedField, bool) {
	var items []string
	seen := make(map[string]bool)
	for _, c := range cands {
		list, ok := c.value.Value.([]string)
		if !ok || c.value.Malformed {
			continue
		}
		for _, item := range list {
			key := valueKey(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, item)
		}
		field.Provenance = append(field.Provenance, c.chunk)
		field.Confidence = max(field.Confidence, c.value.Confidence)
	}
	if len(items) == 0 {
		return field, false
	}
	field.Value = items
	field.Resolved = true
	return field, true
}

// pick expects cands ordered by chunk.
func (a *Aggregator) pick(cands []candidate) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		switch a.policy {
		case Earliest:
			if best.value.Malformed && !c.value.Malformed {
				best = c
			}
		default:
			if c.value.Confidence > best.value.Confidence {
				best = c
			}
		}
	}
	return best
}

// valueKey compares values loosely: case, spacing and list order ignored.
func valueKey(v any) string {
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.Join(strings.Fields(t), " "))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		items := make([]string, len(t))
		for i, s := range t {
			items[i] = valueKey(s)
		}
		slices.Sort(items)
		return strings.Join(items, "\x1f")
	}
	return fmt.Sprint(v)
}
