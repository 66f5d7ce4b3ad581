package aggregate

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
)

func partial(chunk int, fields map[string]recordModel.FieldValue) recordModel.PartialRecord {
	for name, v := range fields {
		v.Chunk = chunk
		fields[name] = v
	}
	return recordModel.PartialRecord{Chunk: chunk, Fields: fields}
}

func TestAggregate_DateOnlyOnPageTwo(t *testing.T) {
	agg := New(recordModel.DefaultSchema(), HighestConfidence)
	partials := []recordModel.PartialRecord{
		partial(0, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "Công ty Điện lực", Confidence: 0.8}}),
		partial(1, map[string]recordModel.FieldValue{"ngay_phat_hanh": {Value: "2024-03-01", Confidence: 0.9}}),
		partial(2, map[string]recordModel.FieldValue{}),
	}
	rec := agg.Aggregate("a.pdf", partials, nil)

	if len(rec.Fields) != len(recordModel.DefaultSchema().Fields) {
		t.Fatalf("Fields = %d; want every schema field", len(rec.Fields))
	}
	for i, f := range recordModel.DefaultSchema().Fields {
		if rec.Fields[i].Name != f.Name {
			t.Errorf("field %d = %s; want schema order %s", i, rec.Fields[i].Name, f.Name)
		}
	}
	date, _ := rec.Field("ngay_phat_hanh")
	if !date.Resolved || date.Value != "2024-03-01" || date.Confidence != 0.9 || !reflect.DeepEqual(date.Provenance, []int{1}) {
		t.Errorf("ngay_phat_hanh = %+v", date)
	}
	price, _ := rec.Field("gia_goi_thau")
	if price.Resolved || price.Gap != failure.AggregationGap {
		t.Errorf("gia_goi_thau should be an explicit gap, got %+v", price)
	}
}

func TestAggregate_Conflicts(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		partials   []recordModel.PartialRecord
		wantValue  any
		wantChunks []int
	}{
		{
			name:   "equal confidence keeps earliest",
			policy: HighestConfidence,
			partials: []recordModel.PartialRecord{
				partial(3, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "B", Confidence: 0.8}}),
				partial(1, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "A", Confidence: 0.8}}),
			},
			wantValue:  "A",
			wantChunks: []int{1},
		},
		{
			name:   "highest confidence wins",
			policy: HighestConfidence,
			partials: []recordModel.PartialRecord{
				partial(0, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "A", Confidence: 0.6}}),
				partial(1, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "B", Confidence: 0.95}}),
			},
			wantValue:  "B",
			wantChunks: []int{1},
		},
		{
			name:   "agreeing chunks join provenance",
			policy: HighestConfidence,
			partials: []recordModel.PartialRecord{
				partial(0, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "Ban QLDA  điện", Confidence: 0.7}}),
				partial(4, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "ban qlda điện", Confidence: 0.9}}),
				partial(2, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "Khác", Confidence: 0.5}}),
			},
			wantValue:  "ban qlda điện",
			wantChunks: []int{4, 0},
		},
		{
			name:   "earliest policy ignores confidence",
			policy: Earliest,
			partials: []recordModel.PartialRecord{
				partial(2, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "B", Confidence: 0.99}}),
				partial(0, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "A", Confidence: 0.4}}),
			},
			wantValue:  "A",
			wantChunks: []int{0},
		},
		{
			name:   "earliest policy skips malformed",
			policy: Earliest,
			partials: []recordModel.PartialRecord{
				partial(0, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "???", Confidence: 0.3, Malformed: true}}),
				partial(1, map[string]recordModel.FieldValue{"chu_dau_tu": {Value: "A", Confidence: 0.7}}),
			},
			wantValue:  "A",
			wantChunks: []int{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := New(recordModel.DefaultSchema(), tt.policy).Aggregate("doc", tt.partials, nil)
			f, _ := rec.Field("chu_dau_tu")
			if f.Value != tt.wantValue || !reflect.DeepEqual(f.Provenance, tt.wantChunks) {
				t.Errorf("got value %v provenance %v; want %v %v", f.Value, f.Provenance, tt.wantValue, tt.wantChunks)
			}
			if f.Candidates != len(tt.partials) {
				t.Errorf("Candidates = %d; want %d", f.Candidates, len(tt.partials))
			}
		})
	}
}

func TestAggregate_FailuresDoNotBlock(t *testing.T) {
	agg := New(recordModel.DefaultSchema(), HighestConfidence)
	failures := []recordModel.ChunkFailure{
		{Chunk: 2, Kind: failure.TransientAPIError, Message: "gave up", Attempts: 5},
		{Chunk: 0, Kind: failure.ParseError, Message: "not json"},
	}
	partials := []recordModel.PartialRecord{
		partial(1, map[string]recordModel.FieldValue{"so_buoc": {Value: float64(7), Confidence: 0.7}}),
	}
	rec := agg.Aggregate("doc", partials, failures)
	if rec.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d; want 3", rec.ChunkCount)
	}
	if len(rec.ChunkFailures) != 2 || rec.ChunkFailures[0].Chunk != 0 {
		t.Errorf("ChunkFailures = %+v; want sorted by chunk", rec.ChunkFailures)
	}
	if f, _ := rec.Field("so_buoc"); !f.Resolved || f.Value != float64(7) {
		t.Errorf("so_buoc = %+v", f)
	}

	none := agg.Aggregate("doc", nil, failures)
	if len(none.Unresolved()) != len(recordModel.DefaultSchema().Fields) {
		t.Errorf("every field should be a gap when all chunks failed")
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	agg := New(recordModel.DefaultSchema(), HighestConfidence)
	var partials []recordModel.PartialRecord
	for i := 0; i < 8; i++ {
		partials = append(partials, partial(i, map[string]recordModel.FieldValue{
			"chu_dau_tu": {Value: []string{"A", "B", "C"}[i%3], Confidence: 0.5 + float64(i%2)*0.2},
			"can_cu":     {Value: []string{"Luật Đấu thầu", "Nghị định 24"}, Confidence: 0.7},
		}))
		partials[i].Warnings = []string{"w"}
	}
	want := agg.Aggregate("doc", partials, nil)

	r := rand.New(rand.NewSource(7))
	for n := 0; n < 20; n++ {
		shuffled := append([]recordModel.PartialRecord(nil), partials...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := agg.Aggregate("doc", shuffled, nil); !reflect.DeepEqual(got, want) {
			t.Fatalf("aggregation depends on input order:\n got %+v\nwant %+v", got, want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", HighestConfidence, false},
		{"highest_confidence", HighestConfidence, false},
		{" Earliest ", Earliest, false},
		{"vote", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestAggregate_ListUnion(t *testing.T) {
	tests := []struct {
		name           string
		partials       []recordModel.PartialRecord
		wantValue      any
		wantConfidence float64
		wantProvenance []int
	}{
		{
			name: "items from every chunk, repeats dropped",
			partials: []recordModel.PartialRecord{
				partial(2, map[string]recordModel.FieldValue{"can_cu": {Value: []string{"Nghị định 24", "Quyết định 15"}, Confidence: 0.9}}),
				partial(0, map[string]recordModel.FieldValue{"can_cu": {Value: []string{"Luật Đấu thầu", "nghị định  24"}, Confidence: 0.6}}),
			},
			wantValue:      []string{"Luật Đấu thầu", "nghị định  24", "Quyết định 15"},
			wantConfidence: 0.9,
			wantProvenance: []int{0, 2},
		},
		{
			name: "malformed candidates are left out",
			partials: []recordModel.PartialRecord{
				partial(0, map[string]recordModel.FieldValue{"can_cu": {Value: "Luật Đấu thầu 2023", Confidence: 0.3, Malformed: true}}),
				partial(1, map[string]recordModel.FieldValue{"can_cu": {Value: []string{"Nghị định 24"}, Confidence: 0.7}}),
			},
			wantValue:      []string{"Nghị định 24"},
			wantConfidence: 0.7,
			wantProvenance: []int{1},
		},
		{
			name: "only malformed candidates fall back to the policy",
			partials: []recordModel.PartialRecord{
				partial(0, map[string]recordModel.FieldValue{"can_cu": {Value: "Luật Đấu thầu 2023", Confidence: 0.3, Malformed: true}}),
			},
			wantValue:      "Luật Đấu thầu 2023",
			wantConfidence: 0.3,
			wantProvenance: []int{0},
		},
	}
	agg := New(recordModel.DefaultSchema(), HighestConfidence)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := agg.Aggregate("doc", tt.partials, nil)
			f, _ := rec.Field("can_cu")
			if !f.Resolved || !reflect.DeepEqual(f.Value, tt.wantValue) || f.Confidence != tt.wantConfidence || !reflect.DeepEqual(f.Provenance, tt.wantProvenance) {
				t.Errorf("can_cu = %+v", f)
			}
			if len(rec.Warnings) != 0 {
				t.Errorf("list fields should not report conflicts, got %v", rec.Warnings)
			}
		})
	}
}
