package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	MasterDataFile = "master_data.json"
	WorkbookFile   = "records.xlsx"
)

var placeholderTypes = map[recordModel.FieldKind]string{
	recordModel.KindText:   "simple_text",
	recordModel.KindNumber: "number",
	recordModel.KindDate:   "date",
	recordModel.KindList:   "structured",
}

type Placeholder struct {
	Type                string  `json:"type"`
	Content             any     `json:"content"`
	Confidence          float64 `json:"confidence"`
	Chunks              []int   `json:"chunks,omitempty"`
	ExtractedFrom       string  `json:"extracted_from"`
	ExtractionTimestamp string  `json:"extraction_timestamp"`
}

type LogEntry struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	SourceFile string `json:"source_file"`
	Error      string `json:"error,omitempty"`
}

type DocumentData struct {
	State         runModel.DocState      `json:"state"`
	Error         string                 `json:"error,omitempty"`
	Placeholders  map[string]Placeholder `json:"placeholders"`
	ExtractionLog map[string]LogEntry    `json:"extraction_log"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// MasterData is the batch-level JSON consumed by the document templating step.
type MasterData struct {
	BatchId           string                  `json:"batch_id"`
	CreationTimestamp string                  `json:"creation_timestamp"`
	Documents         map[string]DocumentData `json:"documents"`
	Summary           runModel.RunSummary     `json:"summary"`
}

func BuildMasterData(schema recordModel.Schema, records []recordModel.Record, summary runModel.RunSummary, now time.Time) MasterData {
	stamp := now.Format(time.RFC3339)
	md := MasterData{
		BatchId:           summary.BatchId,
		CreationTimestamp: stamp,
		Documents:         make(map[string]DocumentData, len(records)),
		Summary:           summary,
	}
	for _, rec := range records {
		doc := DocumentData{
			State:         rec.State,
			Error:         errorText(rec.ErrorKind, rec.Error),
			Placeholders:  make(map[string]Placeholder, len(schema.Fields)),
			ExtractionLog: make(map[string]LogEntry, len(schema.Fields)),
			Warnings:      rec.Warnings,
		}
		source := filepath.Base(rec.Path)
		for _, spec := range schema.Fields {
			field, _ := rec.Field(spec.Name)
			entry := LogEntry{Status: StatusSuccess, Timestamp: stamp, SourceFile: source}
			if !field.Resolved {
				entry.Status = StatusFailed
				entry.Error = gapReason(rec, field)
				doc.ExtractionLog[spec.Name] = entry
				continue
			}
			doc.Placeholders[spec.Name] = Placeholder{
				Type:                placeholderTypes[spec.Kind],
				Content:             field.Value,
				Confidence:          field.Confidence,
				Chunks:              field.Provenance,
				ExtractedFrom:       source,
				ExtractionTimestamp: stamp,
			}
			doc.ExtractionLog[spec.Name] = entry
		}
		md.Documents[rec.Path] = doc
	}
	return md
}

func gapReason(rec recordModel.Record, field recordModel.ResolvedField) string {
	if rec.Error != "" {
		return errorText(rec.ErrorKind, rec.Error)
	}
	if field.Gap != "" {
		return string(field.Gap) + ": not found in any chunk"
	}
	return "not found"
}

// WriteMasterData writes the batch JSON at path.
func WriteMasterData(path string, md MasterData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("master data create: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(md); err != nil {
		return fmt.Errorf("master data encode: %w", err)
	}
	return f.Close()
}
