package export

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/xuri/excelize/v2"
)

const (
	RecordsSheet = "Records"
	SummarySheet = "Summary"
)

// BuildWorkbook lays out one row per document on the Records sheet and the
// run outcome on the Summary sheet.
func BuildWorkbook(schema recordModel.Schema, records []recordModel.Record, summary runModel.RunSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", RecordsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}

	headers := []any{"Path", "State", "Error"}
	for _, field := range schema.Fields {
		headers = append(headers, field.Name, field.Name+"_confidence", field.Name+"_chunks")
	}
	if err := writeRow(f, RecordsSheet, 1, headers); err != nil {
		return nil, err
	}

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b recordModel.Record) int { return strings.Compare(a.Path, b.Path) })
	for i, rec := range sorted {
		row := []any{rec.Path, string(rec.State), errorText(rec.ErrorKind, rec.Error)}
		for _, spec := range schema.Fields {
			field, _ := rec.Field(spec.Name)
			if !field.Resolved {
				row = append(row, "", "", "")
				continue
			}
			row = append(row, cellValue(field.Value), field.Confidence, joinInts(field.Provenance))
		}
		if err := writeRow(f, RecordsSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(RecordsSheet, "A", "A", 40)
	_ = f.SetColWidth(RecordsSheet, "C", "C", 36)
	_ = f.SetPanes(RecordsSheet, &excelize.Panes{Freeze: true, Split: false, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight"})

	if err := writeSummary(f, summary); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteXLSX saves the workbook at path.
func WriteXLSX(path string, schema recordModel.Schema, records []recordModel.Record, summary runModel.RunSummary) error {
	f, err := BuildWorkbook(schema, records, summary)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s runModel.RunSummary) error {
	rows := [][]any{
		{"Batch", s.BatchId},
		{"Started", s.StartedAt.Format(time.RFC3339)},
		{"Finished", s.FinishedAt.Format(time.RFC3339)},
		{"Processed", s.Processed},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
		{},
		{"Path", "State", "Error", "Chunks", "Chunk failures", "Unresolved fields", "Warnings"},
	}
	for _, d := range s.Documents {
		rows = append(rows, []any{
			d.Path,
			string(d.State),
			errorText(d.ErrorKind, d.Error),
			d.Chunks,
			d.ChunkFailures,
			strings.Join(d.UnresolvedFields, ", "),
			len(d.Warnings),
		})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := writeRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 40)
	_ = f.SetColWidth(SummarySheet, "C", "C", 36)
	_ = f.SetColWidth(SummarySheet, "F", "F", 48)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, "; ")
	case nil:
		return ""
	}
	return v
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func errorText[K ~string](kind K, msg string) string {
	switch {
	case kind == "" && msg == "":
		return ""
	case msg == "":
		return string(kind)
	case kind == "":
		return msg
	}
	return string(kind) + ": " + msg
}
