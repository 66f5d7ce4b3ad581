// Package export writes a finished batch to disk: an XLSX workbook for
// review and master_data.json for the templating step.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

type BatchFiles struct {
	Dir        string `json:"dir"`
	Workbook   string `json:"workbook"`
	MasterData string `json:"master_data"`
}

type Writer struct {
	root   string
	schema recordModel.Schema
	logger *logger_i.Logger
	now    func() time.Time
}

func NewWriter(root string, schema recordModel.Schema) *Writer {
	return &Writer{root: root, schema: schema, logger: logger_i.NewLogger("export"), now: time.Now}
}

// WriteBatch creates root/<batch id>/ and writes both artifacts into it.
func (w *Writer) WriteBatch(records []recordModel.Record, summary runModel.RunSummary) (BatchFiles, error) {
	start := time.Now()
	dir := filepath.Join(w.root, summary.BatchId)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BatchFiles{}, fmt.Errorf("create batch dir: %w", err)
	}
	files := BatchFiles{
		Dir:        dir,
		Workbook:   filepath.Join(dir, WorkbookFile),
		MasterData: filepath.Join(dir, MasterDataFile),
	}

	if err := WriteXLSX(files.Workbook, w.schema, records, summary); err != nil {
		w.logger.Error("export.xlsx.failed", "batch", summary.BatchId, "error", err)
		return files, err
	}
	w.logger.Info("export.xlsx.ok", "batch", summary.BatchId, "rows", len(records), "path", files.Workbook)

	md := BuildMasterData(w.schema, records, summary, w.now())
	if err := WriteMasterData(files.MasterData, md); err != nil {
		w.logger.Error("export.json.failed", "batch", summary.BatchId, "error", err)
		return files, err
	}
	w.logger.Info("export.json.ok", "batch", summary.BatchId, "documents", len(md.Documents), "path", files.MasterData)

	metrics.CaptureExecutionMetrics("export", time.Since(start))
	return files, nil
}
