package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/commonModels"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

const op = "ingest.load"

type rawPage struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// Loader turns a file on disk into a Document. It only reads.
type Loader struct {
	pageTimeout time.Duration
	logger      *logger_i.Logger
}

func NewLoader(pageTimeout time.Duration) *Loader {
	if pageTimeout <= 0 {
		pageTimeout = config.PageExtractTimeout
	}
	return &Loader{
		pageTimeout: pageTimeout,
		logger:      logger_i.NewLogger("ingest"),
	}
}

// Load extracts the text of path page by page. Warnings describe pages that
// were skipped while the rest of the document was still usable. Every error is
// a *failure.Error of kind LoadError (or Cancelled).
func (l *Loader) Load(ctx context.Context, path string) (commonModels.Document, []string, error) {
	logger := l.logger.WithContext(ctx).With("path", path)
	start := time.Now()
	defer func() {
		metrics.CaptureExecutionMetrics("ingest", time.Since(start))
	}()

	docType := getDocType(path)
	if docType == commonModels.ERR {
		return commonModels.Document{}, nil, failure.New(failure.LoadError, op,
			fmt.Errorf("%w: extension %q", failure.ErrUnsupportedFormat, filepath.Ext(path)))
	}

	f, err := os.Open(path)
	if err != nil {
		return commonModels.Document{}, nil, failure.New(failure.LoadError, op, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return commonModels.Document{}, nil, failure.New(failure.LoadError, op, err)
	}
	if info.Size() == 0 {
		f.Close()
		return commonModels.Document{}, nil, failure.New(failure.LoadError, op, fmt.Errorf("%w: empty file", failure.ErrNoText))
	}
	sniffErr := sniff(f, docType)
	f.Close()
	if sniffErr != nil {
		return commonModels.Document{}, nil, failure.New(failure.LoadError, op,
			fmt.Errorf("%w: %s content does not match: %v", failure.ErrUnsupportedFormat, docType, sniffErr))
	}

	logger.Debug("extracting document", "type", docType, "bytes", info.Size())

	var (
		pages     []rawPage
		pageCount int
		warnings  []string
	)
	switch docType {
	case commonModels.PDF:
		pages, pageCount, warnings, err = l.extractPDF(ctx, path)
	default:
		pages, err = extractDocxTxtRtf(path)
		pageCount = len(pages)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return commonModels.Document{}, nil, failure.New(failure.Cancelled, op, ctxErr)
		}
		var fe *failure.Error
		if errors.As(err, &fe) {
			return commonModels.Document{}, warnings, err
		}
		return commonModels.Document{}, warnings, failure.New(failure.LoadError, op, err)
	}

	doc := commonModels.Document{
		Id:          path,
		Name:        filepath.Base(path),
		Path:        path,
		ContentType: docType,
		ByteLength:  info.Size(),
		PageCount:   pageCount,
		LoadedAt:    time.Now(),
	}
	for _, p := range pages {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, commonModels.Page{Number: p.Number, Content: p.Content})
	}

	if len(doc.Pages) == 0 {
		detail := "document has no text layer"
		if docType == commonModels.PDF {
			if images := countImagePages(path); images > 0 {
				detail = fmt.Sprintf("%d of %d pages carry only images; OCR is not supported", images, pageCount)
			}
		}
		return commonModels.Document{}, warnings, failure.New(failure.LoadError, op, fmt.Errorf("%w: %s", failure.ErrNoText, detail))
	}

	logger.Info("document loaded", "type", docType, "pages", len(doc.Pages), "pageCount", pageCount, "warnings", len(warnings))
	return doc, warnings, nil
}
