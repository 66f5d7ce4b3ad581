package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var errPageTimeout = errors.New("page extraction timed out")

func (l *Loader) extractPDF(ctx context.Context, path string) (pages []rawPage, numPages int, warnings []string, err error) {
	l.logger.Debug("extractPDF", "attempting extraction", path)

	f, err := openPDF(path)
	if err != nil {
		l.logger.Warn("failed opening of pdf file", "path", path, "error", err)
		detail := err.Error()
		if v := diagnosePDF(path); v != "" {
			detail = v
		}
		return nil, 0, nil, failure.New(failure.LoadError, op, fmt.Errorf("%w: %s", failure.ErrCorruptDocument, detail))
	}

	numPages = f.NumPage()
	l.logger.Debug("extractPDF", "number of pages", numPages)
	failed := 0
	for i := 1; i <= numPages; i++ {
		if ctx.Err() != nil {
			return nil, numPages, warnings, ctx.Err()
		}
		page := f.Page(i)
		if page.V.IsNull() {
			warnings = append(warnings, fmt.Sprintf("page %d: missing page object", i))
			failed++
			continue
		}

		content, err := protectExtract(ctx, page, l.pageTimeout)
		if err != nil {
			// keep going; the other pages may still be usable
			l.logger.Warn("Error parsing page content", "page", i, "error", err)
			warnings = append(warnings, fmt.Sprintf("page %d: partial extraction: %v", i, err))
			failed++
			continue
		}

		pages = append(pages, rawPage{
			Number:  i,
			Content: content,
		})
	}

	if numPages > 0 && failed == numPages {
		return nil, numPages, warnings, failure.New(failure.LoadError, op,
			fmt.Errorf("%w: none of %d pages could be read", failure.ErrCorruptDocument, numPages))
	}
	return pages, numPages, warnings, nil
}

// openPDF guards against the reader panicking on malformed cross-reference tables.
func openPDF(path string) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("pdf reader panic: %v", rec)
		}
	}()
	return pdf.Open(path)
}

// extractDocxTxtRtf reads a .odt, .docx, .rtf or plaintext file. Form feeds
// (manual page breaks) split the text into sections numbered from 1.
func extractDocxTxtRtf(path string) (pages []rawPage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("%w: %v", failure.ErrCorruptDocument, rec)
		}
	}()

	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract text: %v", failure.ErrCorruptDocument, err)
	}

	for i, section := range strings.Split(text, "\f") {
		pages = append(pages, rawPage{
			Number:  i + 1,
			Content: section,
		})
	}
	return pages, nil
}

func protectExtract(ctx context.Context, page pdf.Page, timeout time.Duration) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resChan <- result{"", fmt.Errorf("page reader panic: %v", rec)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-timer.C:
		return "", errPageTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// diagnosePDF asks pdfcpu why a file could not be opened. Empty when pdfcpu
// has nothing to add.
func diagnosePDF(path string) (detail string) {
	defer func() {
		if rec := recover(); rec != nil {
			detail = ""
		}
	}()
	if err := api.ValidateFile(path, model.NewDefaultConfiguration()); err != nil {
		return "pdf validation: " + err.Error()
	}
	return ""
}

// countImagePages reports how many pages reference image XObjects. Used to
// explain an empty text layer (scanned documents).
func countImagePages(path string) (n int) {
	defer func() {
		if rec := recover(); rec != nil {
			n = 0
		}
	}()
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil || ctx.Optimize == nil {
		return 0
	}
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
			n++
		}
	}
	return n
}
