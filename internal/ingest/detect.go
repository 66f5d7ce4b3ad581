package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/akolanti/BidExtract/internal/domain/commonModels"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
	rtfMagic = []byte(`{\rtf`)
)

const sniffLen = 512

func getDocType(docPath string) commonModels.DocType {
	ext := strings.ToLower(filepath.Ext(docPath))
	switch ext {
	case ".pdf":
		return commonModels.PDF
	case ".docx":
		return commonModels.DOCX
	case ".odt":
		return commonModels.ODT
	case ".rtf":
		return commonModels.RTF
	case ".txt":
		return commonModels.TXT
	default:
		return commonModels.ERR
	}
}

// sniff confirms that the leading bytes of the file agree with docType.
func sniff(f io.Reader, docType commonModels.DocType) error {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read header: %w", err)
	}
	head = head[:n]

	switch docType {
	case commonModels.PDF:
		// some producers emit junk before the header
		if !bytes.Contains(head, pdfMagic) {
			return fmt.Errorf("missing %q header", pdfMagic)
		}
	case commonModels.DOCX, commonModels.ODT:
		if !bytes.HasPrefix(head, zipMagic) {
			return fmt.Errorf("not a zip container")
		}
	case commonModels.RTF:
		if !bytes.HasPrefix(bytes.TrimLeft(head, "\ufeff \r\n\t"), rtfMagic) {
			return fmt.Errorf("missing %q header", rtfMagic)
		}
	case commonModels.TXT:
		if bytes.IndexByte(head, 0) >= 0 {
			return fmt.Errorf("binary content")
		}
		// a multi-byte rune may be cut at the sniff boundary
		trimmed := head
		for i := 0; i < utf8.UTFMax && len(trimmed) > 0 && !utf8.Valid(trimmed); i++ {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if !utf8.Valid(trimmed) {
			return fmt.Errorf("not utf-8 text")
		}
	default:
		return fmt.Errorf("unknown type %s", docType)
	}
	return nil
}

// Discover expands directories into the supported files they contain. Plain
// file arguments are kept even when unsupported so the loader reports them.
// The result is sorted and free of duplicates.
func Discover(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if getDocType(path) != commonModels.ERR && !strings.HasPrefix(d.Name(), "~$") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(out)
	return out, nil
}
