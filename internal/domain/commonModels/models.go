package commonModels

import "time"

type DocType string

var PDF DocType = "PDF"
var DOCX DocType = "DOCX"
var ODT DocType = "ODT"
var RTF DocType = "RTF"
var TXT DocType = "TXT"
var ERR DocType = "ERROR"

// Page is one page (PDF) or section (Word) of extracted text, in reading order.
type Page struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// Document is immutable once the loader returns it.
type Document struct {
	Id          string    `json:"source_doc_id"`
	Name        string    `json:"doc_name"`
	Path        string    `json:"path"`
	ContentType DocType   `json:"contentType"`
	ByteLength  int64     `json:"byte_length"`
	PageCount   int       `json:"page_count"`
	Pages       []Page    `json:"pages"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Span is a half-open byte range into the document's joined text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Chunk struct {
	DocId     string `json:"doc_id"`
	Ordinal   int    `json:"ordinal"`
	Span      Span   `json:"span"`
	Overlap   string `json:"overlap,omitempty"`
	Body      string `json:"body"`
	Tokens    int    `json:"tokens"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Forced    bool   `json:"forced,omitempty"`
}

// Text is what gets sent to the model: carried context followed by the body.
func (c Chunk) Text() string {
	if c.Overlap == "" {
		return c.Body
	}
	return c.Overlap + "\n" + c.Body
}

func (c Chunk) CoversPage(page int) bool {
	return page >= c.PageStart && page <= c.PageEnd
}
