package segment

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/akolanti/BidExtract/internal/domain/commonModels"
)

const (
	pageSeparator = "\n\n"
	runesPerToken = 4
)

// EstimateTokens approximates the model token count of s as ceil(runes/4).
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + runesPerToken - 1) / runesPerToken
}

// Join returns the text that chunk spans index into.
func Join(pages []commonModels.Page) string {
	text, _ := atomize(pages)
	return text
}

// Segment splits a document into chunks of at most maxTokens estimated tokens.
// Each chunk after the first repeats up to overlap tokens of whole trailing
// atoms from its predecessor. Atoms are sentences or table rows and are never
// split; an atom that alone exceeds maxTokens is cut on rune boundaries and
// every resulting chunk is marked Forced.
func Segment(doc commonModels.Document, maxTokens, overlap int) ([]commonModels.Chunk, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("overlap must be within [0,%d), got %d", maxTokens, overlap)
	}

	text, atoms := atomize(doc.Pages)
	b := &builder{
		docId:        doc.Id,
		text:         text,
		maxRunes:     maxTokens * runesPerToken,
		overlapRunes: overlap * runesPerToken,
	}
	for _, a := range atoms {
		b.add(a)
	}
	b.flush()
	if n := len(b.chunks); n > 0 {
		b.chunks[n-1].Span.End = len(text)
	}
	return b.chunks, nil
}

type atom struct {
	start, end int
	page       int
	runes      int
}

type builder struct {
	docId        string
	text         string
	maxRunes     int
	overlapRunes int

	chunks   []commonModels.Chunk
	cur      []atom
	curRunes int
	lead     []atom
	prev     []atom
	lastEnd  int
}

func (b *builder) add(a atom) {
	if a.runes > b.maxRunes {
		b.flush()
		b.forceSplit(a)
		b.prev = nil
		return
	}
	if len(b.cur) == 0 {
		b.start(a)
		return
	}
	body := b.curRunes + 1 + a.runes
	if b.total(body) <= b.maxRunes {
		b.cur = append(b.cur, a)
		b.curRunes = body
		return
	}
	b.flush()
	b.start(a)
}

func (b *builder) start(a atom) {
	b.lead = b.chooseOverlap(a.runes)
	b.cur = []atom{a}
	b.curRunes = a.runes
}

func (b *builder) leadRunes() int {
	if len(b.lead) == 0 {
		return 0
	}
	n := len(b.lead) - 1
	for _, a := range b.lead {
		n += a.runes
	}
	return n
}

func (b *builder) total(bodyRunes int) int {
	if lead := b.leadRunes(); lead > 0 {
		return lead + 1 + bodyRunes
	}
	return bodyRunes
}

// chooseOverlap takes whole atoms from the end of the previous chunk while
// they fit both the overlap budget and the room left beside the first atom.
func (b *builder) chooseOverlap(firstRunes int) []atom {
	if b.overlapRunes == 0 || len(b.prev) == 0 {
		return nil
	}
	used := 0
	i := len(b.prev)
	for i > 0 {
		next := b.prev[i-1].runes
		if used > 0 {
			next++
		}
		if used+next > b.overlapRunes || used+next+1+firstRunes > b.maxRunes {
			break
		}
		used += next
		i--
	}
	if i == len(b.prev) {
		return nil
	}
	return append([]atom(nil), b.prev[i:]...)
}

func (b *builder) join(atoms []atom) string {
	var sb strings.Builder
	for i, a := range atoms {
		if i > 0 {
			if strings.Contains(b.text[atoms[i-1].end:a.start], "\n") {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(b.text[a.start:a.end])
	}
	return sb.String()
}

func (b *builder) flush() {
	if len(b.cur) == 0 {
		return
	}
	last := b.cur[len(b.cur)-1]
	c := commonModels.Chunk{
		DocId:     b.docId,
		Ordinal:   len(b.chunks),
		Span:      commonModels.Span{Start: b.lastEnd, End: last.end},
		Overlap:   b.join(b.lead),
		Body:      b.join(b.cur),
		PageStart: b.cur[0].page,
		PageEnd:   last.page,
	}
	c.Tokens = EstimateTokens(c.Text())
	b.chunks = append(b.chunks, c)
	b.lastEnd = last.end
	b.prev = b.cur
	b.cur, b.lead, b.curRunes = nil, nil, 0
}

func (b *builder) forceSplit(a atom) {
	s := b.text[a.start:a.end]
	pieceStart, count := 0, 0
	emit := func(end int) {
		c := commonModels.Chunk{
			DocId:     b.docId,
			Ordinal:   len(b.chunks),
			Span:      commonModels.Span{Start: b.lastEnd, End: a.start + end},
			Body:      s[pieceStart:end],
			PageStart: a.page,
			PageEnd:   a.page,
			Forced:    true,
		}
		c.Tokens = EstimateTokens(c.Body)
		b.chunks = append(b.chunks, c)
		b.lastEnd = a.start + end
		pieceStart, count = end, 0
	}
	for i := range s {
		if count == b.maxRunes {
			emit(i)
		}
		count++
	}
	if pieceStart < len(s) {
		emit(len(s))
	}
}

func atomize(pages []commonModels.Page) (string, []atom) {
	var sb strings.Builder
	var atoms []atom
	for i, p := range pages {
		if i > 0 {
			sb.WriteString(pageSeparator)
		}
		base := sb.Len()
		sb.WriteString(p.Content)
		atoms = append(atoms, pageAtoms(p.Content, base, p.Number)...)
	}
	return sb.String(), atoms
}

// pageAtoms walks the page line by line. Table rows stand alone; runs of
// prose lines are split into sentences.
func pageAtoms(content string, base, page int) []atom {
	var atoms []atom
	runStart, runEnd := -1, 0
	flushRun := func() {
		if runStart >= 0 {
			atoms = append(atoms, sentences(content, runStart, runEnd, base, page)...)
			runStart = -1
		}
	}

	for pos := 0; pos < len(content); {
		lineEnd, next := len(content), len(content)
		if i := strings.IndexByte(content[pos:], '\n'); i >= 0 {
			lineEnd, next = pos+i, pos+i+1
		}
		line := content[pos:lineEnd]
		switch {
		case strings.TrimSpace(line) == "":
			flushRun()
		case isTableRow(line):
			flushRun()
			if a, ok := newAtom(content, pos, lineEnd, base, page); ok {
				atoms = append(atoms, a)
			}
		default:
			if runStart < 0 {
				runStart = pos
			}
			runEnd = lineEnd
		}
		pos = next
	}
	flushRun()
	return atoms
}

func isTableRow(line string) bool {
	return strings.ContainsAny(line, "|\t")
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', ';':
		return true
	}
	return false
}

func sentences(content string, start, end, base, page int) []atom {
	var atoms []atom
	sentStart := start
	for i := start; i < end; {
		r, size := utf8.DecodeRuneInString(content[i:])
		i += size
		if !isTerminator(r) {
			continue
		}
		if i < end {
			next, _ := utf8.DecodeRuneInString(content[i:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		if a, ok := newAtom(content, sentStart, i, base, page); ok {
			atoms = append(atoms, a)
		}
		sentStart = i
	}
	if a, ok := newAtom(content, sentStart, end, base, page); ok {
		atoms = append(atoms, a)
	}
	return atoms
}

func newAtom(content string, start, end, base, page int) (atom, bool) {
	for start < end {
		r, size := utf8.DecodeRuneInString(content[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(content[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if start == end {
		return atom{}, false
	}
	return atom{
		start: base + start,
		end:   base + end,
		page:  page,
		runes: utf8.RuneCountInString(content[start:end]),
	}, true
}
