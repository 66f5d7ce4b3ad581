package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/commonModels"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/segment"
)

// NotFound is the marker the model is told to use for absent fields.
const NotFound = "[KHÔNG TÌM THẤY]"

// BuildSystemPrompt lists the schema fields and the response contract.
func BuildSystemPrompt(schema recordModel.Schema) string {
	var b strings.Builder
	b.WriteString("You extract structured data from Vietnamese public procurement documents (hồ sơ mời thầu). ")
	b.WriteString("You will receive one excerpt of a longer document. ")
	b.WriteString("Return ONLY a JSON object of the form {\"fields\": {\"<name>\": {\"value\": <value>, \"confidence\": <0..1>}}}.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Copy values exactly as written in the excerpt. Never invent or infer values from outside the excerpt.\n")
	b.WriteString("- Omit a field, or set its value to \"" + NotFound + "\", when the excerpt does not contain it.\n")
	b.WriteString("- confidence is your certainty that the value is correct and complete for this field.\n")
	b.WriteString("- Dates as YYYY-MM-DD when the day, month and year are all known.\n")
	b.WriteString("- Numbers as plain numbers without thousands separators or currency.\n")
	b.WriteString("- Lists as JSON arrays of strings, one item per entry.\n")
	b.WriteString("Fields:\n")
	for _, f := range schema.Fields {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(" (")
		b.WriteString(string(f.Kind))
		b.WriteString(")")
		if d := strings.TrimSpace(f.Description); d != "" {
			b.WriteString(": ")
			b.WriteString(d)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BuildUserPrompt packages the chunk with its location hints.
func BuildUserPrompt(docName string, chunk commonModels.Chunk) string {
	var b strings.Builder
	if docName != "" {
		b.WriteString("Document: ")
		b.WriteString(docName)
		b.WriteString("\n")
	}
	if chunk.PageStart == chunk.PageEnd {
		fmt.Fprintf(&b, "Page: %d\n", chunk.PageStart)
	} else {
		fmt.Fprintf(&b, "Pages: %d-%d\n", chunk.PageStart, chunk.PageEnd)
	}
	fmt.Fprintf(&b, "Excerpt #%d:\n", chunk.Ordinal)
	b.WriteString("---\n")
	b.WriteString(chunk.Text())
	b.WriteString("\n---")
	return b.String()
}

// NewRequest assembles the request for one chunk, including its fingerprint
// and the token estimate charged against the rate gate.
func NewRequest(docName string, chunk commonModels.Chunk, schema recordModel.Schema, params recordModel.ModelParams) recordModel.ExtractionRequest {
	prompt := recordModel.Prompt{
		System: BuildSystemPrompt(schema),
		User:   BuildUserPrompt(docName, chunk),
	}
	return recordModel.ExtractionRequest{
		DocId:           chunk.DocId,
		Chunk:           chunk,
		Prompt:          prompt,
		Params:          params,
		TemplateVersion: config.PromptTemplateVersion,
		Fingerprint:     Fingerprint(chunk.Text(), prompt.System, config.PromptTemplateVersion, params),
		EstimatedTokens: segment.EstimateTokens(prompt.System) + segment.EstimateTokens(prompt.User) + params.MaxOutputTokens,
	}
}

// Fingerprint identifies a request by what the model sees. The document
// name is left out so identical excerpts in different files share a result.
func Fingerprint(chunkText, system, templateVersion string, params recordModel.ModelParams) string {
	h := sha256.New()
	for _, part := range []string{
		templateVersion,
		params.Provider,
		params.Model,
		strconv.FormatFloat(params.Temperature, 'g', -1, 64),
		strconv.Itoa(params.MaxOutputTokens),
		system,
		chunkText,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
