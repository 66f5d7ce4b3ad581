package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const op = "parse.response"

const (
	WellFormedConfidence = 0.7
	MalformedConfidence  = 0.3
)

// kindSchemas constrain the normalized value of each field kind.
var kindSchemas = map[recordModel.FieldKind]string{
	recordModel.KindText:   `{"type": "string", "minLength": 1}`,
	recordModel.KindNumber: `{"type": "number"}`,
	recordModel.KindDate:   `{"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}`,
	recordModel.KindList:   `{"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}`,
}

// Parser turns a raw model completion into a PartialRecord for one schema.
type Parser struct {
	schema     recordModel.Schema
	byName     map[string]recordModel.FieldSpec
	validators map[recordModel.FieldKind]*jsonschema.Schema
	logger     *logger_i.Logger
}

func New(schema recordModel.Schema) (*Parser, error) {
	compiler := jsonschema.NewCompiler()
	validators := make(map[recordModel.FieldKind]*jsonschema.Schema, len(kindSchemas))
	for kind, src := range kindSchemas {
		url := "field-" + string(kind) + ".json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", kind, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		validators[kind] = compiled
	}

	byName := make(map[string]recordModel.FieldSpec, len(schema.Fields)*2)
	for _, f := range schema.Fields {
		byName[f.Name] = f
		byName[strings.ToLower(f.Name)] = f
	}
	return &Parser{
		schema:     schema,
		byName:     byName,
		validators: validators,
		logger:     logger_i.NewLogger("parse"),
	}, nil
}

// Parse reads raw as either {"fields": {name: {value, confidence}}} or a flat
// {name: value} object, optionally inside a markdown code fence.
func (p *Parser) Parse(raw string, ordinal int) (recordModel.PartialRecord, error) {
	out := recordModel.PartialRecord{Chunk: ordinal, Fields: make(map[string]recordModel.FieldValue)}

	obj, err := decodeObject(raw)
	if err != nil {
		return out, failure.New(failure.ParseError, op, err)
	}

	entries := obj
	if nested, ok := obj["fields"].(map[string]any); ok {
		if _, clash := p.byName["fields"]; !clash {
			entries = nested
		}
	}

	for _, key := range slices.Sorted(maps.Keys(entries)) {
		entry := entries[key]
		spec, known := p.lookup(key)
		if !known {
			out.Warnings = append(out.Warnings, fmt.Sprintf("chunk %d: unknown field %q dropped", ordinal, key))
			continue
		}
		value, confidence, reported := unwrapEntry(entry)
		if isAbsent(value) {
			continue
		}
		if _, dup := out.Fields[spec.Name]; dup {
			out.Warnings = append(out.Warnings, fmt.Sprintf("chunk %d: field %q given twice, first kept", ordinal, spec.Name))
			continue
		}
		fv, warning := p.field(spec, value, confidence, reported)
		fv.Chunk = ordinal
		out.Fields[spec.Name] = fv
		if warning != "" {
			out.Warnings = append(out.Warnings, fmt.Sprintf("chunk %d: %s", ordinal, warning))
		}
	}

	p.logger.Debug("parsed chunk", "chunk", ordinal, "fields", len(out.Fields), "warnings", len(out.Warnings))
	return out, nil
}

func (p *Parser) lookup(key string) (recordModel.FieldSpec, bool) {
	if f, ok := p.byName[key]; ok {
		return f, true
	}
	f, ok := p.byName[strings.ToLower(strings.TrimSpace(key))]
	return f, ok
}

func (p *Parser) field(spec recordModel.FieldSpec, value any, confidence float64, reported bool) (recordModel.FieldValue, string) {
	if !reported {
		confidence = WellFormedConfidence
	}

	normalized, ok := normalize(spec.Kind, value)
	if ok {
		if err := p.validators[spec.Kind].Validate(toJSONValue(normalized)); err != nil {
			ok = false
		}
	}
	if !ok {
		return recordModel.FieldValue{
			Value:      display(value),
			Confidence: math.Min(confidence, MalformedConfidence),
			Malformed:  true,
		}, fmt.Sprintf("field %q is not a valid %s", spec.Name, spec.Kind)
	}
	return recordModel.FieldValue{Value: normalized, Confidence: confidence}, ""
}

// unwrapEntry splits {"value": v, "confidence": c} entries. Anything else is
// a bare value with no reported confidence.
func unwrapEntry(entry any) (value any, confidence float64, reported bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return entry, 0, false
	}
	v, hasValue := m["value"]
	if !hasValue {
		return entry, 0, false
	}
	c, ok := readConfidence(m["confidence"])
	return v, c, ok
}

func readConfidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return math.Max(0, math.Min(1, f)), true
}

// toJSONValue converts normalized values into the shapes the schema
// validator understands.
func toJSONValue(v any) any {
	if items, ok := v.([]string); ok {
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out
	}
	return v
}

func decodeObject(raw string) (map[string]any, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, errors.New("empty completion")
	}
	if !strings.HasPrefix(body, "{") {
		start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
		if start < 0 || end <= start {
			return nil, errors.New("completion is not a JSON object")
		}
		body = body[start : end+1]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("completion is not a JSON object")
	}
	return obj, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
