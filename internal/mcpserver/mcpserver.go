// Package mcpserver exposes the extraction pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/export"
	"github.com/akolanti/BidExtract/internal/ingest"
	"github.com/akolanti/BidExtract/internal/pipeline"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ToolExtract = "extract_documents"
	ToolSchema  = "extraction_schema"
)

type Runner interface {
	Start(ctx context.Context, paths []string) *pipeline.Run
}

type BatchWriter interface {
	WriteBatch(records []recordModel.Record, summary runModel.RunSummary) (export.BatchFiles, error)
}

type Service struct {
	runner Runner
	writer BatchWriter
	schema recordModel.Schema
	logger *logger_i.Logger
}

// New wires the tools to runner. writer may be nil, in which case results
// are only returned to the caller.
func New(runner Runner, writer BatchWriter, schema recordModel.Schema) *Service {
	return &Service{runner: runner, writer: writer, schema: schema, logger: logger_i.NewLogger("mcp")}
}

func NewServer(s *Service) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: config.AppName, Version: config.AppVersion}, nil)
	s.Register(srv)
	return srv
}

// Serve runs the MCP server over stdio until ctx is done or the client hangs up.
func (s *Service) Serve(ctx context.Context) error {
	return NewServer(s).Run(ctx, &mcp.StdioTransport{})
}

func (s *Service) Register(srv *mcp.Server) {
	srv.AddTool(&mcp.Tool{
		Name:        ToolExtract,
		Description: "Extract the procurement header fields from bid documents (pdf, docx, odt, rtf, txt). Directories are expanded.",
		InputSchema: inputSchema(map[string]any{
			"paths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Document files or directories to process",
			},
		}, []string{"paths"}),
	}, s.extractDocuments)

	srv.AddTool(&mcp.Tool{
		Name:        ToolSchema,
		Description: "Return the fields every extracted record carries.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(s.schema)
	})
}

type extractArgs struct {
	Paths []string `json:"paths"`
}

type extractResult struct {
	BatchId string               `json:"batch_id"`
	Summary runModel.RunSummary  `json:"summary"`
	Records []recordModel.Record `json:"records"`
	Files   *export.BatchFiles   `json:"files,omitempty"`
}

func (s *Service) extractDocuments(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args extractArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if len(args.Paths) == 0 {
		return errorResult(errors.New("paths is required")), nil
	}
	paths, err := ingest.Discover(args.Paths)
	if err != nil {
		return errorResult(err), nil
	}

	run := s.runner.Start(ctx, paths)
	log := s.logger.WithContext(logger_i.WithTrace(ctx, run.TraceId)).With("batch", run.BatchId)
	log.Info("mcp.extract.started", "documents", len(paths))

	var records []recordModel.Record
	for rec := range run.Records() {
		records = append(records, rec)
	}
	summary := run.Wait()

	result := extractResult{BatchId: run.BatchId, Summary: summary, Records: records}
	if s.writer != nil {
		files, err := s.writer.WriteBatch(records, summary)
		if err != nil {
			log.Error("mcp.extract.export_failed", "error", err)
			return errorResult(fmt.Errorf("export: %w", err)), nil
		}
		result.Files = &files
	}
	log.Info("mcp.extract.ok", "succeeded", summary.Succeeded, "failed", summary.Failed)
	return textResult(result)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("marshal: %w", err)), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
