package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akolanti/BidExtract/internal/aggregate"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/export"
	"github.com/akolanti/BidExtract/internal/extraction"
	"github.com/akolanti/BidExtract/internal/ingest"
	"github.com/akolanti/BidExtract/internal/llm"
	"github.com/akolanti/BidExtract/internal/llm/llmtest"
	"github.com/akolanti/BidExtract/internal/parse"
	"github.com/akolanti/BidExtract/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "bidextract-test", Version: "0.1.0"}

func newService(t *testing.T, outDir string) *Service {
	t.Helper()
	schema := recordModel.DefaultSchema()
	provider := &llmtest.MockProvider{
		OnComplete: func(ctx context.Context, req llm.Request) (llm.Completion, error) {
			return llm.Completion{Text: `{"fields":{"ten_goi_thau":{"value":"Mua sắm thiết bị","confidence":0.9}}}`}, nil
		},
	}
	client := extraction.NewClient(provider, &llmtest.CountingGate{},
		extraction.BackoffPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond}, time.Second)
	parser, err := parse.New(schema)
	if err != nil {
		t.Fatal(err)
	}
	pipe := pipeline.New(pipeline.Settings{
		Schema:            schema,
		Params:            recordModel.ModelParams{Provider: "mock", Model: "mock-model", MaxOutputTokens: 100},
		MaxTokensPerChunk: 500,
		Concurrency:       2,
		ChunkFanout:       2,
	}, pipeline.Deps{
		Loader:     ingest.NewLoader(time.Second),
		Extractor:  client,
		Parser:     parser,
		Aggregator: aggregate.New(schema, aggregate.HighestConfidence),
	})
	return New(pipe, export.NewWriter(outDir, schema), schema)
}

func session(t *testing.T, s *Service) *mcp.ClientSession {
	t.Helper()
	srv := NewServer(s)
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return tc.Text
}

func TestMCP_ExtractDocuments(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	good := filepath.Join(dir, "goi_thau.txt")
	if err := os.WriteFile(good, []byte("Tên gói thầu: Mua sắm thiết bị. Chủ đầu tư: Công ty Điện lực."), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte(" \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cs := session(t, newService(t, out))
	raw := text(t, callTool(t, cs, ToolExtract, map[string]any{"paths": []string{dir}}))

	var res struct {
		BatchId string               `json:"batch_id"`
		Summary runModel.RunSummary  `json:"summary"`
		Records []recordModel.Record `json:"records"`
		Files   *export.BatchFiles   `json:"files"`
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Summary.Processed != 2 || res.Summary.Succeeded != 1 || res.Summary.Failed != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	for _, rec := range res.Records {
		switch rec.Path {
		case good:
			name, _ := rec.Field("ten_goi_thau")
			if rec.State != runModel.StateDone || name.Value != "Mua sắm thiết bị" {
				t.Errorf("good record = %+v", rec)
			}
		case empty:
			if rec.State != runModel.StateFailed || rec.ErrorKind != failure.LoadError {
				t.Errorf("empty record = %+v", rec)
			}
		default:
			t.Errorf("unexpected record %s", rec.Path)
		}
	}
	if res.Files == nil {
		t.Fatal("expected output files")
	}
	if _, err := os.Stat(res.Files.MasterData); err != nil {
		t.Errorf("master data not written: %v", err)
	}
}

func TestMCP_ExtractDocuments_InvalidArguments(t *testing.T) {
	cs := session(t, newService(t, t.TempDir()))
	result := callTool(t, cs, ToolExtract, map[string]any{"paths": []string{}})
	if result.GetError() == nil {
		t.Error("expected a tool error for empty paths")
	}
}

func TestMCP_Schema(t *testing.T) {
	cs := session(t, newService(t, t.TempDir()))
	var schema recordModel.Schema
	if err := json.Unmarshal([]byte(text(t, callTool(t, cs, ToolSchema, map[string]any{}))), &schema); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(schema.Fields) != len(recordModel.DefaultSchema().Fields) {
		t.Errorf("fields = %d", len(schema.Fields))
	}
}
